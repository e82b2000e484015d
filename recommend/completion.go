package recommend

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/features"
	"github.com/syeo66/cadence/models"
	"github.com/syeo66/cadence/predictor"
)

// CompletionTarget selects one song or the whole catalogue.
type CompletionTarget struct {
	SongID string
	All    bool
}

type CompletionOptions struct {
	DryRun    bool
	BatchSize int
}

// CompletedSong lists the values a completion run wrote, or would write on a
// dry run.
type CompletedSong struct {
	SongID   string             `json:"songId"`
	Features map[string]float64 `json:"features,omitempty"`
	Genres   []string           `json:"genres,omitempty"`
	Moods    []string           `json:"moods,omitempty"`

	partial features.Set
}

type CompletionReport struct {
	Completed int             `json:"completed"`
	Skipped   int             `json:"skipped"`
	Errors    int             `json:"errors"`
	DryRun    bool            `json:"dryRun"`
	ModelMode predictor.Mode  `json:"modelMode"`
	Songs     []CompletedSong `json:"songs"`
}

// CompleteSongData fills missing features, genres and moods. Songs with
// nothing to fill are skipped. Load failures abort the run; a failed write
// is counted in Errors and the run moves on. After a run that wrote
// anything the predictor model and the similar-songs cache are invalidated.
func (s *Service) CompleteSongData(ctx context.Context, target CompletionTarget, opts CompletionOptions) (CompletionReport, error) {
	if (target.SongID == "") == !target.All {
		return CompletionReport{}, errors.ErrInvalidInput.
			WithContext("reason", "exactly one of songId and all must be set")
	}
	batch := opts.BatchSize
	switch {
	case batch < 0:
		return CompletionReport{}, errors.ErrInvalidInput.WithContext("field", "batchSize").WithContext("value", batch)
	case batch == 0:
		batch = s.config.BatchSize
	case batch > MaxBatchSize:
		batch = MaxBatchSize
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	start := time.Now()
	model, err := s.components.Predictor.Model(ctx)
	if err != nil {
		return CompletionReport{}, err
	}
	report := CompletionReport{DryRun: opts.DryRun, ModelMode: model.Mode(), Songs: []CompletedSong{}}

	if target.SongID != "" {
		song, err := s.store.GetSongByID(ctx, target.SongID)
		if err != nil {
			return CompletionReport{}, err
		}
		s.completeOne(ctx, model, song, opts.DryRun, &report)
	} else {
		for offset := 0; ; {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			songs, err := s.store.GetSongs(ctx, models.SongFilter{Limit: batch, Offset: offset})
			if err != nil {
				return report, err
			}
			for _, song := range songs {
				s.completeOne(ctx, model, song, opts.DryRun, &report)
			}
			offset += len(songs)
			if len(songs) < batch {
				break
			}
		}
	}

	if !opts.DryRun && report.Completed > 0 {
		s.components.Predictor.Invalidate()
		s.purgeSimilar()
	}

	s.logger.WithFields(logrus.Fields{
		"completed": report.Completed,
		"skipped":   report.Skipped,
		"errors":    report.Errors,
		"dryRun":    opts.DryRun,
		"modelMode": report.ModelMode,
		"duration":  time.Since(start),
	}).Info("Song data completion finished")
	return report, nil
}

func (s *Service) completeOne(ctx context.Context, model *predictor.Model, song models.Song, dryRun bool, report *CompletionReport) {
	change, ok := plan(model, song)
	if !ok {
		report.Skipped++
		CompletedSongsTotal.WithLabelValues("skipped").Inc()
		return
	}
	if !dryRun {
		if err := s.write(ctx, change); err != nil {
			report.Errors++
			CompletedSongsTotal.WithLabelValues("error").Inc()
			s.logger.WithError(err).WithField("songId", song.ID).Error("Failed to store completed song data")
			return
		}
	}
	report.Completed++
	report.Songs = append(report.Songs, change)
	CompletedSongsTotal.WithLabelValues("completed").Inc()
}

// plan works out what completion would add to song. Existing values are
// never replaced.
func plan(model *predictor.Model, song models.Song) (CompletedSong, bool) {
	completed := model.Complete(song)

	var added features.Set
	for _, f := range song.Features.Missing() {
		if v, ok := completed.Features.Get(f); ok {
			added = added.With(f, v)
		}
	}

	change := CompletedSong{SongID: song.ID, partial: added}
	if added.Len() > 0 {
		change.Features = added.Map()
	}
	if len(song.Genres) == 0 && len(completed.Genres) > 0 {
		change.Genres = completed.Genres
	}
	if len(song.Moods) == 0 && len(completed.Moods) > 0 {
		change.Moods = completed.Moods
	}
	return change, change.Features != nil || change.Genres != nil || change.Moods != nil
}

func (s *Service) write(ctx context.Context, change CompletedSong) error {
	if change.partial.Len() > 0 {
		if err := s.store.UpdateSongFeatures(ctx, change.SongID, change.partial); err != nil {
			return err
		}
	}
	if len(change.Genres) > 0 {
		if err := s.store.SetSongGenres(ctx, change.SongID, change.Genres); err != nil {
			return err
		}
	}
	if len(change.Moods) > 0 {
		if err := s.store.SetSongMoods(ctx, change.SongID, change.Moods); err != nil {
			return err
		}
	}
	return nil
}
