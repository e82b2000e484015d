package recommend

import (
	"context"

	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/models"
)

// MaxImportSize bounds the songs accepted by one ImportSongs call.
const MaxImportSize = 5000

// ImportSongs adds or updates catalogue entries. The whole batch is checked
// before anything is stored. A successful import invalidates the feature
// model and the similar-songs cache.
func (s *Service) ImportSongs(ctx context.Context, songs []models.Song) (int, error) {
	if len(songs) == 0 {
		return 0, errors.ErrMissingParameter.WithContext("parameter", "songs")
	}
	if len(songs) > MaxImportSize {
		return 0, errors.ErrInvalidInput.
			WithContext("field", "songs").
			WithContext("count", len(songs)).
			WithContext("max", MaxImportSize)
	}
	seen := make(map[string]struct{}, len(songs))
	for i, song := range songs {
		if song.ID == "" {
			return 0, errors.ErrMissingParameter.WithContext("parameter", "id").WithContext("index", i)
		}
		if _, dup := seen[song.ID]; dup {
			return 0, errors.ErrInvalidInput.WithContext("reason", "duplicate song id").WithContext("songId", song.ID)
		}
		seen[song.ID] = struct{}{}
		if err := song.Features.Validate(); err != nil {
			return 0, err
		}
	}

	if err := s.store.StoreSongs(ctx, songs); err != nil {
		return 0, err
	}
	s.components.Predictor.Invalidate()
	s.purgeSimilar()

	s.logger.WithField("songs", len(songs)).Info("Catalogue updated")
	return len(songs), nil
}
