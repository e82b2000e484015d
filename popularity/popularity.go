package popularity

import (
	"math"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/models"
	"github.com/syeo66/cadence/topk"
)

// engagementScale controls how fast raw engagement saturates towards 1.
const engagementScale = 4.0

type Service struct {
	logger *logrus.Logger
	now    func() time.Time
}

func New(logger *logrus.Logger) *Service {
	return &Service{
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for recency decay.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Engagement returns the time-independent popularity of a song in [0,1) and
// false when the song has no engagement data at all.
func Engagement(song models.Song) (float64, bool) {
	if !song.HasEngagement() {
		return 0, false
	}
	raw := math.Log1p(float64(song.PlayCount)) + 2*math.Log1p(float64(song.LikeCount))
	if song.RatingCount > 0 {
		raw += 2 * (song.AverageRating / 5) * math.Log1p(float64(song.RatingCount))
	}
	raw *= playSkipWeight(song.PlayCount, song.SkipCount)
	return 1 - math.Exp(-raw/engagementScale), true
}

// Score is Engagement damped by how long ago the song was last played.
func (s *Service) Score(song models.Song) float64 {
	engagement, ok := Engagement(song)
	if !ok {
		return 0
	}
	recency := recencyWeight(song.LastPlayed, s.now())
	score := engagement * recency

	s.logger.WithFields(logrus.Fields{
		"songId":     song.ID,
		"engagement": engagement,
		"recency":    recency,
		"score":      score,
	}).Debug("Calculated popularity score")

	return score
}

// Rank returns the most popular songs not in exclude, scores normalized so the
// most popular song of the catalogue scores 1. Songs without engagement are
// kept at score 0 so a catalogue with no history still yields a list.
func (s *Service) Rank(songs []models.Song, exclude mapset.Set[string], limit int) []models.ScoredSong {
	if limit <= 0 {
		return nil
	}
	scores := make([]float64, len(songs))
	top := 0.0
	for i, song := range songs {
		scores[i] = s.Score(song)
		if scores[i] > top {
			top = scores[i]
		}
	}

	filter := topk.New[int](limit)
	for i, song := range songs {
		if exclude != nil && exclude.Contains(song.ID) {
			continue
		}
		filter.Push(i, song.ID, scores[i])
	}

	elems := filter.PopAll()
	out := make([]models.ScoredSong, 0, len(elems))
	for _, e := range elems {
		normalized := 0.0
		if top > 0 {
			normalized = e.Score / top
		}
		out = append(out, models.ScoredSong{
			Song:   songs[e.Value],
			Score:  normalized,
			Reason: reason(songs[e.Value]),
		})
	}
	return out
}

func reason(song models.Song) string {
	switch {
	case !song.HasEngagement():
		return "New in the catalogue"
	case song.LikeCount > 0 && song.LikeCount >= song.PlayCount/4:
		return "Liked by many listeners"
	case song.RatingCount > 0 && song.AverageRating >= 4:
		return "Highly rated"
	default:
		return "Popular with listeners"
	}
}

// playSkipWeight favours songs that are played through rather than skipped.
// No history is neutral.
func playSkipWeight(playCount, skipCount int) float64 {
	total := playCount + skipCount
	if total == 0 {
		return 1.0
	}
	playRatio := float64(playCount) / float64(total)
	return 0.2 + playRatio*0.8
}

// recencyWeight decays from 1.0 for a song played just now to 0.75 after 30
// days and to 0.5 after a year. Never played songs get 0.5.
func recencyWeight(lastPlayed, now time.Time) float64 {
	if lastPlayed.IsZero() {
		return 0.5
	}
	days := now.Sub(lastPlayed).Hours() / 24.0
	if days < 0 {
		days = 0
	}
	if days < 30 {
		return 1.0 - (days/30.0)*0.25
	}
	return 0.75 - math.Min((days-30)/335.0, 1.0)*0.25
}
