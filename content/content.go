package content

import (
	"fmt"
	"math"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/models"
	"github.com/syeo66/cadence/popularity"
	"github.com/syeo66/cadence/predictor"
	"github.com/syeo66/cadence/similarity"
)

const (
	playCap       = 5
	minGoodRating = 4
)

type Config struct {
	// MinSimilarity drops candidates whose weighted similarity is below it.
	MinSimilarity float64
}

func DefaultConfig() Config {
	return Config{MinSimilarity: 0.3}
}

// Preference is one entry of a user's flat preference list.
type Preference struct {
	Song   models.Song
	Type   models.EventType
	Weight float64
}

// Result carries the ranked songs and the tag describing where they came
// from: the requested strategy, or popularity when the user had nothing to
// match against.
type Result struct {
	Songs  []models.ScoredSong
	Source string
}

// Filter recommends songs that resemble what the user already enjoys.
type Filter struct {
	engine     *similarity.Engine
	enhanced   *similarity.Engine
	popularity *popularity.Service
	logger     *logrus.Logger
	config     Config
}

// New derives two engines from engine: a Discount one for plain content
// matching, where songs with partial audio keep a half-weight audio factor,
// and an Omit one for the predictor-enhanced pass.
func New(engine *similarity.Engine, pop *popularity.Service, logger *logrus.Logger, config Config) *Filter {
	return &Filter{
		engine:     engine.WithPolicy(similarity.Discount),
		enhanced:   engine.WithPolicy(similarity.Omit),
		popularity: pop,
		logger:     logger,
		config:     config,
	}
}

// Preferences flattens a profile: plays as min(n,5)/5, likes as 1 and
// ratings of 4 or more as value/5. Songs missing from the catalogue are
// dropped.
func Preferences(p models.UserProfile, byID map[string]models.Song) []Preference {
	var out []Preference
	plays := make(map[string]int)
	for _, e := range p.Interactions {
		if e.Type == models.EventPlay {
			plays[e.SongID]++
		}
	}
	for songID, n := range plays {
		if song, ok := byID[songID]; ok {
			out = append(out, Preference{Song: song, Type: models.EventPlay, Weight: math.Min(float64(n), playCap) / playCap})
		}
	}
	liked := mapset.NewThreadUnsafeSet[string]()
	for _, e := range p.Likes {
		if song, ok := byID[e.SongID]; ok && liked.Add(e.SongID) {
			out = append(out, Preference{Song: song, Type: models.EventLike, Weight: 1})
		}
	}
	for _, e := range p.Ratings {
		if e.Value < minGoodRating {
			continue
		}
		if song, ok := byID[e.SongID]; ok {
			out = append(out, Preference{Song: song, Type: models.EventRating, Weight: math.Min(e.Value/5, 1)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Song.ID != out[j].Song.ID {
			return out[i].Song.ID < out[j].Song.ID
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Recommend scores every song outside the preference list by its
// preference-weighted average similarity to the list.
func (f *Filter) Recommend(p models.UserProfile, catalogue []models.Song, limit int) Result {
	byID := lo.KeyBy(catalogue, func(s models.Song) string { return s.ID })
	prefs := Preferences(p, byID)
	if len(prefs) == 0 {
		return f.fallback(p, catalogue, limit)
	}
	return Result{
		Songs:  f.score(f.engine, prefs, p.SeenSongs(), catalogue, limit),
		Source: models.SourceContent,
	}
}

// Enhanced completes songs with the feature model first, treating predicted
// features, genres and moods as real, and scores with the engine's default
// omission rule.
func (f *Filter) Enhanced(p models.UserProfile, catalogue []models.Song, model *predictor.Model, limit int) Result {
	completed := lo.Map(catalogue, func(s models.Song, _ int) models.Song { return model.Complete(s) })
	byID := lo.KeyBy(completed, func(s models.Song) string { return s.ID })
	prefs := Preferences(p, byID)
	if len(prefs) == 0 {
		return f.fallback(p, catalogue, limit)
	}

	scored := f.score(f.enhanced, prefs, p.SeenSongs(), completed, limit)
	// hand back the stored songs, not the completed copies
	original := lo.KeyBy(catalogue, func(s models.Song) string { return s.ID })
	for i := range scored {
		scored[i].Song = original[scored[i].Song.ID]
	}
	return Result{Songs: scored, Source: models.SourceEnhanced}
}

func (f *Filter) fallback(p models.UserProfile, catalogue []models.Song, limit int) Result {
	f.logger.WithField("userId", p.UserID).Debug("No preference events, using popularity fallback")
	return Result{
		Songs:  f.popularity.Rank(catalogue, p.SeenSongs(), limit),
		Source: models.SourcePopularity,
	}
}

// score skips the preference songs themselves and everything in exclude.
func (f *Filter) score(engine *similarity.Engine, prefs []Preference, exclude mapset.Set[string], candidates []models.Song, limit int) []models.ScoredSong {
	if limit <= 0 {
		return nil
	}
	preferred := mapset.NewThreadUnsafeSet(lo.Map(prefs, func(p Preference, _ int) string { return p.Song.ID })...)

	var out []models.ScoredSong
	for _, c := range candidates {
		if preferred.Contains(c.ID) || exclude.Contains(c.ID) {
			continue
		}
		var sum, weights, best float64
		var closest Preference
		for _, pref := range prefs {
			sim := engine.Similarity(c, pref.Song)
			sum += pref.Weight * sim
			weights += pref.Weight
			if contribution := pref.Weight * sim; contribution > best {
				best, closest = contribution, pref
			}
		}
		if weights == 0 {
			continue
		}
		score := sum / weights
		if score < f.config.MinSimilarity {
			continue
		}
		out = append(out, models.ScoredSong{
			Song:   c,
			Score:  score,
			Reason: fmt.Sprintf("Sounds like %q", closest.Song.Title),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Song.ID < out[j].Song.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}

	f.logger.WithFields(logrus.Fields{
		"preferences": len(prefs),
		"candidates":  len(candidates),
		"kept":        len(out),
		"policy":      engine.Policy().String(),
	}).Debug("Content-based scoring")
	return out
}
