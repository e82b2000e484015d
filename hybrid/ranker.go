package hybrid

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/syeo66/cadence/content"
	"github.com/syeo66/cadence/models"
	"github.com/syeo66/cadence/predictor"
)

// candidateFactor widens each source's list so the merge has overlap to
// work with.
const candidateFactor = 3

type CollaborativeSource interface {
	Recommend(p models.UserProfile, all []models.PreferenceEvent, catalogue []models.Song, limit int) []models.ScoredSong
}

type ContentSource interface {
	Recommend(p models.UserProfile, catalogue []models.Song, limit int) content.Result
	Enhanced(p models.UserProfile, catalogue []models.Song, model *predictor.Model, limit int) content.Result
}

type PopularitySource interface {
	Rank(songs []models.Song, exclude mapset.Set[string], limit int) []models.ScoredSong
}

type ModelSource interface {
	Model(ctx context.Context) (*predictor.Model, error)
}

// Ranker blends the strategies into one list.
type Ranker struct {
	collaborative CollaborativeSource
	content       ContentSource
	popularity    PopularitySource
	models        ModelSource
	logger        *logrus.Logger
}

func New(collab CollaborativeSource, cont ContentSource, pop PopularitySource, models ModelSource, logger *logrus.Logger) *Ranker {
	return &Ranker{
		collaborative: collab,
		content:       cont,
		popularity:    pop,
		models:        models,
		logger:        logger,
	}
}

// Request is the loaded snapshot a recommendation is computed from.
type Request struct {
	Profile   models.UserProfile
	Catalogue []models.Song
	AllEvents []models.PreferenceEvent
	// Weights overrides DefaultWeights when set.
	Weights *Weights
	Limit   int
}

// contribution is one source's verdict on one song.
type contribution struct {
	source string
	score  float64
	reason string
}

type slot struct {
	name   string
	weight float64
	songs  []models.ScoredSong
	tag    string
}

// Recommend validates the weights, short-circuits cold-start users to a
// popularity list and otherwise runs every weighted source concurrently and
// sums weight×score per song.
func (r *Ranker) Recommend(ctx context.Context, req Request) ([]models.RecommendationResult, error) {
	start := time.Now()
	defer func() { RecommendSeconds.Observe(time.Since(start).Seconds()) }()

	weights := DefaultWeights()
	if req.Weights != nil {
		weights = *req.Weights
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		return []models.RecommendationResult{}, nil
	}

	if req.Profile.IsColdStart() {
		return r.coldStart(req), nil
	}

	slots := []*slot{
		{name: "collaborative", weight: weights.Collaborative, tag: models.SourceCollaborative},
		{name: "content", weight: weights.Content, tag: models.SourceContent},
		{name: "enhanced", weight: weights.Enhanced, tag: models.SourceEnhanced},
		{name: "popularity", weight: weights.Popularity, tag: models.SourcePopularity},
	}
	depth := req.Limit * candidateFactor
	seen := req.Profile.SeenSongs()

	g, gctx := errgroup.WithContext(ctx)
	if s := slots[0]; s.weight > 0 {
		g.Go(func() error {
			s.songs = r.collaborative.Recommend(req.Profile, req.AllEvents, req.Catalogue, depth)
			return nil
		})
	}
	if s := slots[1]; s.weight > 0 {
		g.Go(func() error {
			res := r.content.Recommend(req.Profile, req.Catalogue, depth)
			s.songs, s.tag = res.Songs, res.Source
			return nil
		})
	}
	if s := slots[2]; s.weight > 0 {
		g.Go(func() error {
			model, err := r.models.Model(gctx)
			if err != nil {
				return err
			}
			res := r.content.Enhanced(req.Profile, req.Catalogue, model, depth)
			s.songs, s.tag = res.Songs, res.Source
			return nil
		})
	}
	if s := slots[3]; s.weight > 0 {
		g.Go(func() error {
			s.songs = r.popularity.Rank(req.Catalogue, seen, req.Limit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	dropRepeatedPopularity(slots)

	results := merge(slots, req.Limit)

	fields := logrus.Fields{"userId": req.Profile.UserID, "results": len(results), "duration": time.Since(start)}
	for _, s := range slots {
		fields[s.name] = len(s.songs)
		SourceResultsTotal.WithLabelValues(s.name).Add(float64(len(s.songs)))
	}
	r.logger.WithFields(fields).Debug("Hybrid recommendation")

	return results, nil
}

func (r *Ranker) coldStart(req Request) []models.RecommendationResult {
	ColdStartTotal.Inc()
	ranked := r.popularity.Rank(req.Catalogue, nil, req.Limit)
	out := make([]models.RecommendationResult, len(ranked))
	for i, s := range ranked {
		out[i] = models.RecommendationResult{
			Song:      s.Song,
			Score:     s.Score,
			Sources:   []string{models.SourceColdStart, models.SourcePopularity},
			Rationale: "Popular pick while we learn your taste",
		}
	}
	r.logger.WithFields(logrus.Fields{
		"userId":  req.Profile.UserID,
		"results": len(out),
	}).Info("Cold start user, serving popularity list")
	return out
}

// dropRepeatedPopularity keeps a single copy of the popularity ranking. The
// content slots fall back to it for users without preference songs; that list
// is already carried by the popularity slot when it is weighted, otherwise by
// the first fallback only.
func dropRepeatedPopularity(slots []*slot) {
	counted := lo.ContainsBy(slots, func(s *slot) bool {
		return s.name == "popularity" && s.weight > 0
	})
	for _, s := range slots {
		if s.name == "popularity" || s.tag != models.SourcePopularity || len(s.songs) == 0 {
			continue
		}
		if counted {
			s.songs = nil
		}
		counted = true
	}
}

// merge sums weighted scores per song, sorts descending with song ID as the
// tie breaker and truncates.
func merge(slots []*slot, limit int) []models.RecommendationResult {
	type entry struct {
		song          models.Song
		score         float64
		contributions []contribution
	}
	entries := make(map[string]*entry)
	for _, s := range slots {
		if s.weight <= 0 {
			continue
		}
		for _, scored := range s.songs {
			e, ok := entries[scored.Song.ID]
			if !ok {
				e = &entry{song: scored.Song}
				entries[scored.Song.ID] = e
			}
			c := contribution{source: s.tag, score: s.weight * scored.Score, reason: scored.Reason}
			e.score += c.score
			e.contributions = append(e.contributions, c)
		}
	}

	out := make([]models.RecommendationResult, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.RecommendationResult{
			Song:      e.song,
			Score:     math.Max(0, math.Min(1, e.score)),
			Sources:   tags(e.contributions),
			Rationale: rationale(e.contributions),
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
	return out
}

func tags(cs []contribution) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range cs {
		if !seen[c.source] {
			seen[c.source] = true
			out = append(out, c.source)
		}
	}
	return out
}

func rationale(cs []contribution) string {
	if len(cs) == 0 {
		return ""
	}
	best := cs[0]
	for _, c := range cs[1:] {
		if c.score > best.score {
			best = c
		}
	}
	reason := best.reason
	if reason == "" {
		reason = "Recommended by " + best.source
	}
	if sources := tags(cs); len(sources) > 1 {
		return fmt.Sprintf("%s (agreed on by %s)", reason, strings.Join(sources, ", "))
	}
	return reason
}
