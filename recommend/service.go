package recommend

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/syeo66/cadence/collaborative"
	"github.com/syeo66/cadence/content"
	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/hybrid"
	"github.com/syeo66/cadence/models"
	"github.com/syeo66/cadence/popularity"
	"github.com/syeo66/cadence/predictor"
	"github.com/syeo66/cadence/similarity"
)

// Default service settings
const (
	DefaultLimit            = 20
	DefaultMaxLimit         = 100
	DefaultBatchSize        = 100
	MaxBatchSize            = 1000
	DefaultSimilarCacheTTL  = 10 * time.Minute
	DefaultSimilarCacheSize = 1024
)

type Config struct {
	DefaultLimit     int
	MaxLimit         int
	Weights          hybrid.Weights
	BatchSize        int
	SimilarCacheTTL  time.Duration
	SimilarCacheSize uint64
}

func DefaultConfig() Config {
	return Config{
		DefaultLimit:     DefaultLimit,
		MaxLimit:         DefaultMaxLimit,
		Weights:          hybrid.DefaultWeights(),
		BatchSize:        DefaultBatchSize,
		SimilarCacheTTL:  DefaultSimilarCacheTTL,
		SimilarCacheSize: DefaultSimilarCacheSize,
	}
}

// Components are the scoring parts the service dispatches to.
type Components struct {
	Engine        *similarity.Engine
	Collaborative *collaborative.Filter
	Content       *content.Filter
	Popularity    *popularity.Service
	Predictor     *predictor.Predictor
}

// Service is the exposed recommendation API. Every call loads a snapshot
// from the store and scores it in memory.
type Service struct {
	store      Store
	components Components
	ranker     *hybrid.Ranker
	similar    *ttlcache.Cache[similarKey, []models.RecommendationResult]
	logger     *logrus.Logger
	config     Config
}

type similarKey struct {
	songID string
	limit  int
}

func New(store Store, components Components, logger *logrus.Logger, config Config) *Service {
	s := &Service{
		store:      store,
		components: components,
		ranker:     hybrid.New(components.Collaborative, components.Content, components.Popularity, components.Predictor, logger),
		logger:     logger,
		config:     config,
	}
	if config.SimilarCacheTTL > 0 {
		s.similar = ttlcache.New[similarKey, []models.RecommendationResult](
			ttlcache.WithTTL[similarKey, []models.RecommendationResult](config.SimilarCacheTTL),
			ttlcache.WithCapacity[similarKey, []models.RecommendationResult](config.SimilarCacheSize),
			ttlcache.WithDisableTouchOnHit[similarKey, []models.RecommendationResult](),
		)
	}
	return s
}

// Predictor exposes the owned predictor for status reporting and refreshes.
func (s *Service) Predictor() *predictor.Predictor {
	return s.components.Predictor
}

// Options tune a personalized request. Weights only apply to the hybrid
// algorithm; nil means the configured defaults.
type Options struct {
	Limit         int
	AlgorithmHint string
	Weights       *hybrid.Weights
}

type snapshot struct {
	profile   models.UserProfile
	catalogue []models.Song
	all       []models.PreferenceEvent
}

func (s *Service) limit(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, errors.ErrInvalidInput.WithContext("field", "limit").WithContext("value", requested)
	case requested == 0:
		return s.config.DefaultLimit, nil
	case s.config.MaxLimit > 0 && requested > s.config.MaxLimit:
		return s.config.MaxLimit, nil
	}
	return requested, nil
}

// load reads the user's events and the catalogue concurrently. The full
// event log is only read when the algorithm needs other users.
func (s *Service) load(ctx context.Context, userID string, withAll bool) (snapshot, error) {
	snap := snapshot{profile: models.UserProfile{UserID: userID}}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.profile.Interactions, err = s.store.GetInteractions(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		snap.profile.Likes, err = s.store.GetLikes(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		snap.profile.Ratings, err = s.store.GetRatings(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		snap.catalogue, err = s.store.GetSongs(gctx, models.SongFilter{})
		return err
	})
	if withAll {
		g.Go(func() (err error) {
			snap.all, err = s.store.GetAllEvents(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

// GetPersonalizedRecommendations ranks unseen songs for userID with the
// hinted algorithm, hybrid by default.
func (s *Service) GetPersonalizedRecommendations(ctx context.Context, userID string, opts Options) ([]models.RecommendationResult, error) {
	if userID == "" {
		return nil, errors.ErrMissingParameter.WithContext("parameter", "userId")
	}
	algorithm, err := ParseAlgorithm(opts.AlgorithmHint)
	if err != nil {
		return nil, err
	}
	limit, err := s.limit(opts.Limit)
	if err != nil {
		return nil, err
	}
	weights := s.config.Weights
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	if algorithm == AlgorithmHybrid {
		if err := weights.Validate(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	RequestsTotal.WithLabelValues(string(algorithm)).Inc()
	defer func() {
		RequestSeconds.WithLabelValues(string(algorithm)).Observe(time.Since(start).Seconds())
	}()

	withAll := algorithm == AlgorithmHybrid || algorithm == AlgorithmCollaborative ||
		algorithm == AlgorithmUserBased || algorithm == AlgorithmMatrixFactorization
	snap, err := s.load(ctx, userID, withAll)
	if err != nil {
		return nil, err
	}

	results, err := s.dispatch(ctx, algorithm, snap, weights, limit)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"userId":    userID,
		"algorithm": algorithm,
		"limit":     limit,
		"results":   len(results),
		"duration":  time.Since(start),
	}).Debug("Personalized recommendations computed")
	return results, nil
}

func (s *Service) dispatch(ctx context.Context, algorithm Algorithm, snap snapshot, weights hybrid.Weights, limit int) ([]models.RecommendationResult, error) {
	c := s.components
	switch algorithm {
	case AlgorithmCollaborative:
		return results(c.Collaborative.Recommend(snap.profile, snap.all, snap.catalogue, limit), models.SourceCollaborative), nil
	case AlgorithmUserBased:
		others := models.GroupProfiles(snap.all)
		return results(c.Collaborative.UserBased(snap.profile, others, snap.catalogue, limit), models.SourceCollaborative), nil
	case AlgorithmMatrixFactorization:
		return results(c.Collaborative.MatrixFactorization(snap.profile, snap.all, snap.catalogue, limit), models.SourceCollaborative), nil
	case AlgorithmContent:
		res := c.Content.Recommend(snap.profile, snap.catalogue, limit)
		return results(res.Songs, res.Source), nil
	case AlgorithmEnhanced:
		model, err := c.Predictor.Model(ctx)
		if err != nil {
			return nil, err
		}
		res := c.Content.Enhanced(snap.profile, snap.catalogue, model, limit)
		return results(res.Songs, res.Source), nil
	case AlgorithmPopularity:
		return results(c.Popularity.Rank(snap.catalogue, snap.profile.SeenSongs(), limit), models.SourcePopularity), nil
	default:
		return s.ranker.Recommend(ctx, hybrid.Request{
			Profile:   snap.profile,
			Catalogue: snap.catalogue,
			AllEvents: snap.all,
			Weights:   &weights,
			Limit:     limit,
		})
	}
}

func results(scored []models.ScoredSong, source string) []models.RecommendationResult {
	out := make([]models.RecommendationResult, len(scored))
	for i, s := range scored {
		out[i] = models.RecommendationResult{
			Song:      s.Song,
			Score:     s.Score,
			Sources:   []string{source},
			Rationale: s.Reason,
		}
	}
	return out
}

// RecordEvent validates and stores a preference event for a known song.
func (s *Service) RecordEvent(ctx context.Context, event models.PreferenceEvent) (models.PreferenceEvent, error) {
	if err := event.Validate(); err != nil {
		return models.PreferenceEvent{}, err
	}
	if _, err := s.store.GetSongByID(ctx, event.SongID); err != nil {
		return models.PreferenceEvent{}, err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	stored, err := s.store.RecordEvent(ctx, event)
	if err != nil {
		return models.PreferenceEvent{}, err
	}
	s.logger.WithFields(logrus.Fields{
		"userId": stored.UserID,
		"songId": stored.SongID,
		"type":   stored.Type,
	}).Debug("Preference event recorded")
	return stored, nil
}
