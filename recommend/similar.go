package recommend

import (
	"context"
	"slices"

	"github.com/jellydator/ttlcache/v3"
	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/models"
)

// GetSimilarSongs returns the songs closest to songID under the similarity
// engine, tagged similar. Results are cached per song and limit until the
// TTL expires or a completion run changes the catalogue.
func (s *Service) GetSimilarSongs(ctx context.Context, songID string, limit int) ([]models.RecommendationResult, error) {
	if songID == "" {
		return nil, errors.ErrMissingParameter.WithContext("parameter", "songId")
	}
	limit, err := s.limit(limit)
	if err != nil {
		return nil, err
	}

	key := similarKey{songID: songID, limit: limit}
	if s.similar != nil {
		if item := s.similar.Get(key); item != nil {
			SimilarCacheTotal.WithLabelValues("hit").Inc()
			return slices.Clone(item.Value()), nil
		}
		SimilarCacheTotal.WithLabelValues("miss").Inc()
	}

	target, err := s.store.GetSongByID(ctx, songID)
	if err != nil {
		return nil, err
	}
	catalogue, err := s.store.GetSongs(ctx, models.SongFilter{})
	if err != nil {
		return nil, err
	}

	out := results(s.components.Engine.Nearest(target, catalogue, limit), models.SourceSimilar)
	if s.similar != nil {
		s.similar.Set(key, out, ttlcache.DefaultTTL)
	}

	s.logger.WithFields(logrus.Fields{
		"songId":  songID,
		"limit":   limit,
		"results": len(out),
	}).Debug("Similar songs computed")
	return slices.Clone(out), nil
}

// purgeSimilar drops every cached similar-songs list.
func (s *Service) purgeSimilar() {
	if s.similar != nil {
		s.similar.DeleteAll()
	}
}
