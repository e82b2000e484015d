package collaborative

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/models"
	"github.com/syeo66/cadence/similarity"
)

type Config struct {
	// Neighbors is how many similar songs are kept per anchor song.
	Neighbors int
	// UserNeighbors is how many similar users are consulted.
	UserNeighbors int
	// MinUserSimilarity is the profile cosine below which users are not
	// neighbours.
	MinUserSimilarity float64
	// SparseThreshold is the number of explicit signals below which the
	// matrix factorization fallback is used.
	SparseThreshold int
	MF              MFConfig
}

func DefaultConfig() Config {
	return Config{
		Neighbors:         20,
		UserNeighbors:     20,
		MinUserSimilarity: 0.5,
		SparseThreshold:   3,
		MF:                DefaultMFConfig(),
	}
}

// Filter implements the collaborative strategies. It keeps no per-request
// state and is safe for concurrent use.
type Filter struct {
	engine *similarity.Engine
	logger *logrus.Logger
	config Config
}

func New(engine *similarity.Engine, logger *logrus.Logger, config Config) *Filter {
	return &Filter{engine: engine, logger: logger, config: config}
}

// Recommend picks the strategy for the profile: item-based for users with
// enough explicit signals, matrix factorization for sparse ones, falling
// back to item-based if factorization yields nothing.
func (f *Filter) Recommend(p models.UserProfile, all []models.PreferenceEvent, catalogue []models.Song, limit int) []models.ScoredSong {
	if p.IsColdStart() {
		return nil
	}
	if ExplicitSignals(p) < f.config.SparseThreshold {
		if out := f.MatrixFactorization(p, all, catalogue, limit); len(out) > 0 {
			return out
		}
	}
	return f.ItemBased(p, catalogue, limit)
}

// rank sorts by score descending, ties by song ID, and truncates.
func rank(scored map[string]models.ScoredSong, limit int) []models.ScoredSong {
	out := make([]models.ScoredSong, 0, len(scored))
	for _, s := range scored {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Song.ID < out[j].Song.ID
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
