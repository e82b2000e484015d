package similarity

import (
	"fmt"
	"math"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"

	"github.com/syeo66/cadence/models"
	"github.com/syeo66/cadence/popularity"
	"github.com/syeo66/cadence/topk"
)

// PopularityFunc returns a song's popularity in [0,1] and whether any
// engagement data exists.
type PopularityFunc func(models.Song) (float64, bool)

// Engine computes composite similarity between songs. It is immutable and
// safe for concurrent use.
type Engine struct {
	weights    Weights
	policy     AudioPolicy
	popularity PopularityFunc
}

type Option func(*Engine)

func WithAudioPolicy(p AudioPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithPopularity(fn PopularityFunc) Option {
	return func(e *Engine) { e.popularity = fn }
}

// NewEngine validates the weights and builds an engine.
func NewEngine(weights Weights, opts ...Option) (*Engine, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		weights:    weights,
		policy:     Omit,
		popularity: popularity.Engagement,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Default returns an engine with the default weights and the Omit policy.
func Default() *Engine {
	e, _ := NewEngine(DefaultWeights())
	return e
}

// WithPolicy returns a copy of the engine using another audio policy.
func (e *Engine) WithPolicy(p AudioPolicy) *Engine {
	c := *e
	c.policy = p
	return &c
}

func (e *Engine) Weights() Weights {
	return e.weights
}

func (e *Engine) Policy() AudioPolicy {
	return e.policy
}

// Contribution is one consulted factor of a composite score.
type Contribution struct {
	Factor Factor  `json:"factor"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// Breakdown explains a composite score. Factors whose data was missing on
// either side are absent from Contributions.
type Breakdown struct {
	Score         float64        `json:"score"`
	Contributions []Contribution `json:"contributions"`
	SharedGenres  []string       `json:"sharedGenres,omitempty"`
	SharedMoods   []string       `json:"sharedMoods,omitempty"`
}

// Consulted reports whether f contributed to the score.
func (b Breakdown) Consulted(f Factor) bool {
	return lo.ContainsBy(b.Contributions, func(c Contribution) bool { return c.Factor == f })
}

// Similarity returns the composite similarity of a and b in [0,1].
func (e *Engine) Similarity(a, b models.Song) float64 {
	return e.Breakdown(a, b).Score
}

// Breakdown computes the composite score together with its per-factor parts.
// The result is symmetric in a and b.
func (e *Engine) Breakdown(a, b models.Song) Breakdown {
	var out Breakdown

	if c, ok := e.audio(a, b); ok {
		out.Contributions = append(out.Contributions, c)
	}

	if shared, score, ok := jaccard(a.Genres, b.Genres); ok && e.weights.Genre > 0 {
		out.Contributions = append(out.Contributions, Contribution{FactorGenre, score, e.weights.Genre})
		out.SharedGenres = shared
	}

	if shared, score, ok := jaccard(a.Moods, b.Moods); ok && e.weights.Mood > 0 {
		out.Contributions = append(out.Contributions, Contribution{FactorMood, score, e.weights.Mood})
		out.SharedMoods = shared
	}

	if a.Artist != "" && b.Artist != "" && e.weights.Artist > 0 {
		score := 0.0
		if strings.EqualFold(strings.TrimSpace(a.Artist), strings.TrimSpace(b.Artist)) {
			score = 1
		}
		out.Contributions = append(out.Contributions, Contribution{FactorArtist, score, e.weights.Artist})
	}

	if e.popularity != nil && e.weights.Popularity > 0 {
		pa, okA := e.popularity(a)
		pb, okB := e.popularity(b)
		if okA && okB {
			out.Contributions = append(out.Contributions,
				Contribution{FactorPopularity, clamp01(1 - math.Abs(pa-pb)), e.weights.Popularity})
		}
	}

	sum, total := 0.0, 0.0
	for _, c := range out.Contributions {
		sum += c.Score * c.Weight
		total += c.Weight
	}
	if total > 0 {
		out.Score = clamp01(sum / total)
	}
	return out
}

func (e *Engine) audio(a, b models.Song) (Contribution, bool) {
	w := e.weights.Audio
	if w <= 0 {
		return Contribution{}, false
	}
	va, vb := a.Features.Normalize(), b.Features.Normalize()
	shared := len(va.Shared(vb))

	switch e.policy {
	case Discount:
		if va.Len() == 0 && vb.Len() == 0 {
			return Contribution{}, false
		}
		if a.IsFeatureComplete() && b.IsFeatureComplete() {
			return Contribution{FactorAudio, va.Cosine(vb), w}, true
		}
		return Contribution{FactorAudio, va.Cosine(vb), w * discountFactor}, true
	default:
		if shared == 0 {
			return Contribution{}, false
		}
		return Contribution{FactorAudio, va.Cosine(vb), w}, true
	}
}

// Distance is the Euclidean distance between the normalized feature vectors
// over their shared features, for clustering. No shared features gives +Inf.
func (e *Engine) Distance(a, b models.Song) float64 {
	return a.Features.Normalize().Euclidean(b.Features.Normalize())
}

// Nearest returns the k candidates most similar to target, best first. The
// target itself and candidates scoring 0 are skipped.
func (e *Engine) Nearest(target models.Song, candidates []models.Song, k int) []models.ScoredSong {
	filter := topk.New[int](k)
	breakdowns := make(map[int]Breakdown)
	for i, c := range candidates {
		if c.ID == target.ID {
			continue
		}
		b := e.Breakdown(target, c)
		if b.Score <= 0 {
			continue
		}
		breakdowns[i] = b
		filter.Push(i, c.ID, b.Score)
	}

	elems := filter.PopAll()
	out := make([]models.ScoredSong, len(elems))
	for n, el := range elems {
		out[n] = models.ScoredSong{
			Song:   candidates[el.Value],
			Score:  el.Score,
			Reason: breakdowns[el.Value].Reason(),
		}
	}
	return out
}

// Reason describes the strongest contributing factor.
func (b Breakdown) Reason() string {
	if len(b.Contributions) == 0 {
		return ""
	}
	best := lo.MaxBy(b.Contributions, func(x, y Contribution) bool {
		return x.Score*x.Weight > y.Score*y.Weight
	})
	switch best.Factor {
	case FactorGenre:
		if len(b.SharedGenres) > 0 {
			return "Shares genres: " + strings.Join(b.SharedGenres, ", ")
		}
	case FactorMood:
		if len(b.SharedMoods) > 0 {
			return "Shares moods: " + strings.Join(b.SharedMoods, ", ")
		}
	case FactorArtist:
		if best.Score > 0 {
			return "Same artist"
		}
	case FactorPopularity:
		return "Similar popularity"
	case FactorAudio:
		return fmt.Sprintf("Similar sound (%.0f%% audio match)", best.Score*100)
	}
	return "Similar overall profile"
}

// jaccard returns the shared tags (sorted) and |A∩B| / |A∪B|, compared case
// insensitively. ok is false when either side has no tags.
func jaccard(a, b []string) ([]string, float64, bool) {
	sa, sb := tagSet(a), tagSet(b)
	if sa.Cardinality() == 0 || sb.Cardinality() == 0 {
		return nil, 0, false
	}
	inter := sa.Intersect(sb)
	union := sa.Union(sb)
	shared := inter.ToSlice()
	sort.Strings(shared)
	return shared, float64(inter.Cardinality()) / float64(union.Cardinality()), true
}

func tagSet(tags []string) mapset.Set[string] {
	normalized := lo.FilterMap(tags, func(t string, _ int) (string, bool) {
		t = strings.ToLower(strings.TrimSpace(t))
		return t, t != ""
	})
	return mapset.NewThreadUnsafeSet(normalized...)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
