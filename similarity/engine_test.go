package similarity

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/features"
	"github.com/syeo66/cadence/models"
)

var (
	allGenres = []string{"Rock", "Pop", "Jazz", "Hip-Hop", "Trap", "Electronic"}
	allMoods  = []string{"happy", "sad", "energetic", "chill"}
	artists   = []string{"", "Artist A", "Artist B", "artist a"}
)

func randomSong(r *rand.Rand, id int) models.Song {
	song := models.Song{ID: fmt.Sprintf("s%d", id), Artist: artists[r.Intn(len(artists))]}
	values := make(map[features.Feature]float64)
	for _, f := range features.All() {
		if r.Float64() < 0.6 {
			b := f.Bounds()
			values[f] = b.Min + r.Float64()*(b.Max-b.Min)
		}
	}
	song.Features = features.NewSet(values)
	for _, g := range allGenres {
		if r.Float64() < 0.3 {
			song.Genres = append(song.Genres, g)
		}
	}
	for _, m := range allMoods {
		if r.Float64() < 0.3 {
			song.Moods = append(song.Moods, m)
		}
	}
	if r.Float64() < 0.5 {
		song.PlayCount = r.Intn(100)
		song.LikeCount = r.Intn(10)
	}
	return song
}

func identicalPair() (models.Song, models.Song) {
	set := features.NewSet(map[features.Feature]float64{
		features.Energy:       0.8,
		features.Danceability: 0.7,
		features.Valence:      0.3,
		features.Tempo:        features.Denormalize(features.Tempo, 0.5),
	})
	a := models.Song{ID: "a", Features: set, Genres: []string{"Rock", "Indie"}, Moods: []string{"energetic"}}
	b := models.Song{ID: "b", Features: set, Genres: []string{"indie", "rock"}, Moods: []string{"Energetic"}}
	return a, b
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())

	w := DefaultWeights()
	w.Genre = -0.1
	assert.True(t, errors.Is(w.Validate(), errors.ErrInvalidWeights))

	assert.True(t, errors.Is(Weights{}.Validate(), errors.ErrInvalidWeights))

	_, err := NewEngine(Weights{})
	assert.True(t, errors.IsMalformedInput(err))
}

func TestExactSimilarity(t *testing.T) {
	a, b := identicalPair()
	engine := Default()
	assert.InDelta(t, 1.0, engine.Similarity(a, b), 1e-9)
	assert.InDelta(t, 1.0, engine.WithPolicy(Discount).Similarity(a, b), 1e-9)
}

func TestSymmetryAndRange(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	engines := []*Engine{Default(), Default().WithPolicy(Discount)}
	for i := 0; i < 500; i++ {
		a, b := randomSong(r, 2*i), randomSong(r, 2*i+1)
		for _, engine := range engines {
			ab, ba := engine.Similarity(a, b), engine.Similarity(b, a)
			assert.Equal(t, ab, ba, "policy %s", engine.Policy())
			assert.GreaterOrEqual(t, ab, 0.0)
			assert.LessOrEqual(t, ab, 1.0)
		}
	}
}

func TestPartialCredit(t *testing.T) {
	engine := Default()
	a := models.Song{ID: "a", Genres: []string{"Rock"}}
	b := models.Song{ID: "b", Genres: []string{"Rock"}}

	// only the genre factor is consulted, so its score is the composite
	breakdown := engine.Breakdown(a, b)
	assert.InDelta(t, 1.0, breakdown.Score, 1e-9)
	assert.True(t, breakdown.Consulted(FactorGenre))
	assert.False(t, breakdown.Consulted(FactorAudio))
	assert.False(t, breakdown.Consulted(FactorMood))
	assert.False(t, breakdown.Consulted(FactorPopularity))

	b.Genres = []string{"Rock", "Pop"}
	assert.InDelta(t, 0.5, engine.Similarity(a, b), 1e-9)
}

func TestNothingInCommon(t *testing.T) {
	engine := Default()
	a := models.Song{ID: "a"}
	b := models.Song{ID: "b", Genres: []string{"Rock"}}
	assert.Equal(t, 0.0, engine.Similarity(a, b))
	assert.Empty(t, engine.Breakdown(a, b).Contributions)
}

func TestArtistMatchIgnoresCase(t *testing.T) {
	engine := Default()
	a := models.Song{ID: "a", Artist: "Lil Uzi Vert"}
	b := models.Song{ID: "b", Artist: " lil uzi vert"}
	assert.InDelta(t, 1.0, engine.Similarity(a, b), 1e-9)
	b.Artist = "Someone Else"
	assert.Equal(t, 0.0, engine.Similarity(a, b))
}

func TestPopularityCloseness(t *testing.T) {
	engine := Default()
	a := models.Song{ID: "a", PlayCount: 10}
	b := models.Song{ID: "b", PlayCount: 10}
	assert.InDelta(t, 1.0, engine.Similarity(a, b), 1e-9)

	b.PlayCount = 1000
	b.LikeCount = 100
	assert.Less(t, engine.Similarity(a, b), 1.0)

	c := models.Song{ID: "c"}
	assert.False(t, engine.Breakdown(a, c).Consulted(FactorPopularity))
}

func TestDiscountPolicyKeepsAudioAtHalfWeight(t *testing.T) {
	full := features.NewSet(map[features.Feature]float64{
		features.Energy: 0.9, features.Danceability: 0.9, features.Valence: 0.9, features.Tempo: 180,
	})
	a := models.Song{ID: "a", Features: full, Genres: []string{"Rock"}}
	b := models.Song{ID: "b", Genres: []string{"Rock"}}

	omit := Default()
	discount := omit.WithPolicy(Discount)

	assert.InDelta(t, 1.0, omit.Similarity(a, b), 1e-9, "audio omitted entirely")

	breakdown := discount.Breakdown(a, b)
	require.True(t, breakdown.Consulted(FactorAudio))
	for _, c := range breakdown.Contributions {
		if c.Factor == FactorAudio {
			assert.InDelta(t, DefaultWeights().Audio*0.5, c.Weight, 1e-12)
			assert.Equal(t, 0.0, c.Score)
		}
	}
	expected := DefaultWeights().Genre / (DefaultWeights().Genre + DefaultWeights().Audio*0.5)
	assert.InDelta(t, expected, breakdown.Score, 1e-9)

	// both complete: full weight
	b.Features = full
	breakdown = discount.Breakdown(a, b)
	for _, c := range breakdown.Contributions {
		if c.Factor == FactorAudio {
			assert.InDelta(t, DefaultWeights().Audio, c.Weight, 1e-12)
		}
	}
}

func removeFactor(s models.Song, f Factor) models.Song {
	switch f {
	case FactorAudio:
		s.Features = features.Set{}
	case FactorGenre:
		s.Genres = nil
	case FactorMood:
		s.Moods = nil
	case FactorArtist:
		s.Artist = ""
	case FactorPopularity:
		s.PlayCount, s.SkipCount, s.LikeCount, s.RatingCount = 0, 0, 0, 0
	}
	return s
}

// Removing a factor whose score is at or above the composite never raises
// the composite. A factor below the composite can be removed with a gain, see
// TestRemovingDisagreeingFactorRaisesScore.
func TestRemovingFactorAtOrAboveCompositeNeverRaisesScore(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	engine := Default()
	checked := 0
	for i := 0; i < 500; i++ {
		a, b := randomSong(r, 2*i), randomSong(r, 2*i+1)
		full := engine.Breakdown(a, b)
		for _, c := range full.Contributions {
			if c.Score < full.Score {
				continue
			}
			reduced := engine.Similarity(a, removeFactor(b, c.Factor))
			assert.LessOrEqual(t, reduced, full.Score+1e-12, "factor %s", c.Factor)
			checked++
		}
	}
	assert.Positive(t, checked)
}

// Partial credit renormalizes over the consulted factors, so dropping a
// factor that disagrees leaves only the agreeing ones.
func TestRemovingDisagreeingFactorRaisesScore(t *testing.T) {
	a, b := identicalPair()
	a.Moods, b.Moods = nil, nil
	a.Genres, b.Genres = []string{"Rock"}, []string{"Jazz"}
	engine := Default()

	w := DefaultWeights()
	full := engine.Similarity(a, b)
	assert.InDelta(t, w.Audio/(w.Audio+w.Genre), full, 1e-9)

	b.Genres = nil
	assert.InDelta(t, 1.0, engine.Similarity(a, b), 1e-9)
}

func TestRemovingIdenticalGenresLowersScore(t *testing.T) {
	a, b := identicalPair()
	engine := Default()
	b.Features = b.Features.With(features.Energy, 0.1)
	withGenres := engine.Similarity(a, b)
	b.Genres = nil
	assert.LessOrEqual(t, engine.Similarity(a, b), withGenres)
}

func TestDistance(t *testing.T) {
	engine := Default()
	a := models.Song{ID: "a", Features: features.NewSet(map[features.Feature]float64{features.Energy: 0.2, features.Valence: 0.5})}
	b := models.Song{ID: "b", Features: features.NewSet(map[features.Feature]float64{features.Energy: 0.5, features.Valence: 0.9})}
	assert.InDelta(t, 0.5, engine.Distance(a, b), 1e-9)
	assert.Equal(t, engine.Distance(a, b), engine.Distance(b, a))
	assert.True(t, math.IsInf(engine.Distance(a, models.Song{ID: "c"}), 1))
}

func TestNearest(t *testing.T) {
	engine := Default()
	target := models.Song{ID: "t", Genres: []string{"Rock", "Indie"}}
	candidates := []models.Song{
		target,
		{ID: "1", Genres: []string{"Rock"}},
		{ID: "2", Genres: []string{"Rock", "Indie"}},
		{ID: "3", Genres: []string{"Jazz"}},
		{ID: "4", Genres: []string{"Indie"}},
	}
	nearest := engine.Nearest(target, candidates, 2)
	require.Len(t, nearest, 2)
	assert.Equal(t, "2", nearest[0].Song.ID)
	assert.Equal(t, "1", nearest[1].Song.ID, "ties broken by song id")
	assert.Equal(t, "Shares genres: indie, rock", nearest[0].Reason)

	assert.Empty(t, engine.Nearest(target, candidates, 0))
}

func TestDiscountPolicyWithoutAnyAudio(t *testing.T) {
	a := models.Song{ID: "a", Genres: []string{"Rock"}}
	b := models.Song{ID: "b", Genres: []string{"Rock"}}
	breakdown := Default().WithPolicy(Discount).Breakdown(a, b)
	assert.False(t, breakdown.Consulted(FactorAudio))
	assert.InDelta(t, 1.0, breakdown.Score, 1e-9)
}
