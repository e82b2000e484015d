package collaborative

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syeo66/cadence/features"
	"github.com/syeo66/cadence/models"
	"github.com/syeo66/cadence/similarity"
)

func newFilter(cfg Config) *Filter {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return New(similarity.Default(), logger, cfg)
}

func tagged(id string, genres ...string) models.Song {
	return models.Song{ID: id, Title: "Song " + id, Genres: genres}
}

func withFeatures(id string, energy, dance, valence, tempo float64) models.Song {
	return models.Song{ID: id, Title: "Song " + id, Features: features.NewSet(map[features.Feature]float64{
		features.Energy: energy, features.Danceability: dance, features.Valence: valence, features.Tempo: tempo,
	})}
}

func like(user, song string) models.PreferenceEvent {
	return models.PreferenceEvent{UserID: user, SongID: song, Type: models.EventLike}
}

func rating(user, song string, value float64) models.PreferenceEvent {
	return models.PreferenceEvent{UserID: user, SongID: song, Type: models.EventRating, Value: value}
}

func play(user, song string) models.PreferenceEvent {
	return models.PreferenceEvent{UserID: user, SongID: song, Type: models.EventPlay}
}

func TestSignals(t *testing.T) {
	var events []models.PreferenceEvent
	for i := 0; i < 7; i++ {
		events = append(events, play("u", "p"))
	}
	events = append(events,
		play("u", "q"),
		models.PreferenceEvent{UserID: "u", SongID: "s", Type: models.EventSkip},
		like("u", "l"), like("u", "l"),
		rating("u", "l", 4),
		rating("u", "r", 2),
	)
	signals := Signals(models.ProfileFromEvents("u", events))

	byKey := make(map[string]float64)
	for _, s := range signals {
		byKey[s.SongID+"/"+string(s.Type)] = s.Strength
	}
	assert.Equal(t, map[string]float64{
		"l/like":   1,
		"l/rating": 0.8,
		"p/play":   1,
		"q/play":   0.2,
		"r/rating": 0.4,
	}, byKey, "skips never anchor, low ratings do, and each event type is its own signal")
}

func TestItemBasedKeepsBestAnchor(t *testing.T) {
	catalogue := []models.Song{
		tagged("A", "Rock"),
		tagged("B", "Jazz"),
		tagged("C", "Rock"),
		tagged("D", "Jazz", "Rock"),
		tagged("E", "Classical"),
	}
	p := models.ProfileFromEvents("u", []models.PreferenceEvent{like("u", "A"), rating("u", "B", 2)})

	results := newFilter(DefaultConfig()).ItemBased(p, catalogue, 10)
	require.Len(t, results, 2)
	assert.Equal(t, "C", results[0].Song.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "D", results[1].Song.ID)
	assert.InDelta(t, 0.5, results[1].Score, 1e-9, "max over anchors, not the 0.5+0.2 sum")
	assert.Contains(t, results[0].Reason, "liked")
}

func TestItemBasedLimit(t *testing.T) {
	catalogue := []models.Song{tagged("A", "Rock"), tagged("B", "Rock"), tagged("C", "Rock"), tagged("D", "Rock")}
	p := models.ProfileFromEvents("u", []models.PreferenceEvent{like("u", "A")})
	results := newFilter(DefaultConfig()).ItemBased(p, catalogue, 2)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"B", "C"}, []string{results[0].Song.ID, results[1].Song.ID})
}

func TestEmptyUserGetsEmptyResult(t *testing.T) {
	f := newFilter(DefaultConfig())
	catalogue := []models.Song{tagged("A", "Rock"), tagged("B", "Rock")}
	empty := models.UserProfile{UserID: "nobody"}
	all := []models.PreferenceEvent{like("other", "A")}

	assert.Empty(t, f.ItemBased(empty, catalogue, 10))
	assert.Empty(t, f.UserBased(empty, models.GroupProfiles(all), catalogue, 10))
	assert.Empty(t, f.MatrixFactorization(empty, all, catalogue, 10))
	assert.Empty(t, f.Recommend(empty, all, catalogue, 10))
}

func TestUserBased(t *testing.T) {
	catalogue := []models.Song{
		withFeatures("A", 0.9, 0.8, 0.7, 150),
		withFeatures("E", 0.85, 0.8, 0.65, 140),
		withFeatures("J", 0.1, 0.3, 0.2, 60),
		withFeatures("K", 0.15, 0.25, 0.2, 65),
	}
	events := []models.PreferenceEvent{
		like("u1", "A"),
		like("u2", "A"), like("u2", "E"),
		like("u3", "J"), like("u3", "K"),
	}
	cfg := DefaultConfig()
	cfg.MinUserSimilarity = 0.95
	f := newFilter(cfg)

	p := models.ProfileFromEvents("u1", events)
	results := f.UserBased(p, models.GroupProfiles(events), catalogue, 10)
	require.Len(t, results, 1)
	assert.Equal(t, "E", results[0].Song.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestEntries(t *testing.T) {
	var events []models.PreferenceEvent
	for i := 0; i < 12; i++ {
		events = append(events, play("u", "p"))
	}
	events = append(events, play("u", "q"), rating("u", "q", 4), rating("v", "r", 1))

	entries := Entries(events)
	assert.Equal(t, []Entry{
		{UserID: "u", SongID: "p", Value: 1},
		{UserID: "u", SongID: "q", Value: 0.8},
		{UserID: "v", SongID: "r", Value: 0.2},
	}, entries)
}

func mfFixture() []models.PreferenceEvent {
	return []models.PreferenceEvent{
		like("u1", "a"), rating("u1", "b", 5), rating("u1", "c", 1),
		like("u2", "a"), rating("u2", "b", 4), like("u2", "d"),
		rating("u3", "c", 5), rating("u3", "e", 5), rating("u3", "a", 1),
		like("u4", "a"), play("u4", "b"), play("u4", "b"), rating("u4", "d", 5),
		like("target", "a"),
	}
}

func TestTrainMFLossDecreasesAndPredictionsBounded(t *testing.T) {
	cfg := DefaultMFConfig()
	cfg.Seed = 1
	cfg.Epochs = 200
	cfg.LearningRate = 0.05
	model := TrainMF(Entries(mfFixture()), cfg)

	require.GreaterOrEqual(t, len(model.Losses), 2)
	assert.LessOrEqual(t, len(model.Losses), cfg.Epochs)
	assert.Less(t, model.Losses[len(model.Losses)-1], model.Losses[0])
	for i := 1; i < len(model.Losses)-1; i++ {
		assert.Less(t, model.Losses[i], model.Losses[i-1])
	}

	for _, user := range []string{"u1", "u2", "u3", "u4", "target"} {
		for _, song := range []string{"a", "b", "c", "d", "e"} {
			v, ok := model.Predict(user, song)
			require.True(t, ok)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
	_, ok := model.Predict("stranger", "a")
	assert.False(t, ok)
}

func TestTrainMFIsReproducibleWithSeed(t *testing.T) {
	cfg := DefaultMFConfig()
	cfg.Seed = 99
	a := TrainMF(Entries(mfFixture()), cfg)
	b := TrainMF(Entries(mfFixture()), cfg)
	assert.Equal(t, a.Losses, b.Losses)
}

func TestRecommendUsesFactorizationForSparseUsers(t *testing.T) {
	catalogue := []models.Song{tagged("a"), tagged("b"), tagged("c"), tagged("d"), tagged("e")}
	cfg := DefaultConfig()
	cfg.MF.Seed = 5
	cfg.MF.Epochs = 200
	cfg.MF.LearningRate = 0.05
	f := newFilter(cfg)

	p := models.ProfileFromEvents("target", mfFixture())
	results := f.Recommend(p, mfFixture(), catalogue, 10)
	require.NotEmpty(t, results, "songs without tags or features only surface through factorization")
	for _, r := range results {
		assert.NotEqual(t, "a", r.Song.ID, "seen songs are excluded")
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}
