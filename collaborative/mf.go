package collaborative

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/syeo66/cadence/models"
)

type MFConfig struct {
	Factors        int
	Epochs         int
	LearningRate   float64
	Regularization float64
	// Seed makes training reproducible. Zero seeds from the clock.
	Seed int64
}

func DefaultMFConfig() MFConfig {
	return MFConfig{
		Factors:        8,
		Epochs:         50,
		LearningRate:   0.01,
		Regularization: 0.02,
	}
}

// Entry is one observed cell of the user-song matrix, in [0,1].
type Entry struct {
	UserID string
	SongID string
	Value  float64
}

// Entries builds the implicit rating matrix: ratings/5, likes as 1 and
// min(plays, 10)/10. A cell with several signals keeps the strongest.
func Entries(events []models.PreferenceEvent) []Entry {
	type cell struct{ user, song string }
	values := make(map[cell]float64)
	plays := make(map[cell]int)
	for _, e := range events {
		c := cell{e.UserID, e.SongID}
		switch e.Type {
		case models.EventRating:
			values[c] = math.Max(values[c], math.Min(e.Value/5, 1))
		case models.EventLike:
			values[c] = 1
		case models.EventPlay:
			plays[c]++
		}
	}
	for c, n := range plays {
		values[c] = math.Max(values[c], math.Min(float64(n), mfPlayCap)/mfPlayCap)
	}

	out := make([]Entry, 0, len(values))
	for c, v := range values {
		if v > 0 {
			out = append(out, Entry{UserID: c.user, SongID: c.song, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].SongID < out[j].SongID
	})
	return out
}

// MFModel is a trained latent factor model.
type MFModel struct {
	users  map[string]int
	items  map[string]int
	p      [][]float64
	q      [][]float64
	Losses []float64
}

// TrainMF fits user and item factors with plain SGD. Training stops after
// the configured epochs or once an epoch no longer lowers the loss.
func TrainMF(entries []Entry, cfg MFConfig) *MFModel {
	m := &MFModel{users: make(map[string]int), items: make(map[string]int)}
	if len(entries) == 0 || cfg.Factors <= 0 {
		return m
	}
	for _, e := range entries {
		if _, ok := m.users[e.UserID]; !ok {
			m.users[e.UserID] = len(m.users)
		}
		if _, ok := m.items[e.SongID]; !ok {
			m.items[e.SongID] = len(m.items)
		}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	m.p = randomFactors(rng, len(m.users), cfg.Factors)
	m.q = randomFactors(rng, len(m.items), cfg.Factors)

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	grad := make([]float64, cfg.Factors)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, idx := range order {
			e := entries[idx]
			pu, qi := m.p[m.users[e.UserID]], m.q[m.items[e.SongID]]
			err := e.Value - floats.Dot(pu, qi)
			for k := range grad {
				grad[k] = pu[k]
				pu[k] += cfg.LearningRate * (err*qi[k] - cfg.Regularization*pu[k])
				qi[k] += cfg.LearningRate * (err*grad[k] - cfg.Regularization*qi[k])
			}
		}
		loss := m.loss(entries, cfg.Regularization)
		if n := len(m.Losses); n > 0 && loss >= m.Losses[n-1] {
			m.Losses = append(m.Losses, loss)
			break
		}
		m.Losses = append(m.Losses, loss)
	}
	return m
}

func randomFactors(rng *rand.Rand, n, k int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, k)
		for j := range out[i] {
			out[i][j] = rng.NormFloat64() * 0.1
		}
	}
	return out
}

func (m *MFModel) loss(entries []Entry, reg float64) float64 {
	total := 0.0
	for _, e := range entries {
		pu, qi := m.p[m.users[e.UserID]], m.q[m.items[e.SongID]]
		d := e.Value - floats.Dot(pu, qi)
		total += d * d
	}
	penalty := 0.0
	for _, v := range m.p {
		penalty += floats.Dot(v, v)
	}
	for _, v := range m.q {
		penalty += floats.Dot(v, v)
	}
	return total/float64(len(entries)) + reg*penalty/float64(len(entries))
}

// Predict returns the predicted affinity clamped to [0,1] and false when the
// user or song was not part of training.
func (m *MFModel) Predict(userID, songID string) (float64, bool) {
	u, okU := m.users[userID]
	i, okI := m.items[songID]
	if !okU || !okI {
		return 0, false
	}
	return math.Max(0, math.Min(1, floats.Dot(m.p[u], m.q[i]))), true
}

// MatrixFactorization trains on every user's events and ranks the songs the
// target has not seen by predicted affinity.
func (f *Filter) MatrixFactorization(p models.UserProfile, all []models.PreferenceEvent, catalogue []models.Song, limit int) []models.ScoredSong {
	if p.IsColdStart() || limit <= 0 {
		return nil
	}
	events := all
	if !hasUser(all, p.UserID) {
		events = append(append([]models.PreferenceEvent{}, all...), p.Events()...)
	}

	start := time.Now()
	model := TrainMF(Entries(events), f.config.MF)
	seen := p.SeenSongs()
	scored := make(map[string]models.ScoredSong)
	for _, song := range catalogue {
		if seen.Contains(song.ID) {
			continue
		}
		if score, ok := model.Predict(p.UserID, song.ID); ok && score > 0 {
			scored[song.ID] = models.ScoredSong{Song: song, Score: score, Reason: "Predicted from listening patterns"}
		}
	}

	f.logger.WithFields(logrus.Fields{
		"userId":     p.UserID,
		"users":      len(model.users),
		"songs":      len(model.items),
		"epochs":     len(model.Losses),
		"candidates": len(scored),
		"duration":   time.Since(start),
	}).Debug("Matrix factorization")

	return rank(scored, limit)
}

func hasUser(events []models.PreferenceEvent, userID string) bool {
	for _, e := range events {
		if e.UserID == userID {
			return true
		}
	}
	return false
}
