package predictor

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/syeo66/cadence/features"
	"github.com/syeo66/cadence/models"
)

const (
	// MinTrainingSongs is the number of feature-complete songs below which no
	// statistical model is trained and the fixed fallback table is used.
	MinTrainingSongs = 5

	minArtistSongs = 3
	minDecadeSongs = 5

	artistConfidence  = 0.8
	decadeConfidence  = 0.6
	maxCorrConfidence = 0.7
	defaultConfidence = 0.3

	// correlations weaker than this carry no usable signal
	minCorrelation = 0.1
	// pairs seen together fewer times than this get no correlation
	minCorrelationSamples = MinTrainingSongs
)

type Mode string

const (
	ModeTrained  Mode = "trained"
	ModeFallback Mode = "fallback"
)

// group is the mean feature set over a category plus how many songs carried
// each feature.
type group struct {
	mean   features.Set
	counts [features.Count]int
	songs  int
}

// centroid is the mean normalized vector of the songs tagged with a label.
type centroid struct {
	label  string
	vector features.Vector
	songs  int
}

type featureStat struct {
	mean   float64
	stdDev float64
	n      int
}

// Model is an immutable snapshot derived from the feature-complete songs.
// Nothing mutates a Model after build returns it.
type Model struct {
	mode         Mode
	trainingSize int
	builtAt      time.Time

	artists map[string]group
	decades map[int]group

	genres []centroid
	moods  []centroid

	decadeGenres map[int]map[string]int
	decadeMoods  map[int]map[string]int

	stats       [features.Count]featureStat
	correlation [features.Count][features.Count]float64
}

func (m *Model) Mode() Mode { return m.mode }
func (m *Model) TrainingSize() int { return m.trainingSize }
func (m *Model) BuiltAt() time.Time { return m.builtAt }
func (m *Model) IsFallback() bool { return m.mode == ModeFallback }
func (m *Model) GenreLabels() []string { return centroidLabels(m.genres) }
func (m *Model) MoodLabels() []string { return centroidLabels(m.moods) }

// Correlation returns the Pearson coefficient between two features, 0 when
// it could not be computed.
func (m *Model) Correlation(a, b features.Feature) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}
	return m.correlation[a][b]
}

func centroidLabels(cs []centroid) []string {
	return lo.Map(cs, func(c centroid, _ int) string { return c.label })
}

// build aggregates a model from songs. The result depends only on the set of
// feature-complete songs, not on their order.
func build(songs []models.Song, now time.Time) *Model {
	training := lo.UniqBy(lo.Filter(songs, func(s models.Song, _ int) bool {
		return s.IsFeatureComplete()
	}), func(s models.Song) string { return s.ID })
	sort.Slice(training, func(i, j int) bool { return training[i].ID < training[j].ID })

	if len(training) < MinTrainingSongs {
		return fallbackModel(len(training), now)
	}

	m := &Model{
		mode:         ModeTrained,
		trainingSize: len(training),
		builtAt:      now,
		artists:      make(map[string]group),
		decades:      make(map[int]group),
		decadeGenres: make(map[int]map[string]int),
		decadeMoods:  make(map[int]map[string]int),
	}

	artistAcc := make(map[string]*features.Accumulator)
	artistSongs := make(map[string]int)
	decadeAcc := make(map[int]*features.Accumulator)
	decadeSongs := make(map[int]int)
	genreAcc := make(map[string]*features.Accumulator)
	genreSongs := make(map[string]int)
	moodAcc := make(map[string]*features.Accumulator)
	moodSongs := make(map[string]int)

	for _, song := range training {
		if key := artistKey(song.Artist); key != "" {
			accumulate(artistAcc, key, song.Features)
			artistSongs[key]++
		}
		if decade := song.Decade(); decade > 0 {
			accumulate(decadeAcc, decade, song.Features)
			decadeSongs[decade]++
			countLabels(m.decadeGenres, decade, song.Genres)
			countLabels(m.decadeMoods, decade, song.Moods)
		}
		vector := song.Features.Normalize()
		for _, label := range uniqueLabels(song.Genres) {
			accumulateVector(genreAcc, label, vector)
			genreSongs[label]++
		}
		for _, label := range uniqueLabels(song.Moods) {
			accumulateVector(moodAcc, label, vector)
			moodSongs[label]++
		}
	}

	for key, acc := range artistAcc {
		m.artists[key] = toGroup(acc, artistSongs[key])
	}
	for decade, acc := range decadeAcc {
		m.decades[decade] = toGroup(acc, decadeSongs[decade])
	}
	m.genres = toCentroids(genreAcc, genreSongs)
	m.moods = toCentroids(moodAcc, moodSongs)

	m.computeStats(training)
	return m
}

func (m *Model) computeStats(training []models.Song) {
	for _, f := range features.All() {
		xs := make([]float64, 0, len(training))
		for _, song := range training {
			if v, ok := song.Features.Get(f); ok {
				xs = append(xs, v)
			}
		}
		if len(xs) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(xs, nil)
		if len(xs) < 2 || math.IsNaN(std) {
			std = 0
		}
		m.stats[f] = featureStat{mean: mean, stdDev: std, n: len(xs)}
	}

	all := features.All()
	for i, a := range all {
		m.correlation[a][a] = 1
		for _, b := range all[i+1:] {
			xs, ys := make([]float64, 0, len(training)), make([]float64, 0, len(training))
			for _, song := range training {
				va, okA := song.Features.Get(a)
				vb, okB := song.Features.Get(b)
				if okA && okB {
					xs = append(xs, va)
					ys = append(ys, vb)
				}
			}
			if len(xs) < minCorrelationSamples {
				continue
			}
			r := stat.Correlation(xs, ys, nil)
			if math.IsNaN(r) || math.IsInf(r, 0) {
				continue
			}
			m.correlation[a][b] = r
			m.correlation[b][a] = r
		}
	}
}

func accumulate[K comparable](accs map[K]*features.Accumulator, key K, s features.Set) {
	acc, ok := accs[key]
	if !ok {
		acc = &features.Accumulator{}
		accs[key] = acc
	}
	acc.Add(s, 1)
}

func accumulateVector(accs map[string]*features.Accumulator, key string, v features.Vector) {
	acc, ok := accs[key]
	if !ok {
		acc = &features.Accumulator{}
		accs[key] = acc
	}
	acc.AddVector(v, 1)
}

func toGroup(acc *features.Accumulator, songs int) group {
	g := group{mean: acc.Mean(), songs: songs}
	for _, f := range features.All() {
		g.counts[f] = acc.Count(f)
	}
	return g
}

func toCentroids(accs map[string]*features.Accumulator, songs map[string]int) []centroid {
	out := make([]centroid, 0, len(accs))
	for label, acc := range accs {
		out = append(out, centroid{label: label, vector: acc.MeanVector(), songs: songs[label]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].label < out[j].label })
	return out
}

func countLabels(counts map[int]map[string]int, decade int, labels []string) {
	for _, label := range uniqueLabels(labels) {
		if counts[decade] == nil {
			counts[decade] = make(map[string]int)
		}
		counts[decade][label]++
	}
}

func artistKey(artist string) string {
	return strings.ToLower(strings.TrimSpace(artist))
}

// uniqueLabels canonicalizes and deduplicates tags.
func uniqueLabels(tags []string) []string {
	return lo.Uniq(lo.FilterMap(tags, func(t string, _ int) (string, bool) {
		c := canonicalLabel(t)
		return c, c != ""
	}))
}
