package predictor

import (
	"sort"
	"strings"
	"time"

	"github.com/syeo66/cadence/features"
)

// fallbackGenres and fallbackMoods are hand-specified typical raw feature
// values, used when too few feature-complete songs exist to train on.
var fallbackGenres = map[string]map[features.Feature]float64{
	"Rock":       {features.Energy: 0.75, features.Danceability: 0.5, features.Valence: 0.5, features.Tempo: 125, features.Acousticness: 0.15, features.Instrumentalness: 0.1, features.Speechiness: 0.05},
	"Pop":        {features.Energy: 0.7, features.Danceability: 0.7, features.Valence: 0.6, features.Tempo: 118, features.Acousticness: 0.2, features.Instrumentalness: 0.02, features.Speechiness: 0.06},
	"Hip-Hop":    {features.Energy: 0.65, features.Danceability: 0.8, features.Valence: 0.5, features.Tempo: 95, features.Acousticness: 0.15, features.Instrumentalness: 0.01, features.Speechiness: 0.3},
	"Trap":       {features.Energy: 0.7, features.Danceability: 0.75, features.Valence: 0.35, features.Tempo: 140, features.Acousticness: 0.1, features.Instrumentalness: 0.02, features.Speechiness: 0.25},
	"Electronic": {features.Energy: 0.8, features.Danceability: 0.75, features.Valence: 0.45, features.Tempo: 128, features.Acousticness: 0.05, features.Instrumentalness: 0.6, features.Speechiness: 0.06},
	"Jazz":       {features.Energy: 0.35, features.Danceability: 0.5, features.Valence: 0.55, features.Tempo: 110, features.Acousticness: 0.7, features.Instrumentalness: 0.5, features.Speechiness: 0.05},
	"Classical":  {features.Energy: 0.2, features.Danceability: 0.25, features.Valence: 0.3, features.Tempo: 100, features.Acousticness: 0.9, features.Instrumentalness: 0.9, features.Speechiness: 0.04},
	"Metal":      {features.Energy: 0.95, features.Danceability: 0.35, features.Valence: 0.3, features.Tempo: 150, features.Acousticness: 0.02, features.Instrumentalness: 0.2, features.Speechiness: 0.08},
	"Country":    {features.Energy: 0.55, features.Danceability: 0.6, features.Valence: 0.6, features.Tempo: 115, features.Acousticness: 0.5, features.Instrumentalness: 0.02, features.Speechiness: 0.04},
	"R&B":        {features.Energy: 0.5, features.Danceability: 0.7, features.Valence: 0.5, features.Tempo: 100, features.Acousticness: 0.3, features.Instrumentalness: 0.02, features.Speechiness: 0.1},
	"Folk":       {features.Energy: 0.35, features.Danceability: 0.5, features.Valence: 0.45, features.Tempo: 105, features.Acousticness: 0.8, features.Instrumentalness: 0.1, features.Speechiness: 0.04},
}

var fallbackMoods = map[string]map[features.Feature]float64{
	"happy":       {features.Energy: 0.7, features.Danceability: 0.7, features.Valence: 0.85, features.Tempo: 120},
	"sad":         {features.Energy: 0.3, features.Danceability: 0.4, features.Valence: 0.15, features.Tempo: 85, features.Acousticness: 0.6},
	"energetic":   {features.Energy: 0.9, features.Danceability: 0.75, features.Valence: 0.6, features.Tempo: 140},
	"chill":       {features.Energy: 0.3, features.Danceability: 0.55, features.Valence: 0.55, features.Tempo: 90, features.Acousticness: 0.55},
	"aggressive":  {features.Energy: 0.95, features.Danceability: 0.5, features.Valence: 0.25, features.Tempo: 150, features.Loudness: -4},
	"romantic":    {features.Energy: 0.4, features.Danceability: 0.55, features.Valence: 0.6, features.Tempo: 95, features.Acousticness: 0.5},
	"melancholic": {features.Energy: 0.35, features.Danceability: 0.35, features.Valence: 0.25, features.Tempo: 80, features.Acousticness: 0.55},
}

// knownLabels maps lower-cased tags to their canonical spelling.
var knownLabels = func() map[string]string {
	out := make(map[string]string)
	for label := range fallbackGenres {
		out[strings.ToLower(label)] = label
	}
	for label := range fallbackMoods {
		out[label] = label
	}
	for alias, label := range map[string]string{
		"hip hop":     "Hip-Hop",
		"hiphop":      "Hip-Hop",
		"rap":         "Hip-Hop",
		"rnb":         "R&B",
		"r and b":     "R&B",
		"edm":         "Electronic",
		"electronica": "Electronic",
		"heavy metal": "Metal",
	} {
		out[alias] = label
	}
	return out
}()

// canonicalLabel trims a tag and maps known spellings to one form. Unknown
// tags are lower-cased.
func canonicalLabel(tag string) string {
	t := strings.ToLower(strings.TrimSpace(tag))
	if label, ok := knownLabels[t]; ok {
		return label
	}
	return t
}

func fallbackModel(trainingSize int, now time.Time) *Model {
	return &Model{
		mode:         ModeFallback,
		trainingSize: trainingSize,
		builtAt:      now,
		genres:       tableCentroids(fallbackGenres),
		moods:        tableCentroids(fallbackMoods),
	}
}

func tableCentroids(table map[string]map[features.Feature]float64) []centroid {
	out := make([]centroid, 0, len(table))
	for label, values := range table {
		out = append(out, centroid{label: label, vector: features.NewSet(values).Normalize(), songs: 1})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].label < out[j].label })
	return out
}
