package predictor

import (
	"math"

	"github.com/syeo66/cadence/features"
	"github.com/syeo66/cadence/models"
)

// Source names the rung of the prediction ladder a value came from.
type Source string

const (
	SourceObserved    Source = "observed"
	SourceArtist      Source = "artist"
	SourceDecade      Source = "decade"
	SourceCorrelation Source = "correlation"
	SourceDefault     Source = "default"
)

type Prediction struct {
	Feature    features.Feature `json:"-"`
	Name       string           `json:"feature"`
	Value      float64          `json:"value"`
	Raw        float64          `json:"raw"`
	Confidence float64          `json:"confidence"`
	Source     Source           `json:"source"`
}

// AdjustPrediction blends a raw estimate towards the feature default:
// prediction×confidence + default×(1−confidence), clamped to the feature's
// bounds.
func AdjustPrediction(prediction, confidence float64, f features.Feature) float64 {
	confidence = math.Max(0, math.Min(1, confidence))
	if confidence == 1 {
		return features.Clamp(f, prediction)
	}
	def := f.Default()
	return features.Clamp(f, prediction*confidence+def*(1-confidence))
}

// PredictFeature walks the ladder observed → artist → decade → correlation →
// default and never fails.
func (m *Model) PredictFeature(song models.Song, f features.Feature) Prediction {
	if v, ok := song.Features.Get(f); ok {
		return Prediction{Feature: f, Name: f.String(), Value: v, Raw: v, Confidence: 1, Source: SourceObserved}
	}

	raw, confidence, source := m.estimate(song, f)
	return Prediction{
		Feature:    f,
		Name:       f.String(),
		Value:      AdjustPrediction(raw, confidence, f),
		Raw:        raw,
		Confidence: confidence,
		Source:     source,
	}
}

func (m *Model) estimate(song models.Song, f features.Feature) (float64, float64, Source) {
	if g, ok := m.artists[artistKey(song.Artist)]; ok && g.counts[f] >= minArtistSongs {
		if v, ok := g.mean.Get(f); ok {
			return v, artistConfidence, SourceArtist
		}
	}
	if decade := song.Decade(); decade > 0 {
		if g, ok := m.decades[decade]; ok && g.counts[f] >= minDecadeSongs {
			if v, ok := g.mean.Get(f); ok {
				return v, decadeConfidence, SourceDecade
			}
		}
	}
	if v, weight, ok := m.correlationEstimate(song, f); ok {
		return v, math.Min(maxCorrConfidence, weight), SourceCorrelation
	}
	return f.Default(), defaultConfidence, SourceDefault
}

// correlationEstimate regresses f on the song's present features in z-score
// space: z_f = Σ r·z_g / Σ|r|. The returned weight is Σ|r| over the features
// used.
func (m *Model) correlationEstimate(song models.Song, f features.Feature) (float64, float64, bool) {
	target := m.stats[f]
	if target.n == 0 || target.stdDev == 0 {
		return 0, 0, false
	}
	var sum, weight float64
	for _, g := range song.Features.Present() {
		if g == f {
			continue
		}
		r := m.correlation[f][g]
		st := m.stats[g]
		if math.Abs(r) < minCorrelation || st.stdDev == 0 {
			continue
		}
		v, _ := song.Features.Get(g)
		sum += r * (v - st.mean) / st.stdDev
		weight += math.Abs(r)
	}
	if weight == 0 {
		return 0, 0, false
	}
	return features.Clamp(f, target.mean+(sum/weight)*target.stdDev), weight, true
}

// PredictFeatures predicts every feature the song lacks.
func (m *Model) PredictFeatures(song models.Song) []Prediction {
	missing := song.Features.Missing()
	out := make([]Prediction, 0, len(missing))
	for _, f := range missing {
		out = append(out, m.PredictFeature(song, f))
	}
	return out
}

// Complete returns a copy of song with missing features, genres and moods
// filled in. Observed data is never replaced.
func (m *Model) Complete(song models.Song) models.Song {
	out := song
	filled := song.Features
	for _, p := range m.PredictFeatures(song) {
		filled = filled.With(p.Feature, p.Value)
	}
	out.Features = filled
	out.Genres = m.PredictGenres(song)
	out.Moods = m.PredictMoods(song)
	return out
}
