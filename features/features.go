// Package features describes the audio attributes of a song and the
// normalized vectors used by every similarity and prediction routine.
//
// Each feature is independently optional. Presence is tracked in a bitset so
// "missing" and "zero" stay distinct wherever zero is a real value.
package features

import (
	"fmt"
	"math"
	"strings"
)

// Feature identifies one audio attribute.
type Feature uint

const (
	Energy Feature = iota
	Danceability
	Valence
	Tempo
	Acousticness
	Instrumentalness
	Liveness
	Speechiness
	Loudness
	Mode
	Key
	TimeSignature

	// Count is the number of known features.
	Count
)

// Bounds is the documented raw range of a feature.
type Bounds struct {
	Min float64
	Max float64
}

type definition struct {
	name          string
	bounds        Bounds
	defaultValue  float64
	zeroIsMissing bool
}

// Zero means "unknown" for features where a true zero is not physically
// plausible (no song has zero tempo) or where the ingest pipeline writes 0
// for absent values. For mode, key and instrumentalness 0 is a legitimate
// reading (minor, C, purely vocal) and is kept.
var definitions = [Count]definition{
	Energy:           {"energy", Bounds{0, 1}, 0.5, true},
	Danceability:     {"danceability", Bounds{0, 1}, 0.5, true},
	Valence:          {"valence", Bounds{0, 1}, 0.5, true},
	Tempo:            {"tempo", Bounds{50, 200}, 120, true},
	Acousticness:     {"acousticness", Bounds{0, 1}, 0.3, true},
	Instrumentalness: {"instrumentalness", Bounds{0, 1}, 0.1, false},
	Liveness:         {"liveness", Bounds{0, 1}, 0.15, true},
	Speechiness:      {"speechiness", Bounds{0, 1}, 0.08, true},
	Loudness:         {"loudness", Bounds{-60, 0}, -8, true},
	Mode:             {"mode", Bounds{0, 1}, 1, false},
	Key:              {"key", Bounds{0, 11}, 5, false},
	TimeSignature:    {"time_signature", Bounds{3, 7}, 4, true},
}

// Core lists the features that make a song feature-complete.
var Core = []Feature{Energy, Danceability, Valence, Tempo}

// All returns every known feature in declaration order.
func All() []Feature {
	out := make([]Feature, Count)
	for i := range out {
		out[i] = Feature(i)
	}
	return out
}

func (f Feature) String() string {
	if f >= Count {
		return fmt.Sprintf("feature(%d)", uint(f))
	}
	return definitions[f].name
}

// Bounds returns the documented raw range.
func (f Feature) Bounds() Bounds {
	return definitions[f].bounds
}

// Default returns the population default used when nothing better is known.
func (f Feature) Default() float64 {
	return definitions[f].defaultValue
}

// ZeroIsMissing reports whether a raw zero is read as "unset".
func (f Feature) ZeroIsMissing() bool {
	return definitions[f].zeroIsMissing
}

// Valid reports whether f is a known feature.
func (f Feature) Valid() bool {
	return f < Count
}

// ParseFeature resolves a feature by name. Hyphens and case are ignored.
func ParseFeature(name string) (Feature, bool) {
	name = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	if name == "timesignature" {
		name = "time_signature"
	}
	for i, s := range definitions {
		if s.name == name {
			return Feature(i), true
		}
	}
	return 0, false
}

// Normalize maps a raw value into [0,1] using the feature bounds.
func Normalize(f Feature, v float64) float64 {
	b := definitions[f].bounds
	return clamp01((v - b.Min) / (b.Max - b.Min))
}

// Denormalize is the inverse of Normalize.
func Denormalize(f Feature, n float64) float64 {
	b := definitions[f].bounds
	return b.Min + clamp01(n)*(b.Max-b.Min)
}

// Clamp limits v to the feature bounds.
func Clamp(f Feature, v float64) float64 {
	b := definitions[f].bounds
	return math.Max(b.Min, math.Min(b.Max, v))
}

// InBounds reports whether v lies inside the documented range.
func InBounds(f Feature, v float64) bool {
	b := definitions[f].bounds
	return !math.IsNaN(v) && v >= b.Min && v <= b.Max
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
