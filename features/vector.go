package features

import (
	"math"

	"github.com/bits-and-blooms/bitset"
	"gonum.org/v1/gonum/floats"
)

// Vector is a normalized feature vector with every present value in [0,1].
type Vector struct {
	values  [Count]float64
	present *bitset.BitSet
}

// NewVector builds a vector from already-normalized values.
func NewVector(values map[Feature]float64) Vector {
	v := Vector{present: bitset.New(uint(Count))}
	for f, n := range values {
		if !f.Valid() || math.IsNaN(n) {
			continue
		}
		v.present.Set(uint(f))
		v.values[f] = clamp01(n)
	}
	return v
}

// Get returns the normalized value and whether it is present.
func (v Vector) Get(f Feature) (float64, bool) {
	if !f.Valid() || v.present == nil || !v.present.Test(uint(f)) {
		return 0, false
	}
	return v.values[f], true
}

// Len returns the number of present features.
func (v Vector) Len() int {
	if v.present == nil {
		return 0
	}
	return int(v.present.Count())
}

// Shared lists the features present in both vectors.
func (v Vector) Shared(other Vector) []Feature {
	if v.present == nil || other.present == nil {
		return nil
	}
	common := v.present.Intersection(other.present)
	out := make([]Feature, 0, common.Count())
	for i, ok := common.NextSet(0); ok; i, ok = common.NextSet(i + 1) {
		out = append(out, Feature(i))
	}
	return out
}

func (v Vector) pair(other Vector) ([]float64, []float64) {
	shared := v.Shared(other)
	a := make([]float64, len(shared))
	b := make([]float64, len(shared))
	for i, f := range shared {
		a[i] = v.values[f]
		b[i] = other.values[f]
	}
	return a, b
}

// Cosine returns the cosine similarity over the shared features, in [0,1].
// No shared features gives 0.
func (v Vector) Cosine(other Vector) float64 {
	a, b := v.pair(other)
	if len(a) == 0 {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	switch {
	case na == 0 && nb == 0:
		// both sit at the origin of the shared subspace
		return 1
	case na == 0 || nb == 0:
		return 0
	}
	return clamp01(floats.Dot(a, b) / (na * nb))
}

// Euclidean returns the distance over the shared features. No shared
// features gives +Inf.
func (v Vector) Euclidean(other Vector) float64 {
	a, b := v.pair(other)
	if len(a) == 0 {
		return math.Inf(1)
	}
	return floats.Distance(a, b, 2)
}

// Accumulator computes (weighted) per-feature means over sets or vectors.
// Only present values contribute, so a feature missing on most inputs is
// averaged over the inputs that do carry it.
type Accumulator struct {
	sums    [Count]float64
	weights [Count]float64
	counts  [Count]int
}

// Add adds every present raw value of s with weight w.
func (a *Accumulator) Add(s Set, w float64) {
	for _, f := range s.Present() {
		a.add(f, s.values[f], w)
	}
}

// AddVector adds every present normalized value of v with weight w.
func (a *Accumulator) AddVector(v Vector, w float64) {
	if v.present == nil {
		return
	}
	for i, ok := v.present.NextSet(0); ok; i, ok = v.present.NextSet(i + 1) {
		a.add(Feature(i), v.values[i], w)
	}
}

func (a *Accumulator) add(f Feature, value, w float64) {
	if w <= 0 {
		return
	}
	a.sums[f] += value * w
	a.weights[f] += w
	a.counts[f]++
}

// Count returns how many inputs carried f.
func (a *Accumulator) Count(f Feature) int {
	return a.counts[f]
}

// Mean returns the weighted mean as a raw set.
func (a *Accumulator) Mean() Set {
	var s Set
	for _, f := range All() {
		if a.weights[f] > 0 {
			s = s.With(f, a.sums[f]/a.weights[f])
		}
	}
	return s
}

// MeanVector returns the weighted mean as a normalized vector.
func (a *Accumulator) MeanVector() Vector {
	values := make(map[Feature]float64)
	for _, f := range All() {
		if a.weights[f] > 0 {
			values[f] = a.sums[f] / a.weights[f]
		}
	}
	return NewVector(values)
}
