package features

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/syeo66/cadence/errors"
)

// Set holds raw (un-normalized) feature values. The zero value is an empty
// set. Sets are values: With returns a modified copy and never touches the
// receiver.
type Set struct {
	values  [Count]float64
	present *bitset.BitSet
}

// NewSet builds a set from raw values. Zeros on zero-is-missing features are
// dropped. Values are not bounds-checked; use Validate for caller input.
func NewSet(values map[Feature]float64) Set {
	var s Set
	for f, v := range values {
		s = s.With(f, v)
	}
	return s
}

// FromMap parses a name-keyed map and rejects unknown names and values
// outside the documented bounds.
func FromMap(values map[string]float64) (Set, error) {
	var s Set
	for name, v := range values {
		f, ok := ParseFeature(name)
		if !ok {
			return Set{}, errors.ErrInvalidInput.WithContext("feature", name)
		}
		if !InBounds(f, v) {
			return Set{}, errors.ErrInvalidFeatureValue.
				WithContext("feature", f.String()).
				WithContext("value", v).
				WithContext("min", f.Bounds().Min).
				WithContext("max", f.Bounds().Max)
		}
		s = s.With(f, v)
	}
	return s, nil
}

func (s Set) has(f Feature) bool {
	return s.present != nil && s.present.Test(uint(f))
}

// Get returns the raw value and whether it is present.
func (s Set) Get(f Feature) (float64, bool) {
	if !f.Valid() || !s.has(f) {
		return 0, false
	}
	return s.values[f], true
}

// Has reports whether the feature is present.
func (s Set) Has(f Feature) bool {
	return f.Valid() && s.has(f)
}

// With returns a copy with f set to v. A zero on a zero-is-missing feature
// removes the value instead.
func (s Set) With(f Feature, v float64) Set {
	if !f.Valid() {
		return s
	}
	out := s.clone()
	if math.IsNaN(v) || (v == 0 && f.ZeroIsMissing()) {
		out.present.Clear(uint(f))
		out.values[f] = 0
		return out
	}
	out.present.Set(uint(f))
	out.values[f] = v
	return out
}

// Without returns a copy with f removed.
func (s Set) Without(f Feature) Set {
	if !s.Has(f) {
		return s
	}
	out := s.clone()
	out.present.Clear(uint(f))
	out.values[f] = 0
	return out
}

func (s Set) clone() Set {
	out := Set{values: s.values}
	if s.present != nil {
		out.present = s.present.Clone()
	} else {
		out.present = bitset.New(uint(Count))
	}
	return out
}

// Len returns the number of present features.
func (s Set) Len() int {
	if s.present == nil {
		return 0
	}
	return int(s.present.Count())
}

// Present lists present features in declaration order.
func (s Set) Present() []Feature {
	out := make([]Feature, 0, s.Len())
	if s.present == nil {
		return out
	}
	for i, ok := s.present.NextSet(0); ok; i, ok = s.present.NextSet(i + 1) {
		out = append(out, Feature(i))
	}
	return out
}

// Missing lists absent features in declaration order.
func (s Set) Missing() []Feature {
	out := make([]Feature, 0, int(Count)-s.Len())
	for _, f := range All() {
		if !s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// HasAll reports whether every listed feature is present.
func (s Set) HasAll(fs ...Feature) bool {
	for _, f := range fs {
		if !s.Has(f) {
			return false
		}
	}
	return true
}

// IsComplete reports whether the core features are all present and non-zero.
func (s Set) IsComplete() bool {
	for _, f := range Core {
		v, ok := s.Get(f)
		if !ok || v == 0 {
			return false
		}
	}
	return true
}

// Merge returns s with every feature of other that s lacks.
func (s Set) Merge(other Set) Set {
	out := s
	for _, f := range other.Present() {
		if !out.Has(f) {
			v, _ := other.Get(f)
			out = out.With(f, v)
		}
	}
	return out
}

// Validate checks that every present value lies within its bounds.
func (s Set) Validate() error {
	for _, f := range s.Present() {
		if v := s.values[f]; !InBounds(f, v) {
			return errors.ErrInvalidFeatureValue.
				WithContext("feature", f.String()).
				WithContext("value", v)
		}
	}
	return nil
}

// Equal reports whether both sets hold the same features and values.
func (s Set) Equal(other Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, f := range s.Present() {
		v, ok := other.Get(f)
		if !ok || v != s.values[f] {
			return false
		}
	}
	return true
}

// Map returns the present values keyed by feature name.
func (s Set) Map() map[string]float64 {
	out := make(map[string]float64, s.Len())
	for _, f := range s.Present() {
		out[f.String()] = s.values[f]
	}
	return out
}

// Normalize maps every present value into [0,1].
func (s Set) Normalize() Vector {
	v := Vector{present: bitset.New(uint(Count))}
	for _, f := range s.Present() {
		v.present.Set(uint(f))
		v.values[f] = Normalize(f, s.values[f])
	}
	return v
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromMap(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Names returns the sorted names of the given features.
func Names(fs []Feature) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.String()
	}
	sort.Strings(out)
	return out
}
