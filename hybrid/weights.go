package hybrid

import (
	"math"

	"github.com/syeo66/cadence/errors"
)

const weightTolerance = 1e-9

// Weights are the per-strategy multipliers of the hybrid merge.
type Weights struct {
	Collaborative float64 `json:"collaborative" mapstructure:"collaborative"`
	Content       float64 `json:"content" mapstructure:"content"`
	Enhanced      float64 `json:"enhanced" mapstructure:"enhanced"`
	Popularity    float64 `json:"popularity" mapstructure:"popularity"`
}

func DefaultWeights() Weights {
	return Weights{
		Collaborative: 0.3,
		Content:       0.3,
		Enhanced:      0.3,
		Popularity:    0.1,
	}
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Collaborative + w.Content + w.Enhanced + w.Popularity
}

// Validate requires every weight to be non-negative and the total to lie in
// (0, 1].
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"collaborative": w.Collaborative,
		"content":       w.Content,
		"enhanced":      w.Enhanced,
		"popularity":    w.Popularity,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.ErrInvalidWeights.WithContext("source", name).WithContext("weight", v)
		}
	}
	sum := w.Sum()
	if sum <= 0 {
		return errors.ErrInvalidWeights.WithContext("reason", "weights sum to zero")
	}
	if sum > 1+weightTolerance {
		return errors.ErrInvalidWeights.WithContext("reason", "weights sum above 1").WithContext("sum", sum)
	}
	return nil
}
