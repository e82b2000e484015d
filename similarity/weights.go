package similarity

import (
	"github.com/syeo66/cadence/errors"
)

// Weights sets the relative importance of each factor in the composite score.
// Only the ratio between consulted factors matters: the composite is divided
// by the sum of the weights that were actually used.
type Weights struct {
	Audio      float64 `json:"audio" mapstructure:"audio"`
	Genre      float64 `json:"genre" mapstructure:"genre"`
	Mood       float64 `json:"mood" mapstructure:"mood"`
	Artist     float64 `json:"artist" mapstructure:"artist"`
	Popularity float64 `json:"popularity" mapstructure:"popularity"`
}

func DefaultWeights() Weights {
	return Weights{
		Audio:      0.55,
		Genre:      0.2,
		Mood:       0.1,
		Artist:     0.1,
		Popularity: 0.05,
	}
}

// Validate rejects negative weights and a configuration where every weight
// is zero.
func (w Weights) Validate() error {
	total := 0.0
	for _, f := range Factors() {
		v := w.of(f)
		if v < 0 {
			return errors.ErrInvalidWeights.
				WithContext("factor", string(f)).
				WithContext("weight", v)
		}
		total += v
	}
	if total == 0 {
		return errors.ErrInvalidWeights.WithContext("reason", "all similarity weights are zero")
	}
	return nil
}

func (w Weights) of(f Factor) float64 {
	switch f {
	case FactorAudio:
		return w.Audio
	case FactorGenre:
		return w.Genre
	case FactorMood:
		return w.Mood
	case FactorArtist:
		return w.Artist
	case FactorPopularity:
		return w.Popularity
	}
	return 0
}

type Factor string

const (
	FactorAudio      Factor = "audio"
	FactorGenre      Factor = "genre"
	FactorMood       Factor = "mood"
	FactorArtist     Factor = "artist"
	FactorPopularity Factor = "popularity"
)

// Factors lists every factor in evaluation order.
func Factors() []Factor {
	return []Factor{FactorAudio, FactorGenre, FactorMood, FactorArtist, FactorPopularity}
}

// AudioPolicy decides how the audio factor behaves when feature data is
// incomplete.
type AudioPolicy int

const (
	// Omit drops the audio factor when the two songs share no features.
	Omit AudioPolicy = iota
	// Discount keeps the audio factor at half weight whenever either song is
	// not feature-complete, scoring it over the shared features (0 if none).
	// Two songs without any audio data still omit it.
	Discount
)

// discountFactor is the weight multiplier applied under the Discount policy.
const discountFactor = 0.5

func (p AudioPolicy) String() string {
	if p == Discount {
		return "discount"
	}
	return "omit"
}
