package scoring

import (
	"math"

	"github.com/m-mizutani/goerr/v2"
)

// Weights are the per-component multipliers of the relevance score.
// They are expected to sum to 1.0; the scorer does not normalise them.
type Weights struct {
	Semantic   float64 `toml:"semantic" yaml:"semantic"`
	Recency    float64 `toml:"recency" yaml:"recency"`
	Frequency  float64 `toml:"frequency" yaml:"frequency"`
	CoAccess   float64 `toml:"co_access" yaml:"co_access"`
	Prediction float64 `toml:"prediction" yaml:"prediction"`
	TypeMatch  float64 `toml:"type_match" yaml:"type_match"`
	Contextual float64 `toml:"contextual" yaml:"contextual"`
}

func DefaultWeights() Weights {
	return Weights{
		Semantic:   0.35,
		Recency:    0.15,
		Frequency:  0.10,
		CoAccess:   0.10,
		Prediction: 0.10,
		TypeMatch:  0.10,
		Contextual: 0.10,
	}
}

func SemanticFocusedWeights() Weights {
	return Weights{
		Semantic:   0.60,
		Recency:    0.10,
		Frequency:  0.05,
		CoAccess:   0.05,
		Prediction: 0.05,
		TypeMatch:  0.10,
		Contextual: 0.05,
	}
}

func PatternFocusedWeights() Weights {
	return Weights{
		Semantic:   0.20,
		Recency:    0.15,
		Frequency:  0.20,
		CoAccess:   0.20,
		Prediction: 0.10,
		TypeMatch:  0.05,
		Contextual: 0.10,
	}
}

// WeightsByName resolves a preset name: default, semantic or pattern
func WeightsByName(name string) (Weights, error) {
	switch name {
	case "", "default":
		return DefaultWeights(), nil
	case "semantic", "semantic-focused":
		return SemanticFocusedWeights(), nil
	case "pattern", "pattern-focused":
		return PatternFocusedWeights(), nil
	default:
		return Weights{}, goerr.New("unknown scoring preset", goerr.V("name", name))
	}
}

// Sum returns the total of all weights
func (w Weights) Sum() float64 {
	return w.Semantic + w.Recency + w.Frequency + w.CoAccess + w.Prediction + w.TypeMatch + w.Contextual
}

// Validate checks that no weight is negative and that they sum to 1.0 within 0.01
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"semantic":   w.Semantic,
		"recency":    w.Recency,
		"frequency":  w.Frequency,
		"co_access":  w.CoAccess,
		"prediction": w.Prediction,
		"type_match": w.TypeMatch,
		"contextual": w.Contextual,
	} {
		if v < 0 {
			return goerr.New("scoring weight must not be negative", goerr.V("weight", name), goerr.V("value", v))
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > 0.01 {
		return goerr.New("scoring weights must sum to 1.0", goerr.V("sum", sum))
	}
	return nil
}
