package optimizer

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/types"
)

// Config is an immutable optimizer preset. It is passed by value.
type Config struct {
	// Reserve is held back from selection for the model response
	Reserve         int  `toml:"reserve" yaml:"reserve"`
	AllowTruncation bool `toml:"allow_truncation" yaml:"allow_truncation"`

	// TypeCaps bounds each item type to a fraction of the total budget.
	// Types without an entry are not capped.
	TypeCaps map[types.ItemType]float64 `toml:"type_caps" yaml:"type_caps"`

	// CompressionAggressiveness in [0,1] penalises truncatable items
	CompressionAggressiveness float64 `toml:"compression_aggressiveness" yaml:"compression_aggressiveness"`

	PriorityWeight  float64 `toml:"priority_weight" yaml:"priority_weight"`
	SemanticWeight  float64 `toml:"semantic_weight" yaml:"semantic_weight"`
	PredictionBoost float64 `toml:"prediction_boost" yaml:"prediction_boost"`
}

func DefaultConfig() Config {
	return Config{
		Reserve:         256,
		AllowTruncation: true,
		TypeCaps: map[types.ItemType]float64{
			types.ItemTypeSearchResult: 0.3,
			types.ItemTypeFile:         0.4,
			types.ItemTypeCode:         0.4,
			types.ItemTypeMessage:      0.5,
		},
		CompressionAggressiveness: 0.5,
		PriorityWeight:            0.7,
		SemanticWeight:            0.3,
		PredictionBoost:           0.1,
	}
}

func AggressiveConfig() Config {
	return Config{
		Reserve:         128,
		AllowTruncation: true,
		TypeCaps: map[types.ItemType]float64{
			types.ItemTypeSearchResult: 0.2,
			types.ItemTypeFile:         0.3,
			types.ItemTypeCode:         0.3,
			types.ItemTypeMessage:      0.4,
			types.ItemTypeNote:         0.3,
		},
		CompressionAggressiveness: 0.8,
		PriorityWeight:            0.6,
		SemanticWeight:            0.4,
		PredictionBoost:           0.1,
	}
}

func ConservativeConfig() Config {
	return Config{
		Reserve:         512,
		AllowTruncation: false,
		TypeCaps: map[types.ItemType]float64{
			types.ItemTypeSearchResult: 0.4,
			types.ItemTypeFile:         0.5,
			types.ItemTypeCode:         0.5,
		},
		CompressionAggressiveness: 0.2,
		PriorityWeight:            0.7,
		SemanticWeight:            0.3,
		PredictionBoost:           0.15,
	}
}

// ConfigByName resolves a preset name: default, aggressive or conservative
func ConfigByName(name string) (Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "aggressive":
		return AggressiveConfig(), nil
	case "conservative":
		return ConservativeConfig(), nil
	default:
		return Config{}, goerr.New("unknown optimizer preset", goerr.V("name", name))
	}
}

func (c Config) Validate() error {
	if c.Reserve < 0 {
		return goerr.New("reserve must not be negative", goerr.V("reserve", c.Reserve))
	}
	if c.CompressionAggressiveness < 0 || c.CompressionAggressiveness > 1 {
		return goerr.New("compression aggressiveness must be within [0,1]",
			goerr.V("value", c.CompressionAggressiveness))
	}
	if c.PriorityWeight < 0 || c.SemanticWeight < 0 || c.PredictionBoost < 0 {
		return goerr.New("optimizer weights must not be negative",
			goerr.V("priority", c.PriorityWeight),
			goerr.V("semantic", c.SemanticWeight),
			goerr.V("prediction", c.PredictionBoost))
	}
	for t, frac := range c.TypeCaps {
		if !t.IsValid() {
			return goerr.New("unknown item type in type caps", goerr.V("type", t))
		}
		if frac <= 0 || frac > 1 {
			return goerr.New("type cap must be within (0,1]", goerr.V("type", t), goerr.V("cap", frac))
		}
	}
	return nil
}
