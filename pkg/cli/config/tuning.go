package config

import (
	"log/slog"

	"github.com/secmon-lab/recall/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Tuning holds CLI flags selecting scoring and optimizer behaviour
type Tuning struct {
	path            string
	scoringPreset   string
	optimizerPreset string
}

// Flags returns CLI flags for tuning configuration
func (t *Tuning) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Category:    "Tuning",
			Usage:       "Path to a TOML or YAML tuning file",
			Sources:     cli.EnvVars("RECALL_CONFIG"),
			Destination: &t.path,
		},
		&cli.StringFlag{
			Name:        "scoring-preset",
			Category:    "Tuning",
			Usage:       "Scoring weight preset (default, semantic or pattern)",
			Sources:     cli.EnvVars("RECALL_SCORING_PRESET"),
			Destination: &t.scoringPreset,
		},
		&cli.StringFlag{
			Name:        "optimizer-preset",
			Category:    "Tuning",
			Usage:       "Optimizer preset (default, aggressive or conservative)",
			Sources:     cli.EnvVars("RECALL_OPTIMIZER_PRESET"),
			Destination: &t.optimizerPreset,
		},
	}
}

// LogValue returns structured log value
func (t *Tuning) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("config", t.path),
		slog.String("scoring_preset", t.scoringPreset),
		slog.String("optimizer_preset", t.optimizerPreset),
	)
}

// Resolve loads the tuning file when given and applies preset flags on top.
// A preset flag replaces the file's preset but keeps its other overrides.
func (t *Tuning) Resolve() (*Resolved, error) {
	file := &TuningFile{}
	if t.path != "" {
		loaded, err := LoadTuningFile(t.path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	if t.scoringPreset != "" {
		file.Scoring.Preset = t.scoringPreset
		file.Scoring.Weights = nil
	}
	if t.optimizerPreset != "" {
		file.Optimizer.Preset = t.optimizerPreset
	}

	return file.Resolve()
}

// Configure returns use case options built from the resolved tuning
func (t *Tuning) Configure() ([]usecase.Option, error) {
	resolved, err := t.Resolve()
	if err != nil {
		return nil, err
	}
	return resolved.Options(), nil
}
