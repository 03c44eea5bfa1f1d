package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/service/optimizer"
	"github.com/secmon-lab/recall/pkg/service/scoring"
	"github.com/secmon-lab/recall/pkg/usecase"
	"gopkg.in/yaml.v3"
)

// TuningFile is the content of a --config file. Every field is optional;
// unset fields keep the preset values.
type TuningFile struct {
	Scoring   ScoringSection   `toml:"scoring" yaml:"scoring"`
	Optimizer OptimizerSection `toml:"optimizer" yaml:"optimizer"`
	Search    SearchSection    `toml:"search" yaml:"search"`
	Build     BuildSection     `toml:"build" yaml:"build"`
}

// ScoringSection selects a weight preset and optionally replaces its weights
type ScoringSection struct {
	Preset    string           `toml:"preset" yaml:"preset"`
	Weights   *scoring.Weights `toml:"weights" yaml:"weights"`
	CacheSize int              `toml:"cache_size" yaml:"cache_size"`
}

// OptimizerSection selects an optimizer preset and overrides parts of it
type OptimizerSection struct {
	Preset                    string                     `toml:"preset" yaml:"preset"`
	Reserve                   *int                       `toml:"reserve" yaml:"reserve"`
	AllowTruncation           *bool                      `toml:"allow_truncation" yaml:"allow_truncation"`
	CompressionAggressiveness *float64                   `toml:"compression_aggressiveness" yaml:"compression_aggressiveness"`
	TypeCaps                  map[types.ItemType]float64 `toml:"type_caps" yaml:"type_caps"`
}

type SearchSection struct {
	ChunkSize     int      `toml:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap  *int     `toml:"chunk_overlap" yaml:"chunk_overlap"`
	DefaultLimit  int      `toml:"default_limit" yaml:"default_limit"`
	MinSimilarity *float64 `toml:"min_similarity" yaml:"min_similarity"`
}

type BuildSection struct {
	CandidateLimit int      `toml:"candidate_limit" yaml:"candidate_limit"`
	MinSimilarity  *float64 `toml:"min_similarity" yaml:"min_similarity"`
}

// LoadTuningFile reads a TOML or YAML tuning file, chosen by extension
func LoadTuningFile(path string) (*TuningFile, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(ErrConfigNotFound, "failed to read config file",
			goerr.V(ConfigPathKey, path),
			goerr.V("error", err.Error()))
	}

	var file TuningFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, goerr.Wrap(err, "failed to parse TOML config", goerr.V(ConfigPathKey, path))
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, goerr.Wrap(err, "failed to parse YAML config", goerr.V(ConfigPathKey, path))
		}
	default:
		return nil, goerr.Wrap(ErrUnsupportedFormat, "config file must be .toml, .yaml or .yml",
			goerr.V(ConfigPathKey, path))
	}

	if _, err := file.Resolve(); err != nil {
		return nil, goerr.Wrap(err, "config validation failed", goerr.V(ConfigPathKey, path))
	}
	return &file, nil
}

// Resolved is a validated tuning set ready to hand to the use cases
type Resolved struct {
	Weights   scoring.Weights
	Optimizer optimizer.Config
	Search    usecase.SearchConfig
	Build     usecase.BuildConfig
	CacheSize int
}

// Resolve applies the file on top of its presets and validates the result
func (f *TuningFile) Resolve() (*Resolved, error) {
	weights, err := scoring.WeightsByName(f.Scoring.Preset)
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, err.Error())
	}
	if f.Scoring.Weights != nil {
		weights = *f.Scoring.Weights
	}
	if err := weights.Validate(); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid scoring weights", goerr.V("error", err.Error()))
	}
	if f.Scoring.CacheSize < 0 {
		return nil, goerr.Wrap(ErrInvalidConfig, "cache size must not be negative")
	}

	opt, err := optimizer.ConfigByName(f.Optimizer.Preset)
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, err.Error())
	}
	if f.Optimizer.Reserve != nil {
		opt.Reserve = *f.Optimizer.Reserve
	}
	if f.Optimizer.AllowTruncation != nil {
		opt.AllowTruncation = *f.Optimizer.AllowTruncation
	}
	if f.Optimizer.CompressionAggressiveness != nil {
		opt.CompressionAggressiveness = *f.Optimizer.CompressionAggressiveness
	}
	if f.Optimizer.TypeCaps != nil {
		opt.TypeCaps = f.Optimizer.TypeCaps
	}
	if err := opt.Validate(); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid optimizer settings", goerr.V("error", err.Error()))
	}

	search := usecase.DefaultSearchConfig()
	if f.Search.ChunkSize != 0 {
		search.ChunkSize = f.Search.ChunkSize
	}
	if f.Search.ChunkOverlap != nil {
		search.ChunkOverlap = *f.Search.ChunkOverlap
	}
	if f.Search.DefaultLimit != 0 {
		search.DefaultLimit = f.Search.DefaultLimit
	}
	if f.Search.MinSimilarity != nil {
		search.MinSimilarity = *f.Search.MinSimilarity
	}
	if search.ChunkSize <= 0 || search.DefaultLimit <= 0 {
		return nil, goerr.Wrap(ErrInvalidConfig, "chunk size and default limit must be positive",
			goerr.V("chunk_size", search.ChunkSize),
			goerr.V("default_limit", search.DefaultLimit))
	}
	if search.ChunkOverlap < 0 || search.ChunkOverlap >= search.ChunkSize {
		return nil, goerr.Wrap(ErrInvalidConfig, "chunk overlap must be within [0, chunk_size)",
			goerr.V("chunk_overlap", search.ChunkOverlap))
	}

	build := usecase.DefaultBuildConfig()
	if f.Build.CandidateLimit != 0 {
		build.CandidateLimit = f.Build.CandidateLimit
	}
	if f.Build.MinSimilarity != nil {
		build.MinSimilarity = *f.Build.MinSimilarity
	}
	if build.CandidateLimit <= 0 {
		return nil, goerr.Wrap(ErrInvalidConfig, "candidate limit must be positive",
			goerr.V("candidate_limit", build.CandidateLimit))
	}

	return &Resolved{
		Weights:   weights,
		Optimizer: opt,
		Search:    search,
		Build:     build,
		CacheSize: f.Scoring.CacheSize,
	}, nil
}

// Options converts the resolved tuning into use case options
func (r *Resolved) Options() []usecase.Option {
	opts := []usecase.Option{
		usecase.WithScoringWeights(r.Weights),
		usecase.WithOptimizerConfig(r.Optimizer),
		usecase.WithSearchConfig(r.Search),
		usecase.WithBuildConfig(r.Build),
	}
	if r.CacheSize > 0 {
		opts = append(opts, usecase.WithScorerCacheSize(r.CacheSize))
	}
	return opts
}
