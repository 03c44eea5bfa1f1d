package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/cli/config"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/service/optimizer"
	"github.com/secmon-lab/recall/pkg/service/scoring"
	"github.com/secmon-lab/recall/pkg/usecase"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o600)).Required()
	return path
}

func TestLoadTuningFile_TOML(t *testing.T) {
	path := writeFile(t, "recall.toml", `
[scoring]
preset = "semantic"
cache_size = 500

[optimizer]
preset = "aggressive"
reserve = 64
allow_truncation = false

[optimizer.type_caps]
search_result = 0.25
file = 0.5

[search]
chunk_size = 400
chunk_overlap = 50
default_limit = 5
min_similarity = 0.2

[build]
candidate_limit = 20
`)

	file, err := config.LoadTuningFile(path)
	gt.NoError(t, err).Required()

	resolved, err := file.Resolve()
	gt.NoError(t, err).Required()

	gt.Value(t, resolved.Weights).Equal(scoring.SemanticFocusedWeights())
	gt.Number(t, resolved.CacheSize).Equal(500)

	gt.Number(t, resolved.Optimizer.Reserve).Equal(64)
	gt.Bool(t, resolved.Optimizer.AllowTruncation).False()
	gt.Number(t, resolved.Optimizer.CompressionAggressiveness).Equal(optimizer.AggressiveConfig().CompressionAggressiveness)
	gt.Value(t, resolved.Optimizer.TypeCaps).Equal(map[types.ItemType]float64{
		types.ItemTypeSearchResult: 0.25,
		types.ItemTypeFile:         0.5,
	})

	gt.Number(t, resolved.Search.ChunkSize).Equal(400)
	gt.Number(t, resolved.Search.ChunkOverlap).Equal(50)
	gt.Number(t, resolved.Search.DefaultLimit).Equal(5)
	gt.Number(t, resolved.Search.MinSimilarity).Equal(0.2)

	gt.Number(t, resolved.Build.CandidateLimit).Equal(20)
	gt.Number(t, resolved.Build.MinSimilarity).Equal(usecase.DefaultBuildConfig().MinSimilarity)

	gt.Array(t, resolved.Options()).Length(5)
}

func TestLoadTuningFile_YAML(t *testing.T) {
	path := writeFile(t, "recall.yaml", `
scoring:
  weights:
    semantic: 0.5
    recency: 0.1
    frequency: 0.1
    co_access: 0.1
    prediction: 0.1
    type_match: 0.05
    contextual: 0.05
optimizer:
  preset: conservative
`)

	file, err := config.LoadTuningFile(path)
	gt.NoError(t, err).Required()

	resolved, err := file.Resolve()
	gt.NoError(t, err).Required()

	gt.Number(t, resolved.Weights.Semantic).Equal(0.5)
	gt.Number(t, resolved.Weights.Contextual).Equal(0.05)
	gt.Value(t, resolved.Optimizer).Equal(optimizer.ConservativeConfig())
	gt.Value(t, resolved.Search).Equal(usecase.DefaultSearchConfig())
	gt.Array(t, resolved.Options()).Length(4)
}

func TestLoadTuningFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{
			name:    "unsupported extension",
			file:    "recall.json",
			content: `{}`,
			wantErr: config.ErrUnsupportedFormat,
		},
		{
			name: "weights not summing to one",
			file: "recall.toml",
			content: `
[scoring.weights]
semantic = 0.9
recency = 0.9
`,
			wantErr: config.ErrInvalidConfig,
		},
		{
			name: "unknown scoring preset",
			file: "recall.toml",
			content: `
[scoring]
preset = "psychic"
`,
			wantErr: config.ErrInvalidConfig,
		},
		{
			name: "overlap larger than chunk",
			file: "recall.yaml",
			content: `
search:
  chunk_size: 100
  chunk_overlap: 100
`,
			wantErr: config.ErrInvalidConfig,
		},
		{
			name: "type cap above one",
			file: "recall.yaml",
			content: `
optimizer:
  type_caps:
    file: 1.5
`,
			wantErr: config.ErrInvalidConfig,
		},
		{
			name: "negative cache size",
			file: "recall.toml",
			content: `
[scoring]
cache_size = -1
`,
			wantErr: config.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := config.LoadTuningFile(path)
			gt.Error(t, err).Is(tt.wantErr)
		})
	}
}

func TestLoadTuningFile_Missing(t *testing.T) {
	_, err := config.LoadTuningFile(filepath.Join(t.TempDir(), "absent.toml"))
	gt.Error(t, err).Is(config.ErrConfigNotFound)
}

func TestTuning_Resolve(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		resolved, err := config.NewTuningForTest("", "", "").Resolve()
		gt.NoError(t, err).Required()
		gt.Value(t, resolved.Weights).Equal(scoring.DefaultWeights())
		gt.Value(t, resolved.Optimizer).Equal(optimizer.DefaultConfig())
		gt.Value(t, resolved.Build).Equal(usecase.DefaultBuildConfig())
	})

	t.Run("preset flags override the file", func(t *testing.T) {
		path := writeFile(t, "recall.toml", `
[scoring]
preset = "semantic"

[optimizer]
preset = "conservative"
reserve = 1000
`)
		resolved, err := config.NewTuningForTest(path, "pattern", "aggressive").Resolve()
		gt.NoError(t, err).Required()
		gt.Value(t, resolved.Weights).Equal(scoring.PatternFocusedWeights())
		gt.Number(t, resolved.Optimizer.Reserve).Equal(1000)
		gt.Number(t, resolved.Optimizer.CompressionAggressiveness).Equal(optimizer.AggressiveConfig().CompressionAggressiveness)
	})

	t.Run("unknown optimizer preset", func(t *testing.T) {
		_, err := config.NewTuningForTest("", "", "reckless").Configure()
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})
}
