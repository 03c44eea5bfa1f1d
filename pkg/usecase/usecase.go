package usecase

import (
	"time"

	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/service/embedding"
	"github.com/secmon-lab/recall/pkg/service/optimizer"
	"github.com/secmon-lab/recall/pkg/service/scoring"
)

type UseCases struct {
	repo          interfaces.Repository
	embedder      embedding.Embedder
	weights       scoring.Weights
	optimizerCfg  optimizer.Config
	searchConfig  SearchConfig
	buildConfig   BuildConfig
	scorerOptions []scoring.Option
	now           func() time.Time

	Search  *SearchUseCase
	Usage   *UsageUseCase
	Context *ContextUseCase
}

type Option func(*UseCases)

func WithEmbedder(e embedding.Embedder) Option {
	return func(uc *UseCases) {
		uc.embedder = e
	}
}

func WithScoringWeights(w scoring.Weights) Option {
	return func(uc *UseCases) {
		uc.weights = w
	}
}

func WithOptimizerConfig(cfg optimizer.Config) Option {
	return func(uc *UseCases) {
		uc.optimizerCfg = cfg
	}
}

func WithSearchConfig(cfg SearchConfig) Option {
	return func(uc *UseCases) {
		uc.searchConfig = cfg
	}
}

func WithBuildConfig(cfg BuildConfig) Option {
	return func(uc *UseCases) {
		uc.buildConfig = cfg
	}
}

// WithScorerCacheSize sets how many candidate embeddings the scorer memoises
func WithScorerCacheSize(size int) Option {
	return func(uc *UseCases) {
		uc.scorerOptions = append(uc.scorerOptions, scoring.WithCacheSize(size))
	}
}

// WithClock replaces time.Now in every use case
func WithClock(now func() time.Time) Option {
	return func(uc *UseCases) {
		uc.now = now
	}
}

func New(repo interfaces.Repository, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:         repo,
		embedder:     embedding.New(),
		weights:      scoring.DefaultWeights(),
		optimizerCfg: optimizer.DefaultConfig(),
		searchConfig: DefaultSearchConfig(),
		buildConfig:  DefaultBuildConfig(),
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Search = NewSearchUseCase(repo, uc.embedder, uc.searchConfig, uc.now)
	uc.Usage = NewUsageUseCase(repo, uc.embedder, uc.now)

	scorer := scoring.New(uc.embedder, append([]scoring.Option{
		scoring.WithWeights(uc.weights),
		scoring.WithCoAccessSource(uc.Usage),
		scoring.WithClock(uc.now),
	}, uc.scorerOptions...)...)
	opt := optimizer.New(uc.embedder, optimizer.WithConfig(uc.optimizerCfg))
	uc.Context = NewContextUseCase(uc.Search, uc.Usage, scorer, opt, uc.embedder, uc.buildConfig, uc.now)

	return uc
}
