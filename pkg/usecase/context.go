package usecase

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/service/embedding"
	"github.com/secmon-lab/recall/pkg/service/optimizer"
	"github.com/secmon-lab/recall/pkg/service/scoring"
	"github.com/secmon-lab/recall/pkg/service/text"
	"github.com/secmon-lab/recall/pkg/service/token"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// Budget tiers selected by BudgetForModel
const (
	BudgetSmall   = 4000
	BudgetMedium  = 8000
	BudgetLarge   = 32000
	BudgetLargest = 100000
)

// BuildConfig tunes candidate gathering
type BuildConfig struct {
	CandidateLimit     int
	MinSimilarity      float64
	PrefilterThreshold float64
	// PrefilterAbove is the pool size above which candidates are pre-filtered
	PrefilterAbove int
}

// DefaultBuildConfig returns the built-in build settings
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		CandidateLimit:     10,
		MinSimilarity:      0.25,
		PrefilterThreshold: 0.05,
		PrefilterAbove:     100,
	}
}

// BuildRequest is the input of Build
type BuildRequest struct {
	Query               string
	SessionID           string
	SystemPrompt        string
	PriorSessionSummary string
	RecentItems         []*model.ContextItem
	ActiveItemIDs       []string
	PreferredTypes      []types.ItemType
	PredictedTopics     []string
	Budget              int
}

type section struct {
	title string
	types []types.ItemType
}

var sections = []section{
	{title: "System", types: []types.ItemType{types.ItemTypeSystem}},
	{title: "Previous Session", types: []types.ItemType{types.ItemTypeSummary}},
	{title: "Background", types: []types.ItemType{
		types.ItemTypeMessage,
		types.ItemTypeTask,
		types.ItemTypeTheme,
		types.ItemTypeNote,
		types.ItemTypeSearchResult,
	}},
	{title: "Files", types: []types.ItemType{types.ItemTypeFile, types.ItemTypeCode}},
}

// ContextUseCase assembles token-bounded prompt context
type ContextUseCase struct {
	search    *SearchUseCase
	usage     *UsageUseCase
	scorer    *scoring.Scorer
	optimizer *optimizer.Optimizer
	embedder  embedding.Embedder
	cfg       BuildConfig
	now       func() time.Time
}

// NewContextUseCase creates a new ContextUseCase instance
func NewContextUseCase(search *SearchUseCase, usage *UsageUseCase, scorer *scoring.Scorer, opt *optimizer.Optimizer, embedder embedding.Embedder, cfg BuildConfig, now func() time.Time) *ContextUseCase {
	if now == nil {
		now = time.Now
	}
	return &ContextUseCase{
		search:    search,
		usage:     usage,
		scorer:    scorer,
		optimizer: opt,
		embedder:  embedder,
		cfg:       cfg,
		now:       now,
	}
}

// BudgetForModel picks a token budget from hints in a model name
func BudgetForModel(modelName string) int {
	name := strings.ToLower(modelName)
	contains := func(hints ...string) bool {
		for _, h := range hints {
			if strings.Contains(name, h) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("claude"):
		return BudgetLargest
	case contains("70b", "65b", "gpt-4"):
		return BudgetLarge
	case contains("13b", "34b", "mixtral"):
		return BudgetMedium
	default:
		return BudgetSmall
	}
}

// BuildForModel runs Build with the budget derived from modelName
func (uc *ContextUseCase) BuildForModel(ctx context.Context, req BuildRequest, modelName string) (*model.BuiltContext, error) {
	req.Budget = BudgetForModel(modelName)
	return uc.Build(ctx, req)
}

// Build gathers candidates, selects them under the budget and renders them in
// fixed section order. Files that make it into the context are recorded as
// accessed in the session.
func (uc *ContextUseCase) Build(ctx context.Context, req BuildRequest) (*model.BuiltContext, error) {
	if req.Budget <= 0 {
		return nil, goerr.Wrap(ErrInvalidBudget, "failed to build context", goerr.V("budget", req.Budget))
	}

	required := uc.requiredItems(req)
	optional, err := uc.gather(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.Query != "" && len(optional) > uc.cfg.PrefilterAbove {
		optional = uc.scorer.Prefilter(optional, req.Query, uc.cfg.PrefilterThreshold)
	}
	if err := uc.rescore(ctx, optional, req); err != nil {
		return nil, err
	}

	result, err := uc.optimizer.Optimize(ctx, optimizer.Request{
		Items:           append(required, optional...),
		Query:           req.Query,
		Budget:          req.Budget,
		PredictedTopics: req.PredictedTopics,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to optimize context")
	}

	built := &model.BuiltContext{
		Formatted:        render(result.Included),
		Included:         result.Included,
		Excluded:         result.Excluded,
		TotalTokens:      result.UsedBudget,
		Budget:           req.Budget,
		Utilization:      float64(result.UsedBudget) / float64(req.Budget) * 100,
		TypeDistribution: make(map[types.ItemType]int),
		OverBudget:       result.OverBudget,
	}
	for _, item := range result.Included {
		built.TypeDistribution[item.Type]++
	}

	uc.recordFileAccess(ctx, req.SessionID, result.Included)

	logging.From(ctx).Info("context built",
		"session_id", req.SessionID,
		"budget", req.Budget,
		"tokens", built.TotalTokens,
		"included", len(built.Included),
		"excluded", len(built.Excluded),
		"over_budget", built.OverBudget,
	)
	return built, nil
}

func (uc *ContextUseCase) requiredItems(req BuildRequest) []*model.ContextItem {
	var items []*model.ContextItem
	if req.SystemPrompt != "" {
		items = append(items, &model.ContextItem{
			ID:           "system",
			Type:         types.ItemTypeSystem,
			Content:      req.SystemPrompt,
			RecencyScore: 1,
			Metadata:     model.ContextItemMetadata{IsRequired: true},
		})
	}
	if req.PriorSessionSummary != "" {
		items = append(items, &model.ContextItem{
			ID:           "previous-session",
			Type:         types.ItemTypeSummary,
			Content:      req.PriorSessionSummary,
			RecencyScore: 1,
			Metadata:     model.ContextItemMetadata{IsRequired: true, CanTruncate: true, MinTokens: 50},
		})
	}
	return items
}

// gather collects optional candidates from recent items, stored documents and the
// usage index concurrently. Candidates are deduplicated by ID.
func (uc *ContextUseCase) gather(ctx context.Context, req BuildRequest) ([]*model.ContextItem, error) {
	groups := make([][]*model.ContextItem, 4)
	groups[0] = uc.recentItems(req)

	if strings.TrimSpace(req.Query) != "" {
		eg, ctx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			items, err := uc.documentItems(ctx, req, types.SourceTheme, types.SourceNote)
			groups[1] = items
			return err
		})
		eg.Go(func() error {
			items, err := uc.documentItems(ctx, req,
				types.SourceSearchResult, types.SourceMessage, types.SourceTask, types.SourceSummary,
				types.SourceFile, types.SourceCode)
			groups[2] = items
			return err
		})
		eg.Go(func() error {
			items, err := uc.fileItems(ctx, req)
			groups[3] = items
			return err
		})
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool)
	var out []*model.ContextItem
	for _, group := range groups {
		for _, item := range group {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			out = append(out, item)
		}
	}
	return out, nil
}

// recentItems scores caller-supplied items by similarity weighted with recency
func (uc *ContextUseCase) recentItems(req BuildRequest) []*model.ContextItem {
	if len(req.RecentItems) == 0 {
		return nil
	}

	var queryVec []float32
	if req.Query != "" {
		queryVec = uc.embedder.Embed(req.Query)
	}

	items := make([]*model.ContextItem, 0, len(req.RecentItems))
	for _, src := range req.RecentItems {
		if src == nil {
			continue
		}
		item := src.Clone()
		item.Metadata.IsRequired = false
		if len(item.Embedding) != uc.embedder.Dimension() {
			item.Embedding = uc.embedder.Embed(item.Content)
		}
		if !item.LastAccessed.IsZero() {
			item.RecencyScore = scoring.RecencyScore(uc.now().Sub(item.LastAccessed).Hours())
		}
		if queryVec != nil {
			sim := max(0, embedding.CosineSimilarity(queryVec, item.Embedding))
			item.RelevanceScore = sim * (0.5 + 0.5*item.RecencyScore)
		}
		if item.ConversationID == "" {
			item.ConversationID = req.SessionID
		}
		items = append(items, item)
	}
	return items
}

func (uc *ContextUseCase) documentItems(ctx context.Context, req BuildRequest, sources ...types.Source) ([]*model.ContextItem, error) {
	results, err := uc.search.Search(ctx, SearchRequest{
		Query:           req.Query,
		Sources:         sources,
		Limit:           uc.cfg.CandidateLimit,
		MinSimilarity:   uc.cfg.MinSimilarity,
		PredictedTopics: req.PredictedTopics,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to gather documents", goerr.V("sources", sources))
	}

	items := make([]*model.ContextItem, len(results))
	for i, r := range results {
		doc := r.Document
		items[i] = &model.ContextItem{
			ID:             doc.ID.String(),
			Type:           doc.Source.ItemType(),
			Content:        doc.Content,
			RelevanceScore: r.Score,
			SourceID:       doc.Metadata.ParentID,
			Title:          doc.Metadata.Title,
			Embedding:      doc.Embedding,
			ConversationID: doc.Metadata.ConversationID,
			IsProtected:    doc.Metadata.IsProtected,
			LastAccessed:   doc.LastAccessedAt,
			Metadata: model.ContextItemMetadata{
				CanTruncate: true,
				MinTokens:   20,
			},
		}
	}
	return items, nil
}

func (uc *ContextUseCase) fileItems(ctx context.Context, req BuildRequest) ([]*model.ContextItem, error) {
	matches, err := uc.usage.FindRelevant(ctx, req.Query, uc.cfg.CandidateLimit, req.SessionID, uc.cfg.MinSimilarity)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to gather files")
	}

	items := make([]*model.ContextItem, 0, len(matches))
	for _, m := range matches {
		e := m.Entry
		if e.Content == "" {
			continue
		}
		items = append(items, &model.ContextItem{
			ID:             "usage:" + e.ID,
			Type:           types.ItemTypeFile,
			Content:        e.Content,
			RelevanceScore: min(1.0, m.Score()),
			SourceID:       e.ID,
			Title:          e.Filename,
			Embedding:      e.Embedding,
			AccessCount:    e.AccessCount,
			LastAccessed:   e.LastAccessed,
			Metadata: model.ContextItemMetadata{
				CanTruncate: true,
				MinTokens:   50,
			},
		})
	}
	return items, nil
}

// rescore replaces each candidate's relevance with the full multi-signal score
func (uc *ContextUseCase) rescore(ctx context.Context, items []*model.ContextItem, req BuildRequest) error {
	if len(items) == 0 || req.Query == "" {
		return nil
	}

	scores, err := uc.scorer.ScoreAll(ctx, items, req.Query, &scoring.Context{
		ConversationID:            req.SessionID,
		ActiveItemIDs:             req.ActiveItemIDs,
		PreferredTypes:            req.PreferredTypes,
		Keywords:                  text.Keywords(req.Query),
		PredictedTopics:           req.PredictedTopics,
		CompressionAggressiveness: uc.optimizer.Config().CompressionAggressiveness,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to score candidates")
	}
	for i, s := range scores {
		items[i].RelevanceScore = s.Total
	}
	return nil
}

func (uc *ContextUseCase) recordFileAccess(ctx context.Context, sessionID string, included []*model.ContextItem) {
	if sessionID == "" {
		return
	}
	now := uc.now()
	for _, item := range included {
		if item.Type != types.ItemTypeFile || !strings.HasPrefix(item.ID, "usage:") {
			continue
		}
		if _, err := uc.usage.RecordAccess(ctx, item.SourceID, sessionID, now, "context build"); err != nil {
			logging.From(ctx).Warn("failed to record file access", "entry_id", item.SourceID, "error", err)
		}
	}
}

func render(items []*model.ContextItem) string {
	var parts []string
	for _, s := range sections {
		var bodies []string
		for _, item := range items {
			if !slices.Contains(s.types, item.Type) {
				continue
			}
			body := item.Content
			if item.Title != "" {
				body = "### " + item.Title + "\n" + body
			}
			bodies = append(bodies, body)
		}
		if len(bodies) > 0 {
			parts = append(parts, "## "+s.title+"\n\n"+strings.Join(bodies, "\n\n"))
		}
	}
	return strings.Join(parts, "\n\n")
}

// FormattedTokens estimates the rendered context including section headers
func FormattedTokens(built *model.BuiltContext) int {
	return token.Count(built.Formatted)
}
