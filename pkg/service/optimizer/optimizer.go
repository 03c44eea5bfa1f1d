package optimizer

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/service/embedding"
	"github.com/secmon-lab/recall/pkg/service/token"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

// Request is the input of one optimization pass
type Request struct {
	Items           []*model.ContextItem
	Query           string
	Budget          int
	PredictedTopics []string
}

// Optimizer selects context items under a token budget.
// It never mutates the items passed in; selected items are clones.
type Optimizer struct {
	cfg      Config
	embedder embedding.Embedder
}

type Option func(*Optimizer)

func WithConfig(cfg Config) Option {
	return func(o *Optimizer) {
		o.cfg = cfg
	}
}

func New(embedder embedding.Embedder, opts ...Option) *Optimizer {
	o := &Optimizer{
		cfg:      DefaultConfig(),
		embedder: embedder,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Optimizer) Config() Config {
	return o.cfg
}

type candidate struct {
	item  *model.ContextItem
	score float64
}

type pass struct {
	cfg       Config
	req       Request
	available int
	required  []*model.ContextItem
	optional  []*model.ContextItem
	scored    []candidate
	ledger    *model.TokenBudget
	result    *model.OptimizationResult
}

// Optimize runs separate, check-required, then either emergency-truncate or
// score-optional, greedy-select and apply-type-caps. UsedBudget never exceeds
// TotalBudget unless Emergency is set, and OverBudget reports when it does.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (*model.OptimizationResult, error) {
	if req.Budget < 0 {
		return nil, goerr.New("budget must not be negative", goerr.V("budget", req.Budget))
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid optimizer config")
	}

	start := time.Now()
	p := &pass{
		cfg:       o.cfg,
		req:       req,
		available: max(0, req.Budget-o.cfg.Reserve),
		ledger:    model.NewTokenBudget(max(0, req.Budget-o.cfg.Reserve)),
		result: &model.OptimizationResult{
			TotalBudget: req.Budget,
			Included:    []*model.ContextItem{},
			Excluded:    []*model.ContextItem{},
		},
	}

	p.separate()
	if p.checkRequired() {
		p.emergencyTruncate()
	} else {
		o.scoreOptional(p)
		p.greedySelect()
		p.applyTypeCaps()
	}
	p.enter(types.StageDone)

	r := p.result
	r.Duration = time.Since(start)
	r.OverBudget = r.UsedBudget > r.TotalBudget

	logging.From(ctx).Debug("context optimized",
		"budget", r.TotalBudget,
		"used", r.UsedBudget,
		"included", len(r.Included),
		"excluded", len(r.Excluded),
		"emergency", r.Emergency,
	)
	return r, nil
}

func (p *pass) enter(stage types.OptimizerStage) {
	p.result.Stages = append(p.result.Stages, stage)
}

func (p *pass) separate() {
	p.enter(types.StageSeparate)
	for _, item := range p.req.Items {
		if item == nil {
			continue
		}
		c := item.Clone()
		if c.TokenCount <= 0 {
			c.TokenCount = token.Count(c.Content)
		}
		if c.Metadata.IsRequired {
			p.required = append(p.required, c)
		} else {
			p.optional = append(p.optional, c)
		}
	}
}

// checkRequired reports whether required items alone overflow the selectable budget
func (p *pass) checkRequired() bool {
	p.enter(types.StageCheckRequired)
	var total int
	for _, item := range p.required {
		total += item.TokenCount
	}
	return total > p.available
}

// emergencyTruncate cuts every truncatable required item to an even share of the
// selectable budget. Non-truncatable items are kept whole and all optional
// items are dropped.
func (p *pass) emergencyTruncate() {
	p.enter(types.StageEmergencyTruncate)
	p.result.Emergency = true

	share := p.available / len(p.required)
	for _, item := range p.required {
		if item.Truncatable() && item.TokenCount > share {
			truncate(item, max(share, item.Metadata.MinTokens))
		}
		p.include(item)
	}
	p.result.Excluded = append(p.result.Excluded, p.optional...)
}

func (o *Optimizer) scoreOptional(p *pass) {
	p.enter(types.StageScoreOptional)
	if len(p.optional) == 0 {
		return
	}

	var queryVec []float32
	if p.req.Query != "" {
		queryVec = o.embedder.Embed(p.req.Query)
	}

	p.scored = make([]candidate, 0, len(p.optional))
	for _, item := range p.optional {
		p.scored = append(p.scored, candidate{item: item, score: o.score(item, queryVec, p.req.PredictedTopics)})
	}
	slices.SortStableFunc(p.scored, func(a, b candidate) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return strings.Compare(a.item.ID, b.item.ID)
		}
	})
}

func (o *Optimizer) score(item *model.ContextItem, queryVec []float32, topics []string) float64 {
	var semantic float64
	if queryVec != nil {
		vec := item.Embedding
		if len(vec) != len(queryVec) {
			vec = o.embedder.Embed(item.Content)
		}
		semantic = max(0, embedding.CosineSimilarity(queryVec, vec))
	}

	score := item.Priority()*o.cfg.PriorityWeight + semantic*o.cfg.SemanticWeight
	lower := strings.ToLower(item.Content)
	for _, topic := range topics {
		if topic != "" && strings.Contains(lower, strings.ToLower(topic)) {
			score += o.cfg.PredictionBoost
			break
		}
	}
	if item.Truncatable() {
		score *= 1 - 0.3*o.cfg.CompressionAggressiveness
	}
	return score
}

func (p *pass) greedySelect() {
	p.enter(types.StageGreedySelect)
	for _, item := range p.required {
		p.ledger.Allocate(item.TokenCount, category(item))
		p.include(item)
	}

	kept := p.scored[:0]
	for _, c := range p.scored {
		item := c.item
		canTruncate := p.cfg.AllowTruncation && item.Truncatable()

		if limit := item.Metadata.MaxTokens; limit > 0 && item.TokenCount > limit && canTruncate {
			truncate(item, limit)
		}

		if !p.ledger.Allocate(item.TokenCount, category(item)) {
			remaining := p.ledger.Remaining()
			if !canTruncate || remaining <= item.Metadata.MinTokens {
				p.result.Excluded = append(p.result.Excluded, item)
				continue
			}
			truncate(item, remaining)
			if item.Content == "" || !p.ledger.Allocate(item.TokenCount, category(item)) {
				p.result.Excluded = append(p.result.Excluded, item)
				continue
			}
		}

		p.include(item)
		kept = append(kept, c)
	}
	p.scored = kept
}

// applyTypeCaps walks optional items in score order and drops those that push
// their type past its share of the total budget
func (p *pass) applyTypeCaps() {
	p.enter(types.StageApplyTypeCaps)
	if len(p.cfg.TypeCaps) == 0 || len(p.scored) == 0 {
		return
	}

	dropped := make(map[*model.ContextItem]bool)
	running := make(map[types.ItemType]int)
	for _, c := range p.scored {
		frac, ok := p.cfg.TypeCaps[c.item.Type]
		if !ok {
			continue
		}
		limit := int(frac * float64(p.result.TotalBudget))
		if running[c.item.Type]+c.item.TokenCount > limit {
			dropped[c.item] = true
			continue
		}
		running[c.item.Type] += c.item.TokenCount
	}
	if len(dropped) == 0 {
		return
	}

	included := p.result.Included[:0]
	for _, item := range p.result.Included {
		if dropped[item] {
			p.ledger.Release(item.TokenCount, category(item))
			p.result.UsedBudget -= item.TokenCount
			p.result.Excluded = append(p.result.Excluded, item)
			continue
		}
		included = append(included, item)
	}
	p.result.Included = included
}

func (p *pass) include(item *model.ContextItem) {
	p.result.Included = append(p.result.Included, item)
	p.result.UsedBudget += item.TokenCount
}

func category(item *model.ContextItem) string {
	if item.Metadata.Category != "" {
		return item.Metadata.Category
	}
	return item.Type.Category()
}

func truncate(item *model.ContextItem, budget int) {
	cut := token.TruncateToFit(item.Content, budget, true)
	if cut == item.Content {
		return
	}
	item.Content = cut
	item.TokenCount = token.Count(cut)
	item.Truncated = true
}
