package scoring

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/service/embedding"
	"github.com/secmon-lab/recall/pkg/service/text"
)

const (
	recencyHalfLifeHours = 24.0
	frequencySaturation  = 20.0

	// DefaultCacheSize is the number of item embeddings memoised by the scorer
	DefaultCacheSize = 4096
)

// CoAccessSource reports which entries are used together with an entry
type CoAccessSource interface {
	CoAccessed(ctx context.Context, id string, limit int) ([]*model.CoAccess, error)
}

// Context carries the situation an item is scored in
type Context struct {
	ConversationID            string
	Workspace                 string
	ActiveItemIDs             []string
	PreferredTypes            []types.ItemType
	Keywords                  []string
	PredictedTopics           []string
	SecuritySensitive         bool
	CompressionAggressiveness float64
}

// Scorer combines semantic, recency, frequency, co-access, prediction,
// type-match and contextual signals into one weighted relevance score.
type Scorer struct {
	embedder embedding.Embedder
	weights  Weights
	coAccess CoAccessSource
	cache    *lru.Cache[uint64, []float32]
	now      func() time.Time

	coAccessLimit int
}

type Option func(*Scorer)

func WithWeights(w Weights) Option {
	return func(s *Scorer) {
		s.weights = w
	}
}

func WithCoAccessSource(src CoAccessSource) Option {
	return func(s *Scorer) {
		s.coAccess = src
	}
}

// WithClock replaces time.Now for recency computation
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		s.now = now
	}
}

func WithCacheSize(size int) Option {
	return func(s *Scorer) {
		if size > 0 {
			cache, err := lru.New[uint64, []float32](size)
			if err == nil {
				s.cache = cache
			}
		}
	}
}

func New(embedder embedding.Embedder, opts ...Option) *Scorer {
	cache, _ := lru.New[uint64, []float32](DefaultCacheSize)
	s := &Scorer{
		embedder:      embedder,
		weights:       DefaultWeights(),
		cache:         cache,
		now:           time.Now,
		coAccessLimit: 50,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Weights returns the configured weights
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score computes the relevance of item to query
func (s *Scorer) Score(ctx context.Context, item *model.ContextItem, query string, sc *Context) (*model.RelevanceScore, error) {
	scores, err := s.ScoreAll(ctx, []*model.ContextItem{item}, query, sc)
	if err != nil {
		return nil, err
	}
	return scores[0], nil
}

// ScoreAll scores items against one query. The query is embedded once and
// co-access lookups are shared across items.
func (s *Scorer) ScoreAll(ctx context.Context, items []*model.ContextItem, query string, sc *Context) ([]*model.RelevanceScore, error) {
	if sc == nil {
		sc = &Context{}
	}

	queryVec := s.embedder.Embed(query)
	coAccess, err := s.loadCoAccess(ctx, sc.ActiveItemIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	scores := make([]*model.RelevanceScore, len(items))
	for i, item := range items {
		scores[i] = s.score(item, queryVec, sc, coAccess, now)
	}
	return scores, nil
}

// IsLikelyRelevant is a cheap semantic-only pre-filter run before full scoring
func (s *Scorer) IsLikelyRelevant(item *model.ContextItem, query string, threshold float64) bool {
	return embedding.CosineSimilarity(s.embedder.Embed(query), s.itemEmbedding(item)) >= threshold
}

// Prefilter keeps the items passing IsLikelyRelevant, embedding the query once
func (s *Scorer) Prefilter(items []*model.ContextItem, query string, threshold float64) []*model.ContextItem {
	queryVec := s.embedder.Embed(query)
	kept := make([]*model.ContextItem, 0, len(items))
	for _, item := range items {
		if embedding.CosineSimilarity(queryVec, s.itemEmbedding(item)) >= threshold {
			kept = append(kept, item)
		}
	}
	return kept
}

func (s *Scorer) score(item *model.ContextItem, queryVec []float32, sc *Context, coAccess []map[string]float64, now time.Time) *model.RelevanceScore {
	r := &model.RelevanceScore{
		Semantic:   max(0, embedding.CosineSimilarity(queryVec, s.itemEmbedding(item))),
		Recency:    s.recency(item, now),
		Frequency:  FrequencyScore(item.AccessCount),
		CoAccess:   coAccessScore(item, coAccess),
		Prediction: PredictionScore(item.Content, sc.PredictedTopics, sc.CompressionAggressiveness),
		TypeMatch:  TypeMatchScore(item.Type, sc.PreferredTypes),
		Contextual: contextualScore(item, sc),
	}

	w := s.weights
	total := r.Semantic*w.Semantic +
		r.Recency*w.Recency +
		r.Frequency*w.Frequency +
		r.CoAccess*w.CoAccess +
		r.Prediction*w.Prediction +
		r.TypeMatch*w.TypeMatch +
		r.Contextual*w.Contextual
	r.Total = clamp01(total)
	r.Explanation = explain(r)
	return r
}

func (s *Scorer) itemEmbedding(item *model.ContextItem) []float32 {
	if len(item.Embedding) == s.embedder.Dimension() {
		return item.Embedding
	}

	key := cacheKey(item)
	if s.cache != nil {
		if vec, ok := s.cache.Get(key); ok {
			return vec
		}
	}
	vec := s.embedder.Embed(item.Content)
	if s.cache != nil {
		s.cache.Add(key, vec)
	}
	return vec
}

func cacheKey(item *model.ContextItem) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(item.ID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(item.Content))
	return h.Sum64()
}

func (s *Scorer) loadCoAccess(ctx context.Context, active []string) ([]map[string]float64, error) {
	if s.coAccess == nil || len(active) == 0 {
		return nil, nil
	}

	maps := make([]map[string]float64, 0, len(active))
	for _, id := range active {
		related, err := s.coAccess.CoAccessed(ctx, id, s.coAccessLimit)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load co-access", goerr.V("id", id))
		}
		m := make(map[string]float64, len(related))
		for _, c := range related {
			m[c.EntryID] = c.Score
		}
		maps = append(maps, m)
	}
	return maps, nil
}

func (s *Scorer) recency(item *model.ContextItem, now time.Time) float64 {
	if item.LastAccessed.IsZero() {
		return clamp01(item.RecencyScore)
	}
	return RecencyScore(now.Sub(item.LastAccessed).Hours())
}

// RecencyScore decays by half every 24 hours
func RecencyScore(hours float64) float64 {
	if hours < 0 {
		hours = 0
	}
	return math.Exp(-math.Ln2 / recencyHalfLifeHours * hours)
}

// FrequencyScore grows logarithmically and saturates near 20 accesses
func FrequencyScore(accessCount int) float64 {
	if accessCount <= 0 {
		return 0
	}
	return math.Min(1, math.Log(1+float64(accessCount))/math.Log(frequencySaturation))
}

func coAccessScore(item *model.ContextItem, coAccess []map[string]float64) float64 {
	var best float64
	for _, m := range coAccess {
		for _, id := range []string{item.SourceID, item.ID} {
			if id == "" {
				continue
			}
			if v, ok := m[id]; ok && v > best {
				best = v
			}
		}
	}
	return clamp01(best)
}

// PredictionScore rewards items mentioning a predicted topic and adds a bonus
// when compression is mild
func PredictionScore(content string, topics []string, aggressiveness float64) float64 {
	var score float64
	lower := strings.ToLower(content)
	for _, topic := range topics {
		if topic != "" && strings.Contains(lower, strings.ToLower(topic)) {
			score += 0.7
			break
		}
	}
	if aggressiveness < 0.3 {
		score += 0.3
	}
	return math.Min(1, score)
}

// TypeMatchScore compares an item type to the preferred types
func TypeMatchScore(t types.ItemType, preferred []types.ItemType) float64 {
	if len(preferred) == 0 {
		return 0.5
	}

	best := 0.2
	for _, p := range preferred {
		switch {
		case p == t:
			return 1.0
		case p.Category() == t.Category():
			best = max(best, 0.8)
		case strings.Contains(string(t), string(p)) || strings.Contains(string(p), string(t)):
			best = max(best, 0.7)
		}
	}
	return best
}

func contextualScore(item *model.ContextItem, sc *Context) float64 {
	var score float64
	if sc.ConversationID != "" && item.ConversationID == sc.ConversationID {
		score += 0.3
	}
	if sc.SecuritySensitive && item.IsProtected {
		score += 0.2
	}
	if len(sc.Keywords) > 0 {
		hits := text.CountMatches(item.Title+" "+item.Content, sc.Keywords)
		score += 0.5 * float64(hits) / float64(len(sc.Keywords))
	}
	return clamp01(score)
}

func explain(r *model.RelevanceScore) string {
	var parts []string
	switch {
	case r.Semantic >= 0.5:
		parts = append(parts, fmt.Sprintf("strong semantic match (%.2f)", r.Semantic))
	case r.Semantic >= 0.25:
		parts = append(parts, fmt.Sprintf("partial semantic match (%.2f)", r.Semantic))
	}
	if r.Recency >= 0.5 {
		parts = append(parts, "recently accessed")
	}
	if r.Frequency >= 0.5 {
		parts = append(parts, "frequently used")
	}
	if r.CoAccess >= 0.5 {
		parts = append(parts, "used together with active items")
	}
	if r.Prediction >= 0.7 {
		parts = append(parts, "matches predicted topic")
	}
	if r.TypeMatch >= 0.8 {
		parts = append(parts, "preferred type")
	}
	if r.Contextual >= 0.3 {
		parts = append(parts, "shares conversation context")
	}
	if len(parts) == 0 {
		parts = append(parts, "weak signals only")
	}
	return fmt.Sprintf("%s relevance (%.2f): %s", r.Tier(), r.Total, strings.Join(parts, ", "))
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
