package model

import (
	"time"

	"github.com/secmon-lab/recall/pkg/domain/types"
)

// SearchFilter narrows a vector store search
type SearchFilter struct {
	Limit          int
	MinSimilarity  float64
	Sources        []types.Source
	ConversationID string
}

// ScoredDocument is a document paired with its cosine similarity to a query
type ScoredDocument struct {
	Document   *Document
	Similarity float64
}

// SearchResult is a ranked search hit after post-processing boosts
type SearchResult struct {
	Document     *Document
	Similarity   float64 // raw cosine similarity
	Score        float64 // similarity plus boosts, clamped to 1.0
	KeywordHits  int
	RecencyBoost float64
	TopicBoost   float64
	KeywordBoost float64
}

// OptimizationResult is the output of one optimizer pass
type OptimizationResult struct {
	Included    []*ContextItem
	Excluded    []*ContextItem
	TotalBudget int
	UsedBudget  int
	OverBudget  bool
	Emergency   bool
	Stages      []types.OptimizerStage
	Duration    time.Duration
}

// BuiltContext is the assembled context handed to a prompt
type BuiltContext struct {
	Formatted        string
	Included         []*ContextItem
	Excluded         []*ContextItem
	TotalTokens      int
	Budget           int
	Utilization      float64 // percentage of Budget
	TypeDistribution map[types.ItemType]int
	OverBudget       bool
}
