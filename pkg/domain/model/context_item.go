package model

import (
	"time"

	"github.com/secmon-lab/recall/pkg/domain/types"
)

// ContextItemMetadata controls how the optimizer may treat an item
type ContextItemMetadata struct {
	IsRequired  bool
	CanTruncate bool
	MinTokens   int
	MaxTokens   int // zero means unbounded
	Category    string
}

// ContextItem wraps any candidate for inclusion in an assembled context.
// It is created per optimization pass and never persisted.
type ContextItem struct {
	ID             string
	Type           types.ItemType
	Content        string
	TokenCount     int
	RelevanceScore float64
	RecencyScore   float64
	SourceID       string
	Title          string
	Embedding      []float32
	ConversationID string
	IsProtected    bool
	AccessCount    int
	LastAccessed   time.Time
	Metadata       ContextItemMetadata
	Truncated      bool
}

// Priority combines relevance, recency and type weight. Required items count double.
func (c *ContextItem) Priority() float64 {
	p := c.RelevanceScore*0.5 + c.RecencyScore*0.2 + c.Type.Weight()*0.3
	if c.Metadata.IsRequired {
		p *= 2.0
	}
	return p
}

// Truncatable reports whether both the type and the item allow truncation
func (c *ContextItem) Truncatable() bool {
	return c.Type.CanTruncate() && c.Metadata.CanTruncate
}

// Clone returns a shallow copy suitable for replacing Content after truncation
func (c *ContextItem) Clone() *ContextItem {
	copied := *c
	return &copied
}
