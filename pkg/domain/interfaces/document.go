package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
)

// DocumentRepository is the vector store. It owns persisted documents and serialises writes.
type DocumentRepository interface {
	// Put inserts or replaces a document by ID. The embedding must already be set.
	Put(ctx context.Context, doc *model.Document) error

	// Get retrieves a document by ID
	Get(ctx context.Context, id model.DocumentID) (*model.Document, error)

	// Delete removes a document by ID
	Delete(ctx context.Context, id model.DocumentID) error

	// DeleteByConversation removes every document of a conversation and returns how many were removed
	DeleteByConversation(ctx context.Context, conversationID string) (int, error)

	// ListBySource returns up to limit documents of a source, newest first. limit <= 0 means no limit.
	ListBySource(ctx context.Context, source types.Source, limit int) ([]*model.Document, error)

	// List returns every stored document
	List(ctx context.Context) ([]*model.Document, error)

	// Search ranks documents by cosine similarity to query, descending.
	// Documents below filter.MinSimilarity are dropped. An empty result is not an error.
	Search(ctx context.Context, query []float32, filter model.SearchFilter) ([]*model.ScoredDocument, error)

	// Count returns the number of stored documents
	Count(ctx context.Context) (int, error)

	// Touch updates the last accessed time of a document
	Touch(ctx context.Context, id model.DocumentID, at time.Time) error
}
