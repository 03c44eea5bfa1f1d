package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/repository/scan"
)

type documentRepository struct {
	mu     sync.RWMutex
	closed *atomic.Bool
	docs   map[model.DocumentID]*model.Document
}

func newDocumentRepository(closed *atomic.Bool) *documentRepository {
	return &documentRepository{
		closed: closed,
		docs:   make(map[model.DocumentID]*model.Document),
	}
}

func (r *documentRepository) check() error {
	if r.closed.Load() {
		return goerr.Wrap(model.ErrNotInitialized, "memory repository is closed")
	}
	return nil
}

func (r *documentRepository) Put(ctx context.Context, doc *model.Document) error {
	if err := r.check(); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return goerr.Wrap(err, "invalid document", goerr.V("id", doc.ID))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := doc.Copy()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.LastAccessedAt.IsZero() {
		stored.LastAccessedAt = stored.CreatedAt
	}
	r.docs[stored.ID] = stored
	return nil
}

func (r *documentRepository) Get(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, exists := r.docs[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "document not found", goerr.V("id", id))
	}
	return doc.Copy(), nil
}

func (r *documentRepository) Delete(ctx context.Context, id model.DocumentID) error {
	if err := r.check(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.docs[id]; !exists {
		return goerr.Wrap(model.ErrNotFound, "document not found", goerr.V("id", id))
	}
	delete(r.docs, id)
	return nil
}

func (r *documentRepository) DeleteByConversation(ctx context.Context, conversationID string) (int, error) {
	if err := r.check(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, doc := range r.docs {
		if doc.Metadata.ConversationID == conversationID {
			delete(r.docs, id)
			n++
		}
	}
	return n, nil
}

func (r *documentRepository) ListBySource(ctx context.Context, source types.Source, limit int) ([]*model.Document, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Document, 0)
	for _, doc := range r.docs {
		if doc.Source == source {
			result = append(result, doc.Copy())
		}
	}
	sortNewestFirst(result)

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *documentRepository) List(ctx context.Context) ([]*model.Document, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		result = append(result, doc.Copy())
	}
	sortNewestFirst(result)
	return result, nil
}

func (r *documentRepository) Search(ctx context.Context, query []float32, filter model.SearchFilter) ([]*model.ScoredDocument, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ranker := scan.NewRanker(query, filter)
	for _, doc := range r.docs {
		ranker.Add(doc)
	}

	results := ranker.Results()
	for _, res := range results {
		res.Document = res.Document.Copy()
	}
	return results, nil
}

func (r *documentRepository) Count(ctx context.Context) (int, error) {
	if err := r.check(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs), nil
}

func (r *documentRepository) Touch(ctx context.Context, id model.DocumentID, at time.Time) error {
	if err := r.check(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, exists := r.docs[id]
	if !exists {
		return goerr.Wrap(model.ErrNotFound, "document not found", goerr.V("id", id))
	}
	doc.LastAccessedAt = at
	return nil
}

func sortNewestFirst(docs []*model.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}
