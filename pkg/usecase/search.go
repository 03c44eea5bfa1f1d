package usecase

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/service/embedding"
	"github.com/secmon-lab/recall/pkg/service/text"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

const (
	recentBoost      = 0.05
	weekBoost        = 0.02
	topicBoost       = 0.05
	keywordBoostUnit = 0.05
	keywordBoostMax  = 5
)

// SearchConfig tunes indexing and search defaults
type SearchConfig struct {
	ChunkSize     int
	ChunkOverlap  int
	DefaultLimit  int
	MinSimilarity float64
}

// DefaultSearchConfig returns the built-in search settings
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		ChunkSize:     text.DefaultChunkSize,
		ChunkOverlap:  text.DefaultChunkOverlap,
		DefaultLimit:  10,
		MinSimilarity: 0.1,
	}
}

// SearchRequest is the input of Search and HybridSearch
type SearchRequest struct {
	Query           string
	Sources         []types.Source
	ConversationID  string
	Limit           int
	MinSimilarity   float64
	PredictedTopics []string
}

// IndexRequest describes content to add to the vector store.
// ID is generated when empty. Content longer than the chunk size is split
// and every chunk carries ID as its parent.
type IndexRequest struct {
	ID       model.DocumentID
	Content  string
	Source   types.Source
	Metadata model.DocumentMetadata
}

// SearchUseCase handles semantic search over the vector store
type SearchUseCase struct {
	repo     interfaces.Repository
	embedder embedding.Embedder
	cfg      SearchConfig
	now      func() time.Time
}

// NewSearchUseCase creates a new SearchUseCase instance
func NewSearchUseCase(repo interfaces.Repository, embedder embedding.Embedder, cfg SearchConfig, now func() time.Time) *SearchUseCase {
	if now == nil {
		now = time.Now
	}
	return &SearchUseCase{
		repo:     repo,
		embedder: embedder,
		cfg:      cfg,
		now:      now,
	}
}

// Config returns the active search configuration
func (uc *SearchUseCase) Config() SearchConfig {
	return uc.cfg
}

// Search ranks stored documents by similarity to the query and applies the recency and
// topic boosts. No match above MinSimilarity yields an empty slice.
func (uc *SearchUseCase) Search(ctx context.Context, req SearchRequest) ([]*model.SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, goerr.Wrap(ErrEmptyQuery, "search requires a query")
	}
	limit := uc.limit(req.Limit)

	results, err := uc.search(ctx, uc.embedder.Embed(req.Query), req, limit)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		uc.boost(r, req.PredictedTopics)
	}
	sortResults(results)
	return results, nil
}

// HybridSearch runs Search with twice the limit, then boosts documents containing
// literal query keywords and cuts back to the limit
func (uc *SearchUseCase) HybridSearch(ctx context.Context, req SearchRequest) ([]*model.SearchResult, error) {
	limit := uc.limit(req.Limit)
	wide := req
	wide.Limit = limit * 2

	results, err := uc.Search(ctx, wide)
	if err != nil {
		return nil, err
	}

	keywords := text.Keywords(req.Query)
	if len(keywords) > 0 {
		for _, r := range results {
			r.KeywordHits = text.CountMatches(r.Document.Content, keywords)
			r.KeywordBoost = float64(min(r.KeywordHits, keywordBoostMax)) * keywordBoostUnit
			r.Score = min(1.0, r.Score+r.KeywordBoost)
		}
		sortResults(results)
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// FindSimilar returns the nearest neighbours of a stored document, excluding itself
func (uc *SearchUseCase) FindSimilar(ctx context.Context, id model.DocumentID, limit int) ([]*model.SearchResult, error) {
	doc, err := uc.repo.Document().Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, goerr.Wrap(ErrDocumentNotFound, "failed to find similar documents", goerr.V(DocumentIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get document", goerr.V(DocumentIDKey, id))
	}

	limit = uc.limit(limit)
	results, err := uc.search(ctx, doc.Embedding, SearchRequest{MinSimilarity: uc.cfg.MinSimilarity}, limit+1)
	if err != nil {
		return nil, err
	}

	similar := make([]*model.SearchResult, 0, limit)
	for _, r := range results {
		if r.Document.ID == id {
			continue
		}
		similar = append(similar, r)
		if len(similar) == limit {
			break
		}
	}
	return similar, nil
}

// Index embeds and stores content, chunking it when it exceeds the chunk size.
// Indexing an existing ID replaces the document and all of its chunks. A failed write
// restores the previous state. It returns the stored documents in chunk order.
func (uc *SearchUseCase) Index(ctx context.Context, req IndexRequest) ([]*model.Document, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, goerr.Wrap(ErrEmptyContent, "nothing to index")
	}
	if req.Source == "" {
		req.Source = types.SourceNote
	}
	if !req.Source.IsValid() {
		return nil, goerr.Wrap(ErrInvalidSource, "failed to index document", goerr.V("source", req.Source))
	}
	replacing := req.ID != ""
	if !replacing {
		req.ID = model.NewDocumentID()
	}

	chunks := text.Split(req.Content, uc.cfg.ChunkSize, uc.cfg.ChunkOverlap)
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	vectors, err := embedding.EmbedBatch(ctx, uc.embedder, contents)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed document", goerr.V(DocumentIDKey, req.ID))
	}

	now := uc.now()
	docs := make([]*model.Document, len(chunks))
	for i, c := range chunks {
		meta := req.Metadata
		meta.Tags = slices.Clone(req.Metadata.Tags)
		meta.ChunkIndex = c.Index
		meta.TotalChunks = c.Total

		id := req.ID
		if len(chunks) > 1 {
			id = model.ChunkID(req.ID, c.Index)
			meta.ParentID = req.ID.String()
		}

		docs[i] = &model.Document{
			ID:             id,
			Content:        c.Content,
			Embedding:      vectors[i],
			Source:         req.Source,
			Metadata:       meta,
			CreatedAt:      now,
			LastAccessedAt: now,
		}
	}

	var previous []*model.Document
	if replacing {
		if previous, err = uc.family(ctx, req.ID); err != nil {
			return nil, err
		}
	}

	for i, doc := range docs {
		if err := uc.repo.Document().Put(ctx, doc); err != nil {
			uc.rollback(ctx, docs[:i], previous)
			return nil, goerr.Wrap(err, "failed to store document", goerr.V(DocumentIDKey, doc.ID))
		}
	}

	current := make(map[model.DocumentID]struct{}, len(docs))
	for _, doc := range docs {
		current[doc.ID] = struct{}{}
	}
	for _, old := range previous {
		if _, ok := current[old.ID]; ok {
			continue
		}
		if err := uc.repo.Document().Delete(ctx, old.ID); err != nil {
			return nil, goerr.Wrap(err, "failed to remove stale chunk", goerr.V(DocumentIDKey, old.ID))
		}
	}

	logging.From(ctx).Debug("document indexed",
		"id", req.ID,
		"source", req.Source,
		"chunks", len(docs),
	)
	return docs, nil
}

// family returns the document stored under id and every chunk whose parent it is
func (uc *SearchUseCase) family(ctx context.Context, id model.DocumentID) ([]*model.Document, error) {
	docs, err := uc.repo.Document().List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list documents")
	}
	return slices.DeleteFunc(docs, func(doc *model.Document) bool {
		return doc.ID != id && doc.Metadata.ParentID != id.String()
	}), nil
}

// rollback undoes the writes of a failed Index call: overwritten documents get their
// previous version back and new ones are removed.
func (uc *SearchUseCase) rollback(ctx context.Context, written, previous []*model.Document) {
	byID := make(map[model.DocumentID]*model.Document, len(previous))
	for _, doc := range previous {
		byID[doc.ID] = doc
	}

	logger := logging.From(ctx)
	for _, doc := range written {
		var err error
		if old, ok := byID[doc.ID]; ok {
			err = uc.repo.Document().Put(ctx, old)
		} else {
			err = uc.repo.Document().Delete(ctx, doc.ID)
		}
		if err != nil {
			logger.Warn("failed to roll back indexed chunk", "id", doc.ID, "error", err)
		}
	}
}

// Delete removes a document and every chunk whose parent it is.
// It returns the number of removed documents.
func (uc *SearchUseCase) Delete(ctx context.Context, id model.DocumentID) (int, error) {
	docs, err := uc.family(ctx, id)
	if err != nil {
		return 0, err
	}

	var deleted int
	for _, doc := range docs {
		if err := uc.repo.Document().Delete(ctx, doc.ID); err != nil {
			return deleted, goerr.Wrap(err, "failed to delete document", goerr.V(DocumentIDKey, doc.ID))
		}
		deleted++
	}
	if deleted == 0 {
		return 0, goerr.Wrap(ErrDocumentNotFound, "failed to delete document", goerr.V(DocumentIDKey, id))
	}
	return deleted, nil
}

// DeleteConversation removes every document of a conversation
func (uc *SearchUseCase) DeleteConversation(ctx context.Context, conversationID string) (int, error) {
	n, err := uc.repo.Document().DeleteByConversation(ctx, conversationID)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete conversation documents", goerr.V("conversation_id", conversationID))
	}
	return n, nil
}

// Reindex re-embeds every stored document with the current embedder
func (uc *SearchUseCase) Reindex(ctx context.Context) (int, error) {
	docs, err := uc.repo.Document().List(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list documents")
	}

	contents := make([]string, len(docs))
	for i, doc := range docs {
		contents[i] = doc.Content
	}
	vectors, err := embedding.EmbedBatch(ctx, uc.embedder, contents)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to embed documents")
	}

	for i, doc := range docs {
		doc.Embedding = vectors[i]
		if err := uc.repo.Document().Put(ctx, doc); err != nil {
			return i, goerr.Wrap(err, "failed to store document", goerr.V(DocumentIDKey, doc.ID))
		}
	}
	return len(docs), nil
}

func (uc *SearchUseCase) search(ctx context.Context, query []float32, req SearchRequest, limit int) ([]*model.SearchResult, error) {
	scored, err := uc.repo.Document().Search(ctx, query, model.SearchFilter{
		Limit:          limit,
		MinSimilarity:  req.MinSimilarity,
		Sources:        req.Sources,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search documents", goerr.V(QueryKey, req.Query))
	}

	results := make([]*model.SearchResult, len(scored))
	for i, s := range scored {
		results[i] = &model.SearchResult{
			Document:   s.Document,
			Similarity: s.Similarity,
			Score:      s.Similarity,
		}
	}
	return results, nil
}

func (uc *SearchUseCase) boost(r *model.SearchResult, topics []string) {
	last := r.Document.CreatedAt
	if r.Document.LastAccessedAt.After(last) {
		last = r.Document.LastAccessedAt
	}
	if !last.IsZero() {
		switch age := uc.now().Sub(last); {
		case age <= 24*time.Hour:
			r.RecencyBoost = recentBoost
		case age <= 7*24*time.Hour:
			r.RecencyBoost = weekBoost
		}
	}

	if len(topics) > 0 && text.CountMatches(r.Document.Content, topics) > 0 {
		r.TopicBoost = topicBoost
	}

	r.Score = min(1.0, r.Similarity+r.RecencyBoost+r.TopicBoost)
}

func (uc *SearchUseCase) limit(limit int) int {
	if limit > 0 {
		return limit
	}
	if uc.cfg.DefaultLimit > 0 {
		return uc.cfg.DefaultLimit
	}
	return 10
}

func sortResults(results []*model.SearchResult) {
	slices.SortStableFunc(results, func(a, b *model.SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Document.ID.String(), b.Document.ID.String())
	})
}
