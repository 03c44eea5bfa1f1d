package usecase

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/service/embedding"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

const maxRelevanceBoost = 0.5

// UsageUseCase maintains the cross-session usage index
type UsageUseCase struct {
	repo     interfaces.Repository
	embedder embedding.Embedder
	now      func() time.Time
}

// NewUsageUseCase creates a new UsageUseCase instance
func NewUsageUseCase(repo interfaces.Repository, embedder embedding.Embedder, now func() time.Time) *UsageUseCase {
	if now == nil {
		now = time.Now
	}
	return &UsageUseCase{
		repo:     repo,
		embedder: embedder,
		now:      now,
	}
}

// Index upserts an entry seen in a conversation. The entry is embedded from its
// content, or from query and filename when it has no content. An existing entry
// gains the conversation and one access.
func (uc *UsageUseCase) Index(ctx context.Context, entry *model.UsageEntry, conversationID, query string) (*model.UsageEntry, error) {
	e := entry.Copy()
	if e.ID == "" {
		e.ID = e.Filename
	}
	if e.ID == "" {
		return nil, goerr.New("usage entry requires an ID or filename")
	}

	if len(e.Embedding) != uc.embedder.Dimension() {
		e.Embedding = uc.embedder.Embed(embeddingText(e, query))
	}
	if e.ContentHash == "" && e.Content != "" {
		e.ContentHash = contentHash(e.Content)
	}

	now := uc.now()
	e.AddConversation(conversationID)
	e.AccessCount = max(e.AccessCount, 1)
	if e.LastAccessed.IsZero() {
		e.LastAccessed = now
	}
	if e.FirstIndexed.IsZero() {
		e.FirstIndexed = now
	}

	stored, err := uc.repo.Usage().Upsert(ctx, e)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to index usage entry", goerr.V(EntryIDKey, e.ID))
	}
	return stored, nil
}

// IndexFile reads a file and indexes it under its cleaned path
func (uc *UsageUseCase) IndexFile(ctx context.Context, path, conversationID string) (*model.UsageEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read file", goerr.V("path", path))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve path", goerr.V("path", path))
	}

	return uc.Index(ctx, &model.UsageEntry{
		ID:       abs,
		Filename: filepath.Base(abs),
		FileType: strings.TrimPrefix(filepath.Ext(abs), "."),
		Content:  string(data),
	}, conversationID, "")
}

// RecordAccess notes that an entry was used in a conversation
func (uc *UsageUseCase) RecordAccess(ctx context.Context, id, conversationID string, at time.Time, accessContext string) (*model.UsageEntry, error) {
	if at.IsZero() {
		at = uc.now()
	}
	entry, err := uc.repo.Usage().RecordAccess(ctx, &model.AccessLog{
		EntryID:        id,
		ConversationID: conversationID,
		Timestamp:      at,
		Context:        accessContext,
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, goerr.Wrap(ErrUsageEntryNotFound, "failed to record access", goerr.V(EntryIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to record access", goerr.V(EntryIDKey, id))
	}
	return entry, nil
}

// FindRelevant ranks entries by similarity to query. Entries seen only in
// excludeConversation are skipped, so a conversation is not fed its own files.
func (uc *UsageUseCase) FindRelevant(ctx context.Context, query string, limit int, excludeConversation string, minSimilarity float64) ([]*model.UsageMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, goerr.Wrap(ErrEmptyQuery, "usage lookup requires a query")
	}

	entries, err := uc.repo.Usage().List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list usage entries")
	}

	queryVec := uc.embedder.Embed(query)
	now := uc.now()
	matches := make([]*model.UsageMatch, 0)
	for _, e := range entries {
		if excludeConversation != "" && len(e.ConversationIDs) == 1 && e.ConversationIDs[0] == excludeConversation {
			continue
		}
		sim := embedding.CosineSimilarity(queryVec, e.Embedding)
		if sim < minSimilarity {
			continue
		}
		matches = append(matches, &model.UsageMatch{
			Entry:          e,
			Similarity:     sim,
			RelevanceBoost: RelevanceBoost(e, now),
		})
	}

	slices.SortFunc(matches, func(a, b *model.UsageMatch) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return strings.Compare(a.Entry.ID, b.Entry.ID)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// RelevanceBoost rewards recent, frequent and widely shared entries. It is capped at 0.5.
func RelevanceBoost(e *model.UsageEntry, now time.Time) float64 {
	var boost float64

	if !e.LastAccessed.IsZero() {
		switch hours := now.Sub(e.LastAccessed).Hours(); {
		case hours <= 24:
			boost += 0.2
		case hours <= 168:
			boost += 0.1
		}
	}

	switch {
	case e.AccessCount >= 10:
		boost += 0.15
	case e.AccessCount >= 5:
		boost += 0.1
	case e.AccessCount >= 2:
		boost += 0.05
	}

	switch n := len(e.ConversationIDs); {
	case n >= 5:
		boost += 0.15
	case n >= 2:
		boost += 0.1
	}

	return min(boost, maxRelevanceBoost)
}

// CoAccessed returns entries sharing conversations with id, scored by shared
// conversations divided by the conversations of id
func (uc *UsageUseCase) CoAccessed(ctx context.Context, id string, limit int) ([]*model.CoAccess, error) {
	target, err := uc.repo.Usage().Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return []*model.CoAccess{}, nil
		}
		return nil, goerr.Wrap(err, "failed to get usage entry", goerr.V(EntryIDKey, id))
	}
	if len(target.ConversationIDs) == 0 {
		return []*model.CoAccess{}, nil
	}

	entries, err := uc.repo.Usage().List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list usage entries")
	}

	total := float64(len(target.ConversationIDs))
	related := make([]*model.CoAccess, 0)
	for _, e := range entries {
		if e.ID == id {
			continue
		}
		var shared int
		for _, conv := range e.ConversationIDs {
			if target.HasConversation(conv) {
				shared++
			}
		}
		if shared == 0 {
			continue
		}
		related = append(related, &model.CoAccess{
			EntryID: e.ID,
			Count:   shared,
			Score:   float64(shared) / total,
		})
	}

	slices.SortFunc(related, func(a, b *model.CoAccess) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.EntryID, b.EntryID)
	})
	if limit > 0 && len(related) > limit {
		related = related[:limit]
	}
	return related, nil
}

// Prune keeps the keep most recently accessed entries
func (uc *UsageUseCase) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, goerr.New("keep count must not be negative", goerr.V("keep", keep))
	}
	n, err := uc.repo.Usage().Prune(ctx, keep)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to prune usage entries", goerr.V("keep", keep))
	}
	if n > 0 {
		logging.From(ctx).Info("usage entries pruned", "pruned", n, "kept", keep)
	}
	return n, nil
}

// Rebuild re-embeds every entry. Running it again produces the same result.
func (uc *UsageUseCase) Rebuild(ctx context.Context) (int, error) {
	entries, err := uc.repo.Usage().List(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list usage entries")
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = embeddingText(e, "")
	}
	vectors, err := embedding.EmbedBatch(ctx, uc.embedder, texts)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to embed usage entries")
	}

	for i, e := range entries {
		e.Embedding = vectors[i]
		if err := uc.repo.Usage().Put(ctx, e); err != nil {
			return i, goerr.Wrap(err, "failed to store usage entry", goerr.V(EntryIDKey, e.ID))
		}
	}
	return len(entries), nil
}

// Stats reports the size of the usage index
func (uc *UsageUseCase) Stats(ctx context.Context) (*model.UsageStats, error) {
	entries, err := uc.repo.Usage().Count(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count usage entries")
	}
	logs, err := uc.repo.Usage().CountAccessLogs(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count access logs")
	}
	return &model.UsageStats{Entries: entries, AccessLogs: logs}, nil
}

func embeddingText(e *model.UsageEntry, query string) string {
	if e.Content != "" {
		return e.Content
	}
	return strings.TrimSpace(query + " " + e.Filename)
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
