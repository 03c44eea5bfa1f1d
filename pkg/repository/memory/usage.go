package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
)

type usageRepository struct {
	mu      sync.RWMutex
	closed  *atomic.Bool
	entries map[string]*model.UsageEntry
	logs    []*model.AccessLog
}

func newUsageRepository(closed *atomic.Bool) *usageRepository {
	return &usageRepository{
		closed:  closed,
		entries: make(map[string]*model.UsageEntry),
	}
}

func (r *usageRepository) check() error {
	if r.closed.Load() {
		return goerr.Wrap(model.ErrNotInitialized, "memory repository is closed")
	}
	return nil
}

func (r *usageRepository) Upsert(ctx context.Context, entry *model.UsageEntry) (*model.UsageEntry, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if entry.ID == "" {
		return nil, goerr.New("usage entry ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.entries[entry.ID]
	if !exists {
		stored := entry.Copy()
		if stored.FirstIndexed.IsZero() {
			stored.FirstIndexed = time.Now().UTC()
		}
		r.entries[stored.ID] = stored
		return stored.Copy(), nil
	}

	count := existing.AccessCount
	existing.Merge(entry)
	existing.AccessCount = max(count+1, existing.AccessCount)
	return existing.Copy(), nil
}

func (r *usageRepository) Put(ctx context.Context, entry *model.UsageEntry) error {
	if err := r.check(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.ID] = entry.Copy()
	return nil
}

func (r *usageRepository) Get(ctx context.Context, id string) (*model.UsageEntry, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "usage entry not found", goerr.V("id", id))
	}
	return entry.Copy(), nil
}

func (r *usageRepository) List(ctx context.Context) ([]*model.UsageEntry, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.UsageEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		result = append(result, entry.Copy())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *usageRepository) RecordAccess(ctx context.Context, log *model.AccessLog) (*model.UsageEntry, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[log.EntryID]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "usage entry not found", goerr.V("id", log.EntryID))
	}

	entry.AccessCount++
	entry.AddConversation(log.ConversationID)
	if log.Timestamp.After(entry.LastAccessed) {
		entry.LastAccessed = log.Timestamp
	}

	copied := *log
	r.logs = append(r.logs, &copied)
	if len(r.logs) > model.AccessLogMaxEntries {
		r.logs = append([]*model.AccessLog(nil), r.logs[len(r.logs)-model.AccessLogRetainEntries:]...)
	}

	return entry.Copy(), nil
}

func (r *usageRepository) ListAccessLogs(ctx context.Context, limit int) ([]*model.AccessLog, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.AccessLog, 0, len(r.logs))
	for i := len(r.logs) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		copied := *r.logs[i]
		result = append(result, &copied)
	}
	return result, nil
}

func (r *usageRepository) CountAccessLogs(ctx context.Context) (int, error) {
	if err := r.check(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.logs), nil
}

func (r *usageRepository) Prune(ctx context.Context, keep int) (int, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) <= keep {
		return 0, nil
	}

	ordered := make([]*model.UsageEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].LastAccessed.Equal(ordered[j].LastAccessed) {
			return ordered[i].LastAccessed.After(ordered[j].LastAccessed)
		}
		return ordered[i].ID < ordered[j].ID
	})

	pruned := 0
	for _, entry := range ordered[keep:] {
		delete(r.entries, entry.ID)
		pruned++
	}
	return pruned, nil
}

func (r *usageRepository) Count(ctx context.Context) (int, error) {
	if err := r.check(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), nil
}
