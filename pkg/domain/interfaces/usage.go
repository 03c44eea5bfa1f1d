package interfaces

import (
	"context"

	"github.com/secmon-lab/recall/pkg/domain/model"
)

// UsageRepository persists usage entries and the rolling access log
type UsageRepository interface {
	// Upsert stores entry. If an entry with the same ID exists, entry is merged into it
	// and its access count is incremented. The stored entry is returned.
	Upsert(ctx context.Context, entry *model.UsageEntry) (*model.UsageEntry, error)

	// Put replaces an entry without merging
	Put(ctx context.Context, entry *model.UsageEntry) error

	// Get retrieves an entry by ID
	Get(ctx context.Context, id string) (*model.UsageEntry, error)

	// List returns every entry
	List(ctx context.Context) ([]*model.UsageEntry, error)

	// RecordAccess increments the access count of the entry, adds the conversation,
	// updates the last accessed time and appends to the access log.
	// The log is trimmed to model.AccessLogRetainEntries once it exceeds model.AccessLogMaxEntries.
	RecordAccess(ctx context.Context, log *model.AccessLog) (*model.UsageEntry, error)

	// ListAccessLogs returns up to limit access logs, newest first. limit <= 0 means no limit.
	ListAccessLogs(ctx context.Context, limit int) ([]*model.AccessLog, error)

	// CountAccessLogs returns the current size of the access log
	CountAccessLogs(ctx context.Context) (int, error)

	// Prune keeps the keep most recently accessed entries and deletes the rest.
	// It returns the number of deleted entries.
	Prune(ctx context.Context, keep int) (int, error)

	// Count returns the number of entries
	Count(ctx context.Context) (int, error)
}
