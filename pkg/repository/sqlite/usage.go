package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

type usageRepository struct {
	store *SQLite
}

const usageColumns = `id, filename, file_type, content, embedding, conversation_ids, access_count, last_accessed, first_indexed, content_hash`

func (r *usageRepository) Upsert(ctx context.Context, entry *model.UsageEntry) (*model.UsageEntry, error) {
	if entry.ID == "" {
		return nil, goerr.New("usage entry ID is required")
	}

	var stored *model.UsageEntry
	err := r.store.withTx(ctx, model.ErrInsertFailed, func(tx *sql.Tx) error {
		existing, err := scanUsage(tx.QueryRowContext(ctx, `SELECT `+usageColumns+` FROM usage_entries WHERE id = ?`, entry.ID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			stored = entry.Copy()
			if stored.FirstIndexed.IsZero() {
				stored.FirstIndexed = time.Now().UTC()
			}
		case err != nil:
			return wrapErr(model.ErrQueryFailed, err, "failed to load usage entry")
		default:
			count := existing.AccessCount
			existing.Merge(entry)
			existing.AccessCount = max(count+1, existing.AccessCount)
			stored = existing
		}
		return writeUsage(ctx, tx, stored)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upsert usage entry", goerr.V("id", entry.ID))
	}
	return stored, nil
}

func (r *usageRepository) Put(ctx context.Context, entry *model.UsageEntry) error {
	db, err := r.store.conn()
	if err != nil {
		return err
	}
	if err := writeUsage(ctx, db, entry); err != nil {
		return goerr.Wrap(err, "failed to put usage entry", goerr.V("id", entry.ID))
	}
	return nil
}

func (r *usageRepository) Get(ctx context.Context, id string) (*model.UsageEntry, error) {
	db, err := r.store.conn()
	if err != nil {
		return nil, err
	}

	entry, err := scanUsage(db.QueryRowContext(ctx, `SELECT `+usageColumns+` FROM usage_entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrNotFound, "usage entry not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, wrapErr(model.ErrQueryFailed, err, "failed to get usage entry", goerr.V("id", id))
	}
	return entry, nil
}

func (r *usageRepository) List(ctx context.Context) ([]*model.UsageEntry, error) {
	db, err := r.store.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT `+usageColumns+` FROM usage_entries ORDER BY id ASC`)
	if err != nil {
		return nil, wrapErr(model.ErrQueryFailed, err, "failed to list usage entries")
	}
	defer func() { _ = rows.Close() }()

	entries := make([]*model.UsageEntry, 0)
	for rows.Next() {
		entry, err := scanUsage(rows)
		if err != nil {
			logging.From(ctx).Warn("skipping malformed usage row", "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(model.ErrQueryFailed, err, "failed to iterate usage entries")
	}
	return entries, nil
}

func (r *usageRepository) RecordAccess(ctx context.Context, log *model.AccessLog) (*model.UsageEntry, error) {
	var updated *model.UsageEntry

	err := r.store.withTx(ctx, model.ErrInsertFailed, func(tx *sql.Tx) error {
		entry, err := scanUsage(tx.QueryRowContext(ctx, `SELECT `+usageColumns+` FROM usage_entries WHERE id = ?`, log.EntryID))
		if errors.Is(err, sql.ErrNoRows) {
			return goerr.Wrap(model.ErrNotFound, "usage entry not found", goerr.V("id", log.EntryID))
		}
		if err != nil {
			return wrapErr(model.ErrQueryFailed, err, "failed to load usage entry")
		}

		entry.AccessCount++
		entry.AddConversation(log.ConversationID)
		if log.Timestamp.After(entry.LastAccessed) {
			entry.LastAccessed = log.Timestamp
		}
		if err := writeUsage(ctx, tx, entry); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO access_logs (entry_id, conversation_id, timestamp, context) VALUES (?, ?, ?, ?)`,
			log.EntryID, log.ConversationID, toUnix(log.Timestamp), log.Context); err != nil {
			return wrapErr(model.ErrInsertFailed, err, "failed to append access log")
		}

		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_logs`).Scan(&n); err != nil {
			return wrapErr(model.ErrQueryFailed, err, "failed to count access logs")
		}
		if n > model.AccessLogMaxEntries {
			if _, err := tx.ExecContext(ctx, `
DELETE FROM access_logs WHERE seq < (
	SELECT MIN(seq) FROM (SELECT seq FROM access_logs ORDER BY seq DESC LIMIT ?)
)`, model.AccessLogRetainEntries); err != nil {
				return wrapErr(model.ErrDeleteFailed, err, "failed to trim access logs")
			}
		}

		updated = entry
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to record access", goerr.V("id", log.EntryID))
	}
	return updated, nil
}

func (r *usageRepository) ListAccessLogs(ctx context.Context, limit int) ([]*model.AccessLog, error) {
	db, err := r.store.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx,
		`SELECT entry_id, conversation_id, timestamp, context FROM access_logs ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrapErr(model.ErrQueryFailed, err, "failed to list access logs")
	}
	defer func() { _ = rows.Close() }()

	logs := make([]*model.AccessLog, 0)
	for rows.Next() {
		var (
			l  model.AccessLog
			ts int64
		)
		if err := rows.Scan(&l.EntryID, &l.ConversationID, &ts, &l.Context); err != nil {
			logging.From(ctx).Warn("skipping malformed access log row", "error", err)
			continue
		}
		l.Timestamp = fromUnix(ts)
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(model.ErrQueryFailed, err, "failed to iterate access logs")
	}
	return logs, nil
}

func (r *usageRepository) CountAccessLogs(ctx context.Context) (int, error) {
	db, err := r.store.conn()
	if err != nil {
		return 0, err
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_logs`).Scan(&n); err != nil {
		return 0, wrapErr(model.ErrQueryFailed, err, "failed to count access logs")
	}
	return n, nil
}

func (r *usageRepository) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	pruned := 0
	err := r.store.withTx(ctx, model.ErrDeleteFailed, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM usage_entries ORDER BY last_accessed DESC, id ASC LIMIT -1 OFFSET ?`, keep)
		if err != nil {
			return wrapErr(model.ErrQueryFailed, err, "failed to select entries to prune")
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return wrapErr(model.ErrQueryFailed, err, "failed to scan entry id")
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return wrapErr(model.ErrQueryFailed, err, "failed to close rows")
		}
		if len(ids) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `DELETE FROM usage_entries WHERE id = ?`)
		if err != nil {
			return wrapErr(model.ErrPrepareFailed, err, "failed to prepare prune statement")
		}
		defer func() { _ = stmt.Close() }()

		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return wrapErr(model.ErrDeleteFailed, err, "failed to prune entry", goerr.V("id", id))
			}
		}
		pruned = len(ids)
		return nil
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to prune usage entries", goerr.V("keep", keep))
	}
	return pruned, nil
}

func (r *usageRepository) Count(ctx context.Context) (int, error) {
	db, err := r.store.conn()
	if err != nil {
		return 0, err
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_entries`).Scan(&n); err != nil {
		return 0, wrapErr(model.ErrQueryFailed, err, "failed to count usage entries")
	}
	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeUsage(ctx context.Context, db execer, e *model.UsageEntry) error {
	convs := e.ConversationIDs
	if convs == nil {
		convs = []string{}
	}
	raw, err := json.Marshal(convs)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal conversation ids")
	}

	_, err = db.ExecContext(ctx, `
INSERT INTO usage_entries (`+usageColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	filename = excluded.filename,
	file_type = excluded.file_type,
	content = excluded.content,
	embedding = excluded.embedding,
	conversation_ids = excluded.conversation_ids,
	access_count = excluded.access_count,
	last_accessed = excluded.last_accessed,
	first_indexed = excluded.first_indexed,
	content_hash = excluded.content_hash`,
		e.ID, e.Filename, e.FileType, e.Content, encodeEmbedding(e.Embedding), string(raw),
		e.AccessCount, toUnix(e.LastAccessed), toUnix(e.FirstIndexed), e.ContentHash)
	if err != nil {
		return wrapErr(model.ErrInsertFailed, err, "failed to write usage entry", goerr.V("id", e.ID))
	}
	return nil
}

func scanUsage(row rowScanner) (*model.UsageEntry, error) {
	var (
		e                      model.UsageEntry
		blob                   []byte
		convs                  string
		lastAccessed, firstIdx int64
	)
	if err := row.Scan(&e.ID, &e.Filename, &e.FileType, &e.Content, &blob, &convs,
		&e.AccessCount, &lastAccessed, &firstIdx, &e.ContentHash); err != nil {
		return nil, err
	}

	vec, err := decodeEmbedding(blob)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode usage embedding", goerr.V("id", e.ID))
	}
	e.Embedding = vec

	if err := json.Unmarshal([]byte(convs), &e.ConversationIDs); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal conversation ids", goerr.V("id", e.ID))
	}
	e.LastAccessed = fromUnix(lastAccessed)
	e.FirstIndexed = fromUnix(firstIdx)
	return &e, nil
}
