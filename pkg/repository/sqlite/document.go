package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/repository/scan"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

type documentRepository struct {
	store *SQLite
	cache *embeddingCache
}

const documentColumns = `id, content, embedding, source, metadata, created_at, last_accessed_at`

func (r *documentRepository) Put(ctx context.Context, doc *model.Document) error {
	if err := doc.Validate(); err != nil {
		return goerr.Wrap(err, "invalid document", goerr.V("id", doc.ID))
	}
	db, err := r.store.conn()
	if err != nil {
		return err
	}

	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal document metadata", goerr.V("id", doc.ID))
	}

	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	accessed := doc.LastAccessedAt
	if accessed.IsZero() {
		accessed = created
	}

	_, err = db.ExecContext(ctx, `
INSERT INTO documents (id, content, embedding, source, metadata, conversation_id, session_id, created_at, last_accessed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	content = excluded.content,
	embedding = excluded.embedding,
	source = excluded.source,
	metadata = excluded.metadata,
	conversation_id = excluded.conversation_id,
	session_id = excluded.session_id,
	last_accessed_at = excluded.last_accessed_at`,
		doc.ID.String(), doc.Content, encodeEmbedding(doc.Embedding), doc.Source.String(), string(meta),
		doc.Metadata.ConversationID, doc.Metadata.SessionID, toUnix(created), toUnix(accessed))
	if err != nil {
		return wrapErr(model.ErrInsertFailed, err, "failed to upsert document", goerr.V("id", doc.ID))
	}

	vec := make([]float32, len(doc.Embedding))
	copy(vec, doc.Embedding)
	r.cache.put(doc.ID, vec)
	return nil
}

func (r *documentRepository) Get(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	db, err := r.store.conn()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id.String())
	doc, err := r.scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrNotFound, "document not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, wrapErr(model.ErrQueryFailed, err, "failed to get document", goerr.V("id", id))
	}
	return doc, nil
}

func (r *documentRepository) Delete(ctx context.Context, id model.DocumentID) error {
	db, err := r.store.conn()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id.String())
	if err != nil {
		return wrapErr(model.ErrDeleteFailed, err, "failed to delete document", goerr.V("id", id))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return goerr.Wrap(model.ErrNotFound, "document not found", goerr.V("id", id))
	}

	r.cache.remove(id)
	return nil
}

func (r *documentRepository) DeleteByConversation(ctx context.Context, conversationID string) (int, error) {
	var ids []model.DocumentID

	err := r.store.withTx(ctx, model.ErrDeleteFailed, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM documents WHERE conversation_id = ?`, conversationID)
		if err != nil {
			return wrapErr(model.ErrQueryFailed, err, "failed to list conversation documents")
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return wrapErr(model.ErrQueryFailed, err, "failed to scan document id")
			}
			ids = append(ids, model.DocumentID(id))
		}
		if err := rows.Close(); err != nil {
			return wrapErr(model.ErrQueryFailed, err, "failed to close rows")
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE conversation_id = ?`, conversationID); err != nil {
			return wrapErr(model.ErrDeleteFailed, err, "failed to delete conversation documents")
		}
		return nil
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete documents by conversation", goerr.V("conversationID", conversationID))
	}

	r.cache.remove(ids...)
	return len(ids), nil
}

func (r *documentRepository) ListBySource(ctx context.Context, source types.Source, limit int) ([]*model.Document, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE source = ? ORDER BY created_at DESC, id ASC LIMIT ?`,
		source.String(), limit)
}

func (r *documentRepository) List(ctx context.Context) ([]*model.Document, error) {
	return r.query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id ASC`)
}

func (r *documentRepository) Search(ctx context.Context, query []float32, filter model.SearchFilter) ([]*model.ScoredDocument, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Sources) > 0 {
		placeholders := make([]string, len(filter.Sources))
		for i, s := range filter.Sources {
			placeholders[i] = "?"
			args = append(args, s.String())
		}
		where = append(where, "source IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.ConversationID != "" {
		where = append(where, "conversation_id = ?")
		args = append(args, filter.ConversationID)
	}

	stmt := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}

	docs, err := r.query(ctx, stmt, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan documents for search")
	}

	ranker := scan.NewRanker(query, filter)
	for _, doc := range docs {
		ranker.Add(doc)
	}
	return ranker.Results(), nil
}

func (r *documentRepository) Count(ctx context.Context) (int, error) {
	db, err := r.store.conn()
	if err != nil {
		return 0, err
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, wrapErr(model.ErrQueryFailed, err, "failed to count documents")
	}
	return n, nil
}

func (r *documentRepository) Touch(ctx context.Context, id model.DocumentID, at time.Time) error {
	db, err := r.store.conn()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `UPDATE documents SET last_accessed_at = ? WHERE id = ?`, toUnix(at), id.String())
	if err != nil {
		return wrapErr(model.ErrInsertFailed, err, "failed to touch document", goerr.V("id", id))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return goerr.Wrap(model.ErrNotFound, "document not found", goerr.V("id", id))
	}
	return nil
}

// query runs a document select. Rows that cannot be decoded are skipped with a warning.
func (r *documentRepository) query(ctx context.Context, stmt string, args ...any) ([]*model.Document, error) {
	db, err := r.store.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, wrapErr(model.ErrQueryFailed, err, "failed to query documents")
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*model.Document, 0)
	for rows.Next() {
		doc, err := r.scanDocument(rows)
		if err != nil {
			logging.From(ctx).Warn("skipping malformed document row", "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(model.ErrQueryFailed, err, "failed to iterate documents")
	}

	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *documentRepository) scanDocument(row rowScanner) (*model.Document, error) {
	var (
		id, content, source, meta string
		blob                      []byte
		created, accessed         int64
	)
	if err := row.Scan(&id, &content, &blob, &source, &meta, &created, &accessed); err != nil {
		return nil, err
	}

	docID := model.DocumentID(id)
	vec, cached := r.cache.get(docID)
	if !cached {
		decoded, err := decodeEmbedding(blob)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decode embedding", goerr.V("id", id))
		}
		vec = decoded
		r.cache.put(docID, vec)
	}

	doc := &model.Document{
		ID:             docID,
		Content:        content,
		Embedding:      make([]float32, len(vec)),
		Source:         types.Source(source),
		CreatedAt:      fromUnix(created),
		LastAccessedAt: fromUnix(accessed),
	}
	copy(doc.Embedding, vec)

	if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal document metadata", goerr.V("id", id))
	}
	return doc, nil
}
