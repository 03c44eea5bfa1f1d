package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
)

// DefaultEmbeddingCacheSize is the number of decoded document embeddings kept in memory
const DefaultEmbeddingCacheSize = 10000

// SQLite is the file-backed repository. A single connection serialises writers.
type SQLite struct {
	mu       sync.RWMutex
	db       *sql.DB
	document *documentRepository
	usage    *usageRepository

	cacheSize int
}

var _ interfaces.Repository = &SQLite{}

type Option func(*SQLite)

// WithEmbeddingCacheSize sets the decoded embedding cache capacity. Zero disables the cache.
func WithEmbeddingCacheSize(size int) Option {
	return func(s *SQLite) {
		if size >= 0 {
			s.cacheSize = size
		}
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	embedding BLOB NOT NULL,
	source TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	conversation_id TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	last_accessed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);
CREATE INDEX IF NOT EXISTS idx_documents_conversation_id ON documents(conversation_id);

CREATE TABLE IF NOT EXISTS usage_entries (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL DEFAULT '',
	file_type TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	embedding BLOB,
	conversation_ids TEXT NOT NULL DEFAULT '[]',
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed INTEGER NOT NULL DEFAULT 0,
	first_indexed INTEGER NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_usage_entries_last_accessed ON usage_entries(last_accessed);

CREATE TABLE IF NOT EXISTS access_logs (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL,
	context TEXT NOT NULL DEFAULT ''
);
`

// New opens or creates the database at path and applies the schema
func New(ctx context.Context, path string, opts ...Option) (*SQLite, error) {
	if path == "" {
		return nil, goerr.New("sqlite path is required")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create database directory", goerr.V("path", path))
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, wrapErr(model.ErrPrepareFailed, err, "failed to open sqlite", goerr.V("path", path))
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, wrapErr(model.ErrPrepareFailed, err, "failed to apply schema", goerr.V("path", path))
	}

	s := &SQLite{
		db:        db,
		cacheSize: DefaultEmbeddingCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.document = &documentRepository{
		store: s,
		cache: newEmbeddingCache(s.cacheSize),
	}
	s.usage = &usageRepository{store: s}

	return s, nil
}

func (s *SQLite) Document() interfaces.DocumentRepository {
	return s.document
}

func (s *SQLite) Usage() interfaces.UsageRepository {
	return s.usage
}

// Close closes the database. Further calls fail with model.ErrNotInitialized.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return goerr.Wrap(err, "failed to close sqlite")
	}
	return nil
}

func (s *SQLite) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, goerr.Wrap(model.ErrNotInitialized, "sqlite repository is not open")
	}
	return s.db, nil
}

// withTx runs fn in a transaction, rolling back when fn fails
func (s *SQLite) withTx(ctx context.Context, kind error, fn func(tx *sql.Tx) error) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(kind, err, "failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapErr(kind, err, "failed to commit transaction")
	}
	return nil
}

// wrapErr keeps both the error kind and the driver error reachable through errors.Is
func wrapErr(kind, err error, msg string, opts ...goerr.Option) error {
	return goerr.Wrap(errors.Join(kind, err), msg, opts...)
}
