package sqlite

import "database/sql"

func (s *SQLite) RawDB() *sql.DB {
	return s.db
}

func (s *SQLite) EmbeddingCacheLen() int {
	return s.document.cache.len()
}
