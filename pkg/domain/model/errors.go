package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrNotInitialized is returned when a store is used before it is opened or after it is closed
	ErrNotInitialized = goerr.New("store not initialized")

	// ErrPrepareFailed wraps failures preparing a storage statement or schema
	ErrPrepareFailed = goerr.New("prepare failed")

	// ErrInsertFailed wraps storage failures during insert or upsert
	ErrInsertFailed = goerr.New("insert failed")

	// ErrDeleteFailed wraps storage failures during delete
	ErrDeleteFailed = goerr.New("delete failed")

	// ErrQueryFailed wraps storage failures during reads and scans
	ErrQueryFailed = goerr.New("query failed")

	// ErrNotFound is returned when a document or usage entry does not exist
	ErrNotFound = goerr.New("not found")

	// ErrInvalidEmbeddingDimension is returned when an embedding does not have EmbeddingDimension elements
	ErrInvalidEmbeddingDimension = goerr.New("invalid embedding dimension")
)
