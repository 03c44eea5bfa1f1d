package usecase

import "errors"

// Sentinel errors for use case layer
var (
	// Input errors
	ErrEmptyQuery    = errors.New("query is empty")
	ErrEmptyContent  = errors.New("content is empty")
	ErrInvalidSource = errors.New("invalid document source")
	ErrInvalidBudget = errors.New("token budget must be positive")

	// Not found errors
	ErrDocumentNotFound   = errors.New("document not found")
	ErrUsageEntryNotFound = errors.New("usage entry not found")
)

// Context keys for error values
const (
	DocumentIDKey = "document_id"
	EntryIDKey    = "entry_id"
	QueryKey      = "query"
)
