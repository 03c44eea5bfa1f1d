package interfaces

// Repository defines the interface for data persistence
type Repository interface {
	Document() DocumentRepository
	Usage() UsageRepository

	// Close releases the underlying store. Calls after Close fail with model.ErrNotInitialized.
	Close() error
}
