package firestore

import (
	"context"
	"sync"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
)

const (
	DocumentsCollection   = "documents"
	UsageCollection       = "usage_entries"
	AccessLogsCollection  = "access_logs"
	metaCollection        = "meta"
	accessLogCounterDocID = "access_log_counter"

	// maxNearestLimit is the upper bound Firestore accepts for FindNearest
	maxNearestLimit = 1000
)

type Firestore struct {
	mu       sync.RWMutex
	client   *firestore.Client
	document *documentRepository
	usage    *usageRepository

	collectionPrefix string
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

// WithCollectionPrefix prefixes every collection name, e.g. to isolate test runs
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.collectionPrefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID))
	}

	f := &Firestore{client: client}
	for _, opt := range opts {
		opt(f)
	}

	f.document = &documentRepository{store: f}
	f.usage = &usageRepository{store: f}
	return f, nil
}

func (f *Firestore) Document() interfaces.DocumentRepository {
	return f.document
}

func (f *Firestore) Usage() interfaces.UsageRepository {
	return f.usage
}

func (f *Firestore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	if err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}

func (f *Firestore) conn() (*firestore.Client, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.client == nil {
		return nil, goerr.Wrap(model.ErrNotInitialized, "firestore repository is closed")
	}
	return f.client, nil
}

func (f *Firestore) collection(client *firestore.Client, name string) *firestore.CollectionRef {
	return client.Collection(f.collectionPrefix + name)
}
