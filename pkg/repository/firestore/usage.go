package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type usageDoc struct {
	ID              string             `firestore:"ID"`
	Filename        string             `firestore:"Filename"`
	FileType        string             `firestore:"FileType"`
	Content         string             `firestore:"Content"`
	Embedding       firestore.Vector32 `firestore:"Embedding,omitempty"`
	ConversationIDs []string           `firestore:"ConversationIDs"`
	AccessCount     int                `firestore:"AccessCount"`
	LastAccessed    time.Time          `firestore:"LastAccessed"`
	FirstIndexed    time.Time          `firestore:"FirstIndexed"`
	ContentHash     string             `firestore:"ContentHash"`
}

func toUsageDoc(e *model.UsageEntry) *usageDoc {
	d := &usageDoc{
		ID:              e.ID,
		Filename:        e.Filename,
		FileType:        e.FileType,
		Content:         e.Content,
		ConversationIDs: e.ConversationIDs,
		AccessCount:     e.AccessCount,
		LastAccessed:    e.LastAccessed,
		FirstIndexed:    e.FirstIndexed,
		ContentHash:     e.ContentHash,
	}
	if len(e.Embedding) > 0 {
		d.Embedding = firestore.Vector32(e.Embedding)
	}
	if d.ConversationIDs == nil {
		d.ConversationIDs = []string{}
	}
	return d
}

func fromUsageDoc(d *usageDoc) *model.UsageEntry {
	e := &model.UsageEntry{
		ID:              d.ID,
		Filename:        d.Filename,
		FileType:        d.FileType,
		Content:         d.Content,
		ConversationIDs: d.ConversationIDs,
		AccessCount:     d.AccessCount,
		LastAccessed:    d.LastAccessed,
		FirstIndexed:    d.FirstIndexed,
		ContentHash:     d.ContentHash,
	}
	if len(d.Embedding) > 0 {
		e.Embedding = []float32(d.Embedding)
	}
	return e
}

type accessLogDoc struct {
	EntryID        string    `firestore:"EntryID"`
	ConversationID string    `firestore:"ConversationID"`
	Timestamp      time.Time `firestore:"Timestamp"`
	Context        string    `firestore:"Context"`
	Seq            int64     `firestore:"Seq"`
}

type accessLogCounter struct {
	Count int   `firestore:"Count"`
	Next  int64 `firestore:"Next"`
}

type usageRepository struct {
	store *Firestore
}

func (r *usageRepository) refs() (*firestore.Client, *firestore.CollectionRef, error) {
	client, err := r.store.conn()
	if err != nil {
		return nil, nil, err
	}
	return client, r.store.collection(client, UsageCollection), nil
}

func (r *usageRepository) Upsert(ctx context.Context, entry *model.UsageEntry) (*model.UsageEntry, error) {
	if entry.ID == "" {
		return nil, goerr.New("usage entry ID is required")
	}
	client, col, err := r.refs()
	if err != nil {
		return nil, err
	}

	ref := col.Doc(entry.ID)
	var stored *model.UsageEntry
	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			stored = entry.Copy()
			if stored.FirstIndexed.IsZero() {
				stored.FirstIndexed = time.Now().UTC()
			}
		case err != nil:
			return err
		default:
			var d usageDoc
			if err := snap.DataTo(&d); err != nil {
				return err
			}
			existing := fromUsageDoc(&d)
			count := existing.AccessCount
			existing.Merge(entry)
			existing.AccessCount = max(count+1, existing.AccessCount)
			stored = existing
		}
		return tx.Set(ref, toUsageDoc(stored))
	})
	if err != nil {
		return nil, goerr.Wrap(errors.Join(model.ErrInsertFailed, err), "failed to upsert usage entry", goerr.V("id", entry.ID))
	}
	return stored, nil
}

func (r *usageRepository) Put(ctx context.Context, entry *model.UsageEntry) error {
	_, col, err := r.refs()
	if err != nil {
		return err
	}
	if _, err := col.Doc(entry.ID).Set(ctx, toUsageDoc(entry)); err != nil {
		return goerr.Wrap(errors.Join(model.ErrInsertFailed, err), "failed to put usage entry", goerr.V("id", entry.ID))
	}
	return nil
}

func (r *usageRepository) Get(ctx context.Context, id string) (*model.UsageEntry, error) {
	_, col, err := r.refs()
	if err != nil {
		return nil, err
	}

	snap, err := col.Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "usage entry not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(errors.Join(model.ErrQueryFailed, err), "failed to get usage entry", goerr.V("id", id))
	}

	var d usageDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(errors.Join(model.ErrQueryFailed, err), "failed to unmarshal usage entry", goerr.V("id", id))
	}
	return fromUsageDoc(&d), nil
}

func (r *usageRepository) List(ctx context.Context) ([]*model.UsageEntry, error) {
	_, col, err := r.refs()
	if err != nil {
		return nil, err
	}

	iter := col.OrderBy("ID", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	entries := make([]*model.UsageEntry, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(errors.Join(model.ErrQueryFailed, err), "failed to iterate usage entries")
		}

		var d usageDoc
		if err := snap.DataTo(&d); err != nil {
			logging.From(ctx).Warn("skipping malformed usage entry", "id", snap.Ref.ID, "error", err)
			continue
		}
		entries = append(entries, fromUsageDoc(&d))
	}
	return entries, nil
}

func (r *usageRepository) RecordAccess(ctx context.Context, log *model.AccessLog) (*model.UsageEntry, error) {
	client, col, err := r.refs()
	if err != nil {
		return nil, err
	}

	entryRef := col.Doc(log.EntryID)
	counterRef := r.store.collection(client, metaCollection).Doc(accessLogCounterDocID)
	logs := r.store.collection(client, AccessLogsCollection)

	var (
		updated *model.UsageEntry
		counter accessLogCounter
	)
	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(entryRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrNotFound, "usage entry not found", goerr.V("id", log.EntryID))
			}
			return err
		}
		var d usageDoc
		if err := snap.DataTo(&d); err != nil {
			return err
		}

		counter = accessLogCounter{}
		counterSnap, err := tx.Get(counterRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			if err := counterSnap.DataTo(&counter); err != nil {
				return err
			}
		}

		entry := fromUsageDoc(&d)
		entry.AccessCount++
		entry.AddConversation(log.ConversationID)
		if log.Timestamp.After(entry.LastAccessed) {
			entry.LastAccessed = log.Timestamp
		}
		if err := tx.Set(entryRef, toUsageDoc(entry)); err != nil {
			return err
		}

		counter.Next++
		counter.Count++
		if err := tx.Set(logs.NewDoc(), &accessLogDoc{
			EntryID:        log.EntryID,
			ConversationID: log.ConversationID,
			Timestamp:      log.Timestamp,
			Context:        log.Context,
			Seq:            counter.Next,
		}); err != nil {
			return err
		}
		if err := tx.Set(counterRef, &counter); err != nil {
			return err
		}

		updated = entry
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, goerr.Wrap(errors.Join(model.ErrInsertFailed, err), "failed to record access", goerr.V("id", log.EntryID))
	}

	if counter.Count > model.AccessLogMaxEntries {
		if err := r.trimAccessLogs(ctx, client, logs, counterRef); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func (r *usageRepository) trimAccessLogs(ctx context.Context, client *firestore.Client, logs *firestore.CollectionRef, counterRef *firestore.DocumentRef) error {
	iter := logs.OrderBy("Seq", firestore.Desc).Offset(model.AccessLogRetainEntries).Select().Documents(ctx)
	defer iter.Stop()

	bulkWriter := client.BulkWriter(ctx)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bulkWriter.End()
			return goerr.Wrap(errors.Join(model.ErrQueryFailed, err), "failed to iterate access logs for trim")
		}
		if _, err := bulkWriter.Delete(snap.Ref); err != nil {
			bulkWriter.End()
			return goerr.Wrap(errors.Join(model.ErrDeleteFailed, err), "failed to delete access log")
		}
	}
	bulkWriter.End()

	if _, err := counterRef.Update(ctx, []firestore.Update{
		{Path: "Count", Value: model.AccessLogRetainEntries},
	}); err != nil {
		return goerr.Wrap(errors.Join(model.ErrInsertFailed, err), "failed to reset access log counter")
	}
	return nil
}

func (r *usageRepository) ListAccessLogs(ctx context.Context, limit int) ([]*model.AccessLog, error) {
	client, err := r.store.conn()
	if err != nil {
		return nil, err
	}

	q := r.store.collection(client, AccessLogsCollection).OrderBy("Seq", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	result := make([]*model.AccessLog, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(errors.Join(model.ErrQueryFailed, err), "failed to iterate access logs")
		}

		var d accessLogDoc
		if err := snap.DataTo(&d); err != nil {
			logging.From(ctx).Warn("skipping malformed access log", "id", snap.Ref.ID, "error", err)
			continue
		}
		result = append(result, &model.AccessLog{
			EntryID:        d.EntryID,
			ConversationID: d.ConversationID,
			Timestamp:      d.Timestamp,
			Context:        d.Context,
		})
	}
	return result, nil
}

func (r *usageRepository) CountAccessLogs(ctx context.Context) (int, error) {
	client, err := r.store.conn()
	if err != nil {
		return 0, err
	}
	n, err := countQuery(ctx, &r.store.collection(client, AccessLogsCollection).Query)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count access logs")
	}
	return n, nil
}

func (r *usageRepository) Prune(ctx context.Context, keep int) (int, error) {
	client, col, err := r.refs()
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}

	iter := col.OrderBy("LastAccessed", firestore.Desc).Offset(keep).Select().Documents(ctx)
	defer iter.Stop()

	bulkWriter := client.BulkWriter(ctx)
	pruned := 0
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bulkWriter.End()
			return pruned, goerr.Wrap(errors.Join(model.ErrQueryFailed, err), "failed to iterate entries to prune")
		}
		if _, err := bulkWriter.Delete(snap.Ref); err != nil {
			bulkWriter.End()
			return pruned, goerr.Wrap(errors.Join(model.ErrDeleteFailed, err), "failed to prune usage entry")
		}
		pruned++
	}
	bulkWriter.End()

	return pruned, nil
}

func (r *usageRepository) Count(ctx context.Context) (int, error) {
	_, col, err := r.refs()
	if err != nil {
		return 0, err
	}
	n, err := countQuery(ctx, &col.Query)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count usage entries")
	}
	return n, nil
}
