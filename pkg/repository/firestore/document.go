package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const distanceField = "VectorDistance"

// documentDoc is the Firestore document representation of model.Document.
// Embedding is stored as firestore.Vector32 for FindNearest vector search.
type documentDoc struct {
	ID             string             `firestore:"ID"`
	Content        string             `firestore:"Content"`
	Embedding      firestore.Vector32 `firestore:"Embedding"`
	Source         string             `firestore:"Source"`
	ConversationID string             `firestore:"ConversationID"`
	SessionID      string             `firestore:"SessionID"`
	Title          string             `firestore:"Title"`
	Tags           []string           `firestore:"Tags"`
	ChunkIndex     int                `firestore:"ChunkIndex"`
	TotalChunks    int                `firestore:"TotalChunks"`
	ParentID       string             `firestore:"ParentID"`
	IsProtected    bool               `firestore:"IsProtected"`
	CreatedAt      time.Time          `firestore:"CreatedAt"`
	LastAccessedAt time.Time          `firestore:"LastAccessedAt"`
}

func toDocumentDoc(d *model.Document) *documentDoc {
	return &documentDoc{
		ID:             d.ID.String(),
		Content:        d.Content,
		Embedding:      firestore.Vector32(d.Embedding),
		Source:         d.Source.String(),
		ConversationID: d.Metadata.ConversationID,
		SessionID:      d.Metadata.SessionID,
		Title:          d.Metadata.Title,
		Tags:           d.Metadata.Tags,
		ChunkIndex:     d.Metadata.ChunkIndex,
		TotalChunks:    d.Metadata.TotalChunks,
		ParentID:       d.Metadata.ParentID,
		IsProtected:    d.Metadata.IsProtected,
		CreatedAt:      d.CreatedAt,
		LastAccessedAt: d.LastAccessedAt,
	}
}

func fromDocumentDoc(d *documentDoc) *model.Document {
	return &model.Document{
		ID:        model.DocumentID(d.ID),
		Content:   d.Content,
		Embedding: []float32(d.Embedding),
		Source:    types.Source(d.Source),
		Metadata: model.DocumentMetadata{
			ConversationID: d.ConversationID,
			SessionID:      d.SessionID,
			Title:          d.Title,
			Tags:           d.Tags,
			ChunkIndex:     d.ChunkIndex,
			TotalChunks:    d.TotalChunks,
			ParentID:       d.ParentID,
			IsProtected:    d.IsProtected,
		},
		CreatedAt:      d.CreatedAt,
		LastAccessedAt: d.LastAccessedAt,
	}
}

type documentRepository struct {
	store *Firestore
}

func (r *documentRepository) docs() (*firestore.CollectionRef, error) {
	client, err := r.store.conn()
	if err != nil {
		return nil, err
	}
	return r.store.collection(client, DocumentsCollection), nil
}

func (r *documentRepository) Put(ctx context.Context, doc *model.Document) error {
	if err := doc.Validate(); err != nil {
		return goerr.Wrap(err, "invalid document", goerr.V("id", doc.ID))
	}
	col, err := r.docs()
	if err != nil {
		return err
	}

	d := toDocumentDoc(doc)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.LastAccessedAt.IsZero() {
		d.LastAccessedAt = d.CreatedAt
	}

	if _, err := col.Doc(d.ID).Set(ctx, d); err != nil {
		return goerr.Wrap(errors.Join(model.ErrInsertFailed, err), "failed to put document", goerr.V("id", doc.ID))
	}
	return nil
}

func (r *documentRepository) Get(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	col, err := r.docs()
	if err != nil {
		return nil, err
	}

	snap, err := col.Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "document not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(errors.Join(model.ErrQueryFailed, err), "failed to get document", goerr.V("id", id))
	}

	var d documentDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(errors.Join(model.ErrQueryFailed, err), "failed to unmarshal document", goerr.V("id", id))
	}
	return fromDocumentDoc(&d), nil
}

func (r *documentRepository) Delete(ctx context.Context, id model.DocumentID) error {
	col, err := r.docs()
	if err != nil {
		return err
	}

	ref := col.Doc(id.String())
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrNotFound, "document not found", goerr.V("id", id))
		}
		return goerr.Wrap(errors.Join(model.ErrQueryFailed, err), "failed to get document", goerr.V("id", id))
	}

	if _, err := ref.Delete(ctx); err != nil {
		return goerr.Wrap(errors.Join(model.ErrDeleteFailed, err), "failed to delete document", goerr.V("id", id))
	}
	return nil
}

func (r *documentRepository) DeleteByConversation(ctx context.Context, conversationID string) (int, error) {
	col, err := r.docs()
	if err != nil {
		return 0, err
	}
	client, err := r.store.conn()
	if err != nil {
		return 0, err
	}

	iter := col.Where("ConversationID", "==", conversationID).Select().Documents(ctx)
	defer iter.Stop()

	bulkWriter := client.BulkWriter(ctx)
	deleted := 0
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bulkWriter.End()
			return deleted, goerr.Wrap(errors.Join(model.ErrQueryFailed, err), "failed to iterate conversation documents",
				goerr.V("conversationID", conversationID))
		}

		if _, err := bulkWriter.Delete(snap.Ref); err != nil {
			bulkWriter.End()
			return deleted, goerr.Wrap(errors.Join(model.ErrDeleteFailed, err), "failed to delete document",
				goerr.V("conversationID", conversationID))
		}
		deleted++
	}
	bulkWriter.End()

	return deleted, nil
}

func (r *documentRepository) ListBySource(ctx context.Context, source types.Source, limit int) ([]*model.Document, error) {
	col, err := r.docs()
	if err != nil {
		return nil, err
	}

	q := col.Where("Source", "==", source.String()).OrderBy("CreatedAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.collect(ctx, q.Documents(ctx))
}

func (r *documentRepository) List(ctx context.Context) ([]*model.Document, error) {
	col, err := r.docs()
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, col.OrderBy("CreatedAt", firestore.Desc).Documents(ctx))
}

func (r *documentRepository) Search(ctx context.Context, query []float32, filter model.SearchFilter) ([]*model.ScoredDocument, error) {
	col, err := r.docs()
	if err != nil {
		return nil, err
	}

	q := col.Query
	if filter.ConversationID != "" {
		q = q.Where("ConversationID", "==", filter.ConversationID)
	}
	if len(filter.Sources) > 0 {
		sources := make([]string, len(filter.Sources))
		for i, s := range filter.Sources {
			sources[i] = s.String()
		}
		q = q.Where("Source", "in", sources)
	}

	limit := filter.Limit
	if limit <= 0 || limit > maxNearestLimit {
		limit = maxNearestLimit
	}

	// cosine distance is 1 - similarity
	vq := q.FindNearest("Embedding", firestore.Vector32(query), limit, firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{
			DistanceThreshold:   firestore.Ptr(1 - filter.MinSimilarity),
			DistanceResultField: distanceField,
		})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	results := make([]*model.ScoredDocument, 0, limit)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(errors.Join(model.ErrQueryFailed, err), "failed to iterate vector search results")
		}

		var d documentDoc
		if err := snap.DataTo(&d); err != nil {
			logging.From(ctx).Warn("skipping malformed document", "id", snap.Ref.ID, "error", err)
			continue
		}
		distance, ok := snap.Data()[distanceField].(float64)
		if !ok {
			logging.From(ctx).Warn("vector distance missing from result", "id", snap.Ref.ID)
			continue
		}

		sim := 1 - distance
		if sim < filter.MinSimilarity {
			continue
		}
		results = append(results, &model.ScoredDocument{
			Document:   fromDocumentDoc(&d),
			Similarity: max(-1, min(1, sim)),
		})
	}

	return results, nil
}

func (r *documentRepository) Count(ctx context.Context) (int, error) {
	col, err := r.docs()
	if err != nil {
		return 0, err
	}
	n, err := countQuery(ctx, &col.Query)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count documents")
	}
	return n, nil
}

func (r *documentRepository) Touch(ctx context.Context, id model.DocumentID, at time.Time) error {
	col, err := r.docs()
	if err != nil {
		return err
	}

	_, err = col.Doc(id.String()).Update(ctx, []firestore.Update{
		{Path: "LastAccessedAt", Value: at},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrNotFound, "document not found", goerr.V("id", id))
		}
		return goerr.Wrap(errors.Join(model.ErrInsertFailed, err), "failed to touch document", goerr.V("id", id))
	}
	return nil
}

func (r *documentRepository) collect(ctx context.Context, iter *firestore.DocumentIterator) ([]*model.Document, error) {
	defer iter.Stop()

	docs := make([]*model.Document, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(errors.Join(model.ErrQueryFailed, err), "failed to iterate documents")
		}

		var d documentDoc
		if err := snap.DataTo(&d); err != nil {
			logging.From(ctx).Warn("skipping malformed document", "id", snap.Ref.ID, "error", err)
			continue
		}
		docs = append(docs, fromDocumentDoc(&d))
	}
	return docs, nil
}

func countQuery(ctx context.Context, q *firestore.Query) (int, error) {
	res, err := q.NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, goerr.Wrap(errors.Join(model.ErrQueryFailed, err), "failed to run count aggregation")
	}

	v, ok := res["count"].(*firestorepb.Value)
	if !ok {
		return 0, goerr.Wrap(model.ErrQueryFailed, "unexpected count aggregation result")
	}
	return int(v.GetIntegerValue()), nil
}
