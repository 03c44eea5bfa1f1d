package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/repository/sqlite"
	"github.com/secmon-lab/recall/pkg/service/embedding"
)

func newDoc(content string) *model.Document {
	return &model.Document{
		ID:        model.NewDocumentID(),
		Content:   content,
		Embedding: embedding.New().Embed(content),
		Source:    types.SourceNote,
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "recall.db")

	repo, err := sqlite.New(ctx, path)
	gt.NoError(t, err).Required()

	doc := newDoc("survives restart")
	gt.NoError(t, repo.Document().Put(ctx, doc)).Required()
	_, err = repo.Usage().Upsert(ctx, &model.UsageEntry{ID: "main.go", AccessCount: 1, ConversationIDs: []string{"c1"}})
	gt.NoError(t, err).Required()
	gt.NoError(t, repo.Close()).Required()

	reopened, err := sqlite.New(ctx, path)
	gt.NoError(t, err).Required()
	t.Cleanup(func() { gt.NoError(t, reopened.Close()) })

	got, err := reopened.Document().Get(ctx, doc.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, got.Content).Equal("survives restart")

	entry, err := reopened.Usage().Get(ctx, "main.go")
	gt.NoError(t, err).Required()
	gt.Value(t, entry.ConversationIDs).Equal([]string{"c1"})
}

func TestMalformedRowsAreSkipped(t *testing.T) {
	ctx := context.Background()
	repo, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "recall.db"), sqlite.WithEmbeddingCacheSize(0))
	gt.NoError(t, err).Required()
	t.Cleanup(func() { gt.NoError(t, repo.Close()) })

	good := newDoc("well formed document")
	gt.NoError(t, repo.Document().Put(ctx, good)).Required()

	_, err = repo.RawDB().ExecContext(ctx, `
INSERT INTO documents (id, content, embedding, source, metadata, created_at, last_accessed_at)
VALUES ('broken', 'bad blob', X'010203', 'note', '{}', 1, 1)`)
	gt.NoError(t, err).Required()

	results, err := repo.Document().Search(ctx, embedding.New().Embed("well formed"), model.SearchFilter{
		Limit:         10,
		MinSimilarity: -1,
	})
	gt.NoError(t, err).Required()
	gt.Array(t, results).Length(1)
	gt.Value(t, results[0].Document.ID).Equal(good.ID)

	all, err := repo.Document().List(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, all).Length(1)
}

func TestEmbeddingCacheEvictsOldestHalf(t *testing.T) {
	ctx := context.Background()
	repo, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "recall.db"), sqlite.WithEmbeddingCacheSize(4))
	gt.NoError(t, err).Required()
	t.Cleanup(func() { gt.NoError(t, repo.Close()) })

	for _, c := range []string{"one", "two", "three", "four"} {
		gt.NoError(t, repo.Document().Put(ctx, newDoc(c))).Required()
	}
	gt.Value(t, repo.EmbeddingCacheLen()).Equal(4)

	gt.NoError(t, repo.Document().Put(ctx, newDoc("five"))).Required()
	gt.Value(t, repo.EmbeddingCacheLen()).Equal(3)

	n, err := repo.Document().Count(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(5)
}

func TestNewRequiresPath(t *testing.T) {
	_, err := sqlite.New(context.Background(), "")
	gt.Error(t, err)
}
