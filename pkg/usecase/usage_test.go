package usecase_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/service/embedding"
	"github.com/secmon-lab/recall/pkg/usecase"
)

func TestUsageUseCase_Index(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newUseCases(t)

	entry := &model.UsageEntry{ID: "main.go", Filename: "main.go", Content: "package main"}
	first, err := uc.Usage.Index(ctx, entry, "c1", "")
	gt.NoError(t, err).Required()
	gt.Value(t, first.AccessCount).Equal(1)
	gt.Value(t, first.ConversationIDs).Equal([]string{"c1"})
	gt.Value(t, first.FirstIndexed).Equal(baseTime)
	gt.Value(t, len(first.Embedding)).Equal(model.EmbeddingDimension)
	gt.String(t, first.ContentHash).NotEqual("")

	second, err := uc.Usage.Index(ctx, entry, "c2", "")
	gt.NoError(t, err).Required()
	gt.Value(t, second.AccessCount).Equal(2)
	gt.Value(t, second.ConversationIDs).Equal([]string{"c1", "c2"})

	again, err := uc.Usage.Index(ctx, entry, "c1", "")
	gt.NoError(t, err).Required()
	gt.Value(t, again.ConversationIDs).Equal([]string{"c1", "c2"})

	stats, err := uc.Usage.Stats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Entries).Equal(1)

	_, err = uc.Usage.Index(ctx, &model.UsageEntry{}, "c1", "")
	gt.Error(t, err)
}

func TestUsageUseCase_Index_UnsortedConversations(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newUseCases(t)

	entry := &model.UsageEntry{
		ID:              "util.go",
		Content:         "package util",
		ConversationIDs: []string{"b", "a", "b"},
	}
	stored, err := uc.Usage.Index(ctx, entry, "a", "")
	gt.NoError(t, err).Required()
	gt.Value(t, stored.ConversationIDs).Equal([]string{"a", "b"})
	gt.Value(t, entry.ConversationIDs).Equal([]string{"b", "a", "b"})

	again, err := uc.Usage.Index(ctx, &model.UsageEntry{ID: "util.go", ConversationIDs: []string{"c", "a"}}, "b", "")
	gt.NoError(t, err).Required()
	gt.Value(t, again.ConversationIDs).Equal([]string{"a", "b", "c"})
}

func TestUsageUseCase_IndexFile(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newUseCases(t)

	path := filepath.Join(t.TempDir(), "README.md")
	gt.NoError(t, os.WriteFile(path, []byte("# recall\nretrieval notes"), 0o644)).Required()

	entry, err := uc.Usage.IndexFile(ctx, path, "c1")
	gt.NoError(t, err).Required()
	gt.Value(t, entry.Filename).Equal("README.md")
	gt.Value(t, entry.FileType).Equal("md")
	gt.Value(t, entry.Content).Equal("# recall\nretrieval notes")
	gt.Bool(t, filepath.IsAbs(entry.ID)).True()

	_, err = uc.Usage.IndexFile(ctx, filepath.Join(t.TempDir(), "missing.md"), "c1")
	gt.Error(t, err)
}

func TestUsageUseCase_RecordAccess(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newUseCases(t)

	_, err := uc.Usage.RecordAccess(ctx, "unknown", "c1", time.Time{}, "")
	gt.Error(t, err).Is(usecase.ErrUsageEntryNotFound)

	_, err = uc.Usage.Index(ctx, &model.UsageEntry{ID: "a.go", Content: "package a"}, "c1", "")
	gt.NoError(t, err).Required()

	later := baseTime.Add(time.Hour)
	entry, err := uc.Usage.RecordAccess(ctx, "a.go", "c2", later, "opened")
	gt.NoError(t, err).Required()
	gt.Value(t, entry.AccessCount).Equal(2)
	gt.Value(t, entry.LastAccessed).Equal(later)
	gt.Value(t, entry.ConversationIDs).Equal([]string{"c1", "c2"})

	stats, err := uc.Usage.Stats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.AccessLogs).Equal(1)
}

func TestUsageUseCase_CoAccessed(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newUseCases(t)

	for _, conv := range []string{"c1", "c2", "c3"} {
		for _, id := range []string{"A", "B"} {
			_, err := uc.Usage.Index(ctx, &model.UsageEntry{ID: id, Content: "file " + id}, conv, "")
			gt.NoError(t, err).Required()
		}
	}
	_, err := uc.Usage.Index(ctx, &model.UsageEntry{ID: "C", Content: "file C"}, "c1", "")
	gt.NoError(t, err).Required()
	_, err = uc.Usage.Index(ctx, &model.UsageEntry{ID: "D", Content: "file D"}, "c9", "")
	gt.NoError(t, err).Required()

	related, err := uc.Usage.CoAccessed(ctx, "A", 10)
	gt.NoError(t, err).Required()
	gt.Array(t, related).Length(2).Required()

	gt.Value(t, related[0].EntryID).Equal("B")
	gt.Value(t, related[0].Count).Equal(3)
	gt.Value(t, related[0].Score).Equal(1.0)
	gt.Value(t, related[1].EntryID).Equal("C")
	gt.Value(t, related[1].Count).Equal(1)
	gt.Value(t, related[1].Score).Equal(1.0 / 3.0)

	limited, err := uc.Usage.CoAccessed(ctx, "A", 1)
	gt.NoError(t, err).Required()
	gt.Array(t, limited).Length(1)

	none, err := uc.Usage.CoAccessed(ctx, "unknown", 10)
	gt.NoError(t, err).Required()
	gt.Array(t, none).Length(0)
}

func TestRelevanceBoost(t *testing.T) {
	now := baseTime
	testCases := []struct {
		name  string
		entry model.UsageEntry
		want  float64
	}{
		{
			name:  "nothing",
			entry: model.UsageEntry{},
			want:  0,
		},
		{
			name:  "accessed within a day",
			entry: model.UsageEntry{LastAccessed: now.Add(-23 * time.Hour)},
			want:  0.2,
		},
		{
			name:  "accessed within a week and used twice",
			entry: model.UsageEntry{LastAccessed: now.Add(-100 * time.Hour), AccessCount: 2},
			want:  0.15,
		},
		{
			name:  "frequent and broad",
			entry: model.UsageEntry{AccessCount: 5, ConversationIDs: []string{"a", "b"}},
			want:  0.2,
		},
		{
			name: "capped",
			entry: model.UsageEntry{
				LastAccessed:    now,
				AccessCount:     10,
				ConversationIDs: []string{"a", "b", "c", "d", "e"},
			},
			want: 0.5,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := usecase.RelevanceBoost(&tc.entry, now)
			gt.Bool(t, got > tc.want-1e-9 && got < tc.want+1e-9).True()
		})
	}
}

func TestUsageUseCase_FindRelevant(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newUseCases(t)

	_, err := uc.Usage.Index(ctx, &model.UsageEntry{ID: "forecast.csv", Content: "quarterly revenue forecast spreadsheet notes"}, "old", "")
	gt.NoError(t, err).Required()
	_, err = uc.Usage.Index(ctx, &model.UsageEntry{ID: "draft.md", Content: "quarterly revenue forecast for the sales team"}, "current", "")
	gt.NoError(t, err).Required()
	_, err = uc.Usage.Index(ctx, &model.UsageEntry{ID: "pasta.txt", Content: "Cooking Italian pasta"}, "old", "")
	gt.NoError(t, err).Required()

	matches, err := uc.Usage.FindRelevant(ctx, "quarterly revenue forecast", 10, "", 0.25)
	gt.NoError(t, err).Required()
	gt.Array(t, matches).Length(2).Required()
	gt.Value(t, matches[0].Entry.ID).Equal("forecast.csv")
	gt.Bool(t, matches[0].Similarity >= matches[1].Similarity).True()
	gt.Bool(t, matches[0].RelevanceBoost > 0.19).True()

	matches, err = uc.Usage.FindRelevant(ctx, "quarterly revenue forecast", 10, "current", 0.25)
	gt.NoError(t, err).Required()
	gt.Array(t, matches).Length(1).Required()
	gt.Value(t, matches[0].Entry.ID).Equal("forecast.csv")

	_, err = uc.Usage.FindRelevant(ctx, "", 10, "", 0)
	gt.Error(t, err).Is(usecase.ErrEmptyQuery)
}

func TestUsageUseCase_PruneAndRebuild(t *testing.T) {
	ctx := context.Background()
	uc, repo, clk := newUseCases(t)

	for i, id := range []string{"old", "mid", "new"} {
		clk.now = baseTime.Add(time.Duration(i) * time.Hour)
		_, err := uc.Usage.Index(ctx, &model.UsageEntry{ID: id, Content: "content of " + id}, "c1", "")
		gt.NoError(t, err).Required()
	}

	stale := &model.UsageEntry{ID: "new", Content: "content of new", Embedding: make([]float32, model.EmbeddingDimension), AccessCount: 1, LastAccessed: baseTime.Add(2 * time.Hour)}
	gt.NoError(t, repo.Usage().Put(ctx, stale)).Required()

	n, err := uc.Usage.Rebuild(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(3)

	rebuilt, err := repo.Usage().Get(ctx, "new")
	gt.NoError(t, err).Required()
	gt.Value(t, rebuilt.Embedding).Equal(embedding.New().Embed("content of new"))

	n, err = uc.Usage.Rebuild(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(3)

	_, err = uc.Usage.Prune(ctx, -1)
	gt.Error(t, err)

	pruned, err := uc.Usage.Prune(ctx, 2)
	gt.NoError(t, err).Required()
	gt.Value(t, pruned).Equal(1)

	_, err = repo.Usage().Get(ctx, "old")
	gt.Error(t, err).Is(model.ErrNotFound)
}
