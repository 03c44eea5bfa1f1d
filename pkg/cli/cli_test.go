package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/cli"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/repository/firestore"
	"github.com/secmon-lab/recall/pkg/repository/memory"
	"github.com/secmon-lab/recall/pkg/service/watcher"
	"github.com/secmon-lab/recall/pkg/usecase"
	"gopkg.in/yaml.v3"
)

type recall struct {
	t      *testing.T
	dbPath string
}

func newRecall(t *testing.T) *recall {
	return &recall{t: t, dbPath: filepath.Join(t.TempDir(), "recall.db")}
}

func (r *recall) run(args ...string) (string, error) {
	r.t.Helper()
	var out bytes.Buffer
	full := append([]string{
		"recall",
		"--log-level", "error",
		"--repository-backend", "sqlite",
		"--sqlite-path", r.dbPath,
		"--embedding-cache-size", "0",
	}, args...)
	err := cli.RunForTest(context.Background(), full, "test", &out)
	return out.String(), err
}

func (r *recall) mustRun(args ...string) string {
	r.t.Helper()
	out, err := r.run(args...)
	gt.NoError(r.t, err).Required()
	return out
}

func TestIndexAndSearch(t *testing.T) {
	r := newRecall(t)
	r.mustRun("index", "--title", "Fox", "The quick brown fox")
	r.mustRun("index", "Cooking Italian pasta")

	out := r.mustRun("search", "fast brown animal")
	gt.String(t, out).Contains("The quick brown fox")
	gt.Bool(t, bytes.Contains([]byte(out), []byte("pasta"))).False()

	out = r.mustRun("search", "--min-similarity", "0", "--limit", "5", "fast brown animal")
	gt.String(t, out).Contains("Cooking Italian pasta")

	out = r.mustRun("search", "--hybrid", "brown fox")
	gt.String(t, out).Contains("keywords 2")
}

func TestSearch_Errors(t *testing.T) {
	r := newRecall(t)

	_, err := r.run("search")
	gt.Error(t, err).Is(usecase.ErrEmptyQuery)

	_, err = r.run("search", "--source", "email", "anything")
	gt.Error(t, err).Is(usecase.ErrInvalidSource)

	_, err = r.run("index", "--source", "email", "anything")
	gt.Error(t, err).Is(usecase.ErrInvalidSource)
}

func TestDelete(t *testing.T) {
	r := newRecall(t)
	r.mustRun("index", "--id", "doc-1", "The quick brown fox")
	r.mustRun("index", "--conversation", "conv-1", "Cooking Italian pasta")

	out := r.mustRun("delete", "--conversation", "conv-1", "doc-1")
	gt.String(t, out).Contains("deleted 2 documents")

	_, err := r.run("delete", "doc-1")
	gt.Error(t, err).Is(usecase.ErrDocumentNotFound)
}

func TestBuild_YAML(t *testing.T) {
	r := newRecall(t)
	r.mustRun("index", "--source", "theme", "The quick brown fox")

	out := r.mustRun("build",
		"--budget", "2000",
		"--system", "You are a helpful assistant",
		"--summary", "We talked about animals",
		"--format", "yaml",
		"fast brown animal",
	)

	var view struct {
		Budget      int  `yaml:"budget"`
		TotalTokens int  `yaml:"total_tokens"`
		OverBudget  bool `yaml:"over_budget"`
		Included    []struct {
			ID       string `yaml:"id"`
			Required bool   `yaml:"required"`
		} `yaml:"included"`
		Formatted string `yaml:"formatted"`
	}
	gt.NoError(t, yaml.Unmarshal([]byte(out), &view)).Required()

	gt.Number(t, view.Budget).Equal(2000)
	gt.Bool(t, view.OverBudget).False()
	gt.Bool(t, view.TotalTokens <= view.Budget).True()
	gt.Value(t, len(view.Included) > 0).Equal(true).Required()
	gt.Value(t, view.Included[0].ID).Equal("system")
	gt.Bool(t, view.Included[0].Required).True()
	gt.String(t, view.Formatted).Contains("## System")
	gt.String(t, view.Formatted).Contains("## Previous Session")
}

func TestBuild_Errors(t *testing.T) {
	r := newRecall(t)

	_, err := r.run("build", "query")
	gt.Value(t, err).NotNil()

	_, err = r.run("build", "--budget", "100", "--format", "xml", "query")
	gt.Value(t, err).NotNil()

	_, err = r.run("build", "--budget", "100", "--prefer", "podcast", "query")
	gt.Value(t, err).NotNil()
}

func TestBuild_Text(t *testing.T) {
	r := newRecall(t)

	out := r.mustRun("build", "--model", "llama-13b", "--system", "Answer briefly", "--message", "hello there", "greeting")
	gt.String(t, out).Contains("## System")
	gt.String(t, out).Contains("Answer briefly")
	gt.String(t, out).Contains("/8000 tokens")
}

func TestUsageCommands(t *testing.T) {
	r := newRecall(t)
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.md")
	plan := filepath.Join(dir, "plan.md")
	gt.NoError(t, os.WriteFile(notes, []byte("incident review for the payment outage"), 0o600)).Required()
	gt.NoError(t, os.WriteFile(plan, []byte("rollout plan for the new office"), 0o600)).Required()

	r.mustRun("usage", "add", "--conversation", "c1", notes, plan)
	r.mustRun("usage", "add", "--conversation", "c2", notes)

	out := r.mustRun("usage", "stats")
	gt.String(t, out).Contains("entries: 2")

	out = r.mustRun("usage", "relevant", "payment outage review")
	gt.String(t, out).Contains(notes)

	out = r.mustRun("usage", "co-accessed", plan)
	gt.String(t, out).Contains(notes)

	out = r.mustRun("usage", "access", "--conversation", "c3", "--context", "manual", notes)
	gt.String(t, out).Contains("in 3 conversations")

	out = r.mustRun("usage", "log", "--limit", "1")
	gt.String(t, out).Contains("manual")

	out = r.mustRun("usage", "rebuild")
	gt.String(t, out).Contains("rebuilt 2 entries")

	out = r.mustRun("usage", "prune", "--keep", "1")
	gt.String(t, out).Contains("pruned 1 entries")

	_, err := r.run("usage", "access", "missing")
	gt.Error(t, err).Is(usecase.ErrUsageEntryNotFound)
}

func TestTuningFlags(t *testing.T) {
	r := newRecall(t)

	_, err := r.run("--scoring-preset", "psychic", "search", "anything")
	gt.Value(t, err).NotNil()

	r.mustRun("--scoring-preset", "semantic", "--optimizer-preset", "conservative", "index", "The quick brown fox")
}

func TestGetIndexConfig(t *testing.T) {
	cfg := cli.GetIndexConfig("test_")
	gt.Array(t, cfg.Collections).Length(1).Required()
	gt.Value(t, cfg.Collections[0].Name).Equal("test_" + firestore.DocumentsCollection)
	gt.Array(t, cfg.Collections[0].Indexes).Length(5)
}

func TestMessageItems(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	items := cli.MessageItems([]string{"first", "second", "third"}, now)

	gt.Array(t, items).Length(3).Required()
	gt.Value(t, items[0].ID).Equal("message-1")
	gt.Value(t, items[0].Type).Equal(types.ItemTypeMessage)
	gt.Value(t, items[0].LastAccessed).Equal(now.Add(-2 * time.Minute))
	gt.Value(t, items[2].LastAccessed).Equal(now)
}

func TestUsageIndexer(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	uc := usecase.New(repo)

	path := filepath.Join(t.TempDir(), "main.go")
	gt.NoError(t, os.WriteFile(path, []byte("package main"), 0o600)).Required()

	var out bytes.Buffer
	handler := cli.UsageIndexer(uc, "watch-1", &out)

	gt.NoError(t, handler(ctx, watcher.Event{Path: path, Op: watcher.OpCreated})).Required()
	gt.NoError(t, handler(ctx, watcher.Event{Path: path, Op: watcher.OpModified})).Required()
	gt.NoError(t, handler(ctx, watcher.Event{Path: path, Op: watcher.OpRemoved})).Required()

	stats, err := uc.Usage.Stats(ctx)
	gt.NoError(t, err).Required()
	gt.Number(t, stats.Entries).Equal(1)

	abs, err := filepath.Abs(path)
	gt.NoError(t, err).Required()
	entry, err := repo.Usage().Get(ctx, abs)
	gt.NoError(t, err).Required()
	gt.Number(t, entry.AccessCount).Equal(2)
	gt.Value(t, entry.FileType).Equal("go")
	gt.String(t, out.String()).Contains("modified")
}
