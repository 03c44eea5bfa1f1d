package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/service/watcher"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	gt.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755)).Required()
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o644)).Required()
}

func TestWalk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "notes")
	writeFile(t, filepath.Join(dir, "b.bin"), "binary")
	writeFile(t, filepath.Join(dir, ".hidden.md"), "hidden")
	writeFile(t, filepath.Join(dir, "sub", "c.go"), "package c")
	writeFile(t, filepath.Join(dir, ".git", "d.md"), "ignored")

	w, err := watcher.New()
	gt.NoError(t, err).Required()
	defer func() { _ = w.Close() }()

	var seen []string
	err = w.Walk(context.Background(), dir, func(ctx context.Context, ev watcher.Event) error {
		gt.Value(t, ev.Op).Equal(watcher.OpCreated)
		rel, err := filepath.Rel(dir, ev.Path)
		gt.NoError(t, err)
		seen = append(seen, rel)
		return nil
	})
	gt.NoError(t, err).Required()

	slices.Sort(seen)
	gt.Value(t, seen).Equal([]string{"a.md", filepath.Join("sub", "c.go")})
}

func TestWalk_AllExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "notes")
	writeFile(t, filepath.Join(dir, "b.bin"), "binary")

	w, err := watcher.New(watcher.WithExtensions())
	gt.NoError(t, err).Required()
	defer func() { _ = w.Close() }()

	var n int
	gt.NoError(t, w.Walk(context.Background(), dir, func(ctx context.Context, ev watcher.Event) error {
		n++
		return nil
	})).Required()
	gt.Value(t, n).Equal(2)
}

func TestRun_ReportsNewFiles(t *testing.T) {
	dir := t.TempDir()

	w, err := watcher.New(watcher.WithExtensions(".md"))
	gt.NoError(t, err).Required()
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan watcher.Event, 64)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, dir, func(ctx context.Context, ev watcher.Event) error {
			events <- ev
			return nil
		})
	}()

	target := filepath.Join(dir, "fresh.md")
	deadline := time.After(5 * time.Second)
	var got watcher.Event
wait:
	for {
		writeFile(t, filepath.Join(dir, "ignored.bin"), "x")
		writeFile(t, target, "content")
		select {
		case ev := <-events:
			got = ev
			break wait
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("no event received")
		}
	}

	gt.Value(t, got.Path).Equal(target)
	gt.Bool(t, got.Op == watcher.OpCreated || got.Op == watcher.OpModified).True()

	cancel()
	select {
	case err := <-done:
		gt.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
