package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

type Operation string

const (
	OpCreated  Operation = "created"
	OpModified Operation = "modified"
	OpRemoved  Operation = "removed"
)

// Event is a change to a watched file
type Event struct {
	Path string
	Op   Operation
}

// Handler processes one event. A returned error is logged and watching continues.
type Handler func(ctx context.Context, ev Event) error

// DefaultExtensions are the text-like files fed into the usage index
var DefaultExtensions = []string{
	".md", ".txt", ".go", ".py", ".js", ".ts", ".json", ".yaml", ".yml", ".toml",
}

// Watcher reports file changes under a directory tree
type Watcher struct {
	fsw        *fsnotify.Watcher
	extensions []string
}

type Option func(*Watcher)

// WithExtensions restricts events to files with the given extensions.
// No extensions means every file.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.extensions = exts
	}
}

func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create file watcher")
	}

	w := &Watcher{
		fsw:        fsw,
		extensions: DefaultExtensions,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Watcher) Close() error {
	if err := w.fsw.Close(); err != nil {
		return goerr.Wrap(err, "failed to close file watcher")
	}
	return nil
}

// Walk calls handler with OpCreated for every matching file already under dir
func (w *Watcher) Walk(ctx context.Context, dir string, handler Handler) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return goerr.Wrap(err, "failed to walk directory", goerr.V("path", path))
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && isHidden(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !w.matches(path) {
			return nil
		}
		w.dispatch(ctx, handler, Event{Path: path, Op: OpCreated})
		return nil
	})
}

// Run watches dir and its subdirectories until ctx is cancelled or the watcher is closed.
// Directories created while running are added to the watch list.
func (w *Watcher) Run(ctx context.Context, dir string, handler Handler) error {
	if err := w.addTree(dir); err != nil {
		return err
	}

	logger := logging.From(ctx)
	logger.Info("watching directory", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}

			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if !isHidden(ev.Name) {
						if err := w.addTree(ev.Name); err != nil {
							logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
						}
					}
					continue
				}
			}

			op, ok := operationOf(ev.Op)
			if !ok || !w.matches(ev.Name) {
				continue
			}
			w.dispatch(ctx, handler, Event{Path: ev.Name, Op: op})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return goerr.Wrap(err, "failed to walk directory", goerr.V("path", path))
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return goerr.Wrap(err, "failed to watch directory", goerr.V("path", path))
		}
		return nil
	})
}

func (w *Watcher) dispatch(ctx context.Context, handler Handler, ev Event) {
	if err := handler(ctx, ev); err != nil {
		logging.From(ctx).Warn("failed to handle file event",
			"path", ev.Path,
			"op", ev.Op,
			"error", err,
		)
	}
}

func (w *Watcher) matches(path string) bool {
	if isHidden(path) {
		return false
	}
	if len(w.extensions) == 0 {
		return true
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(path)))
}

func operationOf(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreated, true
	case op.Has(fsnotify.Write):
		return OpModified, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpRemoved, true
	default:
		return "", false
	}
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
