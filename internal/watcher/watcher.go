// Package watcher monitors the notes sync directory and keeps imported notes
// in step with the markdown files on disk.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/sgx-labs/scout/internal/indexer"
	"github.com/sgx-labs/scout/internal/store"
)

// DefaultDebounce is how long changes are collected before they are synced.
const DefaultDebounce = 2 * time.Second

// Watcher syncs markdown changes under a directory into the note store.
type Watcher struct {
	db       *store.DB
	dir      string
	debounce time.Duration
	log      zerolog.Logger
	ready    func()
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) { w.log = l.With().Str("component", "watcher").Logger() }
}

// WithReady registers a callback invoked once all directories are watched.
func WithReady(fn func()) Option {
	return func(w *Watcher) { w.ready = fn }
}

// New creates a Watcher for dir.
func New(db *store.DB, dir string, opts ...Option) *Watcher {
	w := &Watcher{db: db, dir: dir, debounce: DefaultDebounce, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done. Changed files are upserted after the
// debounce window; removed or renamed-away files are deleted right away.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dirs := walkDirs(w.dir)
	for _, d := range dirs {
		if err := fw.Add(d); err != nil {
			w.log.Warn().Err(err).Str("dir", d).Msg("could not watch directory")
		}
	}
	w.log.Info().Int("dirs", len(dirs)).Str("root", w.dir).Msg("watching")
	if w.ready != nil {
		w.ready()
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]bool)
		timer   *time.Timer
	)

	flush := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]bool)
		mu.Unlock()

		if len(paths) > 0 {
			w.syncFiles(paths)
		}
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if !indexer.IsMarkdown(event.Name) {
				// Watch new directories
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !indexer.SkipDirs[filepath.Base(event.Name)] {
						if err := fw.Add(event.Name); err != nil {
							w.log.Warn().Err(err).Str("dir", event.Name).Msg("could not watch directory")
						}
					}
				}
				continue
			}

			// Rename events refer to the old path.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				w.remove(event.Name)
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				mu.Lock()
				pending[event.Name] = true
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(w.debounce, flush)
				mu.Unlock()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) syncFiles(paths []string) {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				// Gone before the debounce flush (common on renames).
				w.remove(p)
			} else {
				w.log.Error().Err(err).Str("path", p).Msg("stat failed")
			}
			continue
		}
		if info.IsDir() {
			continue
		}

		created, err := indexer.ImportFile(w.db, w.dir, p)
		if err != nil {
			w.log.Warn().Err(err).Str("path", p).Msg("import failed")
			continue
		}
		w.log.Info().Str("path", relativePath(p, w.dir)).Bool("created", created).Msg("note synced")
	}
}

func (w *Watcher) remove(path string) {
	if err := indexer.RemoveFile(w.db, w.dir, path); err != nil {
		w.log.Error().Err(err).Str("path", path).Msg("remove failed")
		return
	}
	w.log.Debug().Str("path", relativePath(path, w.dir)).Msg("note removed")
}

func walkDirs(root string) []string {
	var dirs []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && indexer.SkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs
}

func relativePath(filePath, dir string) string {
	rel, err := filepath.Rel(dir, filePath)
	if err != nil {
		return filePath
	}
	return filepath.ToSlash(rel)
}
