package index

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// EmbeddingUpdater is the slice of the embedding index the watcher needs:
// drop a file's chunks, re-embed fresh chunks, and persist. Ready reports
// whether a prior full index exists; without one the watcher skips updates.
type EmbeddingUpdater interface {
	Ready() bool
	RemoveFile(rel string)
	ReindexFile(ctx context.Context, rel string, chunks []*Chunk) error
	Save() error
}

// Watcher debounces filesystem events and applies incremental updates to
// the embedding index. Bursts of saves collapse into one flush.
type Watcher struct {
	root     string
	patterns []string
	ignores  []string
	debounce time.Duration
	updater  EmbeddingUpdater
	debug    bool

	mu      sync.Mutex
	pending map[string]pendingEvent
	timer   *time.Timer
	fsw     *fsnotify.Watcher
	done    chan struct{}
}

type pendingEvent struct {
	op   string
	path string
}

// DefaultWatchPatterns cover the source families the chunker understands.
var DefaultWatchPatterns = []string{
	"**/*.ts", "**/*.tsx", "**/*.js", "**/*.jsx", "**/*.mjs", "**/*.py",
}

// DefaultIgnorePatterns exclude build output and vendored trees.
var DefaultIgnorePatterns = []string{
	"**/node_modules/**", "**/dist/**", "**/build/**", "**/vendor/**",
	"**/.git/**", "**/coverage/**", "**/__pycache__/**", "**/.sidekick/**",
}

// NewWatcher builds a watcher over root feeding updater. A zero debounce
// defaults to 500ms.
func NewWatcher(root string, updater EmbeddingUpdater, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		root:     root,
		patterns: DefaultWatchPatterns,
		ignores:  DefaultIgnorePatterns,
		debounce: debounce,
		updater:  updater,
		pending:  make(map[string]pendingEvent),
		done:     make(chan struct{}),
	}
}

// Start registers every non-ignored directory under root and begins
// processing events until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	err = filepath.WalkDir(w.root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if ignoredDir(entry.Name()) && path != w.root {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return err
	}

	go w.run(ctx)
	return nil
}

// Stop halts event processing, cancels any scheduled flush, and releases
// the underlying watcher. No updater call starts after Stop returns.
func (w *Watcher) Stop() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pending = make(map[string]pendingEvent)
	w.mu.Unlock()
	if w.fsw != nil {
		w.fsw.Close()
	}
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[watcher] error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	abs := event.Name
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !ignoredDir(filepath.Base(abs)) {
			w.fsw.Add(abs)
		}
		return
	}
	if !w.matches(abs) {
		return
	}

	op := "change"
	switch {
	case event.Op&fsnotify.Create != 0:
		op = "add"
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = "delete"
	case event.Op&fsnotify.Write == 0:
		return
	}

	w.mu.Lock()
	w.pending[op+":"+abs] = pendingEvent{op: op, path: abs}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
	w.mu.Unlock()
}

func (w *Watcher) matches(abs string) bool {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.ignores {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}
	for _, pattern := range w.patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// flush processes the queued batch: every batched path loses its existing
// chunks; changed and added paths are re-chunked and re-embedded; deleted
// paths are simply dropped. Skipped entirely when no prior index exists.
func (w *Watcher) flush() {
	select {
	case <-w.done:
		return
	default:
	}
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]pendingEvent)
	w.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	if !w.updater.Ready() {
		if w.debug {
			log.Printf("[watcher] no embedding index yet, skipping %d events", len(batch))
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	updated := 0
	for _, ev := range batch {
		rel, err := filepath.Rel(w.root, ev.path)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		w.updater.RemoveFile(rel)
		if ev.op == "delete" {
			updated++
			continue
		}
		data, err := os.ReadFile(ev.path)
		if err != nil {
			continue
		}
		chunks := ChunkFile(rel, string(data))
		if err := w.updater.ReindexFile(ctx, rel, chunks); err != nil {
			log.Printf("[watcher] reindex %s: %v", rel, err)
			continue
		}
		updated++
	}
	if updated > 0 {
		if err := w.updater.Save(); err != nil {
			log.Printf("[watcher] persist index: %v", err)
		}
	}
	log.Printf("[watcher] flushed %d events, %d files updated", len(batch), updated)
}
