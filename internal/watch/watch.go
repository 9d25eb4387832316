// Package watch re-runs a callback whenever files under a directory tree
// change, batching bursts of events.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change is one path touched during a batch. Op accumulates every
// operation seen for the path, so a file created and then written has
// both Create and Write set.
type Change struct {
	Path string
	Op   fsnotify.Op
}

// Handler receives the changes of one debounced batch, sorted by path.
type Handler func(changes []Change)

type Options struct {
	// Debounce is how long to wait for more changes before calling the
	// handler. Default: 100ms
	Debounce time.Duration
	// Ignore holds base-name glob patterns; matching files and directories
	// are skipped.
	Ignore []string
	Logger *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Debounce: 100 * time.Millisecond,
		Ignore:   []string{".git", ".*.swp", "*~", ".tmp-*"},
	}
}

// Watcher watches a directory tree. The handler is called from a single
// goroutine.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	handler  Handler
	debounce time.Duration
	ignore   []string
	log      *slog.Logger

	changes  chan Change
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(root string, handler Handler, opts *Options) (*Watcher, error) {
	if opts == nil {
		d := DefaultOptions()
		opts = &d
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultOptions().Debounce
	}
	return &Watcher{
		root:     root,
		fsw:      fsw,
		handler:  handler,
		debounce: debounce,
		ignore:   opts.Ignore,
		log:      log,
		changes:  make(chan Change, 256),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the tree and begins delivering batches until ctx is
// canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop ends watching and waits for the handler goroutine to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.ignore {
		if base == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.shouldIgnore(event.Name) || event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			// new directories join the watch set
			if event.Has(fsnotify.Create) {
				if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.log.Warn("watch new directory", "path", event.Name, "err", err)
					}
				}
			}
			select {
			case w.changes <- Change{Path: event.Name, Op: event.Op}:
			default:
				// buffer full; the pending batch already triggers a run
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "err", err)
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	batch := map[string]fsnotify.Op{}
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if len(batch) == 0 || w.handler == nil {
			return
		}
		changes := make([]Change, 0, len(batch))
		for p, op := range batch {
			changes = append(changes, Change{Path: p, Op: op})
		}
		sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
		batch = map[string]fsnotify.Op{}
		w.handler(changes)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case c := <-w.changes:
			batch[c.Path] |= c.Op
			// every event restarts the window on a fresh timer
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C
		case <-timerC:
			flush()
		}
	}
}
