// Package watch reports file changes below a directory using fsnotify, with
// a polling fallback for filesystems where inotify is unavailable.
package watch

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the stat interval used in polling mode.
const DefaultPollInterval = 2 * time.Second

// ///////////////////////////////////////////////
// Options
// ///////////////////////////////////////////////

// Options configures a [Watcher].
type Options struct {
	// Recursive watches subdirectories, including ones created later.
	Recursive bool
	// Match filters reported paths. Nil reports every file.
	Match func(path string) bool
	// PollInterval is the scan interval in polling mode.
	PollInterval time.Duration
	// ForcePolling skips fsnotify entirely.
	ForcePolling bool
}

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher monitors a directory tree for created, written, removed or renamed
// files.
type Watcher struct {
	// root is the watched directory.
	root string
	opts Options
	// events delivers changed file paths. Sends never block: when the
	// consumer lags, events are dropped and the consumer is expected to
	// re-check the state it cares about.
	events chan string
	// done is closed by [Watcher.Close] to signal goroutines to exit.
	done chan struct{}
	// mu guards fsw, which the event loop clears on fallback.
	mu  sync.Mutex
	fsw *fsnotify.Watcher
	// once ensures [Watcher.Close] is idempotent.
	once sync.Once
	// polling is true once the watcher has fallen back to scanning.
	polling atomic.Bool
}

// New starts watching root. It never fails because fsnotify is missing or
// root does not exist yet; it polls instead.
func New(root string, opts Options) (*Watcher, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	w := &Watcher{
		root:   filepath.Clean(root),
		opts:   opts,
		events: make(chan string, 64),
		done:   make(chan struct{}),
	}

	if opts.ForcePolling {
		w.startPolling()
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	if err := w.addTree(fsw, w.root); err != nil {
		slog.Info("cannot watch directory, falling back to polling", "path", w.root, "error", err)
		fsw.Close()
		w.startPolling()
		return w, nil
	}

	w.fsw = fsw
	go w.watch(fsw)
	return w, nil
}

// Events returns the channel of changed file paths.
func (w *Watcher) Events() <-chan string {
	return w.events
}

// Polling reports whether the watcher is scanning instead of using fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
			w.fsw = nil
		}
	})
	return err
}

// addTree adds dir, and every directory below it when recursive.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	if !w.opts.Recursive {
		return fsw.Add(dir)
	}
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, switching to polling", "path", w.root, "error", err)
			w.mu.Lock()
			if w.fsw != nil {
				w.fsw.Close()
				w.fsw = nil
			}
			w.mu.Unlock()
			w.startPolling()
			return
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
		return
	}
	if w.opts.Recursive && event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fsw, event.Name); err != nil {
				slog.Debug("cannot watch new directory", "path", event.Name, "error", err)
			}
			// Files may have landed before the watch was in place.
			filepath.WalkDir(event.Name, func(p string, d fs.DirEntry, err error) error {
				if err == nil && !d.IsDir() {
					w.notify(p)
				}
				return nil
			})
			return
		}
	}
	w.notify(event.Name)
}

func (w *Watcher) notify(path string) {
	if w.opts.Match != nil && !w.opts.Match(path) {
		return
	}
	select {
	case w.events <- path:
	default:
	}
}

// ///////////////////////////////////////////////
// Polling
// ///////////////////////////////////////////////

type fileStamp struct {
	mod  time.Time
	size int64
}

// startPolling takes the baseline snapshot before returning so that changes
// made right after it are compared against it.
func (w *Watcher) startPolling() {
	w.polling.Store(true)
	last := w.scan()
	go w.poll(last)
}

// poll rescans the tree every PollInterval and reports files whose size or
// modification time changed, appeared or disappeared since last.
func (w *Watcher) poll(last map[string]fileStamp) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			cur := w.scan()
			for p, st := range cur {
				if prev, ok := last[p]; !ok || prev != st {
					w.notify(p)
				}
			}
			for p := range last {
				if _, ok := cur[p]; !ok {
					w.notify(p)
				}
			}
			last = cur
		}
	}
}

func (w *Watcher) scan() map[string]fileStamp {
	out := make(map[string]fileStamp)
	record := func(p string, d fs.DirEntry) {
		if info, err := d.Info(); err == nil {
			out[p] = fileStamp{mod: info.ModTime(), size: info.Size()}
		}
	}

	if !w.opts.Recursive {
		entries, err := os.ReadDir(w.root)
		if err != nil {
			return out
		}
		for _, e := range entries {
			if !e.IsDir() {
				record(filepath.Join(w.root, e.Name()), e)
			}
		}
		return out
	}

	filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			record(p, d)
		}
		return nil
	})
	return out
}
