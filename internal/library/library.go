// Package library watches the music directory and asks for a database
// update after audio files change.
//
// Bursts of changes (an album being copied in, a tag editor rewriting a
// folder) are coalesced: the trigger runs once, Debounce after the last
// matching change.
package library

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/podmpd/internal/watch"
)

// DefaultDebounce is used when Options.Debounce is not positive.
const DefaultDebounce = 5 * time.Second

// Options configures a [Watcher].
type Options struct {
	// Patterns are doublestar globs matched against slash-separated paths
	// relative to the music directory. Empty matches every file.
	Patterns []string
	// Debounce is the quiet period before the trigger runs.
	Debounce time.Duration
	// PollInterval and ForcePolling are passed to the file watcher.
	PollInterval time.Duration
	ForcePolling bool
}

// Watcher runs a trigger after matching files below the music directory change.
type Watcher struct {
	fw       *watch.Watcher
	trigger  func()
	debounce time.Duration

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Start watches musicDir recursively and calls trigger from the watcher's
// goroutine. Patterns are validated up front.
func Start(musicDir string, opts Options, trigger func()) (*Watcher, error) {
	for _, p := range opts.Patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid library pattern %q", p)
		}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	fw, err := watch.New(musicDir, watch.Options{
		Recursive:    true,
		Match:        Matcher(musicDir, opts.Patterns),
		PollInterval: opts.PollInterval,
		ForcePolling: opts.ForcePolling,
	})
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", musicDir, err)
	}

	w := &Watcher{
		fw:       fw,
		trigger:  trigger,
		debounce: opts.Debounce,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()

	slog.Info("library watcher started", "dir", musicDir, "polling", fw.Polling(), "debounce", opts.Debounce)
	return w, nil
}

// Close stops the watcher. A pending trigger is dropped.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	pending := 0

	for {
		select {
		case <-w.done:
			return
		case p := <-w.fw.Events():
			pending++
			slog.Debug("library change", "path", p)
			timer.Reset(w.debounce)
		case <-timer.C:
			slog.Info("library changed, requesting update", "changes", pending)
			pending = 0
			w.trigger()
		}
	}
}

// Matcher returns a filter reporting whether an absolute path below root
// matches any of patterns. Paths outside root never match.
func Matcher(root string, patterns []string) func(string) bool {
	root = filepath.Clean(root)
	return func(p string) bool {
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return false
		}
		if len(patterns) == 0 {
			return true
		}
		rel = filepath.ToSlash(rel)
		for _, pat := range patterns {
			if ok, _ := doublestar.Match(pat, rel); ok {
				return true
			}
		}
		return false
	}
}
