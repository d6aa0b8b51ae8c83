package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// waitEvent returns the first event for which accept is true.
func waitEvent(t *testing.T, w *Watcher, accept func(string) bool) string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case p := <-w.Events():
			if accept(p) {
				return p
			}
		case <-deadline:
			t.Fatal("timed out waiting for watcher event")
			return ""
		}
	}
}

func is(path string) func(string) bool {
	return func(p string) bool { return p == path }
}

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

func TestWatcherReportsWrites(t *testing.T) {
	for _, polling := range []bool{false, true} {
		name := "fsnotify"
		if polling {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			w, err := New(dir, Options{ForcePolling: polling, PollInterval: 20 * time.Millisecond})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer w.Close()
			if polling && !w.Polling() {
				t.Fatal("ForcePolling watcher is not polling")
			}

			target := filepath.Join(dir, "pid")
			if err := os.WriteFile(target, []byte("123\n"), 0o644); err != nil {
				t.Fatal(err)
			}
			waitEvent(t, w, is(target))
		})
	}
}

func TestWatcherMatchFilters(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, Options{
		Match: func(p string) bool { return strings.HasSuffix(p, ".flac") },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	os.WriteFile(filepath.Join(dir, "cover.jpg"), []byte("x"), 0o644)
	song := filepath.Join(dir, "song.flac")
	os.WriteFile(song, []byte("x"), 0o644)

	got := waitEvent(t, w, func(string) bool { return true })
	if got != song {
		t.Fatalf("first event = %q, want %q", got, song)
	}
}

func TestWatcherRecursiveNewDirectory(t *testing.T) {
	for _, polling := range []bool{false, true} {
		t.Run(map[bool]string{false: "fsnotify", true: "polling"}[polling], func(t *testing.T) {
			dir := t.TempDir()
			w, err := New(dir, Options{Recursive: true, ForcePolling: polling, PollInterval: 20 * time.Millisecond})
			if err != nil {
				t.Fatal(err)
			}
			defer w.Close()

			album := filepath.Join(dir, "artist", "album")
			if err := os.MkdirAll(album, 0o755); err != nil {
				t.Fatal(err)
			}
			// Give the watcher a moment to pick up the new directories.
			time.Sleep(100 * time.Millisecond)
			track := filepath.Join(album, "01.mp3")
			if err := os.WriteFile(track, []byte("id3"), 0o644); err != nil {
				t.Fatal(err)
			}
			waitEvent(t, w, is(track))
		})
	}
}

func TestWatcherReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "old.ogg")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := New(dir, Options{ForcePolling: true, PollInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	os.Remove(target)
	waitEvent(t, w, is(target))
}

func TestPollingSeesChangesRightAfterNew(t *testing.T) {
	changes := map[string]func(dir string) string{
		"create": func(dir string) string {
			p := filepath.Join(dir, "pid")
			os.WriteFile(p, []byte("123\n"), 0o644)
			return p
		},
		"grow": func(dir string) string {
			p := filepath.Join(dir, "state")
			os.WriteFile(p, []byte("volume: 100\nrepeat: 0\n"), 0o644)
			return p
		},
		"remove": func(dir string) string {
			p := filepath.Join(dir, "state")
			os.Remove(p)
			return p
		},
	}
	for name, change := range changes {
		t.Run(name, func(t *testing.T) {
			for range 10 {
				dir := t.TempDir()
				if err := os.WriteFile(filepath.Join(dir, "state"), []byte("x"), 0o644); err != nil {
					t.Fatal(err)
				}
				w, err := New(dir, Options{ForcePolling: true, PollInterval: 20 * time.Millisecond})
				if err != nil {
					t.Fatal(err)
				}
				waitEvent(t, w, is(change(dir)))
				w.Close()
			}
		})
	}
}

func TestWatcherMissingRootFallsBackToPolling(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "not-yet"), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	if !w.Polling() {
		t.Error("expected polling for a missing root")
	}
}

func TestWatcherCloseIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// ///////////////////////////////////////////////
// WaitForFile
// ///////////////////////////////////////////////

func TestWaitForFileAlreadyPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pid")
	os.WriteFile(path, []byte("42\n"), 0o644)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := WaitForFile(ctx, path, 50*time.Millisecond); err != nil {
		t.Fatalf("WaitForFile: %v", err)
	}
}

func TestWaitForFileAppearsLater(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pid")
	time.AfterFunc(100*time.Millisecond, func() {
		// Empty first, like a writer that has opened but not yet written.
		os.WriteFile(path, nil, 0o644)
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(path, []byte("42\n"), 0o644)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	if err := WaitForFile(ctx, path, time.Second); err != nil {
		t.Fatalf("WaitForFile: %v", err)
	}
	if time.Since(start) < 140*time.Millisecond {
		t.Error("WaitForFile returned before the file had content")
	}
}

func TestWaitForFileMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "modules", "mpd")
	path := filepath.Join(dir, "pid")
	time.AfterFunc(50*time.Millisecond, func() {
		os.MkdirAll(dir, 0o755)
		os.WriteFile(path, []byte("7\n"), 0o644)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := WaitForFile(ctx, path, 20*time.Millisecond); err != nil {
		t.Fatalf("WaitForFile: %v", err)
	}
}

func TestWaitForFileTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := WaitForFile(ctx, filepath.Join(t.TempDir(), "pid"), 20*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
}
