package library

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestMatcher(t *testing.T) {
	root := "/home/u/podzilla/modules/mpd/music"
	match := Matcher(root, []string{"**/*.mp3", "**/*.flac"})

	tests := []struct {
		path string
		want bool
	}{
		{root + "/song.mp3", true},
		{root + "/artist/album/01.flac", true},
		{root + "/artist/cover.jpg", false},
		{root + "/notes.txt", false},
		{root, false},
		{"/home/u/elsewhere/song.mp3", false},
	}
	for _, tt := range tests {
		if got := match(tt.path); got != tt.want {
			t.Errorf("match(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestMatcherNoPatternsMatchesAll(t *testing.T) {
	match := Matcher("/music", nil)
	if !match("/music/anything.bin") {
		t.Error("empty pattern list should match every file below root")
	}
	if match("/other/anything.bin") {
		t.Error("paths outside root should never match")
	}
}

func TestStartRejectsBadPattern(t *testing.T) {
	_, err := Start(t.TempDir(), Options{Patterns: []string{"[unclosed"}}, func() {})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func startCounting(t *testing.T, dir string, polling bool) (*Watcher, *atomic.Int32) {
	t.Helper()
	var n atomic.Int32
	w, err := Start(dir, Options{
		Patterns:     []string{"**/*.mp3"},
		Debounce:     200 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
		ForcePolling: polling,
	}, func() { n.Add(1) })
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, &n
}

func waitCount(t *testing.T, n *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if n.Load() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("trigger count = %d, want %d", n.Load(), want)
}

func TestBurstTriggersOnce(t *testing.T) {
	for _, polling := range []bool{false, true} {
		t.Run(map[bool]string{false: "fsnotify", true: "polling"}[polling], func(t *testing.T) {
			dir := t.TempDir()
			_, n := startCounting(t, dir, polling)

			for i := range 5 {
				name := filepath.Join(dir, "track"+string(rune('a'+i))+".mp3")
				if err := os.WriteFile(name, []byte("id3"), 0o644); err != nil {
					t.Fatal(err)
				}
				time.Sleep(30 * time.Millisecond)
			}

			waitCount(t, n, 1)
			// Well past another debounce window: still one trigger.
			time.Sleep(500 * time.Millisecond)
			if got := n.Load(); got != 1 {
				t.Errorf("trigger count = %d, want 1", got)
			}
		})
	}
}

func TestNonMatchingFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	_, n := startCounting(t, dir, false)

	os.WriteFile(filepath.Join(dir, "cover.jpg"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)

	time.Sleep(600 * time.Millisecond)
	if got := n.Load(); got != 0 {
		t.Errorf("trigger count = %d, want 0", got)
	}
}

func TestNewSubdirectoryTriggers(t *testing.T) {
	dir := t.TempDir()
	_, n := startCounting(t, dir, false)

	album := filepath.Join(dir, "artist", "album")
	if err := os.MkdirAll(album, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(album, "01.mp3"), []byte("id3"), 0o644)

	waitCount(t, n, 1)
}

func TestCloseDropsPendingTrigger(t *testing.T) {
	dir := t.TempDir()
	w, n := startCounting(t, dir, false)

	os.WriteFile(filepath.Join(dir, "a.mp3"), []byte("id3"), 0o644)
	time.Sleep(50 * time.Millisecond)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	time.Sleep(400 * time.Millisecond)
	if got := n.Load(); got != 0 {
		t.Errorf("trigger count after Close = %d, want 0", got)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
