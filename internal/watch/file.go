package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// WaitForFile blocks until path exists and is non-empty, or ctx is done.
// The daemon writes its pid file after detaching, so an empty file means the
// write is still in progress.
func WaitForFile(ctx context.Context, path string, pollInterval time.Duration) error {
	path = filepath.Clean(path)
	w, err := New(filepath.Dir(path), Options{
		Match:        func(p string) bool { return p == path },
		PollInterval: pollInterval,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	// Recheck on a timer as well: the parent directory may not exist yet, in
	// which case only polling can see the file appear.
	recheck := pollInterval
	if recheck <= 0 {
		recheck = DefaultPollInterval
	}
	ticker := time.NewTicker(recheck)
	defer ticker.Stop()

	for {
		if fileReady(path) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.Events():
		case <-ticker.C:
		}
	}
}

func fileReady(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
