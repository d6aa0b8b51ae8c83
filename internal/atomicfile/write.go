// Package atomicfile provides crash-safe file writing using temporary files.
// Readers of a path written here never observe a partially written file.

package atomicfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// linkFn is swapped in tests to simulate filesystems without hard links.
var linkFn = os.Link

// Write atomically replaces path with data. The data is written to a temp
// file in the same directory, synced, chmod'ed to perm and renamed over path.
func Write(path string, data []byte, perm os.FileMode) error {
	tmpName, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// CreateExclusive writes data to path only if path does not exist yet.
//
// The content is staged in a temp file and hard-linked into place, so two
// concurrent callers cannot both win and nobody sees a half-written file.
// When path already exists the returned error satisfies
// errors.Is(err, fs.ErrExist) and the existing file is left untouched.
// Filesystems without hard link support (FAT media) fall back to an
// O_EXCL create, which keeps the exclusivity but not the atomicity.
func CreateExclusive(path string, data []byte, perm os.FileMode) error {
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("create %s: %w", path, fs.ErrExist)
	}

	tmpName, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	defer os.Remove(tmpName)

	linkErr := linkFn(tmpName, path)
	switch {
	case linkErr == nil:
		return nil
	case errors.Is(linkErr, fs.ErrExist):
		return fmt.Errorf("create %s: %w", path, fs.ErrExist)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("create %s: %w", path, fs.ErrExist)
		}
		return fmt.Errorf("create %s (link: %v): %w", path, linkErr, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return f.Close()
}

// writeTemp writes data to a synced temp file next to path and returns its
// name. The temp file is removed again on any failure.
func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	f, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := f.Name()
	var success bool
	defer func() {
		if !success {
			os.Remove(tmpName)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return "", fmt.Errorf("chmod temp file: %w", err)
	}
	success = true
	return tmpName, nil
}
