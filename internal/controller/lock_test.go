package controller

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "podmpd.lock")

	f, err := acquireLock(path)
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}

	_, err = acquireLock(path)
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second acquireLock error = %v, want ErrAlreadyActive", err)
	}
	if !strings.Contains(err.Error(), strconv.Itoa(os.Getpid())) {
		t.Errorf("error %q does not name the holder pid", err)
	}

	if err := releaseLock(f); err != nil {
		t.Fatalf("releaseLock: %v", err)
	}
	f2, err := acquireLock(path)
	if err != nil {
		t.Fatalf("acquireLock after release: %v", err)
	}
	releaseLock(f2)
}

func TestReleaseLockNil(t *testing.T) {
	if err := releaseLock(nil); err != nil {
		t.Errorf("releaseLock(nil) = %v", err)
	}
}

func TestLockMissingDirectory(t *testing.T) {
	_, err := acquireLock(filepath.Join(t.TempDir(), "missing", "podmpd.lock"))
	if err == nil || errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("error = %v, want open failure", err)
	}
}
