package controller

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrAlreadyActive is returned by Activate when another controller holds the
// activation lock for the same module directory.
var ErrAlreadyActive = errors.New("controller already active")

// ///////////////////////////////////////////////
// Activation Lock
// ///////////////////////////////////////////////

// acquireLock opens path and takes an exclusive, non-blocking flock(2) on it,
// then records the holder's pid in the file. The returned file must stay open
// for as long as the lock is held.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			if pid := lockHolder(path); pid > 0 {
				return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyActive, pid)
			}
			return nil, ErrAlreadyActive
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return f, nil
}

// releaseLock drops the flock and closes f. The file itself stays; a stale
// lock file is harmless because only the flock counts.
func releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}
	err := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("release lock %s: %w", f.Name(), err)
	}
	return nil
}

func lockHolder(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return pid
}
