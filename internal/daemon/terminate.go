package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

var killFn = unix.Kill

// ErrInvalidPID is returned when the pid file does not hold a single
// positive integer. No signal is sent in that case: 0 and negative values
// would address whole process groups.
var ErrInvalidPID = errors.New("invalid pid")

// ReadPID parses the pid file at path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading pid file: %w", err)
	}
	s := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q in %s", ErrInvalidPID, s, path)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("%w %d in %s", ErrInvalidPID, pid, path)
	}
	return pid, nil
}

// Terminate sends SIGTERM once to the process named by the pid file.
//
// It does not wait for the process to exit, escalate to SIGKILL or remove
// the pid file; the daemon removes its own pid file on a clean exit.
func Terminate(pidPath string) (int, error) {
	pid, err := ReadPID(pidPath)
	if err != nil {
		return 0, err
	}
	if err := killFn(pid, unix.SIGTERM); err != nil {
		return pid, fmt.Errorf("sending SIGTERM to %d: %w", pid, err)
	}
	return pid, nil
}
