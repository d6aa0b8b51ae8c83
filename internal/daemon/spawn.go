// Package daemon starts and stops the music daemon process.
//
// Starting happens in two phases. [Spawn] runs `<binary> <config>` and waits
// for that launcher process to exit, which it does once the daemon has
// detached into the background. [WaitReady] then polls the control port until
// the daemon answers. Stopping reads the pid file the daemon wrote and sends
// it SIGTERM once.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

var execCommandFn = exec.CommandContext

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

var (
	// ErrSpawnTimeout is returned when the launcher is still running when the
	// spawn timeout expires. The launcher has been killed by then.
	ErrSpawnTimeout = errors.New("daemon launcher timed out")
	// ErrLauncherExit is returned when the launcher exits with a non-zero status.
	ErrLauncherExit = errors.New("daemon launcher failed")
)

// ///////////////////////////////////////////////
// Spawn
// ///////////////////////////////////////////////

// Handle describes a finished launcher process.
type Handle struct {
	// PID is the launcher's process id, not the detached daemon's.
	PID int
	// ExitCode is the launcher's exit status, or -1 if it was killed.
	ExitCode int
	// Duration is the time from start to exit.
	Duration time.Duration
}

// Spawn starts `<binary> <configPath>` with its standard streams on
// /dev/null and waits up to timeout for it to exit.
//
// A zero timeout waits only as long as ctx allows. Errors are meant to be
// logged: the daemon may already be running from an earlier activation, in
// which case the launcher fails and the readiness probe still succeeds.
func Spawn(ctx context.Context, binary, configPath string, timeout time.Duration) (Handle, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd, cleanup, err := newLauncherCommand(ctx, binary, configPath)
	if err != nil {
		return Handle{}, err
	}
	defer cleanup()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Handle{}, fmt.Errorf("starting %s: %w", binary, err)
	}
	h := Handle{PID: cmd.Process.Pid}

	waitErr := cmd.Wait()
	h.Duration = time.Since(start)
	h.ExitCode = cmd.ProcessState.ExitCode()

	if waitErr == nil {
		return h, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return h, fmt.Errorf("%w after %s (pid %d)", ErrSpawnTimeout, h.Duration.Round(time.Millisecond), h.PID)
		}
		return h, ctxErr
	}
	return h, fmt.Errorf("%w: %s exited with status %d: %w", ErrLauncherExit, binary, h.ExitCode, waitErr)
}

func newLauncherCommand(ctx context.Context, binary, configPath string) (*exec.Cmd, func(), error) {
	cmd := execCommandFn(ctx, binary, configPath)
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", os.DevNull, err)
	}

	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	return cmd, func() {
		_ = devNull.Close()
	}, nil
}

// ///////////////////////////////////////////////
// EnsureExecutable
// ///////////////////////////////////////////////

// EnsureExecutable grants the owner read, write and execute permission on
// path when the owner-execute bit is missing. It reports whether the mode was
// changed. Media synced from other systems often loses the bit.
func EnsureExecutable(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	perm := info.Mode().Perm()
	if perm&0o100 != 0 {
		return false, nil
	}
	if err := os.Chmod(path, perm|0o700); err != nil {
		return false, fmt.Errorf("chmod %s: %w", path, err)
	}
	return true, nil
}
