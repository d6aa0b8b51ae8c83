package daemon

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mpd")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// ///////////////////////////////////////////////
// Spawn
// ///////////////////////////////////////////////

func TestSpawnRunsBinaryWithConfigPath(t *testing.T) {
	out := filepath.Join(t.TempDir(), "argv")
	bin := writeScript(t, "echo \"$1\" > "+out+"\n")

	h, err := Spawn(context.Background(), bin, "/home/ipod/podzilla/modules/mpd/mpd.conf", 5*time.Second)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if h.PID <= 0 || h.ExitCode != 0 {
		t.Errorf("Handle = %+v", h)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("launcher did not run: %v", err)
	}
	if strings.TrimSpace(string(got)) != "/home/ipod/podzilla/modules/mpd/mpd.conf" {
		t.Errorf("argv[1] = %q", got)
	}
}

func TestSpawnDetachesStreams(t *testing.T) {
	// Writing to the inherited streams must not fail or block.
	bin := writeScript(t, "echo to-stdout; echo to-stderr >&2; read line; exit 0\n")
	if _, err := Spawn(context.Background(), bin, "conf", 5*time.Second); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
}

func TestSpawnReturnsWhenLauncherExitsBeforeDaemon(t *testing.T) {
	// The launcher forks a long-lived child and exits, like a daemonizing mpd.
	pidFile := filepath.Join(t.TempDir(), "pid")
	bin := writeScript(t, "sleep 30 &\necho $! > "+pidFile+"\nexit 0\n")

	start := time.Now()
	if _, err := Spawn(context.Background(), bin, "conf", 5*time.Second); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("Spawn waited for the detached child")
	}
	if pid, err := ReadPID(pidFile); err == nil {
		if p, err := os.FindProcess(pid); err == nil {
			p.Kill()
		}
	}
}

func TestSpawnReportsNonZeroExit(t *testing.T) {
	bin := writeScript(t, "exit 3\n")

	h, err := Spawn(context.Background(), bin, "conf", 5*time.Second)
	if !errors.Is(err, ErrLauncherExit) {
		t.Fatalf("error = %v, want ErrLauncherExit", err)
	}
	if h.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", h.ExitCode)
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Errorf("error does not wrap *exec.ExitError: %v", err)
	}
}

func TestSpawnKillsLauncherOnTimeout(t *testing.T) {
	bin := writeScript(t, "exec sleep 30\n")

	start := time.Now()
	h, err := Spawn(context.Background(), bin, "conf", 200*time.Millisecond)
	if !errors.Is(err, ErrSpawnTimeout) {
		t.Fatalf("error = %v, want ErrSpawnTimeout", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Spawn did not return promptly after timeout")
	}
	if h.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1 for a killed launcher", h.ExitCode)
	}
}

func TestSpawnMissingBinary(t *testing.T) {
	_, err := Spawn(context.Background(), filepath.Join(t.TempDir(), "missing"), "conf", time.Second)
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if errors.Is(err, ErrLauncherExit) || errors.Is(err, ErrSpawnTimeout) {
		t.Errorf("start failure misclassified: %v", err)
	}
}

func TestSpawnUsesCommandHook(t *testing.T) {
	orig := execCommandFn
	defer func() { execCommandFn = orig }()

	var gotName string
	var gotArgs []string
	execCommandFn = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName, gotArgs = name, args
		return exec.CommandContext(ctx, "true")
	}

	if _, err := Spawn(context.Background(), "/usr/bin/mpd", "/x/mpd.conf", time.Second); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if gotName != "/usr/bin/mpd" || len(gotArgs) != 1 || gotArgs[0] != "/x/mpd.conf" {
		t.Errorf("command = %s %v", gotName, gotArgs)
	}
}

// ///////////////////////////////////////////////
// EnsureExecutable
// ///////////////////////////////////////////////

func TestEnsureExecutable(t *testing.T) {
	tests := []struct {
		name        string
		mode        os.FileMode
		wantChanged bool
		wantMode    os.FileMode
	}{
		{"not executable", 0o644, true, 0o744},
		{"no permissions", 0o000, true, 0o700},
		{"group exec only", 0o650, true, 0o750},
		{"already executable", 0o755, false, 0o755},
		{"owner exec only", 0o100, false, 0o100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "mpd")
			if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o600); err != nil {
				t.Fatal(err)
			}
			if err := os.Chmod(path, tt.mode); err != nil {
				t.Fatal(err)
			}

			changed, err := EnsureExecutable(path)
			if err != nil {
				t.Fatalf("EnsureExecutable: %v", err)
			}
			if changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", changed, tt.wantChanged)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != tt.wantMode {
				t.Errorf("mode = %o, want %o", info.Mode().Perm(), tt.wantMode)
			}
		})
	}
}

func TestEnsureExecutableMissingFile(t *testing.T) {
	if _, err := EnsureExecutable(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error = %v, want os.ErrNotExist", err)
	}
}
