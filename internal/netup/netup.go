// Package netup brings up the loopback interface the daemon binds to.
package netup

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Loopback interface name and address configured before each daemon start.
const (
	Interface = "lo"
	Address   = "127.0.0.1"
)

// runFn executes the interface tool. Tests replace it.
var runFn = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Loopback runs `<ifconfig> lo 127.0.0.1` and waits for it to exit.
//
// The result is advisory. Callers log a non-nil error and carry on: the
// interface is usually already up, and a missing tool is not fatal.
func Loopback(ctx context.Context, ifconfig string) error {
	out, err := runFn(ctx, ifconfig, Interface, Address)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s %s %s: %w: %s", ifconfig, Interface, Address, err, msg)
		}
		return fmt.Errorf("%s %s %s: %w", ifconfig, Interface, Address, err)
	}
	return nil
}
