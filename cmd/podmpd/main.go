// Package main implements podmpd, the command-line host for the music daemon
// controller. Each subcommand runs one controller phase; `podmpd activate`
// runs the whole lifecycle and stays in the foreground like a shell would.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags:
//   - goreleaser: -X main.version={{.Version}}  -> "0.1.0"
//   - make build: -X main.version=$(VERSION)    -> "0.0.0-dev+05ffee5"
//
// When ldflags are not set (bare go build), resolveVersion reads the VCS info
// that Go embeds automatically.
var version = "dev"

// resolveVersion returns the build version string. If [version] was set via
// ldflags it is returned as-is; otherwise the embedded VCS revision and dirty
// state are used to construct a "dev+<hash>" tag.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Exit Codes
// ///////////////////////////////////////////////

// exitError carries a specific process exit status. `podmpd send` uses it to
// return the command channel's failure stage as the status.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exitCode maps an error returned by the root command to a process status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	a := newApp(os.Stdout, os.Stderr, os.Getenv)
	err := a.execute(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "podmpd: %v\n", err)
	}
	os.Exit(exitCode(err))
}
