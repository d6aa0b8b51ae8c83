package mpdproto

import (
	"fmt"
	"strconv"
)

// ///////////////////////////////////////////////
// Stage
// ///////////////////////////////////////////////

// Stage identifies where a command failed before any reply could be read.
type Stage int

const (
	// StageResolve covers host name and port lookup.
	StageResolve Stage = iota + 1
	// StageSocket covers creating the TCP socket.
	StageSocket
	// StageConnect covers connecting and writing the command.
	StageConnect
)

func (s Stage) String() string {
	switch s {
	case StageResolve:
		return "resolve"
	case StageSocket:
		return "socket"
	case StageConnect:
		return "connect"
	default:
		return "stage(" + strconv.Itoa(int(s)) + ")"
	}
}

// ///////////////////////////////////////////////
// Result
// ///////////////////////////////////////////////

// Kind tags the outcome of [Client.Send].
type Kind int

const (
	// Replied means reply bytes arrived; Result.Text holds them.
	Replied Kind = iota
	// NoReply means the command was sent but nothing came back in time.
	// It is not an error.
	NoReply
	// Failed means the command never reached the daemon.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Replied:
		return "replied"
	case NoReply:
		return "no-reply"
	case Failed:
		return "failed"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Result is the outcome of one command exchange.
type Result struct {
	Kind  Kind
	Text  string // reply text, unmodified; set when Kind == Replied
	Stage Stage  // set when Kind == Failed
	Err   error  // set when Kind == Failed
}

// Code returns the numeric status: 0 for Replied and NoReply, otherwise the
// failed stage (1 resolve, 2 socket, 3 connect).
func (r Result) Code() int {
	if r.Kind != Failed {
		return 0
	}
	return int(r.Stage)
}

// Failed reports whether the command never reached the daemon.
func (r Result) Failed() bool { return r.Kind == Failed }

// Error returns the failure cause wrapped with its stage, or nil.
func (r Result) Error() error {
	if r.Kind != Failed {
		return nil
	}
	return fmt.Errorf("%s: %w", r.Stage, r.Err)
}

func (r Result) String() string {
	switch r.Kind {
	case Replied:
		return "replied(" + strconv.Quote(r.Text) + ")"
	case NoReply:
		return "no-reply"
	default:
		return fmt.Sprintf("failed(%s: %v)", r.Stage, r.Err)
	}
}

func failed(stage Stage, err error) Result {
	return Result{Kind: Failed, Stage: stage, Err: err}
}
