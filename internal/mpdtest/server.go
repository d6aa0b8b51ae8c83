// Package mpdtest provides an in-process fake music daemon for tests.
//
// The server speaks enough of the line protocol for the controller, the raw
// command channel and the gompd client: greeting, status, stats, update,
// add, ping, idle/noidle and close. Every received line is recorded.
package mpdtest

import (
	"bufio"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Greeting is sent on every new connection.
const Greeting = "OK MPD 0.23.5\n"

// Server is a fake daemon listening on a random loopback port.
type Server struct {
	ln net.Listener

	mu       sync.Mutex
	commands []string
	status   map[string]string
	nextJob  int
	added    []string
	idlers   map[chan string]struct{}
	silent   bool
}

// NewServer starts a Server and registers its shutdown with t.Cleanup.
func NewServer(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("mpdtest: listen: %v", err)
	}
	s := &Server{
		ln: ln,
		status: map[string]string{
			"volume": "100",
			"state":  "stop",
		},
		idlers: make(map[chan string]struct{}),
	}
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Close stops accepting connections.
func (s *Server) Close() { s.ln.Close() }

// Addr returns host:port.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Host returns the listening IP.
func (s *Server) Host() string { return s.ln.Addr().(*net.TCPAddr).IP.String() }

// Port returns the listening port.
func (s *Server) Port() int { return s.ln.Addr().(*net.TCPAddr).Port }

// Commands returns every line received so far, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Added returns the URIs passed to "add".
func (s *Server) Added() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.added...)
}

// SetSilent makes the server accept connections and read commands without
// ever writing a byte, the greeting included.
func (s *Server) SetSilent(silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = silent
}

// SetStatus sets a key reported by "status".
func (s *Server) SetStatus(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[key] = value
}

// FinishUpdate clears updating_db and wakes idle clients waiting on the
// update subsystem.
func (s *Server) FinishUpdate() {
	s.mu.Lock()
	delete(s.status, "updating_db")
	s.mu.Unlock()
	s.broadcast("update")
}

func (s *Server) broadcast(subsystem string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.idlers {
		select {
		case ch <- subsystem:
		default:
		}
	}
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	s.mu.Lock()
	silent := s.silent
	s.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
	}()

	if silent {
		for line := range lines {
			s.record(line)
		}
		return
	}

	w := bufio.NewWriter(conn)
	w.WriteString(Greeting)
	w.Flush()

	events := make(chan string, 8)
	for line := range lines {
		s.record(line)
		cmd, args, _ := strings.Cut(strings.TrimSpace(line), " ")
		switch cmd {
		case "close":
			return
		case "idle":
			if !s.idle(w, lines, events, args) {
				return
			}
		default:
			s.reply(w, cmd, args)
		}
		w.Flush()
	}
}

// idle blocks until a wanted subsystem changes or the client sends noidle.
// It returns false when the connection went away.
func (s *Server) idle(w *bufio.Writer, lines <-chan string, events chan string, args string) bool {
	wanted := map[string]bool{}
	for _, a := range strings.Fields(args) {
		wanted[strings.Trim(a, `"`)] = true
	}
	s.mu.Lock()
	s.idlers[events] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.idlers, events)
		s.mu.Unlock()
	}()

	for {
		select {
		case sub := <-events:
			if len(wanted) == 0 || wanted[sub] {
				fmt.Fprintf(w, "changed: %s\nOK\n", sub)
				return true
			}
		case line, ok := <-lines:
			if !ok {
				return false
			}
			s.record(line)
			if strings.TrimSpace(line) == "noidle" {
				w.WriteString("OK\n")
				return true
			}
		}
	}
}

func (s *Server) record(line string) {
	s.mu.Lock()
	s.commands = append(s.commands, line)
	s.mu.Unlock()
}

func (s *Server) reply(w *bufio.Writer, cmd, args string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd {
	case "":
		w.WriteString("ACK [5@0] {} No command given\n")
	case "ping", "password":
		w.WriteString("OK\n")
	case "status":
		keys := make([]string, 0, len(s.status))
		for k := range s.status {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s: %s\n", k, s.status[k])
		}
		w.WriteString("OK\n")
	case "stats":
		w.WriteString("artists: 0\nalbums: 0\nsongs: 0\nuptime: 1\ndb_playtime: 0\nOK\n")
	case "currentsong":
		w.WriteString("OK\n")
	case "noidle":
		// Outside idle the daemon ignores it.
	case "update", "rescan":
		s.nextJob++
		s.status["updating_db"] = strconv.Itoa(s.nextJob)
		fmt.Fprintf(w, "updating_db: %d\nOK\n", s.nextJob)
	case "add":
		uri, err := strconv.Unquote(args)
		if err != nil {
			uri = args
		}
		s.added = append(s.added, uri)
		w.WriteString("OK\n")
	default:
		fmt.Fprintf(w, "ACK [5@0] {%s} unknown command %q\n", cmd, cmd)
	}
}
