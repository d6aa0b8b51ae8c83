// Package mpdproto sends single text commands to the music daemon over its
// line-based TCP protocol.
//
// Every [Client.Send] opens its own connection, writes the command line
// followed by "close", collects whatever the daemon answers within the reply
// window and closes the connection again. Connections are never pooled.
package mpdproto

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"tools.zach/dev/podmpd/internal/logger"
)

// Environment overrides for the control endpoint.
const (
	HostEnv = "MPD_HOST"
	PortEnv = "MPD_PORT"
)

// Defaults for the control endpoint and reply handling.
const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 6600
	DefaultReplyTimeout = time.Second
	MaxReplyBytes       = 64 << 10
)

// Endpoint is a control host and port.
type Endpoint struct {
	Host string
	Port int
}

// String returns host:port.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client sends commands to one endpoint. It holds no connection and is safe
// for concurrent use.
type Client struct {
	defaults     Endpoint
	getenv       func(string) string
	replyTimeout time.Duration
	resolver     *net.Resolver
	dialer       net.Dialer
}

// Option configures a [Client].
type Option func(*Client)

// WithGetenv replaces the environment lookup used for MPD_HOST and MPD_PORT.
func WithGetenv(getenv func(string) string) Option {
	return func(c *Client) { c.getenv = getenv }
}

// WithReplyTimeout sets how long Send waits for the first reply byte, and
// for each later chunk.
func WithReplyTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.replyTimeout = d
		}
	}
}

// WithResolver replaces the resolver used for host names.
func WithResolver(r *net.Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

// New returns a Client whose endpoint falls back to defaults when the
// environment does not name one. Zero fields in defaults take the package
// defaults.
func New(defaults Endpoint, opts ...Option) *Client {
	if defaults.Host == "" {
		defaults.Host = DefaultHost
	}
	if defaults.Port == 0 {
		defaults.Port = DefaultPort
	}
	c := &Client{
		defaults:     defaults,
		getenv:       os.Getenv,
		replyTimeout: DefaultReplyTimeout,
		resolver:     net.DefaultResolver,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Target returns the host and port Send will use: MPD_HOST and MPD_PORT when
// set and non-empty, the configured defaults otherwise. The port is returned
// unparsed so that bad values surface as resolve failures.
func (c *Client) Target() (host, port string) {
	host, port = c.getenv(HostEnv), c.getenv(PortEnv)
	if host == "" {
		host = c.defaults.Host
	}
	if port == "" {
		port = strconv.Itoa(c.defaults.Port)
	}
	return host, port
}

// Send delivers cmd and returns the daemon's reply. An empty cmd sends an
// empty line, which the readiness probe uses to test reachability.
func (c *Client) Send(ctx context.Context, cmd string) Result {
	cmd = strings.TrimRight(cmd, "\r\n")
	host, port := c.Target()

	addr, err := c.resolve(ctx, host, port)
	if err != nil {
		return failed(StageResolve, err)
	}

	conn, err := c.dial(ctx, addr)
	if err != nil {
		var se *stageError
		if errors.As(err, &se) {
			return failed(se.stage, se.err)
		}
		return failed(StageConnect, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	logger.Trace(slog.Default(), "mpd send", "addr", addr.String(), "cmd", cmd)
	if _, err := io.WriteString(conn, cmd+"\nclose\n"); err != nil {
		return failed(StageConnect, err)
	}

	text := c.readReply(conn)
	if text == "" {
		logger.Trace(slog.Default(), "mpd no reply", "cmd", cmd)
		return Result{Kind: NoReply}
	}
	logger.Trace(slog.Default(), "mpd reply", "cmd", cmd, "bytes", len(text))
	return Result{Kind: Replied, Text: text}
}

// resolve turns host and port into one IPv4 address, the way the daemon's
// bind_to_address is configured.
func (c *Client) resolve(ctx context.Context, host, port string) (netip.AddrPort, error) {
	p, err := c.resolver.LookupPort(ctx, "tcp", port)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if p <= 0 || p > 65535 {
		return netip.AddrPort{}, &net.AddrError{Err: "invalid port", Addr: port}
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		return netip.AddrPortFrom(ip.Unmap(), uint16(p)), nil
	}
	ips, err := c.resolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if len(ips) == 0 {
		return netip.AddrPort{}, &net.DNSError{Err: "no IPv4 address", Name: host, IsNotFound: true}
	}
	return netip.AddrPortFrom(ips[0].Unmap(), uint16(p)), nil
}

type stageError struct {
	stage Stage
	err   error
}

func (e *stageError) Error() string { return e.stage.String() + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// dial connects to addr, telling socket creation failures apart from connect
// failures: the control hook only runs once the socket exists.
func (c *Client) dial(ctx context.Context, addr netip.AddrPort) (net.Conn, error) {
	d := c.dialer
	var socketCreated bool
	d.ControlContext = func(context.Context, string, string, syscall.RawConn) error {
		socketCreated = true
		return nil
	}
	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, &stageError{stage: classifyDial(socketCreated), err: err}
	}
	return conn, nil
}

func classifyDial(socketCreated bool) Stage {
	if socketCreated {
		return StageConnect
	}
	return StageSocket
}

// readReply waits up to the reply window for the first bytes, then keeps
// reading until EOF, an idle window or MaxReplyBytes.
func (c *Client) readReply(conn net.Conn) string {
	var b strings.Builder
	buf := make([]byte, 4096)
	for b.Len() < MaxReplyBytes {
		if err := conn.SetReadDeadline(time.Now().Add(c.replyTimeout)); err != nil {
			break
		}
		n, err := conn.Read(buf)
		if n > 0 {
			if rest := MaxReplyBytes - b.Len(); n > rest {
				n = rest
			}
			b.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return b.String()
}
