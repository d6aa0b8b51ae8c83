// Package controller owns the music daemon's lifecycle on behalf of a host
// shell.
//
// A [Controller] is an explicit context object: it holds the installation
// layout, the loaded settings and the command channel, and nothing lives in
// package-level state. [Controller.Activate] runs the whole bring-up
// (bootstrap files, loopback, spawn, readiness wait) and registers the
// shutdown hook and "update database" menu action with the host.
// [Controller.Deactivate] stops the daemon again.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"tools.zach/dev/podmpd/internal/bootstrap"
	"tools.zach/dev/podmpd/internal/config"
	"tools.zach/dev/podmpd/internal/daemon"
	"tools.zach/dev/podmpd/internal/host"
	"tools.zach/dev/podmpd/internal/library"
	"tools.zach/dev/podmpd/internal/mpdclient"
	"tools.zach/dev/podmpd/internal/mpdproto"
	"tools.zach/dev/podmpd/internal/netup"
	"tools.zach/dev/podmpd/internal/paths"
	"tools.zach/dev/podmpd/internal/watch"
)

// Names the controller registers with the host.
const (
	ModuleName      = "mpd"
	UpdateMenuPath  = "/Settings/Music/Update BD"
	UpdateMenuGroup = "setting"
)

// Messages shown through the host.
const (
	MsgUpdateRequested = "Update requested"
	MsgUpdateFailed    = "Error requesting update"
	MsgStartFailed     = "Unable to start MPD"
	MsgNotReady        = "MPD is not responding"
)

// updateRequestTimeout bounds an update requested from the menu or by the
// library watcher.
var updateRequestTimeout = 10 * time.Second

// ///////////////////////////////////////////////
// Controller
// ///////////////////////////////////////////////

// Controller drives one daemon installation.
type Controller struct {
	layout paths.Layout
	cfg    *config.Config
	log    *slog.Logger
	cmd    *mpdproto.Client

	getenv          func(string) string
	resolver        *net.Resolver
	loopbackFn      func(ctx context.Context, ifconfig string) error
	spawnFn         func(ctx context.Context, binary, configPath string, timeout time.Duration) (daemon.Handle, error)
	terminateFn     func(pidPath string) (int, error)
	pidPollInterval time.Duration

	mu     sync.Mutex
	host   host.Host
	lock   *os.File
	lib    *library.Watcher
	active bool
}

// Option configures a [Controller].
type Option func(*Controller)

// WithGetenv replaces the environment lookup for MPD_HOST and MPD_PORT.
func WithGetenv(getenv func(string) string) Option {
	return func(c *Controller) { c.getenv = getenv }
}

// WithResolver replaces the resolver used for MPD_HOST names.
func WithResolver(r *net.Resolver) Option {
	return func(c *Controller) { c.resolver = r }
}

// WithLoopbackFunc replaces the loopback bring-up.
func WithLoopbackFunc(fn func(ctx context.Context, ifconfig string) error) Option {
	return func(c *Controller) { c.loopbackFn = fn }
}

// WithSpawnFunc replaces the daemon launcher.
func WithSpawnFunc(fn func(ctx context.Context, binary, configPath string, timeout time.Duration) (daemon.Handle, error)) Option {
	return func(c *Controller) { c.spawnFn = fn }
}

// WithTerminateFunc replaces the daemon terminator.
func WithTerminateFunc(fn func(pidPath string) (int, error)) Option {
	return func(c *Controller) { c.terminateFn = fn }
}

// WithHost sets the host that receives messages before Activate is called,
// for callers that run single operations without activating.
func WithHost(h host.Host) Option {
	return func(c *Controller) { c.host = h }
}

// WithPIDPollInterval sets the polling interval used while waiting for the
// pid file.
func WithPIDPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.pidPollInterval = d }
}

// New returns a Controller for layout. A nil cfg uses defaults and a nil
// logger uses slog.Default.
func New(layout paths.Layout, cfg *config.Config, logger *slog.Logger, opts ...Option) *Controller {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		layout:          layout,
		cfg:             cfg,
		log:             logger,
		getenv:          os.Getenv,
		loopbackFn:      netup.Loopback,
		spawnFn:         daemon.Spawn,
		terminateFn:     daemon.Terminate,
		pidPollInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	cmdOpts := []mpdproto.Option{
		mpdproto.WithGetenv(c.getenv),
		mpdproto.WithReplyTimeout(cfg.Daemon.ReplyTimeout()),
	}
	if c.resolver != nil {
		cmdOpts = append(cmdOpts, mpdproto.WithResolver(c.resolver))
	}
	c.cmd = mpdproto.New(mpdproto.Endpoint{Host: cfg.Daemon.Host, Port: cfg.Daemon.Port}, cmdOpts...)
	return c
}

// Layout returns the installation layout.
func (c *Controller) Layout() paths.Layout { return c.layout }

// Config returns the controller settings.
func (c *Controller) Config() *config.Config { return c.cfg }

// Endpoint returns the host:port commands are sent to.
func (c *Controller) Endpoint() string {
	host, port := c.cmd.Target()
	return net.JoinHostPort(host, port)
}

// StatusClient returns a typed client for the current endpoint.
func (c *Controller) StatusClient() *mpdclient.Client {
	return mpdclient.New(c.Endpoint())
}

// Active reports whether Activate succeeded and Deactivate has not run.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) message(text string) {
	c.mu.Lock()
	h := c.host
	c.mu.Unlock()
	if h != nil {
		h.Message(text)
	}
}

// ///////////////////////////////////////////////
// Phases
// ///////////////////////////////////////////////

// Bootstrap creates the module directory, mpd.conf and mpddb if missing.
func (c *Controller) Bootstrap() (bootstrap.Result, error) {
	res, err := bootstrap.Run(c.layout)
	if err != nil {
		return res, err
	}
	c.log.Info("bootstrap done",
		"module_dir", c.layout.ModuleDir(),
		"config_created", res.ConfigCreated,
		"database_created", res.DatabaseCreated,
	)
	return res, nil
}

// Start brings up loopback, launches the daemon and waits until it answers.
//
// Failures of the earlier steps are logged and do not stop the later ones: a
// daemon left running by an earlier activation still passes the readiness
// wait. The returned error is the readiness result.
func (c *Controller) Start(ctx context.Context) error {
	d := c.cfg.Daemon

	if changed, err := daemon.EnsureExecutable(d.Binary); err != nil {
		c.log.Warn("cannot check daemon binary", "binary", d.Binary, "error", err)
	} else if changed {
		c.log.Info("made daemon binary executable", "binary", d.Binary)
	}

	loCtx, cancel := context.WithTimeout(ctx, d.SpawnTimeout())
	err := c.loopbackFn(loCtx, d.Ifconfig)
	cancel()
	if err != nil {
		c.log.Warn("loopback bring-up failed", "ifconfig", d.Ifconfig, "error", err)
	}

	h, err := c.spawnFn(ctx, d.Binary, c.layout.Config(), d.SpawnTimeout())
	if err != nil {
		c.log.Error("daemon launch failed", "binary", d.Binary, "error", err)
		c.message(MsgStartFailed)
	} else {
		c.log.Info("daemon launched", "launcher_pid", h.PID, "exit_code", h.ExitCode, "took", h.Duration)
		if d.WaitForPIDFile {
			c.waitPIDFile(ctx)
		}
	}

	initial, maxBackoff := d.ReadyBackoff()
	attempts, err := daemon.WaitReady(ctx, c.cmd, daemon.ReadyPolicy{
		Timeout:        d.ReadyTimeout(),
		InitialBackoff: initial,
		MaxBackoff:     maxBackoff,
	})
	if err != nil {
		c.log.Error("daemon not ready", "endpoint", c.Endpoint(), "attempts", attempts, "error", err)
		return err
	}
	c.log.Info("daemon ready", "endpoint", c.Endpoint(), "attempts", attempts)
	return nil
}

func (c *Controller) waitPIDFile(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Daemon.ReadyTimeout())
	defer cancel()
	if err := watch.WaitForFile(ctx, c.layout.PID(), c.pidPollInterval); err != nil {
		c.log.Warn("pid file did not appear", "path", c.layout.PID(), "error", err)
		return
	}
	c.log.Debug("pid file present", "path", c.layout.PID())
}

// Stop sends SIGTERM to the process recorded in the pid file.
func (c *Controller) Stop() error {
	pid, err := c.terminateFn(c.layout.PID())
	if err != nil {
		c.log.Error("stopping daemon failed", "pid_file", c.layout.PID(), "error", err)
		return err
	}
	c.log.Info("sent SIGTERM to daemon", "pid", pid)
	return nil
}

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

// Send delivers one raw command and returns the daemon's reply.
func (c *Controller) Send(ctx context.Context, cmd string) mpdproto.Result {
	res := c.cmd.Send(ctx, cmd)
	c.log.Debug("command sent", "command", cmd, "result", res.Kind, "code", res.Code())
	return res
}

// UpdateDatabase asks the daemon to rescan the music directory and tells the
// host whether the request went through. A no-reply result counts as sent.
func (c *Controller) UpdateDatabase(ctx context.Context) mpdproto.Result {
	res := c.Send(ctx, "update")
	if res.Failed() {
		c.log.Warn("update request failed", "error", res.Error())
		c.message(MsgUpdateFailed)
		return res
	}
	c.log.Info("update requested", "reply", res.Text)
	c.message(MsgUpdateRequested)
	return res
}

// ///////////////////////////////////////////////
// Activation
// ///////////////////////////////////////////////

// Activate runs the full bring-up and registers with h.
//
// Only fatal problems are returned: another active controller or a failed
// bootstrap. A daemon that does not start or answer is reported through the
// host, and the hooks are registered anyway so that shutdown still cleans up.
func (c *Controller) Activate(ctx context.Context, h host.Host) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.mu.Unlock()

	if err := c.layout.EnsureModuleDir(); err != nil {
		return fmt.Errorf("create module dir: %w", err)
	}
	lock, err := acquireLock(c.layout.ControlLock())
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.host = h
	c.mu.Unlock()

	if _, err := c.Bootstrap(); err != nil {
		releaseLock(lock)
		return err
	}

	if err := c.Start(ctx); err != nil {
		if errors.Is(err, daemon.ErrNotReady) {
			c.message(MsgNotReady)
		} else if ctx.Err() != nil {
			releaseLock(lock)
			return err
		}
	}

	h.RegisterModule(ModuleName, func() {
		if err := c.Deactivate(); err != nil {
			c.log.Warn("deactivate from shutdown hook", "error", err)
		}
	})
	h.AddMenuAction(UpdateMenuPath, UpdateMenuGroup, c.requestUpdate)

	var lib *library.Watcher
	if c.cfg.Library.AutoUpdate {
		lib, err = library.Start(c.layout.Music(), library.Options{
			Patterns: c.cfg.Library.Patterns,
			Debounce: c.cfg.Library.Debounce(),
		}, c.requestUpdate)
		if err != nil {
			c.log.Warn("library watcher disabled", "error", err)
		}
	}

	c.mu.Lock()
	c.lock = lock
	c.lib = lib
	c.active = true
	c.mu.Unlock()

	c.log.Info("controller active", "module_dir", c.layout.ModuleDir(), "endpoint", c.Endpoint())
	return nil
}

// requestUpdate runs UpdateDatabase for callbacks that have no context of
// their own.
func (c *Controller) requestUpdate() {
	ctx, cancel := context.WithTimeout(context.Background(), updateRequestTimeout)
	defer cancel()
	c.UpdateDatabase(ctx)
}

// Deactivate stops the library watcher, terminates the daemon and releases
// the activation lock. Calls after the first are no-ops.
func (c *Controller) Deactivate() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = false
	lock, lib := c.lock, c.lib
	c.lock, c.lib = nil, nil
	c.mu.Unlock()

	if lib != nil {
		if err := lib.Close(); err != nil {
			c.log.Debug("closing library watcher", "error", err)
		}
	}

	stopErr := c.Stop()
	if err := releaseLock(lock); err != nil {
		c.log.Warn("releasing activation lock", "error", err)
	}
	c.log.Info("controller inactive")
	return stopErr
}
