package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"tools.zach/dev/podmpd/internal/config"
	"tools.zach/dev/podmpd/internal/controller"
	"tools.zach/dev/podmpd/internal/host"
	"tools.zach/dev/podmpd/internal/logger"
	"tools.zach/dev/podmpd/internal/paths"
)

// layoutOnly marks commands that need the path layout but neither the
// config file nor the log file.
const layoutOnly = "layout-only"

// app holds the CLI's flags and the state built from them before a command
// runs.
type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	// Global flags.
	home       string
	configPath string
	logLevel   string
	verbose    bool

	// Built by setup.
	layout    paths.Layout
	cfg       *config.Config
	logCloser io.Closer

	// ctrlOpts are appended to every controller; tests replace process hooks.
	ctrlOpts []controller.Option
	// signals is replaced in tests.
	signals func() (shutdown, update <-chan os.Signal, stop func())
}

func newApp(stdout, stderr io.Writer, getenv func(string) string) *app {
	return &app{
		stdout:  stdout,
		stderr:  stderr,
		getenv:  getenv,
		signals: signalChannels,
	}
}

// rootCmd builds the command tree.
func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "podmpd",
		Short: "Control the MPD music daemon of a podzilla installation",
		Long: "podmpd bootstraps the daemon's configuration under $HOME/podzilla/modules/mpd,\n" +
			"starts and stops the daemon, and sends it commands over its control port.",
		Version:           resolveVersion(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup(cmd) },
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.home, "home", "", "home directory to derive paths from (default $HOME)")
	pf.StringVar(&a.configPath, "config", "", "controller config file (default <module dir>/podmpd.toml)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides config)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "also write log records to stderr")

	root.AddCommand(
		a.pathsCmd(),
		a.initCmd(),
		a.startCmd(),
		a.stopCmd(),
		a.activateCmd(),
		a.updateCmd(),
		a.sendCmd(),
		a.statusCmd(),
		a.logsCmd(),
		a.addStreamCmd(),
	)
	return root
}

// execute runs the command line args and closes the log file afterwards.
func (a *app) execute(args []string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	defer a.teardown()
	return root.Execute()
}

// ///////////////////////////////////////////////
// Setup
// ///////////////////////////////////////////////

// setup resolves the layout, loads the config and installs the logger as
// the slog default.
func (a *app) setup(cmd *cobra.Command) error {
	getenv := a.getenv
	if a.home != "" {
		getenv = func(k string) string {
			if k == paths.HomeEnv {
				return a.home
			}
			return a.getenv(k)
		}
	}
	layout, err := paths.Resolve(getenv)
	if err != nil {
		return err
	}
	a.layout = layout
	if cmd.Annotations[layoutOnly] == "true" {
		return nil
	}

	if a.configPath == "" {
		a.configPath = layout.ControlConfig()
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	log, closer, err := logger.NewLogger(logger.Options{
		Path:      layout.ControlLog(),
		Level:     logger.ParseLevel(level),
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Stderr:    a.verbose,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.logCloser = closer
	slog.SetDefault(log)
	slog.Debug("podmpd command", "command", cmd.CommandPath(), "version", resolveVersion(), "module_dir", layout.ModuleDir())
	return nil
}

func (a *app) teardown() {
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
}

// controller returns a controller for the resolved layout. Messages go to
// h when it is non-nil.
func (a *app) controller(h host.Host) *controller.Controller {
	opts := []controller.Option{controller.WithGetenv(a.getenv)}
	if h != nil {
		opts = append(opts, controller.WithHost(h))
	}
	opts = append(opts, a.ctrlOpts...)
	return controller.New(a.layout, a.cfg, slog.Default(), opts...)
}
