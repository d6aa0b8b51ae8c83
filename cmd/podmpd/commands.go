package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	podmpd "tools.zach/dev/podmpd"
	"tools.zach/dev/podmpd/internal/atomicfile"
	"tools.zach/dev/podmpd/internal/controller"
	"tools.zach/dev/podmpd/internal/host"
	"tools.zach/dev/podmpd/internal/logger"
	"tools.zach/dev/podmpd/internal/mpdproto"
	"tools.zach/dev/podmpd/internal/stream"
)

// ///////////////////////////////////////////////
// paths / init
// ///////////////////////////////////////////////

func (a *app) pathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "paths",
		Short:       "Print the installation paths",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{layoutOnly: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			l := a.layout
			rows := [][2]string{
				{"base", l.Base()},
				{"module", l.ModuleDir()},
				{"config", l.Config()},
				{"database", l.Database()},
				{"pid", l.PID()},
				{"state", l.State()},
				{"log", l.Log()},
				{"music", l.Music()},
				{"playlists", l.Playlists()},
				{"controller-config", l.ControlConfig()},
				{"controller-log", l.ControlLog()},
			}
			for _, r := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", r[0], r[1])
			}
			return nil
		},
	}
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create mpd.conf, mpddb and podmpd.toml if they are missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.controller(nil).Bootstrap()
			if err != nil {
				return err
			}
			created, err := a.writeDefaultConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			report := func(path string, made bool) {
				state := "exists"
				if made {
					state = "created"
				}
				fmt.Fprintf(out, "%-8s %s\n", state, path)
			}
			report(a.layout.Config(), res.ConfigCreated)
			report(a.layout.Database(), res.DatabaseCreated)
			report(a.configPath, created)
			return nil
		},
	}
}

// writeDefaultConfig writes the documented default podmpd.toml unless the
// file exists.
func (a *app) writeDefaultConfig() (bool, error) {
	err := atomicfile.CreateExclusive(a.configPath, podmpd.DefaultConfigTOML, 0o644)
	switch {
	case err == nil:
		slog.Info("wrote default controller config", "path", a.configPath)
		return true, nil
	case errors.Is(err, fs.ErrExist):
		return false, nil
	default:
		return false, fmt.Errorf("write default config: %w", err)
	}
}

// ///////////////////////////////////////////////
// start / stop / activate
// ///////////////////////////////////////////////

func (a *app) startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Bootstrap files, bring up loopback, launch the daemon and wait until it answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.controller(host.NewConsole(cmd.ErrOrStderr()))
			if _, err := c.Bootstrap(); err != nil {
				return err
			}
			if err := c.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "daemon ready at %s\n", c.Endpoint())
			return nil
		},
	}
}

func (a *app) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Send SIGTERM to the daemon recorded in the pid file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.controller(nil).Stop()
		},
	}
}

func (a *app) activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate",
		Short: "Run the full module lifecycle in the foreground",
		Long: "activate starts the daemon like the shell does when it loads the module, then\n" +
			"waits. SIGUSR1 runs the \"Update BD\" menu action; SIGINT or SIGTERM runs the\n" +
			"shutdown hooks, which stop the daemon.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.writeDefaultConfig(); err != nil {
				slog.Warn("default config not written", "error", err)
			}

			shutdown, update, stop := a.signals()
			defer stop()

			h := host.NewConsole(cmd.OutOrStdout())
			c := a.controller(nil)
			if err := c.Activate(cmd.Context(), h); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mpd module active, endpoint %s\n", c.Endpoint())

			for {
				select {
				case <-update:
					h.Invoke(controller.UpdateMenuPath)
				case sig := <-shutdown:
					slog.Info("received shutdown signal", "signal", sig)
					h.Shutdown()
					return nil
				case <-cmd.Context().Done():
					h.Shutdown()
					return cmd.Context().Err()
				}
			}
		},
	}
}

// ///////////////////////////////////////////////
// update / send / status
// ///////////////////////////////////////////////

func (a *app) updateCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Ask the daemon to rescan the music directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.controller(host.NewConsole(cmd.OutOrStdout()))
			if !wait {
				res := c.UpdateDatabase(cmd.Context())
				if res.Failed() {
					return &exitError{code: res.Code(), err: res.Error()}
				}
				return nil
			}

			sc := c.StatusClient()
			job, err := sc.Update(cmd.Context(), "")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "update job %d started\n", job)
			if err := sc.WaitUpdate(cmd.Context(), job); err != nil {
				return fmt.Errorf("waiting for update job %d: %w", job, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "update job %d finished\n", job)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the database update has finished")
	return cmd
}

func (a *app) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send [command...]",
		Short: "Send one raw protocol command and print the reply",
		Long: "send joins its arguments with spaces and sends them as one command line.\n" +
			"With no arguments it sends the empty command, which only tests reachability.\n" +
			"Exit status is 1, 2 or 3 when resolving, creating the socket or connecting fails.",
		RunE: func(cmd *cobra.Command, args []string) error {
			res := a.controller(nil).Send(cmd.Context(), strings.Join(args, " "))
			switch res.Kind {
			case mpdproto.Replied:
				fmt.Fprint(cmd.OutOrStdout(), res.Text)
			case mpdproto.NoReply:
				fmt.Fprintln(cmd.ErrOrStderr(), "no reply")
			case mpdproto.Failed:
				return &exitError{code: res.Code(), err: res.Error()}
			}
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show player state, current song and database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.controller(nil)
			ov, err := c.StatusClient().Overview(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "endpoint: %s\n", c.Endpoint())
			fmt.Fprintf(out, "state:    %s\n", ov.Status["state"])
			fmt.Fprintf(out, "volume:   %s\n", ov.Status["volume"])
			if job, ok := ov.Status["updating_db"]; ok {
				fmt.Fprintf(out, "updating: job %s\n", job)
			}
			if title := songTitle(ov.CurrentSong); title != "" {
				fmt.Fprintf(out, "song:     %s\n", title)
			}
			fmt.Fprintf(out, "songs:    %s\n", ov.Stats["songs"])
			fmt.Fprintf(out, "albums:   %s\n", ov.Stats["albums"])
			fmt.Fprintf(out, "artists:  %s\n", ov.Stats["artists"])
			return nil
		},
	}
}

func songTitle(song map[string]string) string {
	title := song["Title"]
	if title == "" {
		title = song["Name"]
	}
	if title == "" {
		return song["file"]
	}
	if artist := song["Artist"]; artist != "" {
		return artist + " - " + title
	}
	return title
}

// ///////////////////////////////////////////////
// logs / add-stream
// ///////////////////////////////////////////////

func (a *app) logsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the end of the controller log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Close our own handle first so the tail includes everything written.
			a.teardown()
			text, err := logger.ReadTail(a.layout.ControlLog(), n)
			if err != nil {
				return fmt.Errorf("read log: %w", err)
			}
			if text != "" {
				fmt.Fprintln(cmd.OutOrStdout(), text)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "lines", "n", 50, "number of lines to show (0 for all)")
	return cmd
}

func (a *app) addStreamCmd() *cobra.Command {
	var noProbe bool
	cmd := &cobra.Command{
		Use:   "add-stream URL",
		Short: "Check a radio stream URL and append it to the play queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]
			if !noProbe {
				p := stream.Prober{
					Timeout:  a.cfg.Streams.ProbeTimeout(),
					RetryMax: a.cfg.Streams.RetryMax,
				}
				info, err := p.Probe(cmd.Context(), url)
				if err != nil {
					return err
				}
				slog.Info("stream probed", "url", url, "content_type", info.ContentType, "name", info.Name, "playlist", info.Playlist)
				if info.Name != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "station: %s\n", info.Name)
				}
			}

			if err := a.controller(nil).StatusClient().Add(cmd.Context(), url); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", url)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noProbe, "no-probe", false, "queue the URL without checking it first")
	return cmd
}
