// Package mpdclient wraps gompd for the typed requests the controller makes
// beyond raw commands: status queries, database update jobs and queueing.
//
// Unlike the raw command channel, every call here parses the daemon's
// response and turns ACK replies into errors.
package mpdclient

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fhs/gompd/v2/mpd"
)

// recheckInterval bounds how long WaitUpdate trusts the idle connection
// before asking for status again.
var recheckInterval = time.Second

// Client dials the daemon for each request.
type Client struct {
	network  string
	addr     string
	password string
}

// New returns a Client for a TCP address of the form host:port.
func New(addr string) *Client {
	return &Client{network: "tcp", addr: addr}
}

// WithPassword returns a copy of c that authenticates after connecting.
func (c *Client) WithPassword(password string) *Client {
	cp := *c
	cp.password = password
	return &cp
}

// Addr returns the daemon address.
func (c *Client) Addr() string { return c.addr }

// do dials, runs fn and closes the connection. gompd has no context
// support, so ctx only bounds how long the caller waits.
func (c *Client) do(ctx context.Context, fn func(*mpd.Client) error) error {
	errc := make(chan error, 1)
	go func() {
		conn, err := mpd.DialAuthenticated(c.network, c.addr, c.password)
		if err != nil {
			errc <- fmt.Errorf("connecting to %s: %w", c.addr, err)
			return
		}
		defer conn.Close()
		errc <- fn(conn)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ///////////////////////////////////////////////
// Requests
// ///////////////////////////////////////////////

// Status returns the daemon's status attributes.
func (c *Client) Status(ctx context.Context) (mpd.Attrs, error) {
	var attrs mpd.Attrs
	err := c.do(ctx, func(conn *mpd.Client) error {
		var err error
		attrs, err = conn.Status()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return attrs, nil
}

// Overview is the combined status, statistics and current song.
type Overview struct {
	Status      mpd.Attrs
	Stats       mpd.Attrs
	CurrentSong mpd.Attrs
}

// Overview fetches status, stats and the current song over one connection.
func (c *Client) Overview(ctx context.Context) (Overview, error) {
	var ov Overview
	err := c.do(ctx, func(conn *mpd.Client) error {
		var err error
		if ov.Status, err = conn.Status(); err != nil {
			return fmt.Errorf("status: %w", err)
		}
		if ov.Stats, err = conn.Stats(); err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		if ov.CurrentSong, err = conn.CurrentSong(); err != nil {
			return fmt.Errorf("currentsong: %w", err)
		}
		return nil
	})
	return ov, err
}

// Update starts a database update below path ("" for everything) and
// returns the daemon's job id.
func (c *Client) Update(ctx context.Context, path string) (int, error) {
	var job int
	err := c.do(ctx, func(conn *mpd.Client) error {
		var err error
		job, err = conn.Update(path)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	return job, nil
}

// Add appends uri to the play queue.
func (c *Client) Add(ctx context.Context, uri string) error {
	if err := c.do(ctx, func(conn *mpd.Client) error { return conn.Add(uri) }); err != nil {
		return fmt.Errorf("add %q: %w", uri, err)
	}
	return nil
}

// ///////////////////////////////////////////////
// WaitUpdate
// ///////////////////////////////////////////////

// WaitUpdate blocks until database update job is no longer running.
//
// It idles on the update subsystem and re-reads status on every change, and
// once per recheckInterval in case a change was missed. Jobs run in order, so
// a status reporting a later job means this one has finished.
func (c *Client) WaitUpdate(ctx context.Context, job int) error {
	w, err := mpd.NewWatcher(c.network, c.addr, c.password, "update")
	if err != nil {
		return fmt.Errorf("watching %s: %w", c.addr, err)
	}
	defer w.Close()

	ticker := time.NewTicker(recheckInterval)
	defer ticker.Stop()

	for {
		done, err := c.updateFinished(ctx, job)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case subsystem := <-w.Event:
			slog.Debug("mpd subsystem changed", "subsystem", subsystem)
		case err := <-w.Error:
			slog.Debug("mpd watcher error", "error", err)
		case <-ticker.C:
		}
	}
}

func (c *Client) updateFinished(ctx context.Context, job int) (bool, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return false, err
	}
	return jobFinished(st, job), nil
}

// jobFinished reports whether status no longer shows job as pending.
func jobFinished(st mpd.Attrs, job int) bool {
	v, ok := st["updating_db"]
	if !ok {
		return true
	}
	running, err := strconv.Atoi(v)
	if err != nil {
		return false
	}
	return running > job
}
