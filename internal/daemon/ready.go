package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tools.zach/dev/podmpd/internal/mpdproto"
)

// ErrNotReady is returned when the daemon does not answer on its control
// port before the readiness timeout.
var ErrNotReady = errors.New("daemon not ready")

// Sender sends one command over the control channel.
type Sender interface {
	Send(ctx context.Context, cmd string) mpdproto.Result
}

// ReadyPolicy bounds [WaitReady].
type ReadyPolicy struct {
	// Timeout is the overall deadline for the daemon to become reachable.
	Timeout time.Duration
	// InitialBackoff is the delay after the first failed probe.
	InitialBackoff time.Duration
	// MaxBackoff caps the doubling delay.
	MaxBackoff time.Duration
}

// WaitReady sends the empty command until a probe does not fail, sleeping
// with exponential backoff between probes. A no-reply result counts as ready:
// the connection was accepted.
//
// It returns the number of probes sent. After the timeout the error wraps
// both ErrNotReady and the last probe failure. If ctx itself is cancelled,
// ctx's error is returned instead.
func WaitReady(ctx context.Context, s Sender, p ReadyPolicy) (int, error) {
	parent := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var last mpdproto.Result
	for attempt := 1; ; attempt++ {
		last = s.Send(ctx, "")
		if !last.Failed() {
			slog.Debug("daemon reachable", "attempts", attempt, "result", last.Kind)
			return attempt, nil
		}

		delay := backoffForAttempt(p.InitialBackoff, p.MaxBackoff, attempt)
		slog.Debug("daemon not reachable yet", "attempt", attempt, "error", last.Error(), "retry_in", delay)
		if err := waitForBackoff(ctx, delay); err != nil || ctx.Err() != nil {
			if parent.Err() != nil {
				return attempt, parent.Err()
			}
			return attempt, fmt.Errorf("%w after %d attempts: %w", ErrNotReady, attempt, last.Error())
		}
	}
}

// backoffForAttempt returns base doubled attempt-1 times, capped at max.
func backoffForAttempt(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if max > 0 && backoff >= max {
			return max
		}
	}
	if max > 0 && backoff > max {
		return max
	}
	return backoff
}

func waitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
