package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
)

var (
	// ErrDeadlineExceeded is returned by Await when the
	// check did not succeed before the deadline.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrInvalidBand is returned by New when the jitter
	// band is empty or inverted.
	ErrInvalidBand = errors.New(
		"jitter band must satisfy 0 < min <= max",
	)

	// ErrNegativeInterval is returned by New when a fixed
	// interval below zero is configured.
	ErrNegativeInterval = errors.New(
		"interval must not be negative",
	)
)

// Band is the [Min, Max) range a jittered sleep is drawn
// from.
type Band struct {
	Min time.Duration
	Max time.Duration
}

// DefaultBand spreads parallel pollers hitting the same API
// server over five to eleven seconds.
//
//nolint:gochecknoglobals // immutable default
var DefaultBand = Band{
	Min: 5 * time.Second,
	Max: 11 * time.Second,
}

func (b Band) valid() bool {
	return b.Min > 0 && b.Max >= b.Min
}

// Check reports whether the awaited condition holds. The
// attempt parameter is 1-based.
type Check func(ctx context.Context, attempt int) bool

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Result summarizes one Await call.
type Result struct {
	Attempts int
	Sleeps   int
	Elapsed  time.Duration
}

// Controller polls a Check until it succeeds or a deadline
// computed once per Await call has passed.
type Controller struct {
	clock    clock.PassiveClock
	sleep    SleepFunc
	interval time.Duration
	band     Band
	log      *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used for the deadline.
func WithClock(c clock.PassiveClock) Option {
	return func(ctl *Controller) {
		ctl.clock = c
	}
}

// WithSleep replaces the sleep between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(ctl *Controller) {
		ctl.sleep = fn
	}
}

// WithInterval sets a fixed delay between attempts. Zero
// selects the jittered band.
func WithInterval(d time.Duration) Option {
	return func(ctl *Controller) {
		ctl.interval = d
	}
}

// WithBand sets the jitter band used when no fixed interval
// is configured.
func WithBand(b Band) Option {
	return func(ctl *Controller) {
		ctl.band = b
	}
}

// WithLogger sets the logger. A nil logger keeps
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) {
		if l != nil {
			ctl.log = l
		}
	}
}

// New returns a Controller using the real clock and the
// default jitter band unless overridden.
func New(opts ...Option) (*Controller, error) {
	const errCtx = "creating poll controller"

	ctl := &Controller{
		clock: clock.RealClock{},
		sleep: sleepContext,
		band:  DefaultBand,
		log:   slog.Default(),
	}

	for _, opt := range opts {
		opt(ctl)
	}

	if ctl.interval < 0 {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, ErrNegativeInterval,
		)
	}

	if ctl.interval == 0 && !ctl.band.valid() {
		return nil, fmt.Errorf(
			"%s: %v..%v: %w",
			errCtx, ctl.band.Min, ctl.band.Max,
			ErrInvalidBand,
		)
	}

	return ctl, nil
}

// Await evaluates check until it returns true. The deadline
// is fixed at now+timeout when Await starts. Once the
// deadline has passed after a failed attempt Await returns
// ErrDeadlineExceeded, so the overshoot is bounded by one
// sleep. A done ctx ends the loop with the context error.
func (c *Controller) Await(
	ctx context.Context,
	name string,
	timeout time.Duration,
	check Check,
) (Result, error) {
	const errCtx = "awaiting"

	start := c.clock.Now()
	deadline := start.Add(timeout)

	var res Result

	for {
		res.Attempts++

		if check(ctx, res.Attempts) {
			res.Elapsed = c.clock.Since(start)

			c.log.Debug(
				"ready",
				"name", name,
				"attempts", res.Attempts,
				"elapsed", res.Elapsed,
			)

			return res, nil
		}

		if c.clock.Now().After(deadline) {
			res.Elapsed = c.clock.Since(start)

			c.log.Warn(
				"timed out waiting for readiness",
				"name", name,
				"timeout", timeout,
				"attempts", res.Attempts,
			)

			return res, fmt.Errorf(
				"%s %s: %w",
				errCtx, name, ErrDeadlineExceeded,
			)
		}

		delay := c.delay()

		c.log.Debug(
			"not ready yet",
			"name", name,
			"attempt", res.Attempts,
			"sleep", delay,
		)

		if err := c.sleep(ctx, delay); err != nil {
			res.Elapsed = c.clock.Since(start)

			return res, fmt.Errorf(
				"%s %s: %w", errCtx, name, err,
			)
		}

		res.Sleeps++
	}
}

// delay returns the fixed interval when set, otherwise a
// uniformly distributed duration within the band.
func (c *Controller) delay() time.Duration {
	if c.interval > 0 {
		return c.interval
	}

	if c.band.Max == c.band.Min {
		return c.band.Min
	}

	factor := float64(c.band.Max-c.band.Min) /
		float64(c.band.Min)

	return wait.Jitter(c.band.Min, factor)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
