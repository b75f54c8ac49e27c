package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/byte4ever/k8s_readiness/poll"
	"github.com/byte4ever/k8s_readiness/sidecar"
)

// ErrDeadlineExceeded is returned when a query did not
// become ready before its deadline.
var ErrDeadlineExceeded = poll.ErrDeadlineExceeded

// Notifier requests shutdown of a co-located proxy.
type Notifier interface {
	Notify(ctx context.Context) sidecar.Result
}

// Observer receives per-attempt and per-query events. A nil
// err passed to Outcome means the query became ready.
type Observer interface {
	Attempt(kind string)
	Outcome(kind string, err error, elapsed time.Duration)
	Shutdown(result string)
}

type nopObserver struct{}

func (nopObserver) Attempt(string) {}

func (nopObserver) Outcome(string, error, time.Duration) {}

func (nopObserver) Shutdown(string) {}

// Outcome records how one query ended.
type Outcome struct {
	Query    Query
	Ready    bool
	Reason   string
	Attempts int
	Elapsed  time.Duration
	// Shutdown is the sidecar result for queries whose kind
	// triggers a proxy shutdown, empty otherwise.
	Shutdown string
}

// Engine waits for queries to become ready.
type Engine struct {
	checker     *Checker
	poller      *poll.Controller
	notifier    Notifier
	notifyKinds []Kind
	observer    Observer
	log         *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithNotifier sets the proxy shutdown notifier fired after
// a mesh job container query succeeds.
func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithNotifyKinds sets the query kinds whose success fires
// the notifier. The default is KindMeshJobContainer alone.
func WithNotifyKinds(kinds ...Kind) EngineOption {
	return func(e *Engine) {
		e.notifyKinds = slices.Clone(kinds)
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithEngineLogger sets the logger. A nil logger keeps
// slog.Default().
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine returns an Engine evaluating queries with
// checker and pacing attempts with poller.
func NewEngine(
	checker *Checker,
	poller *poll.Controller,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		checker:     checker,
		poller:      poller,
		notifyKinds: []Kind{KindMeshJobContainer},
		observer:    nopObserver{},
		log:         slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Await polls q until it is ready or timeout has elapsed
// since the call started. A successful query of a notify
// kind fires the notifier once.
func (e *Engine) Await(
	ctx context.Context,
	q Query,
	timeout time.Duration,
) (Outcome, error) {
	const errCtx = "awaiting query"

	out := Outcome{Query: q}

	if err := q.Validate(); err != nil {
		return out, fmt.Errorf("%s: %w", errCtx, err)
	}

	e.log.Info(
		"waiting for readiness",
		"kind", q.Kind.String(),
		"name", q.Value,
		"namespace", q.Namespace,
		"timeout", timeout,
	)

	var last Verdict

	res, err := e.poller.Await(
		ctx, q.String(), timeout,
		func(ctx context.Context, _ int) bool {
			e.observer.Attempt(q.Kind.String())
			last = e.checker.Check(ctx, q)

			return last.Ready
		},
	)

	out.Ready = err == nil
	out.Reason = last.Reason
	out.Attempts = res.Attempts
	out.Elapsed = res.Elapsed

	e.observer.Outcome(q.Kind.String(), err, res.Elapsed)

	if err != nil {
		return out, fmt.Errorf("%s: %w", errCtx, err)
	}

	e.log.Info(
		"ready",
		"kind", q.Kind.String(),
		"name", q.Value,
		"reason", last.Reason,
		"attempts", res.Attempts,
	)

	if e.notifier != nil && slices.Contains(e.notifyKinds, q.Kind) {
		result := e.notifier.Notify(ctx)
		out.Shutdown = result.String()
		e.observer.Shutdown(out.Shutdown)

		e.log.Info(
			"sidecar shutdown requested",
			"name", q.Value,
			"result", out.Shutdown,
			"confirmed", result.Confirmed(),
		)
	}

	return out, nil
}

// Run validates every query, then awaits them one at a time
// in Order, each with its own deadline. The first failure
// ends the run; the outcomes collected so far, including the
// failed one, are returned with the error.
func (e *Engine) Run(
	ctx context.Context,
	queries []Query,
	timeout time.Duration,
) ([]Outcome, error) {
	const errCtx = "running readiness batch"

	for _, q := range queries {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	outcomes := make([]Outcome, 0, len(queries))

	for _, q := range SortQueries(queries) {
		out, err := e.Await(ctx, q, timeout)
		outcomes = append(outcomes, out)

		if err != nil {
			return outcomes, fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	return outcomes, nil
}
