package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/byte4ever/k8s_readiness/poll"
)

// Job is the Pushgateway job name runs are grouped under.
const Job = "readiness"

// Result label values.
const (
	ResultReady    = "ready"
	ResultTimeout  = "timeout"
	ResultCanceled = "canceled"
	ResultError    = "error"
)

// ResultOf classifies the error a query ended with.
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultReady
	case errors.Is(err, poll.ErrDeadlineExceeded):
		return ResultTimeout
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return ResultCanceled
	default:
		return ResultError
	}
}

// Recorder implements the readiness engine observer on top
// of Prometheus collectors.
type Recorder struct {
	registry  *prometheus.Registry
	attempts  *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	shutdowns *prometheus.CounterVec
	wait      *prometheus.HistogramVec
}

// NewRecorder returns a Recorder with its collectors
// registered in a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_attempts_total",
			Help: "Total number of readiness evaluations",
		}, []string{"kind"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_outcomes_total",
			Help: "Total number of finished queries",
		}, []string{"kind", "result"}),
		shutdowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_sidecar_shutdowns_total",
			Help: "Total number of sidecar shutdown requests",
		}, []string{"result"}),
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "readiness_wait_duration_seconds",
			Help:    "Time spent waiting for a query",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34m
		}, []string{"kind", "result"}),
	}

	r.registry.MustRegister(
		r.attempts,
		r.outcomes,
		r.shutdowns,
		r.wait,
	)

	return r
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Attempt counts one evaluation of a query of kind.
func (r *Recorder) Attempt(kind string) {
	r.attempts.WithLabelValues(kind).Inc()
}

// Outcome records how a query of kind ended.
func (r *Recorder) Outcome(
	kind string,
	err error,
	elapsed time.Duration,
) {
	result := ResultOf(err)

	r.outcomes.WithLabelValues(kind, result).Inc()
	r.wait.WithLabelValues(kind, result).Observe(elapsed.Seconds())
}

// Shutdown counts a sidecar shutdown request by result.
func (r *Recorder) Shutdown(result string) {
	r.shutdowns.WithLabelValues(result).Inc()
}

// Push replaces the metrics of job on the Pushgateway at
// url with the content of the registry. Each push is
// grouped by namespace.
func (r *Recorder) Push(
	ctx context.Context,
	url string,
	namespace string,
) error {
	const errCtx = "pushing metrics"

	err := push.New(url, Job).
		Client(cleanhttp.DefaultClient()).
		Gatherer(r.registry).
		Grouping("namespace", namespace).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("%s to %s: %w", errCtx, url, err)
	}

	return nil
}
