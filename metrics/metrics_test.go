package metrics_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/k8s_readiness/metrics"
	"github.com/byte4ever/k8s_readiness/poll"
)

func TestRecorder_counters(t *testing.T) {
	t.Parallel()

	r := metrics.NewRecorder()

	r.Attempt("job")
	r.Attempt("job")
	r.Attempt("service")
	r.Outcome("job", nil, 7*time.Second)
	r.Outcome("service", poll.ErrDeadlineExceeded, time.Minute)
	r.Outcome("app", context.Canceled, time.Second)
	r.Shutdown("confirmed")

	const want = `
# HELP readiness_attempts_total Total number of readiness evaluations
# TYPE readiness_attempts_total counter
readiness_attempts_total{kind="job"} 2
readiness_attempts_total{kind="service"} 1
# HELP readiness_outcomes_total Total number of finished queries
# TYPE readiness_outcomes_total counter
readiness_outcomes_total{kind="app",result="canceled"} 1
readiness_outcomes_total{kind="job",result="ready"} 1
readiness_outcomes_total{kind="service",result="timeout"} 1
# HELP readiness_sidecar_shutdowns_total Total number of sidecar shutdown requests
# TYPE readiness_sidecar_shutdowns_total counter
readiness_sidecar_shutdowns_total{result="confirmed"} 1
`

	require.NoError(t, testutil.GatherAndCompare(
		r.Registry(),
		strings.NewReader(want),
		"readiness_attempts_total",
		"readiness_outcomes_total",
		"readiness_sidecar_shutdowns_total",
	))

	count, err := testutil.GatherAndCount(
		r.Registry(), "readiness_wait_duration_seconds",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestResultOf(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name string
		err  error
		want string
	}{
		{name: "ready", err: nil, want: metrics.ResultReady},
		{
			name: "deadline",
			err:  fmt.Errorf("awaiting job/x: %w", poll.ErrDeadlineExceeded),
			want: metrics.ResultTimeout,
		},
		{
			name: "interrupted",
			err:  fmt.Errorf("awaiting job/x: %w", context.Canceled),
			want: metrics.ResultCanceled,
		},
		{
			name: "other",
			err:  errors.New("boom"),
			want: metrics.ResultError,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, metrics.ResultOf(tc.err))
		})
	}
}

func TestRecorder_Push(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		method string
		path   string
	)

	srv := httptest.NewServer(http.HandlerFunc(
		func(_ http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()

			method, path = r.Method, r.URL.Path
		},
	))
	t.Cleanup(srv.Close)

	r := metrics.NewRecorder()
	r.Attempt("job")

	require.NoError(t, r.Push(context.Background(), srv.URL, "onap"))

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/readiness/namespace/onap", path)
}

func TestRecorder_Push_rejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	))
	t.Cleanup(srv.Close)

	err := metrics.NewRecorder().Push(
		context.Background(), srv.URL, "onap",
	)

	require.Error(t, err)
	assert.ErrorContains(t, err, "pushing metrics")
}
