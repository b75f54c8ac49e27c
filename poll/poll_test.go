package poll_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/byte4ever/k8s_readiness/poll"
)

// fakeTime wires a fake clock to a sleep function that
// records each delay and advances the clock by it.
type fakeTime struct {
	clock  *clocktesting.FakeClock
	sleeps []time.Duration
}

func newFakeTime() *fakeTime {
	return &fakeTime{
		clock: clocktesting.NewFakeClock(
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		),
	}
}

func (ft *fakeTime) sleep(
	_ context.Context,
	d time.Duration,
) error {
	ft.sleeps = append(ft.sleeps, d)
	ft.clock.Step(d)

	return nil
}

func (ft *fakeTime) controller(
	tb testing.TB,
	opts ...poll.Option,
) *poll.Controller {
	tb.Helper()

	opts = append(
		[]poll.Option{
			poll.WithClock(ft.clock),
			poll.WithSleep(ft.sleep),
		},
		opts...,
	)

	ctl, err := poll.New(opts...)
	require.NoError(tb, err)

	return ctl
}

func TestAwait_ready_first_attempt_never_sleeps(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	ctl := ft.controller(t)

	res, err := ctl.Await(
		context.Background(), "job/migrate", 5*time.Minute,
		func(context.Context, int) bool { return true },
	)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 0, res.Sleeps)
	assert.Empty(t, ft.sleeps)
}

func TestAwait_deadline_bounded_by_one_sleep(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	ctl := ft.controller(t)

	// 0.01 minutes.
	timeout := 600 * time.Millisecond

	res, err := ctl.Await(
		context.Background(), "never", timeout,
		func(context.Context, int) bool { return false },
	)

	require.ErrorIs(t, err, poll.ErrDeadlineExceeded)
	assert.Equal(t, 2, res.Attempts)
	require.Len(t, ft.sleeps, 1)
	assert.LessOrEqual(
		t, res.Elapsed, timeout+poll.DefaultBand.Max,
	)
}

func TestAwait_jitter_stays_in_band(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	ctl := ft.controller(t)

	_, err := ctl.Await(
		context.Background(), "never", 10*time.Minute,
		func(context.Context, int) bool { return false },
	)

	require.ErrorIs(t, err, poll.ErrDeadlineExceeded)
	require.NotEmpty(t, ft.sleeps)

	for _, d := range ft.sleeps {
		assert.GreaterOrEqual(t, d, poll.DefaultBand.Min)
		assert.Less(t, d, poll.DefaultBand.Max)
	}
}

func TestAwait_fixed_interval(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	ctl := ft.controller(t, poll.WithInterval(3*time.Second))

	res, err := ctl.Await(
		context.Background(), "third", time.Minute,
		func(_ context.Context, attempt int) bool {
			return attempt == 3
		},
	)

	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(
		t,
		[]time.Duration{3 * time.Second, 3 * time.Second},
		ft.sleeps,
	)
	assert.Equal(t, 6*time.Second, res.Elapsed)
}

func TestAwait_equal_band_is_constant(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	ctl := ft.controller(t, poll.WithBand(poll.Band{
		Min: 2 * time.Second,
		Max: 2 * time.Second,
	}))

	_, err := ctl.Await(
		context.Background(), "second", time.Minute,
		func(_ context.Context, attempt int) bool {
			return attempt == 2
		},
	)

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second}, ft.sleeps)
}

func TestAwait_context_canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ctl, err := poll.New(poll.WithInterval(time.Hour))
	require.NoError(t, err)

	res, err := ctl.Await(
		ctx, "canceled", time.Hour,
		func(context.Context, int) bool { return false },
	)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Attempts)
}

func TestAwait_real_clock_terminates(t *testing.T) {
	t.Parallel()

	ctl, err := poll.New(
		poll.WithInterval(10 * time.Millisecond),
	)
	require.NoError(t, err)

	start := time.Now()

	_, err = ctl.Await(
		context.Background(), "never", 50*time.Millisecond,
		func(context.Context, int) bool { return false },
	)

	require.ErrorIs(t, err, poll.ErrDeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNew_invalid_configuration(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name string
		opts []poll.Option
		want error
	}{
		{
			name: "negative interval",
			opts: []poll.Option{
				poll.WithInterval(-time.Second),
			},
			want: poll.ErrNegativeInterval,
		},
		{
			name: "inverted band",
			opts: []poll.Option{
				poll.WithBand(poll.Band{
					Min: 3 * time.Second,
					Max: time.Second,
				}),
			},
			want: poll.ErrInvalidBand,
		},
		{
			name: "zero band",
			opts: []poll.Option{
				poll.WithBand(poll.Band{}),
			},
			want: poll.ErrInvalidBand,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctl, err := poll.New(tc.opts...)

			assert.Nil(t, ctl)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestNew_interval_ignores_band(t *testing.T) {
	t.Parallel()

	ctl, err := poll.New(
		poll.WithInterval(time.Second),
		poll.WithBand(poll.Band{}),
	)

	require.NoError(t, err)
	assert.NotNil(t, ctl)
}
