package circuitbreaker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func newTestBreaker(maxFailures int, opts ...Option) (*CircuitBreaker, *clock.Mock) {
	mock := clock.NewMock()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	opts = append([]Option{WithClock(mock), WithLogger(logger)}, opts...)
	return New("api", maxFailures, 10*time.Second, opts...), mock
}

func fail(context.Context) error    { return errBackend }
func succeed(context.Context) error { return nil }

func TestState_String(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	}
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	var open *OpenError
	require.ErrorAs(t, err, &open)
	assert.False(t, called)
	assert.Equal(t, "api", open.Name)
	assert.Equal(t, uint64(1), cb.Stats().Rejected)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(2)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Stats().Failures)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, mock := newTestBreaker(1, WithProbeCalls(2))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	mock.Add(10 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, mock := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	mock.Add(10 * time.Second)

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	assert.Equal(t, StateOpen, cb.State())

	mock.Add(5 * time.Second)
	var open *OpenError
	require.ErrorAs(t, cb.Execute(ctx, succeed), &open)
	assert.Equal(t, 5*time.Second, open.RetryIn)
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	cb, mock := newTestBreaker(1, WithProbeCalls(1))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	mock.Add(10 * time.Second)

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error { <-release; return nil })
	}()

	require.Eventually(t, func() bool { return cb.Stats().Requests == 2 }, time.Second, time.Millisecond)

	var open *OpenError
	require.ErrorAs(t, cb.Execute(ctx, succeed), &open)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	errClient := errors.New("bad request")
	cb, _ := newTestBreaker(1, WithFailurePredicate(func(err error) bool {
		return !errors.Is(err, errClient)
	}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return errClient }), errClient)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestOpenError_Message(t *testing.T) {
	assert.Equal(t, "circuit breaker 'api' is open", (&OpenError{Name: "api"}).Error())
	assert.Contains(t, (&OpenError{Name: "api", RetryIn: 1500 * time.Millisecond}).Error(), "retry in 1.5s")
}
