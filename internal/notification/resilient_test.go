package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

type scriptedNotifier struct {
	errs  []error
	calls int
}

func (s *scriptedNotifier) Send(context.Context, domain.Notification) error {
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func newTestResilient(next domain.Notifier, breaker *CircuitBreaker) (*ResilientNotifier, *[]time.Duration) {
	r := NewResilientNotifier(next, RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      15 * time.Millisecond,
		BackoffFactor: 2,
	}, breaker, nil)
	var delays []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return r, &delays
}

func TestResilientNotifier_RetriesTransientFailures(t *testing.T) {
	boom := errors.New("fcm unavailable")
	next := &scriptedNotifier{errs: []error{boom, boom}}
	r, delays := newTestResilient(next, nil)

	require.NoError(t, r.Send(context.Background(), domain.Notification{OrderID: 1}))
	require.Equal(t, 3, next.calls)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 15 * time.Millisecond}, *delays)
}

func TestResilientNotifier_GivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("fcm unavailable")
	next := &scriptedNotifier{errs: []error{boom, boom, boom, boom}}
	r, _ := newTestResilient(next, nil)

	require.ErrorIs(t, r.Send(context.Background(), domain.Notification{}), boom)
	require.Equal(t, 3, next.calls)
}

func TestResilientNotifier_DoesNotRetryPermanentErrors(t *testing.T) {
	for _, err := range []error{domain.ErrDeviceTokenMissing, context.DeadlineExceeded} {
		next := &scriptedNotifier{errs: []error{err}}
		r, delays := newTestResilient(next, nil)

		require.ErrorIs(t, r.Send(context.Background(), domain.Notification{}), err)
		require.Equal(t, 1, next.calls)
		require.Empty(t, *delays)
	}
}

func TestResilientNotifier_StopsWhenContextEnds(t *testing.T) {
	boom := errors.New("fcm unavailable")
	next := &scriptedNotifier{errs: []error{boom, boom, boom}}
	r := NewResilientNotifier(next, RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.Send(ctx, domain.Notification{}), boom)
	require.Equal(t, 1, next.calls)
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	breaker := NewCircuitBreaker(2, time.Minute, nil)
	breaker.now = func() time.Time { return now }

	boom := errors.New("fcm unavailable")
	next := &scriptedNotifier{errs: []error{boom, boom, boom, boom, boom, boom}}
	r, _ := newTestResilient(next, breaker)

	require.Error(t, r.Send(context.Background(), domain.Notification{}))
	require.Equal(t, CircuitClosed, breaker.State())
	require.Error(t, r.Send(context.Background(), domain.Notification{}))
	require.Equal(t, CircuitOpen, breaker.State())

	calls := next.calls
	require.ErrorIs(t, r.Send(context.Background(), domain.Notification{}), ErrCircuitOpen)
	require.Equal(t, calls, next.calls, "open breaker must not reach the provider")

	now = now.Add(2 * time.Minute)
	require.NoError(t, r.Send(context.Background(), domain.Notification{}))
	require.Equal(t, CircuitClosed, breaker.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	breaker := NewCircuitBreaker(1, time.Minute, nil)
	breaker.now = func() time.Time { return now }

	breaker.record(errors.New("boom"))
	require.Equal(t, CircuitOpen, breaker.State())
	require.False(t, breaker.allow())

	now = now.Add(2 * time.Minute)
	require.True(t, breaker.allow())
	require.Equal(t, CircuitHalfOpen, breaker.State())

	breaker.record(errors.New("still failing"))
	require.Equal(t, CircuitOpen, breaker.State())
	require.Equal(t, "open", breaker.State().String())
}

func TestCircuitBreaker_MissingTokenIsNotAProviderFailure(t *testing.T) {
	breaker := NewCircuitBreaker(1, time.Minute, nil)
	next := &scriptedNotifier{errs: []error{domain.ErrDeviceTokenMissing}}
	r, _ := newTestResilient(next, breaker)

	require.ErrorIs(t, r.Send(context.Background(), domain.Notification{}), domain.ErrDeviceTokenMissing)
	require.Equal(t, CircuitClosed, breaker.State())
}
