package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTimer struct {
	c      chan time.Time
	starts []time.Duration
}

func newCountingTimer() *countingTimer {
	return &countingTimer{c: make(chan time.Time, 1)}
}

func (t *countingTimer) Start(d time.Duration) {
	t.starts = append(t.starts, d)
	t.c <- time.Now()
}

func (t *countingTimer) Stop() {}

func (t *countingTimer) C() <-chan time.Time { return t.c }

func TestForeverWaitsOncePerFailure(t *testing.T) {
	timer := newCountingTimer()
	calls := 0
	var notified []int

	err := Forever(context.Background(), 3*time.Second, func() error {
		calls++
		if calls <= 4 {
			return errors.New("connection refused")
		}
		return nil
	}, func(attempt int, err error, next time.Duration) {
		notified = append(notified, attempt)
		assert.Equal(t, 3*time.Second, next)
	}, timer)

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []int{1, 2, 3, 4}, notified)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second, 3 * time.Second}, timer.starts)
}

func TestForeverStopsOnFatal(t *testing.T) {
	timer := newCountingTimer()
	boom := errors.New("bad url")

	err := Forever(context.Background(), time.Second, func() error {
		return NewFatalError(boom)
	}, nil, timer)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, timer.starts)
}

func TestForeverHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Forever(ctx, time.Hour, func() error {
		return errors.New("down")
	}, nil, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}, func() error {
		calls++
		return errors.New("broker unavailable")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnFatal(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Policy{MaxAttempts: 5, InitialInterval: time.Millisecond}, func() error {
		calls++
		return NewFatalError(errors.New("unknown topic"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExponentialBackoffGrows(t *testing.T) {
	b := ExponentialBackoff(Policy{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2})
	first := b.NextBackOff()
	second := b.NextBackOff()
	assert.Greater(t, second, first/2)
	for i := 0; i < 10; i++ {
		assert.LessOrEqual(t, b.NextBackOff(), 1500*time.Millisecond)
	}
}

func TestConstantBackoff(t *testing.T) {
	b := ConstantBackoff(3 * time.Second)
	for i := 0; i < 5; i++ {
		assert.Equal(t, 3*time.Second, b.NextBackOff())
	}
}
