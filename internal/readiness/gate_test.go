package readiness

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshbridge/internal/config"
	"meshbridge/internal/logger"
)

type countingTimer struct {
	c      chan time.Time
	starts int
}

func newCountingTimer() *countingTimer {
	return &countingTimer{c: make(chan time.Time, 1)}
}

func (t *countingTimer) Start(time.Duration) {
	t.starts++
	t.c <- time.Now()
}

func (t *countingTimer) Stop() {}

func (t *countingTimer) C() <-chan time.Time { return t.c }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestAwaitReadyWaitsExactlyOneIntervalPerFailedProbe(t *testing.T) {
	const failures = 4

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if hits.Add(1) <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	timer := newCountingTimer()
	gate := NewGate(config.RouterConfig{HealthURL: srv.URL, ProbeInterval: 3 * time.Second}, logger.NopLogger(), WithTimer(timer))
	require.Equal(t, NotReady, gate.State())

	require.NoError(t, gate.AwaitReady(context.Background()))

	assert.Equal(t, failures, timer.starts)
	assert.Equal(t, int32(failures+1), hits.Load())
	assert.Equal(t, Ready, gate.State())
}

func TestAwaitReadySwallowsNetworkErrors(t *testing.T) {
	var calls int
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls <= 2 {
			return nil, errors.New("dial tcp: connection refused")
		}
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})}

	timer := newCountingTimer()
	gate := NewGate(config.RouterConfig{HealthURL: "http://go-router:8080/health"}, logger.NopLogger(),
		WithHTTPClient(client), WithTimer(timer))

	require.NoError(t, gate.AwaitReady(context.Background()))
	assert.Equal(t, 2, timer.starts)
	assert.True(t, gate.IsReady())
}

func TestAwaitReadyReturnsImmediatelyOnceReady(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	gate := NewGate(config.RouterConfig{HealthURL: srv.URL}, logger.NopLogger())
	require.NoError(t, gate.AwaitReady(context.Background()))
	require.NoError(t, gate.AwaitReady(context.Background()))

	assert.Equal(t, int32(1), hits.Load())
}

func TestAwaitReadyStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	gate := NewGate(config.RouterConfig{HealthURL: srv.URL, ProbeInterval: 10 * time.Millisecond}, logger.NopLogger())
	err := gate.AwaitReady(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, NotReady, gate.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "NOT_READY", NotReady.String())
	assert.Equal(t, "READY", Ready.String())
}
