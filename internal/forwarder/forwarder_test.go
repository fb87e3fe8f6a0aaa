package forwarder

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshbridge/internal/config"
	"meshbridge/internal/constants"
	"meshbridge/internal/logger"
	"meshbridge/pkg/circuitbreaker"
	"meshbridge/pkg/errors"
	"meshbridge/pkg/models"
)

func newForwarder(url string, opts ...Option) *Forwarder {
	return New(config.RouterConfig{SendURL: url}, logger.NopLogger(), opts...)
}

func pingRequest() models.ForwardRequest {
	return models.ForwardRequest{Message: "!ping", Timestamp: 1700000000, From: 123}
}

func TestForwardOutcomes(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantDelivered bool
		wantAck       string
		wantRejected  bool
	}{
		{name: "ok with empty body", status: http.StatusOK, body: "", wantDelivered: true, wantAck: constants.AckDelivered},
		{name: "ok with whitespace body", status: http.StatusOK, body: " \n", wantDelivered: true, wantAck: constants.AckDelivered},
		{name: "ok with text", status: http.StatusOK, body: "  pong from router\n", wantDelivered: true, wantAck: "pong from router"},
		{name: "service unavailable", status: http.StatusServiceUnavailable, wantAck: "❌ Delivery failed (status 503)", wantRejected: true},
		{name: "bad request with reason", status: http.StatusBadRequest, body: "unknown command", wantAck: "❌ Delivery failed (status 400): unknown command", wantRejected: true},
		{name: "created is not success", status: http.StatusCreated, wantAck: "❌ Delivery failed (status 201)", wantRejected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			outcome, err := newForwarder(srv.URL).Forward(context.Background(), pingRequest())

			assert.Equal(t, tt.wantDelivered, outcome.Delivered)
			assert.Equal(t, tt.wantAck, outcome.AckText)
			assert.Equal(t, tt.status, outcome.StatusCode)
			if tt.wantRejected {
				assert.True(t, errors.IsRouterRejected(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestForwardRequestBody(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	to := uint32(456)
	req := models.ForwardRequest{Message: "!wsp hi", Timestamp: 1700000001, From: 123, To: &to}
	_, err := newForwarder(srv.URL).Forward(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"message":   "!wsp hi",
		"timestamp": float64(1700000001),
		"from":      "123",
		"to":        "456",
	}, got)
}

func TestForwardConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	url := "http://" + ln.Addr().String() + "/send-message"
	require.NoError(t, ln.Close())

	outcome, err := newForwarder(url).Forward(context.Background(), pingRequest())

	assert.False(t, outcome.Delivered)
	assert.Equal(t, constants.AckRouterUnreached, outcome.AckText)
	assert.Zero(t, outcome.StatusCode)
	assert.True(t, errors.IsRouterUnreachable(err))
}

func TestForwardTimeoutIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	f := New(config.RouterConfig{SendURL: srv.URL, Timeout: 20 * time.Millisecond}, logger.NopLogger())
	outcome, err := f.Forward(context.Background(), pingRequest())

	assert.False(t, outcome.Delivered)
	assert.Equal(t, constants.AckRouterUnreached, outcome.AckText)
	assert.True(t, errors.IsRouterUnreachable(err))
}

func TestForwardCircuitBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newForwarder(srv.URL, WithCircuitBreaker(circuitbreaker.FromConfig("router-forward-test", config.CircuitBreakerConfig{
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      time.Minute,
	})))

	for i := 0; i < 2; i++ {
		outcome, err := f.Forward(context.Background(), pingRequest())
		assert.Equal(t, "❌ Delivery failed (status 502)", outcome.AckText)
		assert.True(t, errors.IsRouterRejected(err))
	}

	outcome, err := f.Forward(context.Background(), pingRequest())
	assert.False(t, outcome.Delivered)
	assert.Equal(t, constants.AckRouterUnreached, outcome.AckText)
	assert.True(t, errors.IsRouterUnreachable(err))
	assert.Equal(t, int32(2), hits.Load())
}
