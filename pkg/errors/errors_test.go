package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelMatching(t *testing.T) {
	err := ErrInvalidAddress.WithCause(fmt.Errorf("strconv: bad digit"))

	assert.True(t, stderrors.Is(err, ErrInvalidAddress))
	assert.False(t, stderrors.Is(err, ErrTransport))
	assert.True(t, IsInvalidAddress(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsValidation(err))
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: ErrValidation, want: http.StatusBadRequest},
		{name: "invalid address", err: ErrInvalidAddress.WithCause(fmt.Errorf("x")), want: http.StatusBadRequest},
		{name: "transport", err: ErrTransport, want: http.StatusInternalServerError},
		{name: "rate limited", err: ErrRateLimited, want: http.StatusTooManyRequests},
		{name: "plain error", err: fmt.Errorf("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToHTTPStatus(tt.err))
		})
	}
}

func TestToErrorResponse(t *testing.T) {
	t.Run("keeps message and code", func(t *testing.T) {
		resp := ToErrorResponse(ErrValidation.WithMessage("to and message are required"))
		assert.Equal(t, "to and message are required", resp["error"])
		assert.Equal(t, "VALIDATION_ERROR", resp["error_code"])
		assert.NotContains(t, resp, "details")
	})

	t.Run("transport error includes cause", func(t *testing.T) {
		resp := ToErrorResponse(ErrTransport.WithCause(fmt.Errorf("device not open")))
		assert.Equal(t, "radio transport error: device not open", resp["error"])
		assert.Equal(t, "TRANSPORT_ERROR", resp["error_code"])
	})

	t.Run("foreign error becomes internal", func(t *testing.T) {
		resp := ToErrorResponse(fmt.Errorf("boom"))
		assert.Equal(t, "INTERNAL_ERROR", resp["error_code"])
	})
}

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	_ = ErrInternal.WithDetail("k", "v")
	assert.Empty(t, ErrInternal.Details)
}

func TestRecoverPanic(t *testing.T) {
	assert.Nil(t, RecoverPanic(nil))

	err := RecoverPanic("kaboom")
	require.Error(t, err)

	var appErr *Error
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, true, appErr.Details["panic"])
	assert.Contains(t, err.Error(), "kaboom")
}

func TestSentinelsCarryHTTPStatus(t *testing.T) {
	sentinels := map[*Error]int{
		ErrInvalidAddress:    http.StatusBadRequest,
		ErrValidation:        http.StatusBadRequest,
		ErrTransport:         http.StatusInternalServerError,
		ErrRouterUnreachable: http.StatusBadGateway,
		ErrRouterRejected:    http.StatusBadGateway,
		ErrRateLimited:       http.StatusTooManyRequests,
		ErrInternal:          http.StatusInternalServerError,
	}

	for sentinel, status := range sentinels {
		assert.Equal(t, status, ToHTTPStatus(sentinel.WithCause(fmt.Errorf("cause"))), sentinel.Code)
	}
}
