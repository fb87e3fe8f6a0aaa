package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidAddress     = NewError("INVALID_ADDRESS", "invalid address", http.StatusBadRequest)
	ErrValidation         = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrTransport          = NewError("TRANSPORT_ERROR", "radio transport error", http.StatusInternalServerError)
	ErrRouterUnreachable  = NewError("ROUTER_UNREACHABLE", "could not contact router", http.StatusBadGateway)
	ErrRouterRejected     = NewError("ROUTER_REJECTED", "router rejected message", http.StatusBadGateway)
	ErrRateLimited        = NewError("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrInternal           = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
)

type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so wrapped copies of a sentinel compare equal to it.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithMessage(message string) *Error {
	err := *e
	err.Message = message
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func hasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsInvalidAddress(err error) bool {
	return hasCode(err, ErrInvalidAddress.Code)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrValidation.Code)
}

func IsTransport(err error) bool {
	return hasCode(err, ErrTransport.Code)
}

func IsRouterUnreachable(err error) bool {
	return hasCode(err, ErrRouterUnreachable.Code)
}

func IsRouterRejected(err error) bool {
	return hasCode(err, ErrRouterRejected.Code)
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// ToErrorResponse renders err as the JSON body used by every HTTP error
// response: {"error": ..., "error_code": ...}. Transport failures carry the
// underlying cause in "error" so the caller can see why the send failed.
func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	message := appErr.Message
	if appErr.Code == ErrTransport.Code && appErr.Cause != nil {
		message = fmt.Sprintf("%s: %v", appErr.Message, appErr.Cause)
	}

	response := map[string]interface{}{
		"error":      message,
		"error_code": appErr.Code,
	}

	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}

	return response
}
