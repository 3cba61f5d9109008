package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrDelivery         = errors.New("delivery failed")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrRateLimited      = errors.New("rate limited")
)

// Error carries a kind (one of the sentinels above), a client-facing message and
// an optional cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(message string) error {
	return &Error{Kind: ErrValidation, Message: message}
}

func NotFound(message string) error {
	return &Error{Kind: ErrNotFound, Message: message}
}

func Forbidden(message string) error {
	return &Error{Kind: ErrForbidden, Message: message}
}

func Unauthorized(message string) error {
	return &Error{Kind: ErrUnauthorized, Message: message}
}

func RateLimited(message string) error {
	return &Error{Kind: ErrRateLimited, Message: message}
}

// StoreUnavailable wraps an infrastructure failure of the named operation.
func StoreUnavailable(op string, err error) error {
	return &Error{Kind: ErrStoreUnavailable, Message: op + " failed", Err: err}
}

func Delivery(subscriberID string, err error) error {
	return &Error{Kind: ErrDelivery, Message: "delivery to " + subscriberID + " failed", Err: err}
}

// HTTPStatus maps an error to the status code the facade responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the short text safe to show a client. Causes of
// infrastructure failures are never exposed.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		if errors.Is(appErr.Kind, ErrStoreUnavailable) {
			return "service temporarily unavailable, please retry"
		}
		return appErr.Message
	}
	return "internal server error"
}
