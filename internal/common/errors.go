// Package common holds the error taxonomy shared by the gateway, the proxy
// and both front ends.
package common

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthenticationFailed is returned when the identity provider rejects
	// the credentials or cannot be reached.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrUnauthorized is returned when a proxied call has no usable token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBackend is matched by every *BackendError.
	ErrBackend = errors.New("backend error")
	// ErrNotFound is matched by a *BackendError carrying status 404.
	ErrNotFound = errors.New("not found")
	// ErrTimeout is returned when a proxied call exceeds its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrTransport is returned for DNS, connection and other network failures.
	ErrTransport = errors.New("transport error")
	// ErrValidation is returned when a caller-side precondition fails
	// before any network call is made.
	ErrValidation = errors.New("validation error")
	// ErrBusy is returned when an operation is already in flight and the
	// duplicate request is dropped.
	ErrBusy = errors.New("operation already in flight")
)

// BackendError is a non-success response reported by the backend or the
// identity provider.
type BackendError struct {
	Status int
	Detail string
}

func (e *BackendError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend responded with status %d", e.Status)
	}
	return fmt.Sprintf("backend responded with status %d: %s", e.Status, e.Detail)
}

// Is makes every BackendError match ErrBackend, 401 and 403 match
// ErrUnauthorized and 404 match ErrNotFound.
func (e *BackendError) Is(target error) bool {
	switch target {
	case ErrBackend:
		return true
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	}
	return false
}

// AuthError describes a rejected password exchange. It never carries the
// submitted password.
type AuthError struct {
	// Status is the provider's HTTP status, 0 when it was unreachable.
	Status int
	// Body is the provider's response body kept for diagnostics.
	Body []byte
	Err  error
}

func (e *AuthError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("authentication failed: provider responded with status %d", e.Status)
}

func (e *AuthError) Is(target error) bool { return target == ErrAuthenticationFailed }

func (e *AuthError) Unwrap() error { return e.Err }

// Validation wraps ErrValidation with a reason.
func Validation(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}

// StatusOf maps an error from the taxonomy to the HTTP status the proxy
// surfaces to its caller.
func StatusOf(err error) int {
	var be *BackendError
	var ae *AuthError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &be):
		return be.Status
	case errors.As(err, &ae):
		if ae.Status == 0 {
			return http.StatusBadGateway
		}
		return ae.Status
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, ErrBusy):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// UserMessage is the uniform message shown to an end user for err.
// Diagnostic detail stays in the logs.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthenticationFailed):
		return "Authentication failed. Please check your credentials."
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrTimeout):
		return "The request took too long. Please try again."
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrBusy):
		return "Please wait for the current request to finish."
	}
	return "Something went wrong. Please try again."
}

// DetailMessage is like UserMessage but prefers the detail a backend sent
// with its failure.
func DetailMessage(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		if be.Detail != "" {
			return be.Detail
		}
		if text := http.StatusText(be.Status); text != "" {
			return text
		}
	}
	return UserMessage(err)
}
