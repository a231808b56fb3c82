package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ErrClientNotInitialized is returned by every call on a nil client or service.
var ErrClientNotInitialized = errors.New("gmail client not initialized")

// TransportError reports a failed call to the Gmail API: a network failure,
// a non-2xx status or an open circuit. Status is zero when no HTTP response
// was received.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gmail %s failed (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("gmail %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the call later may succeed.
func (e *TransportError) Temporary() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// AuthError reports that credentials were missing, expired or rejected.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gmail %s unauthorized: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// EmptyPayloadError reports a successful response that lacks the payload
// needed by the caller.
type EmptyPayloadError struct {
	Op        string
	MessageID string
}

func (e *EmptyPayloadError) Error() string {
	return fmt.Sprintf("gmail %s: message %s has no payload", e.Op, e.MessageID)
}

// IsAuthError reports whether err carries an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// classify maps a raw client error onto the package error types.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		te *TransportError
		ae *AuthError
	)
	if errors.As(err, &te) || errors.As(err, &ae) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return &AuthError{Op: op, Err: err}
		case apiErr.Code == http.StatusForbidden && !isRateLimited(apiErr):
			return &AuthError{Op: op, Err: err}
		}
		return &TransportError{Op: op, Status: apiErr.Code, Err: err}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &AuthError{Op: op, Err: err}
	}
	return &TransportError{Op: op, Err: err}
}

// isRateLimited reports whether a 403 is Gmail's quota signal rather than a
// permission failure.
func isRateLimited(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "rate limit")
}

// tripsBreaker reports whether err should count against the circuit.
// Client errors other than 429 say nothing about provider health.
func tripsBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return true
		}
		return apiErr.Code == http.StatusForbidden && isRateLimited(apiErr)
	}
	var retrieveErr *oauth2.RetrieveError
	return !errors.As(err, &retrieveErr)
}
