package services

import (
	"context"
	"errors"

	"github.com/ajramos/gmail-inbox/internal/gmail"
)

var (
	// Navigation errors
	ErrNavigationBoundary = errors.New("end of navigation")
	ErrLoadInProgress     = errors.New("page load in progress")

	// Account errors
	ErrNoAccounts       = errors.New("no accounts configured")
	ErrNoOtherAccount   = errors.New("there aren't any other accounts to switch to")
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountNotActive = errors.New("account not active")

	// Cache errors
	ErrCacheUnavailable = errors.New("cache unavailable")
	ErrCacheCorrupted   = errors.New("cache corrupted")
)

// IsRetryableError reports whether repeating the operation later may succeed
func IsRetryableError(err error) bool {
	if errors.Is(err, ErrLoadInProgress) || errors.Is(err, ErrCacheUnavailable) {
		return true
	}
	var te *gmail.TransportError
	if errors.As(err, &te) {
		return te.Temporary() && !errors.Is(err, context.Canceled)
	}
	return false
}

// IsPermanentError reports whether repeating the operation cannot help
// without user action
func IsPermanentError(err error) bool {
	return gmail.IsAuthError(err) ||
		errors.Is(err, ErrNavigationBoundary) ||
		errors.Is(err, ErrNoAccounts) ||
		errors.Is(err, ErrNoOtherAccount) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrCacheCorrupted)
}
