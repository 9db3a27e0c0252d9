package app

import (
	"errors"
	"fmt"

	"github.com/ivanValieri/din-cash/internal/store"
)

// Workflow error kinds. Callers match them with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state transition")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrRateLimited         = errors.New("rate limit exceeded")
)

// RateLimitError reports how long the caller should wait before trying again.
type RateLimitError struct {
	Scope             string
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s, retry after %ds", ErrRateLimited, e.Scope, e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// translateStoreError maps a repository error onto the workflow taxonomy. Anything the
// store does not name explicitly is treated as the store being unavailable.
func translateStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var kind error
	switch {
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrMissionNotFound),
		errors.Is(err, store.ErrCompletionNotFound),
		errors.Is(err, store.ErrWithdrawalNotFound):
		kind = ErrNotFound
	case errors.Is(err, store.ErrDuplicateCompletion),
		errors.Is(err, store.ErrStatusConflict),
		errors.Is(err, store.ErrInvalidTransition):
		kind = ErrInvalidState
	case errors.Is(err, store.ErrInsufficientFunds):
		kind = ErrInsufficientBalance
	default:
		kind = ErrStoreUnavailable
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}
