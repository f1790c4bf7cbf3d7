package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidPrompt   = errors.New("invalid prompt")
	ErrDuplicateTaskID = errors.New("duplicate provider task id")

	// ErrRateLimited is retryable by the caller after the window resets.
	ErrRateLimited = errors.New("rate limited")
	// ErrInsufficientCredits is not retryable without a top-up.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrProviderUnavailable marks a synchronous provider failure at submission.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrUnknownCallbackTarget marks a callback whose task id matches no job.
	ErrUnknownCallbackTarget = errors.New("unknown callback target")
	// ErrInvalidTransition marks a transition attempted against a terminal job.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrSettlementConflict marks a duplicate settlement attempt for a job.
	ErrSettlementConflict = errors.New("settlement conflict")
)

// RateLimitError carries the admission decision that denied a request.
type RateLimitError struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: limit=%d remaining=%d reset_at=%s", e.Limit, e.Remaining, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// InsufficientCreditsError reports the amount a submission needed and the
// balance the user had at the time.
type InsufficientCreditsError struct {
	Required int64
	Balance  int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required=%d balance=%d", e.Required, e.Balance)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }
