package biddingerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Repository-level errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrVersionConflict = errors.New("stale session snapshot")
)

// business logic errors
var (
	ErrInvalidBid          = errors.New("invalid bid")
	ErrNotEligible         = errors.New("user is not eligible to bid")
	ErrSessionTerminal     = errors.New("session is in a terminal state")
	ErrTwoSidedBidding     = errors.New("both participants have already bid")
	ErrBelowCurrentMinimum = errors.New("ceiling is below the current minimum bid")
	ErrNoHighBid           = errors.New("session has no high bid")
	ErrInvariantViolation  = errors.New("session invariant violated")
)

// ValidationFailedError carries the complete list of violated bid rules so
// the client sees every problem at once, not just the first.
type ValidationFailedError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidBid, strings.Join(e.Errors, "; "))
}

// Unwrap lets errors.Is(err, ErrInvalidBid) match.
func (e *ValidationFailedError) Unwrap() error {
	return ErrInvalidBid
}
