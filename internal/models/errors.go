package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCourse means the catalog has no course for the given id.
	ErrUnknownCourse = errors.New("unknown course")

	// ErrUnknownAttempt means no ledger row matches the provider reference.
	ErrUnknownAttempt = errors.New("unknown payment attempt")

	// ErrProviderTimeout means the provider did not answer within the bound.
	// The attempt is terminally Failed; the caller may initiate again.
	ErrProviderTimeout = errors.New("provider timeout")

	// ErrProviderRejected means the provider declined the payment.
	ErrProviderRejected = errors.New("provider rejected payment")

	// ErrMalformedConfirmation means a confirmation payload could not be
	// parsed. The attempt stays non-terminal and awaits the next confirmation.
	ErrMalformedConfirmation = errors.New("malformed confirmation payload")

	// ErrAttemptTerminal means a cancel was requested on a finished attempt.
	ErrAttemptTerminal = errors.New("attempt already in terminal state")

	// ErrDuplicateAttempt is returned by the ledger when a non-terminal
	// attempt already exists for the same (user, course) pair.
	ErrDuplicateAttempt = errors.New("non-terminal attempt already exists")
)

// ValidationError marks bad caller input, detected before any provider call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// ReconciliationError is the most severe failure class: the provider confirmed
// the payment but the entitlement grant failed. The user paid without
// receiving access, so this must reach an operator.
type ReconciliationError struct {
	AttemptID string
	Cause     error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("entitlement grant failed for paid attempt %s: %v", e.AttemptID, e.Cause)
}

func (e *ReconciliationError) Unwrap() error { return e.Cause }
