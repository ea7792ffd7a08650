package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AttemptState string

const (
	StateInitiating          AttemptState = "INITIATING"
	StatePendingConfirmation AttemptState = "PENDING_CONFIRMATION"
	StateSucceeded           AttemptState = "SUCCEEDED"
	StateFailed              AttemptState = "FAILED"
	StateCancelled           AttemptState = "CANCELLED"
)

// Terminal reports whether no further transition is permitted from s.
func (s AttemptState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

var validTransitions = map[AttemptState][]AttemptState{
	StateInitiating:          {StatePendingConfirmation, StateSucceeded, StateFailed, StateCancelled},
	StatePendingConfirmation: {StateSucceeded, StateFailed, StateCancelled},
	StateSucceeded:           {},
	StateFailed:              {},
	StateCancelled:           {},
}

// ValidTransition reports whether moving from one state to another is allowed.
func ValidTransition(from, to AttemptState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Provider string

const (
	ProviderCardNetwork    Provider = "card-network"
	ProviderMobileMoney    Provider = "mobile-money"
	ProviderRedirectWallet Provider = "redirect-wallet"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderCardNetwork, ProviderMobileMoney, ProviderRedirectWallet:
		return true
	}
	return false
}

// PaymentAttempt is one row of the payment ledger. Amount and currency are
// captured from the catalog at initiation and never re-derived, so a later
// price change cannot alter a pending attempt.
type PaymentAttempt struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	CourseID          string          `json:"course_id"`
	Provider          Provider        `json:"provider"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	ProviderReference string          `json:"provider_reference,omitempty"`
	State             AttemptState    `json:"state"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// StateChangedEvent is published to Kafka on every ledger transition.
type StateChangedEvent struct {
	AttemptID         string       `json:"attempt_id"`
	ProviderReference string       `json:"provider_reference,omitempty"`
	UserID            string       `json:"user_id"`
	CourseID          string       `json:"course_id"`
	Provider          Provider     `json:"provider"`
	State             AttemptState `json:"state"`
	PreviousState     AttemptState `json:"previous_state"`
	Timestamp         time.Time    `json:"timestamp"`
}

// ReconciliationAlert is published to NATS when a paid attempt could not be
// granted its entitlement. An operator must repair these by hand.
type ReconciliationAlert struct {
	AttemptID         string    `json:"attempt_id"`
	ProviderReference string    `json:"provider_reference"`
	UserID            string    `json:"user_id"`
	CourseID          string    `json:"course_id"`
	GrantError        string    `json:"grant_error"`
	Timestamp         time.Time `json:"timestamp"`
}
