package providers

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/shopspring/decimal"

	"github.com/learnhub/payment-reconciler/internal/models"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomePending   Outcome = "PENDING"
	OutcomeFailed    Outcome = "FAILED"
)

// InitiateRequest carries everything an adapter may need to start a payment.
// Each adapter validates the fields it requires and ignores the rest.
type InitiateRequest struct {
	Amount      decimal.Decimal
	Currency    string
	CourseRef   string
	MethodToken string // card-network
	PhoneNumber string // mobile-money
}

// InitiateResult is the normalized answer from a provider's initiate call.
// Adapters never touch the payment ledger; all persistence belongs to the
// reconciliation engine.
type InitiateResult struct {
	ProviderReference string
	Outcome           Outcome
	RedirectURL       string // redirect-wallet only
	FailureReason     string
}

// ConfirmationResult is the normalized answer from a callback or verify.
type ConfirmationResult struct {
	ProviderReference string
	Outcome           Outcome
	FailureReason     string
}

// Adapter starts a payment with one provider family.
type Adapter interface {
	Name() models.Provider
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
}

// CallbackParser normalizes an asynchronous push confirmation. A payload that
// cannot be decoded yields models.ErrMalformedConfirmation, distinct from a
// well-formed business failure.
type CallbackParser interface {
	ParseCallback(raw []byte) (*ConfirmationResult, error)
}

// Verifier asks the provider whether a previously initiated payment went
// through (pull-style confirmation).
type Verifier interface {
	Verify(ctx context.Context, providerReference, payerID string) (*ConfirmationResult, error)
}

// Failure reasons form a superset enum across providers; each adapter maps
// its provider-specific codes onto these.
const (
	ReasonDeclined          = "declined"
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonExpiredCard       = "expired_card"
	ReasonInvalidToken      = "invalid_token"
	ReasonCancelledByUser   = "cancelled_by_user"
	ReasonSessionExpired    = "session_expired"
	ReasonTimeout           = "provider_timeout"
)

func timeoutOrErr(err error, provider models.Provider) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", provider, models.ErrProviderTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w", provider, models.ErrProviderTimeout)
	}
	return fmt.Errorf("%s call failed: %w", provider, err)
}
