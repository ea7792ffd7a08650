package interfaces

import (
	"context"

	"github.com/learnhub/payment-reconciler/internal/models"
)

// PaymentLedger defines the contract for payment attempt data access.
// All state transitions are compare-and-swap on the current state so that
// concurrent writers cannot both drive a terminal transition.
type PaymentLedger interface {
	// CreateAttempt inserts a new attempt in state INITIATING. It returns
	// models.ErrDuplicateAttempt when a non-terminal attempt already exists
	// for the same (user, course) pair; the check and the insert are atomic.
	CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error

	// SetProviderReference records the provider-assigned reference once the
	// provider acknowledges initiation. State moves go through TransitionState.
	SetProviderReference(ctx context.Context, attemptID, reference string) error

	// TransitionState moves the attempt from one state to another, recording
	// a failure reason when there is one. It returns the number of rows
	// affected: zero means the attempt was not in the expected state.
	TransitionState(ctx context.Context, attemptID string, from, to models.AttemptState, reason string) (int64, error)

	GetByID(ctx context.Context, attemptID string) (*models.PaymentAttempt, error)
	GetByProviderReference(ctx context.Context, reference string) (*models.PaymentAttempt, error)

	// GetActiveAttempt returns the non-terminal attempt for the pair, or
	// models.ErrUnknownAttempt when there is none.
	GetActiveAttempt(ctx context.Context, userID, courseID string) (*models.PaymentAttempt, error)
}
