package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/learnhub/payment-reconciler/internal/models"
	"github.com/learnhub/payment-reconciler/internal/repository"
)

func TestInMemoryLedger_TerminalStatesRefuseTransitions(t *testing.T) {
	ledger := repository.NewInMemoryLedger()
	ctx := context.Background()

	attempt := newAttempt("u1", "c1")
	require.NoError(t, ledger.CreateAttempt(ctx, attempt))

	rows, err := ledger.TransitionState(ctx, attempt.ID, models.StateInitiating, models.StateSucceeded, "")
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	// Even a caller claiming the current state cannot leave a terminal one.
	rows, err = ledger.TransitionState(ctx, attempt.ID, models.StateSucceeded, models.StateFailed, "bogus")
	require.NoError(t, err)
	require.EqualValues(t, 0, rows)

	got, err := ledger.GetByID(ctx, attempt.ID)
	require.NoError(t, err)
	require.Equal(t, models.StateSucceeded, got.State)
}

func TestInMemoryLedger_EmptyProviderReference(t *testing.T) {
	ledger := repository.NewInMemoryLedger()
	ctx := context.Background()

	// An INITIATING attempt has no reference yet; an empty lookup must not
	// match it.
	require.NoError(t, ledger.CreateAttempt(ctx, newAttempt("u1", "c1")))

	_, err := ledger.GetByProviderReference(ctx, "")
	require.ErrorIs(t, err, models.ErrUnknownAttempt)
}
