package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/learnhub/payment-reconciler/internal/models"
)

// PaymentLedgerRepository stores payment attempts in SQL. The uniqueness
// invariant (one non-terminal attempt per user+course) is enforced by a
// partial unique index, so concurrent initiations race on the insert rather
// than on a read-then-write check.
type PaymentLedgerRepository struct {
	db *sql.DB
}

func NewPaymentLedgerRepository(db *sql.DB) *PaymentLedgerRepository {
	return &PaymentLedgerRepository{db: db}
}

func (r *PaymentLedgerRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_attempts (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			course_id VARCHAR(255) NOT NULL,
			provider VARCHAR(32) NOT NULL,
			amount VARCHAR(64) NOT NULL,
			currency VARCHAR(8) NOT NULL,
			provider_reference VARCHAR(255) NOT NULL DEFAULT '',
			state VARCHAR(32) NOT NULL,
			failure_reason VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_attempt
			ON payment_attempts(user_id, course_id)
			WHERE state IN ('INITIATING', 'PENDING_CONFIRMATION')`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_provider_reference
			ON payment_attempts(provider_reference)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (r *PaymentLedgerRepository) CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_attempts
			(id, user_id, course_id, provider, amount, currency, provider_reference, state, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, attempt.ID, attempt.UserID, attempt.CourseID, attempt.Provider,
		attempt.Amount.String(), attempt.Currency, attempt.ProviderReference,
		attempt.State, attempt.FailureReason, attempt.CreatedAt, attempt.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ErrDuplicateAttempt
	}
	return err
}

func (r *PaymentLedgerRepository) SetProviderReference(ctx context.Context, attemptID, reference string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_attempts
		SET provider_reference = $1, updated_at = $2
		WHERE id = $3
	`, reference, time.Now().UTC(), attemptID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrUnknownAttempt
	}
	return nil
}

func (r *PaymentLedgerRepository) TransitionState(ctx context.Context, attemptID string, from, to models.AttemptState, reason string) (int64, error) {
	// Terminal rows never transition, whatever the caller claims as `from`.
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_attempts
		SET state = $1, failure_reason = $2, updated_at = $3
		WHERE id = $4 AND state = $5
		  AND state IN ('INITIATING', 'PENDING_CONFIRMATION')
	`, to, reason, time.Now().UTC(), attemptID, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *PaymentLedgerRepository) GetByID(ctx context.Context, attemptID string) (*models.PaymentAttempt, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectAttempt+` WHERE id = $1`, attemptID))
}

func (r *PaymentLedgerRepository) GetByProviderReference(ctx context.Context, reference string) (*models.PaymentAttempt, error) {
	// An empty reference would match every attempt still awaiting one.
	if reference == "" {
		return nil, models.ErrUnknownAttempt
	}
	return r.scanOne(r.db.QueryRowContext(ctx, selectAttempt+` WHERE provider_reference = $1`, reference))
}

func (r *PaymentLedgerRepository) GetActiveAttempt(ctx context.Context, userID, courseID string) (*models.PaymentAttempt, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectAttempt+`
		WHERE user_id = $1 AND course_id = $2
		  AND state IN ('INITIATING', 'PENDING_CONFIRMATION')
	`, userID, courseID))
}

const selectAttempt = `
	SELECT id, user_id, course_id, provider, amount, currency, provider_reference, state, failure_reason, created_at, updated_at
	FROM payment_attempts`

func (r *PaymentLedgerRepository) scanOne(row *sql.Row) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	var amount string
	err := row.Scan(&attempt.ID, &attempt.UserID, &attempt.CourseID, &attempt.Provider,
		&amount, &attempt.Currency, &attempt.ProviderReference, &attempt.State,
		&attempt.FailureReason, &attempt.CreatedAt, &attempt.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUnknownAttempt
	}
	if err != nil {
		return nil, err
	}
	attempt.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	// SQLite (used in tests) reports constraint violations by message.
	return strings.Contains(err.Error(), "UNIQUE constraint")
}
