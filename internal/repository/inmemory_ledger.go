package repository

import (
	"context"
	"sync"
	"time"

	"github.com/learnhub/payment-reconciler/internal/models"
)

// InMemoryLedger keeps attempts in a map under a mutex. Used by tests and
// local runs without a database; same contract as the SQL repository.
type InMemoryLedger struct {
	mu       sync.Mutex
	attempts map[string]*models.PaymentAttempt
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{attempts: make(map[string]*models.PaymentAttempt)}
}

func (l *InMemoryLedger) CreateAttempt(_ context.Context, attempt *models.PaymentAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.attempts {
		if existing.UserID == attempt.UserID && existing.CourseID == attempt.CourseID && !existing.State.Terminal() {
			return models.ErrDuplicateAttempt
		}
	}
	clone := *attempt
	l.attempts[attempt.ID] = &clone
	return nil
}

func (l *InMemoryLedger) SetProviderReference(_ context.Context, attemptID, reference string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	attempt, ok := l.attempts[attemptID]
	if !ok {
		return models.ErrUnknownAttempt
	}
	attempt.ProviderReference = reference
	attempt.UpdatedAt = time.Now().UTC()
	return nil
}

func (l *InMemoryLedger) TransitionState(_ context.Context, attemptID string, from, to models.AttemptState, reason string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	attempt, ok := l.attempts[attemptID]
	if !ok || attempt.State != from || attempt.State.Terminal() {
		return 0, nil
	}
	attempt.State = to
	attempt.FailureReason = reason
	attempt.UpdatedAt = time.Now().UTC()
	return 1, nil
}

func (l *InMemoryLedger) GetByID(_ context.Context, attemptID string) (*models.PaymentAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	attempt, ok := l.attempts[attemptID]
	if !ok {
		return nil, models.ErrUnknownAttempt
	}
	clone := *attempt
	return &clone, nil
}

func (l *InMemoryLedger) GetByProviderReference(_ context.Context, reference string) (*models.PaymentAttempt, error) {
	if reference == "" {
		return nil, models.ErrUnknownAttempt
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, attempt := range l.attempts {
		if attempt.ProviderReference == reference {
			clone := *attempt
			return &clone, nil
		}
	}
	return nil, models.ErrUnknownAttempt
}

func (l *InMemoryLedger) GetActiveAttempt(_ context.Context, userID, courseID string) (*models.PaymentAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, attempt := range l.attempts {
		if attempt.UserID == userID && attempt.CourseID == courseID && !attempt.State.Terminal() {
			clone := *attempt
			return &clone, nil
		}
	}
	return nil, models.ErrUnknownAttempt
}
