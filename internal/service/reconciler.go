package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnhub/payment-reconciler/internal/interfaces"
	"github.com/learnhub/payment-reconciler/internal/models"
	"github.com/learnhub/payment-reconciler/internal/providers"
	"github.com/learnhub/payment-reconciler/internal/telemetry"
)

const lockTTL = 30 * time.Second

// InitiateParams carries the provider-specific fields of an initiate request.
type InitiateParams struct {
	MethodToken string
	PhoneNumber string
}

// InitiateOutcome is what the caller gets back from Initiate: the attempt
// snapshot plus, for redirect-wallet, where to send the payer's browser.
type InitiateOutcome struct {
	Attempt     *models.PaymentAttempt
	RedirectURL string
	// Replayed is set when an existing non-terminal attempt was returned
	// instead of creating a new one.
	Replayed bool
}

// Reconciler drives a payment attempt from initiation through provider
// confirmation to its terminal state and the paired entitlement grant. It is
// the single writer of the payment ledger.
type Reconciler struct {
	ledger          interfaces.PaymentLedger
	catalog         interfaces.CatalogLookup
	entitlements    interfaces.EntitlementStore
	adapters        map[models.Provider]providers.Adapter
	locker          Locker
	publisher       StateChangePublisher
	alerter         ReconciliationAlerter
	providerTimeout time.Duration
}

func NewReconciler(
	ledger interfaces.PaymentLedger,
	catalog interfaces.CatalogLookup,
	entitlements interfaces.EntitlementStore,
	adapters []providers.Adapter,
	locker Locker,
	publisher StateChangePublisher,
	alerter ReconciliationAlerter,
	providerTimeout time.Duration,
) *Reconciler {
	byName := make(map[models.Provider]providers.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Reconciler{
		ledger:          ledger,
		catalog:         catalog,
		entitlements:    entitlements,
		adapters:        byName,
		locker:          locker,
		publisher:       publisher,
		alerter:         alerter,
		providerTimeout: providerTimeout,
	}
}

// Initiate starts a payment for (userID, courseID) through the chosen
// provider. Price and currency are captured from the catalog now and never
// re-derived. A second initiate while a non-terminal attempt exists returns
// that attempt instead of creating a duplicate.
func (r *Reconciler) Initiate(ctx context.Context, userID, courseID string, provider models.Provider, params InitiateParams) (*InitiateOutcome, error) {
	if userID == "" {
		return nil, &models.ValidationError{Field: "user_id", Reason: "is required"}
	}
	if courseID == "" {
		return nil, &models.ValidationError{Field: "course_id", Reason: "is required"}
	}
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, &models.ValidationError{Field: "provider", Reason: "is not supported"}
	}
	if err := validateParams(provider, params); err != nil {
		return nil, err
	}

	course, err := r.catalog.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	if existing, err := r.ledger.GetActiveAttempt(ctx, userID, courseID); err == nil {
		return &InitiateOutcome{Attempt: existing, Replayed: true}, nil
	} else if !errors.Is(err, models.ErrUnknownAttempt) {
		return nil, err
	}

	now := time.Now().UTC()
	attempt := &models.PaymentAttempt{
		ID:        uuid.NewString(),
		UserID:    userID,
		CourseID:  courseID,
		Provider:  provider,
		Amount:    course.Price,
		Currency:  course.Currency,
		State:     models.StateInitiating,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.ledger.CreateAttempt(ctx, attempt); err != nil {
		if errors.Is(err, models.ErrDuplicateAttempt) {
			// Lost the insert race: fold into the attempt that won.
			existing, getErr := r.ledger.GetActiveAttempt(ctx, userID, courseID)
			if getErr != nil {
				return nil, getErr
			}
			return &InitiateOutcome{Attempt: existing, Replayed: true}, nil
		}
		return nil, err
	}
	telemetry.PaymentsInitiated.WithLabelValues(string(provider)).Inc()

	callCtx, cancel := context.WithTimeout(ctx, r.providerTimeout)
	defer cancel()

	result, err := adapter.Initiate(callCtx, providers.InitiateRequest{
		Amount:      attempt.Amount,
		Currency:    attempt.Currency,
		CourseRef:   attempt.CourseID,
		MethodToken: params.MethodToken,
		PhoneNumber: params.PhoneNumber,
	})
	if err != nil {
		reason := "provider_error"
		if errors.Is(err, models.ErrProviderTimeout) {
			reason = providers.ReasonTimeout
		}
		r.transition(ctx, attempt, models.StateInitiating, models.StateFailed, reason)
		return nil, err
	}

	if result.ProviderReference != "" {
		if err := r.ledger.SetProviderReference(ctx, attempt.ID, result.ProviderReference); err != nil {
			return nil, err
		}
		attempt.ProviderReference = result.ProviderReference
	}

	switch result.Outcome {
	case providers.OutcomePending:
		if _, err := r.transition(ctx, attempt, models.StateInitiating, models.StatePendingConfirmation, ""); err != nil {
			return nil, err
		}
		return &InitiateOutcome{Attempt: attempt, RedirectURL: result.RedirectURL}, nil

	case providers.OutcomeSucceeded:
		if err := r.settleSuccess(ctx, attempt, models.StateInitiating); err != nil {
			return nil, err
		}
		return &InitiateOutcome{Attempt: attempt}, nil

	default:
		r.transition(ctx, attempt, models.StateInitiating, models.StateFailed, result.FailureReason)
		return nil, fmt.Errorf("%s: %w", result.FailureReason, models.ErrProviderRejected)
	}
}

// Finalize applies an asynchronous confirmation (push callback or pull
// verify) to the attempt identified by providerReference. Replaying a
// confirmation against a terminal attempt returns the stored outcome.
func (r *Reconciler) Finalize(ctx context.Context, providerReference string, rawPayload []byte, payerID string) (*models.PaymentAttempt, error) {
	attempt, err := r.ledger.GetByProviderReference(ctx, providerReference)
	if err != nil {
		return nil, err
	}

	lockKey := fmt.Sprintf("payment_lock:%s", attempt.ID)
	locked, err := r.locker.Acquire(ctx, lockKey, lockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("attempt %s is already being finalized", attempt.ID)
	}
	defer r.locker.Release(ctx, lockKey)

	// Re-read under the lock: a concurrent finalize may have won.
	attempt, err = r.ledger.GetByID(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	if attempt.State.Terminal() {
		telemetry.ConfirmationReplays.Inc()
		return attempt, nil
	}

	result, err := r.normalizeConfirmation(ctx, attempt, rawPayload, payerID)
	if err != nil {
		// Malformed payloads leave the attempt awaiting the next
		// confirmation; they are not business failures.
		return nil, err
	}

	switch result.Outcome {
	case providers.OutcomeSucceeded:
		if err := r.settleSuccess(ctx, attempt, attempt.State); err != nil {
			return nil, err
		}
		return attempt, nil

	case providers.OutcomeFailed:
		if _, err := r.transition(ctx, attempt, attempt.State, models.StateFailed, result.FailureReason); err != nil {
			return nil, err
		}
		return attempt, nil

	default:
		// Provider says not finished yet; nothing to record.
		return attempt, nil
	}
}

// Cancel moves a non-terminal attempt to CANCELLED at the user's request.
func (r *Reconciler) Cancel(ctx context.Context, providerReference string) (*models.PaymentAttempt, error) {
	attempt, err := r.ledger.GetByProviderReference(ctx, providerReference)
	if err != nil {
		return nil, err
	}

	lockKey := fmt.Sprintf("payment_lock:%s", attempt.ID)
	locked, err := r.locker.Acquire(ctx, lockKey, lockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("attempt %s is already being finalized", attempt.ID)
	}
	defer r.locker.Release(ctx, lockKey)

	attempt, err = r.ledger.GetByID(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	if attempt.State == models.StateCancelled {
		return attempt, nil
	}
	if attempt.State.Terminal() {
		return nil, models.ErrAttemptTerminal
	}

	if _, err := r.transition(ctx, attempt, attempt.State, models.StateCancelled, "cancelled_by_user"); err != nil {
		return nil, err
	}
	return attempt, nil
}

// GetAttemptStatus returns the current ledger snapshot for UI polling.
func (r *Reconciler) GetAttemptStatus(ctx context.Context, providerReference string) (*models.PaymentAttempt, error) {
	return r.ledger.GetByProviderReference(ctx, providerReference)
}

func (r *Reconciler) normalizeConfirmation(ctx context.Context, attempt *models.PaymentAttempt, rawPayload []byte, payerID string) (*providers.ConfirmationResult, error) {
	adapter := r.adapters[attempt.Provider]

	if parser, ok := adapter.(providers.CallbackParser); ok {
		if len(rawPayload) > 0 {
			return parser.ParseCallback(rawPayload)
		}
		if _, ok := adapter.(providers.Verifier); !ok {
			// Push-callback providers cannot be polled; a confirmation
			// without its payload is unusable.
			return nil, &models.ValidationError{Field: "payload", Reason: "is required"}
		}
	}
	if verifier, ok := adapter.(providers.Verifier); ok {
		callCtx, cancel := context.WithTimeout(ctx, r.providerTimeout)
		defer cancel()
		return verifier.Verify(callCtx, attempt.ProviderReference, payerID)
	}
	return nil, &models.ValidationError{Field: "provider", Reason: "does not support asynchronous confirmation"}
}

// settleSuccess performs the entitlement grant and the SUCCEEDED write as one
// logical transaction. The grant runs first and is idempotent, so a crash
// between the two writes never loses the successful-payment signal: the next
// confirmation replays the grant and completes the state write.
func (r *Reconciler) settleSuccess(ctx context.Context, attempt *models.PaymentAttempt, from models.AttemptState) error {
	if err := r.entitlements.Grant(ctx, attempt.UserID, attempt.CourseID); err != nil {
		return r.reportGrantFailure(ctx, attempt, from, err)
	}

	applied, err := r.transition(ctx, attempt, from, models.StateSucceeded, "")
	if err != nil {
		return err
	}
	if applied {
		telemetry.PaymentsSucceeded.WithLabelValues(string(attempt.Provider)).Inc()
	}
	return nil
}

// reportGrantFailure handles the worst failure class: the provider confirmed
// the payment but access could not be granted. An attempt still INITIATING
// (synchronous card path) is failed outright; an attempt awaiting
// confirmation is left non-terminal so the next confirmation retries the
// grant. Either way an operator alert goes out.
func (r *Reconciler) reportGrantFailure(ctx context.Context, attempt *models.PaymentAttempt, from models.AttemptState, grantErr error) error {
	telemetry.ReconciliationFailures.Inc()

	alert := models.ReconciliationAlert{
		AttemptID:         attempt.ID,
		ProviderReference: attempt.ProviderReference,
		UserID:            attempt.UserID,
		CourseID:          attempt.CourseID,
		GrantError:        grantErr.Error(),
		Timestamp:         time.Now().UTC(),
	}
	if err := r.alerter.AlertReconciliationFailure(ctx, alert); err != nil {
		telemetry.Logger.Error("Failed to publish reconciliation alert",
			zap.String("attempt_id", attempt.ID),
			zap.Error(err),
		)
	}
	telemetry.Logger.Error("Entitlement grant failed after payment success",
		zap.String("attempt_id", attempt.ID),
		zap.String("user_id", attempt.UserID),
		zap.String("course_id", attempt.CourseID),
		zap.Error(grantErr),
	)

	if from == models.StateInitiating {
		r.transition(ctx, attempt, from, models.StateFailed, "entitlement_grant_failed")
	}
	return &models.ReconciliationError{AttemptID: attempt.ID, Cause: grantErr}
}

// transition applies a CAS state change. It returns false when the attempt
// was no longer in the expected state, in which case attempt is refreshed to
// whatever the concurrent writer decided.
func (r *Reconciler) transition(ctx context.Context, attempt *models.PaymentAttempt, from, to models.AttemptState, reason string) (bool, error) {
	if !models.ValidTransition(from, to) {
		return false, fmt.Errorf("invalid state transition from %s to %s for attempt %s", from, to, attempt.ID)
	}

	rows, err := r.ledger.TransitionState(ctx, attempt.ID, from, to, reason)
	if err != nil {
		return false, err
	}
	if rows == 0 {
		// A concurrent writer got there first; report what it decided.
		current, getErr := r.ledger.GetByID(ctx, attempt.ID)
		if getErr != nil {
			return false, getErr
		}
		*attempt = *current
		return false, nil
	}

	attempt.State = to
	attempt.FailureReason = reason
	attempt.UpdatedAt = time.Now().UTC()

	if to == models.StateFailed {
		telemetry.PaymentsFailed.WithLabelValues(string(attempt.Provider), reason).Inc()
	}

	event := models.StateChangedEvent{
		AttemptID:         attempt.ID,
		ProviderReference: attempt.ProviderReference,
		UserID:            attempt.UserID,
		CourseID:          attempt.CourseID,
		Provider:          attempt.Provider,
		State:             to,
		PreviousState:     from,
		Timestamp:         time.Now().UTC(),
	}
	if err := r.publisher.PublishStateChange(ctx, event); err != nil {
		telemetry.Logger.Error("Failed to publish state change",
			zap.String("attempt_id", attempt.ID),
			zap.Error(err),
		)
	}

	telemetry.Logger.Info("Payment state transition",
		zap.String("attempt_id", attempt.ID),
		zap.String("from_state", string(from)),
		zap.String("to_state", string(to)),
	)
	return true, nil
}

func validateParams(provider models.Provider, params InitiateParams) error {
	switch provider {
	case models.ProviderCardNetwork:
		if params.MethodToken == "" {
			return &models.ValidationError{Field: "method_token", Reason: "is required"}
		}
	case models.ProviderMobileMoney:
		if params.PhoneNumber == "" {
			return &models.ValidationError{Field: "phone_number", Reason: "is required"}
		}
	}
	return nil
}
