package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/learnhub/payment-reconciler/internal/models"
)

// CardNetwork charges a tokenized card synchronously: the outcome is known
// from the initiate response and no callback or verify follows.
type CardNetwork struct {
	baseURL string
	client  *http.Client
}

func NewCardNetwork(baseURL string, timeout time.Duration) *CardNetwork {
	return &CardNetwork{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *CardNetwork) Name() models.Provider { return models.ProviderCardNetwork }

type cardChargeRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	MethodToken string `json:"method_token"`
	Reference   string `json:"reference"`
}

type cardChargeResponse struct {
	ChargeID    string `json:"charge_id"`
	Status      string `json:"status"` // succeeded, declined
	DeclineCode string `json:"decline_code,omitempty"`
}

func (c *CardNetwork) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.Amount.IsZero() || req.Amount.IsNegative() {
		return nil, &models.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if req.CourseRef == "" {
		return nil, &models.ValidationError{Field: "course", Reason: "is required"}
	}
	if req.MethodToken == "" {
		return nil, &models.ValidationError{Field: "method_token", Reason: "is required"}
	}

	body, _ := json.Marshal(cardChargeRequest{
		Amount:      req.Amount.String(),
		Currency:    req.Currency,
		MethodToken: req.MethodToken,
		Reference:   req.CourseRef,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, timeoutOrErr(err, c.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("card network returned %d: %w", resp.StatusCode, models.ErrProviderRejected)
	}

	var charge cardChargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
		return nil, fmt.Errorf("decoding charge response: %w", err)
	}

	if charge.Status == "succeeded" {
		return &InitiateResult{ProviderReference: charge.ChargeID, Outcome: OutcomeSucceeded}, nil
	}
	return &InitiateResult{
		ProviderReference: charge.ChargeID,
		Outcome:           OutcomeFailed,
		FailureReason:     mapDeclineCode(charge.DeclineCode),
	}, nil
}

func mapDeclineCode(code string) string {
	switch code {
	case "insufficient_funds":
		return ReasonInsufficientFunds
	case "expired_card":
		return ReasonExpiredCard
	case "invalid_token":
		return ReasonInvalidToken
	default:
		return ReasonDeclined
	}
}
