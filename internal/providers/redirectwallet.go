package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/learnhub/payment-reconciler/internal/models"
)

// RedirectWallet creates a checkout order and sends the payer to the wallet's
// approval page. Confirmation is pull-style: the engine asks the wallet
// whether the order completed once the payer returns.
type RedirectWallet struct {
	baseURL string
	client  *http.Client
}

func NewRedirectWallet(baseURL string, timeout time.Duration) *RedirectWallet {
	return &RedirectWallet{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (w *RedirectWallet) Name() models.Provider { return models.ProviderRedirectWallet }

type walletOrderRequest struct {
	Amount    walletAmount `json:"amount"`
	Reference string       `json:"reference"`
}

type walletAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type walletLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type walletOrderResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Links  []walletLink `json:"links"`
}

func (w *RedirectWallet) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.Amount.IsZero() || req.Amount.IsNegative() {
		return nil, &models.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if req.CourseRef == "" {
		return nil, &models.ValidationError{Field: "course", Reason: "is required"}
	}

	body, _ := json.Marshal(walletOrderRequest{
		Amount:    walletAmount{CurrencyCode: req.Currency, Value: req.Amount.String()},
		Reference: req.CourseRef,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/v2/checkout/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return nil, timeoutOrErr(err, w.Name())
	}
	defer resp.Body.Close()

	var order walletOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("decoding order response: %w", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("wallet order rejected: %w", models.ErrProviderRejected)
	}

	result := &InitiateResult{ProviderReference: order.ID, Outcome: OutcomePending}
	for _, link := range order.Links {
		if link.Rel == "approve" {
			result.RedirectURL = link.Href
		}
	}
	return result, nil
}

func (w *RedirectWallet) Verify(ctx context.Context, providerReference, payerID string) (*ConfirmationResult, error) {
	endpoint := fmt.Sprintf("%s/v2/checkout/orders/%s?payer_id=%s",
		w.baseURL, url.PathEscape(providerReference), url.QueryEscape(payerID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return nil, timeoutOrErr(err, w.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: order %s", models.ErrMalformedConfirmation, providerReference)
	}

	var order walletOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedConfirmation, err)
	}

	result := &ConfirmationResult{ProviderReference: order.ID}
	switch order.Status {
	case "COMPLETED", "APPROVED":
		result.Outcome = OutcomeSucceeded
	case "DENIED":
		result.Outcome = OutcomeFailed
		result.FailureReason = ReasonDeclined
	case "EXPIRED":
		result.Outcome = OutcomeFailed
		result.FailureReason = ReasonSessionExpired
	case "VOIDED":
		result.Outcome = OutcomeFailed
		result.FailureReason = ReasonCancelledByUser
	default:
		// CREATED / PAYER_ACTION_REQUIRED: not finished yet, poll again later.
		result.Outcome = OutcomePending
	}
	return result, nil
}
