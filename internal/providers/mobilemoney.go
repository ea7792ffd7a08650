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

// MobileMoney initiates an STK-push style payment: the provider immediately
// returns a checkout reference and the payer approves on their device. The
// real outcome arrives later via a push callback envelope.
type MobileMoney struct {
	baseURL string
	client  *http.Client
}

func NewMobileMoney(baseURL string, timeout time.Duration) *MobileMoney {
	return &MobileMoney{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (m *MobileMoney) Name() models.Provider { return models.ProviderMobileMoney }

type stkPushRequest struct {
	Amount           string `json:"Amount"`
	Currency         string `json:"Currency"`
	PhoneNumber      string `json:"PhoneNumber"`
	AccountReference string `json:"AccountReference"`
}

type stkPushResponse struct {
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResponseCode      string `json:"ResponseCode"`
	ResponseDesc      string `json:"ResponseDescription"`
}

func (m *MobileMoney) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.Amount.IsZero() || req.Amount.IsNegative() {
		return nil, &models.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if req.CourseRef == "" {
		return nil, &models.ValidationError{Field: "course", Reason: "is required"}
	}
	if req.PhoneNumber == "" {
		return nil, &models.ValidationError{Field: "phone_number", Reason: "is required"}
	}

	body, _ := json.Marshal(stkPushRequest{
		Amount:           req.Amount.String(),
		Currency:         req.Currency,
		PhoneNumber:      req.PhoneNumber,
		AccountReference: req.CourseRef,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/stkpush/v1/processrequest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, timeoutOrErr(err, m.Name())
	}
	defer resp.Body.Close()

	var push stkPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&push); err != nil {
		return nil, fmt.Errorf("decoding stk push response: %w", err)
	}

	if push.ResponseCode != "0" {
		return &InitiateResult{Outcome: OutcomeFailed, FailureReason: ReasonDeclined}, nil
	}
	return &InitiateResult{ProviderReference: push.CheckoutRequestID, Outcome: OutcomePending}, nil
}

// Callback envelope: the result code either sits under Body.stkCallback or at
// the top level, depending on the provider's delivery channel.
type stkCallback struct {
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        *int   `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
}

type stkCallbackEnvelope struct {
	Body *struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
	stkCallback
}

// Mobile-money result codes, mapped onto the normalized failure reasons.
const (
	mmResultOK                = 0
	mmResultInsufficientFunds = 1
	mmResultCancelledByUser   = 1032
	mmResultTimeout           = 1037
)

func (m *MobileMoney) ParseCallback(raw []byte) (*ConfirmationResult, error) {
	var env stkCallbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedConfirmation, err)
	}

	cb := env.stkCallback
	if env.Body != nil && env.Body.StkCallback != nil {
		cb = *env.Body.StkCallback
	}
	if cb.ResultCode == nil {
		return nil, fmt.Errorf("%w: missing ResultCode", models.ErrMalformedConfirmation)
	}

	result := &ConfirmationResult{ProviderReference: cb.CheckoutRequestID}
	switch *cb.ResultCode {
	case mmResultOK:
		result.Outcome = OutcomeSucceeded
	case mmResultInsufficientFunds:
		result.Outcome = OutcomeFailed
		result.FailureReason = ReasonInsufficientFunds
	case mmResultCancelledByUser:
		result.Outcome = OutcomeFailed
		result.FailureReason = ReasonCancelledByUser
	case mmResultTimeout:
		result.Outcome = OutcomeFailed
		result.FailureReason = ReasonTimeout
	default:
		result.Outcome = OutcomeFailed
		result.FailureReason = fmt.Sprintf("result_code_%d", *cb.ResultCode)
	}
	return result, nil
}
