package providers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/payment-reconciler/internal/models"
	"github.com/learnhub/payment-reconciler/internal/providers"
)

func mobileMoneyRequest() providers.InitiateRequest {
	return providers.InitiateRequest{
		Amount:      decimal.RequireFromString("50"),
		Currency:    "KES",
		CourseRef:   "c1",
		PhoneNumber: "254700000000",
	}
}

func TestMobileMoney_Initiate_ReturnsPendingReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stkpush/v1/processrequest", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"CheckoutRequestID": "mm_1",
			"ResponseCode":      "0",
		})
	}))
	defer srv.Close()

	adapter := providers.NewMobileMoney(srv.URL, time.Second)
	result, err := adapter.Initiate(context.Background(), mobileMoneyRequest())
	require.NoError(t, err)
	require.Equal(t, providers.OutcomePending, result.Outcome)
	require.Equal(t, "mm_1", result.ProviderReference)
}

func TestMobileMoney_Initiate_RequiresPhoneNumber(t *testing.T) {
	adapter := providers.NewMobileMoney("http://unused", time.Second)

	req := mobileMoneyRequest()
	req.PhoneNumber = ""
	_, err := adapter.Initiate(context.Background(), req)

	var validationErr *models.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "phone_number", validationErr.Field)
}

func TestMobileMoney_ParseCallback_Success(t *testing.T) {
	adapter := providers.NewMobileMoney("http://unused", time.Second)

	result, err := adapter.ParseCallback([]byte(`{"CheckoutRequestID":"mm_1","ResultCode":0,"ResultDesc":"Success"}`))
	require.NoError(t, err)
	require.Equal(t, providers.OutcomeSucceeded, result.Outcome)
	require.Equal(t, "mm_1", result.ProviderReference)
}

func TestMobileMoney_ParseCallback_NestedEnvelope(t *testing.T) {
	adapter := providers.NewMobileMoney("http://unused", time.Second)

	payload := `{"Body":{"stkCallback":{"CheckoutRequestID":"mm_2","ResultCode":1,"ResultDesc":"Insufficient funds"}}}`
	result, err := adapter.ParseCallback([]byte(payload))
	require.NoError(t, err)
	require.Equal(t, providers.OutcomeFailed, result.Outcome)
	require.Equal(t, providers.ReasonInsufficientFunds, result.FailureReason)
	require.Equal(t, "mm_2", result.ProviderReference)
}

func TestMobileMoney_ParseCallback_FailureCodes(t *testing.T) {
	adapter := providers.NewMobileMoney("http://unused", time.Second)

	tests := []struct {
		code   int
		reason string
	}{
		{1, providers.ReasonInsufficientFunds},
		{1032, providers.ReasonCancelledByUser},
		{1037, providers.ReasonTimeout},
		{9999, "result_code_9999"},
	}

	for _, tt := range tests {
		payload, _ := json.Marshal(map[string]any{
			"CheckoutRequestID": "mm_3",
			"ResultCode":        tt.code,
		})
		result, err := adapter.ParseCallback(payload)
		require.NoError(t, err)
		require.Equal(t, providers.OutcomeFailed, result.Outcome)
		require.Equal(t, tt.reason, result.FailureReason)
	}
}

func TestMobileMoney_ParseCallback_Malformed(t *testing.T) {
	adapter := providers.NewMobileMoney("http://unused", time.Second)

	_, err := adapter.ParseCallback([]byte(`not json`))
	require.ErrorIs(t, err, models.ErrMalformedConfirmation)

	// Well-formed JSON without a result code is still malformed.
	_, err = adapter.ParseCallback([]byte(`{"CheckoutRequestID":"mm_1"}`))
	require.ErrorIs(t, err, models.ErrMalformedConfirmation)
}
