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

func walletRequest() providers.InitiateRequest {
	return providers.InitiateRequest{
		Amount:    decimal.RequireFromString("50"),
		Currency:  "USD",
		CourseRef: "c1",
	}
}

func TestRedirectWallet_Initiate_ReturnsRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/checkout/orders", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "wal_1",
			"status": "CREATED",
			"links": []map[string]string{
				{"rel": "self", "href": "https://wallet.test/orders/wal_1"},
				{"rel": "approve", "href": "https://wallet.test/approve/wal_1"},
			},
		})
	}))
	defer srv.Close()

	adapter := providers.NewRedirectWallet(srv.URL, time.Second)
	result, err := adapter.Initiate(context.Background(), walletRequest())
	require.NoError(t, err)
	require.Equal(t, providers.OutcomePending, result.Outcome)
	require.Equal(t, "wal_1", result.ProviderReference)
	require.Equal(t, "https://wallet.test/approve/wal_1", result.RedirectURL)
}

func TestRedirectWallet_Verify(t *testing.T) {
	status := "COMPLETED"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/checkout/orders/wal_1", r.URL.Path)
		require.Equal(t, "payer_9", r.URL.Query().Get("payer_id"))
		json.NewEncoder(w).Encode(map[string]string{"id": "wal_1", "status": status})
	}))
	defer srv.Close()

	adapter := providers.NewRedirectWallet(srv.URL, time.Second)

	result, err := adapter.Verify(context.Background(), "wal_1", "payer_9")
	require.NoError(t, err)
	require.Equal(t, providers.OutcomeSucceeded, result.Outcome)

	status = "DENIED"
	result, err = adapter.Verify(context.Background(), "wal_1", "payer_9")
	require.NoError(t, err)
	require.Equal(t, providers.OutcomeFailed, result.Outcome)
	require.Equal(t, providers.ReasonDeclined, result.FailureReason)

	status = "EXPIRED"
	result, err = adapter.Verify(context.Background(), "wal_1", "payer_9")
	require.NoError(t, err)
	require.Equal(t, providers.ReasonSessionExpired, result.FailureReason)

	// The payer has not approved yet: not a failure, poll again later.
	status = "PAYER_ACTION_REQUIRED"
	result, err = adapter.Verify(context.Background(), "wal_1", "payer_9")
	require.NoError(t, err)
	require.Equal(t, providers.OutcomePending, result.Outcome)
}

func TestRedirectWallet_Verify_UnknownOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	adapter := providers.NewRedirectWallet(srv.URL, time.Second)
	_, err := adapter.Verify(context.Background(), "wal_missing", "")
	require.ErrorIs(t, err, models.ErrMalformedConfirmation)
}
