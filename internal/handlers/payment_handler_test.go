package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/payment-reconciler/internal/api"
	"github.com/learnhub/payment-reconciler/internal/catalog"
	"github.com/learnhub/payment-reconciler/internal/entitlements"
	"github.com/learnhub/payment-reconciler/internal/interfaces"
	"github.com/learnhub/payment-reconciler/internal/models"
	"github.com/learnhub/payment-reconciler/internal/providers"
	"github.com/learnhub/payment-reconciler/internal/repository"
	"github.com/learnhub/payment-reconciler/internal/service"
)

type noopLocker struct {
	mu    sync.Mutex
	locks map[string]bool
}

func (l *noopLocker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]bool)
	}
	if l.locks[key] {
		return false, nil
	}
	l.locks[key] = true
	return true, nil
}

func (l *noopLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, key)
	return nil
}

type noopPublisher struct{}

func (noopPublisher) PublishStateChange(context.Context, models.StateChangedEvent) error { return nil }

type noopAlerter struct{}

func (noopAlerter) AlertReconciliationFailure(context.Context, models.ReconciliationAlert) error {
	return nil
}

func setupRouter(t *testing.T) (*gin.Engine, interfaces.EntitlementStore) {
	t.Helper()

	providerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"CheckoutRequestID": "mm_1",
			"ResponseCode":      "0",
		})
	}))
	t.Cleanup(providerSrv.Close)

	courses := catalog.NewInMemory()
	courses.Add(interfaces.Course{ID: "c1", Title: "Intro to Go", Price: decimal.RequireFromString("50"), Currency: "USD"})

	store := entitlements.NewInMemory()
	mobileMoney := providers.NewMobileMoney(providerSrv.URL, time.Second)

	reconciler := service.NewReconciler(
		repository.NewInMemoryLedger(),
		courses,
		store,
		[]providers.Adapter{mobileMoney},
		&noopLocker{},
		noopPublisher{},
		noopAlerter{},
		time.Second,
	)
	return api.NewRouter(reconciler, store, mobileMoney), store
}

func TestMobileMoneyFlowOverHTTP(t *testing.T) {
	router, store := setupRouter(t)

	// Initiate
	w := httptest.NewRecorder()
	body := `{"user_id":"u1","course_id":"c1","provider":"mobile-money","phone_number":"254700000000"}`
	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var initResp struct {
		Attempt struct {
			State             string `json:"state"`
			ProviderReference string `json:"provider_reference"`
		} `json:"attempt"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &initResp))
	require.Equal(t, string(models.StatePendingConfirmation), initResp.Attempt.State)
	require.Equal(t, "mm_1", initResp.Attempt.ProviderReference)

	// Duplicate initiate folds into the pending attempt.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Provider callback confirms the payment.
	w = httptest.NewRecorder()
	callback := `{"Body":{"stkCallback":{"CheckoutRequestID":"mm_1","ResultCode":0,"ResultDesc":"Success"}}}`
	req = httptest.NewRequest(http.MethodPost, "/callbacks/mobile-money", strings.NewReader(callback))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// State is visible to the polling UI.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/payments/mm_1/state", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), string(models.StateSucceeded))

	// And the entitlement was granted.
	granted, err := store.HasAccess(context.Background(), "u1", "c1")
	require.NoError(t, err)
	require.True(t, granted)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/entitlements/u1/c1", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"has_access":true`)
}

func TestMobileMoneyCallback_UnknownReferenceAcknowledged(t *testing.T) {
	router, _ := setupRouter(t)

	w := httptest.NewRecorder()
	callback := `{"CheckoutRequestID":"mm_unknown","ResultCode":0}`
	req := httptest.NewRequest(http.MethodPost, "/callbacks/mobile-money", strings.NewReader(callback))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "ignored")
}

func TestInitiate_UnknownCourseReturns404(t *testing.T) {
	router, _ := setupRouter(t)

	w := httptest.NewRecorder()
	body := `{"user_id":"u1","course_id":"c404","provider":"mobile-money","phone_number":"254700000000"}`
	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestInitiate_MissingFieldReturns400(t *testing.T) {
	router, _ := setupRouter(t)

	w := httptest.NewRecorder()
	body := `{"user_id":"u1","course_id":"c1","provider":"mobile-money"}`
	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "phone_number")
}
