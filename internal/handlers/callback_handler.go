package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/learnhub/payment-reconciler/internal/models"
	"github.com/learnhub/payment-reconciler/internal/providers"
	"github.com/learnhub/payment-reconciler/internal/service"
	"github.com/learnhub/payment-reconciler/internal/telemetry"
)

// CallbackHandler receives asynchronous provider confirmations: the
// mobile-money push webhook and the redirect-wallet browser return.
type CallbackHandler struct {
	reconciler  *service.Reconciler
	mobileMoney providers.CallbackParser
}

func NewCallbackHandler(reconciler *service.Reconciler, mobileMoney providers.CallbackParser) *CallbackHandler {
	return &CallbackHandler{reconciler: reconciler, mobileMoney: mobileMoney}
}

// MobileMoney handles the provider's push callback. The provider reference is
// inside the envelope, so the payload is parsed once here to find the attempt
// and again by the engine under the attempt lock.
func (h *CallbackHandler) MobileMoney(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	parsed, err := h.mobileMoney.ParseCallback(raw)
	if err != nil {
		telemetry.Logger.Warn("Malformed mobile-money callback", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed callback"})
		return
	}

	attempt, err := h.reconciler.Finalize(c.Request.Context(), parsed.ProviderReference, raw, "")
	if err != nil {
		if errors.Is(err, models.ErrUnknownAttempt) {
			// Providers replay callbacks; an unknown reference is logged
			// but acknowledged so the provider stops redelivering.
			telemetry.Logger.Warn("Callback for unknown attempt",
				zap.String("provider_reference", parsed.ProviderReference))
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		telemetry.Logger.Error("Error finalizing mobile-money payment",
			zap.String("provider_reference", parsed.ProviderReference),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed", "state": attempt.State})
}

// WalletReturn handles the payer's browser coming back from the wallet's
// approval page. The confirmation itself is pulled from the provider.
func (h *CallbackHandler) WalletReturn(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required"})
		return
	}

	attempt, err := h.reconciler.Finalize(c.Request.Context(), reference, nil, c.Query("payer_id"))
	if err != nil {
		telemetry.Logger.Error("Error finalizing wallet payment",
			zap.String("provider_reference", reference),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, attemptView(attempt))
}
