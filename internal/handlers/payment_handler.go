package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/learnhub/payment-reconciler/internal/models"
	"github.com/learnhub/payment-reconciler/internal/service"
	"github.com/learnhub/payment-reconciler/internal/telemetry"
)

type PaymentHandler struct {
	reconciler *service.Reconciler
}

func NewPaymentHandler(reconciler *service.Reconciler) *PaymentHandler {
	return &PaymentHandler{reconciler: reconciler}
}

type initiateRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	CourseID    string `json:"course_id" binding:"required"`
	Provider    string `json:"provider" binding:"required"`
	MethodToken string `json:"method_token"`
	PhoneNumber string `json:"phone_number"`
}

func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	outcome, err := h.reconciler.Initiate(c.Request.Context(),
		req.UserID, req.CourseID, models.Provider(req.Provider),
		service.InitiateParams{
			MethodToken: req.MethodToken,
			PhoneNumber: req.PhoneNumber,
		})
	if err != nil {
		telemetry.Logger.Error("Error initiating payment",
			zap.String("user_id", req.UserID),
			zap.String("course_id", req.CourseID),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}

	status := http.StatusAccepted
	if outcome.Replayed {
		status = http.StatusOK
	}
	body := gin.H{"attempt": attemptView(outcome.Attempt)}
	if outcome.RedirectURL != "" {
		body["redirect_url"] = outcome.RedirectURL
	}
	c.JSON(status, body)
}

func (h *PaymentHandler) GetState(c *gin.Context) {
	attempt, err := h.reconciler.GetAttemptStatus(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, attemptView(attempt))
}

func (h *PaymentHandler) Cancel(c *gin.Context) {
	attempt, err := h.reconciler.Cancel(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, attemptView(attempt))
}

// Verify triggers a pull-style confirmation check for redirect-wallet
// attempts whose payer never came back through the return URL.
func (h *PaymentHandler) Verify(c *gin.Context) {
	attempt, err := h.reconciler.Finalize(c.Request.Context(), c.Param("reference"), nil, c.Query("payer_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, attemptView(attempt))
}

func attemptView(attempt *models.PaymentAttempt) gin.H {
	return gin.H{
		"id":                 attempt.ID,
		"user_id":            attempt.UserID,
		"course_id":          attempt.CourseID,
		"provider":           attempt.Provider,
		"amount":             attempt.Amount.String(),
		"currency":           attempt.Currency,
		"provider_reference": attempt.ProviderReference,
		"state":              attempt.State,
		"failure_reason":     attempt.FailureReason,
		"created_at":         attempt.CreatedAt,
		"updated_at":         attempt.UpdatedAt,
	}
}

func writeError(c *gin.Context, err error) {
	var validationErr *models.ValidationError
	var reconciliationErr *models.ReconciliationError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.Is(err, models.ErrUnknownCourse), errors.Is(err, models.ErrUnknownAttempt):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrMalformedConfirmation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrProviderTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrProviderRejected):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrAttemptTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &reconciliationErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment confirmed but access grant failed; support has been notified"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
