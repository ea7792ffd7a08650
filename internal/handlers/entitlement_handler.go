package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/payment-reconciler/internal/interfaces"
)

// EntitlementHandler answers the course player's access checks.
type EntitlementHandler struct {
	store interfaces.EntitlementStore
}

func NewEntitlementHandler(store interfaces.EntitlementStore) *EntitlementHandler {
	return &EntitlementHandler{store: store}
}

func (h *EntitlementHandler) HasAccess(c *gin.Context) {
	userID := c.Param("user_id")
	courseID := c.Param("course_id")

	granted, err := h.store.HasAccess(c.Request.Context(), userID, courseID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check entitlement"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":    userID,
		"course_id":  courseID,
		"has_access": granted,
	})
}
