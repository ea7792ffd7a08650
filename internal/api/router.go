package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/learnhub/payment-reconciler/internal/handlers"
	"github.com/learnhub/payment-reconciler/internal/interfaces"
	"github.com/learnhub/payment-reconciler/internal/providers"
	"github.com/learnhub/payment-reconciler/internal/service"
	"github.com/learnhub/payment-reconciler/internal/telemetry"
)

func NewRouter(
	reconciler *service.Reconciler,
	entitlements interfaces.EntitlementStore,
	mobileMoney providers.CallbackParser,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-reconciler"})
	})

	paymentHandler := handlers.NewPaymentHandler(reconciler)
	r.POST("/payments", paymentHandler.Initiate)
	r.GET("/payments/:reference/state", paymentHandler.GetState)
	r.POST("/payments/:reference/verify", paymentHandler.Verify)
	r.POST("/payments/:reference/cancel", paymentHandler.Cancel)

	callbackHandler := handlers.NewCallbackHandler(reconciler, mobileMoney)
	r.POST("/callbacks/mobile-money", callbackHandler.MobileMoney)
	r.GET("/payments/return", callbackHandler.WalletReturn)

	entitlementHandler := handlers.NewEntitlementHandler(entitlements)
	r.GET("/entitlements/:user_id/:course_id", entitlementHandler.HasAccess)

	return r
}
