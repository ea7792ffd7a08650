package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/learnhub/payment-reconciler/internal/api"
	"github.com/learnhub/payment-reconciler/internal/catalog"
	"github.com/learnhub/payment-reconciler/internal/config"
	"github.com/learnhub/payment-reconciler/internal/entitlements"
	"github.com/learnhub/payment-reconciler/internal/providers"
	"github.com/learnhub/payment-reconciler/internal/repository"
	"github.com/learnhub/payment-reconciler/internal/service"
	"github.com/learnhub/payment-reconciler/internal/telemetry"
)

func main() {
	cfg := config.Load()

	if err := telemetry.InitTelemetry("payment-reconciler", cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Reconciler")

	// Payment ledger on PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ledger := repository.NewPaymentLedgerRepository(db)
	if err := ledger.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Redis backs both the per-attempt finalize lock and the entitlement store
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	defer redisClient.Close()

	// NATS carries reconciliation-failure alerts to operators
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Kafka receives payment.state.changed events
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Topic:    "payment.state.changed",
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	mobileMoney := providers.NewMobileMoney(cfg.MobileMoneyURL, cfg.ProviderTimeout)
	adapters := []providers.Adapter{
		providers.NewCardNetwork(cfg.CardNetworkURL, cfg.ProviderTimeout),
		mobileMoney,
		providers.NewRedirectWallet(cfg.RedirectWalletURL, cfg.ProviderTimeout),
	}

	courses := catalog.NewClient(cfg.CatalogURL, cfg.ProviderTimeout)
	entitlementStore := entitlements.NewRedisStore(redisClient)

	reconciler := service.NewReconciler(
		ledger,
		courses,
		entitlementStore,
		adapters,
		service.NewRedisLocker(redisClient),
		service.NewKafkaStatePublisher(kafkaWriter),
		service.NewNATSAlerter(nc, "reconciliation.failed"),
		cfg.ProviderTimeout,
	)

	r := api.NewRouter(reconciler, entitlementStore, mobileMoney)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		telemetry.Logger.Info("Payment Reconciler starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
