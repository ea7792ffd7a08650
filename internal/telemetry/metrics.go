package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsInitiated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_attempts_initiated_total",
		Help: "Payment attempts created, by provider.",
	}, []string{"provider"})

	PaymentsSucceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_attempts_succeeded_total",
		Help: "Payment attempts that reached SUCCEEDED, by provider.",
	}, []string{"provider"})

	PaymentsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_attempts_failed_total",
		Help: "Payment attempts that reached FAILED, by provider and reason.",
	}, []string{"provider", "reason"})

	ConfirmationReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_confirmation_replays_total",
		Help: "Finalize calls that hit an already-terminal attempt.",
	})

	ReconciliationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_reconciliation_failures_total",
		Help: "Paid attempts whose entitlement grant failed.",
	})
)
