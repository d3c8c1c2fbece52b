package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/akylbek/payment-system/recurring-billing/internal/models"
)

var (
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_gateway_requests_total",
		Help: "HTTP submissions to the payment gateway, labeled by result",
	}, []string{"result"})

	GatewayRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_gateway_retries_total",
		Help: "Gateway resubmissions, labeled by cause",
	}, []string{"cause"})

	GatewayLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "billing_gateway_request_duration_seconds",
		Help:    "Latency of a single gateway HTTP submission",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	Charges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_charges_total",
		Help: "Charge outcomes per product billing",
	}, []string{"outcome", "retry"})

	Invoices = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_invoices_total",
		Help: "Cheque invoices e-mailed, labeled by result",
	}, []string{"result"})

	Escalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_escalations_total",
		Help: "Administrator notifications for repeated billing failures",
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_errors_total",
		Help: "Degraded operations during a run, labeled by collaborator",
	}, []string{"component"})

	LastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "billing_last_run_timestamp_seconds",
		Help: "Unix time at which the last daily run finished",
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "billing_run_duration_seconds",
		Help:    "Duration of a full daily run",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
)

// ObserveRun records the totals of a finished run.
func ObserveRun(summary *models.RunSummary) {
	if summary == nil {
		return
	}
	LastRunTimestamp.Set(float64(summary.FinishedAt.Unix()))
	RunDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
}
