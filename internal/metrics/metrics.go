package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of generation requests processed",
		},
		[]string{"tenant_id", "provider", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Generation request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"tenant_id", "provider"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_tokens_total",
			Help: "Total number of tokens reported by providers",
		},
		[]string{"tenant_id", "provider"},
	)

	CreditsDeducted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_credits_deducted_total",
			Help: "Total credits deducted from prepaid licenses",
		},
		[]string{"tenant_id"},
	)

	BillingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_billing_failures_total",
			Help: "Deductions that failed after successful generation",
		},
		[]string{"tenant_id", "reason"},
	)

	PIIDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_pii_detections_total",
			Help: "Requests in which at least one PII category was redacted",
		},
		[]string{"tenant_id"},
	)

	ComplianceFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_compliance_fallbacks_total",
			Help: "EU-only requests substituted to a compliant provider",
		},
		[]string{"requested", "substituted"},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_provider_errors_total",
			Help: "Total number of provider call failures",
		},
		[]string{"provider", "error_type"},
	)

	CircuitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_circuit_rejections_total",
			Help: "Calls rejected pre-network by an open circuit",
		},
		[]string{"provider"},
	)

	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_circuit_state",
			Help: "Provider circuit state (0=healthy, 1=degraded, 2=unhealthy)",
		},
		[]string{"provider"},
	)

	UsageRecordFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_usage_record_failures_total",
			Help: "Best-effort usage records that could not be persisted",
		},
	)
)
