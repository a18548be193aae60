// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch outcomes.
const (
	OutcomeSuccess             = "success"
	OutcomeUnsupportedModel    = "unsupported_model"
	OutcomeUnsupportedProvider = "unsupported_provider"
	OutcomeMissingCredential   = "missing_credential"
	OutcomeUpstreamError       = "upstream_error"
	OutcomeCircuitOpen         = "circuit_open"
)

var (
	// DispatchTotal counts dispatches.
	// Labels:
	//   - provider: requested provider, as sent by the client
	//   - mode: "chat" or "stream"
	//   - outcome: one of the Outcome constants
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_proxy_dispatch_total",
			Help: "Total number of chat completion dispatches",
		},
		[]string{"provider", "mode", "outcome"},
	)

	// UpstreamDuration measures the upstream call. For streams this is the
	// time until the response headers arrive.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_proxy_upstream_duration_seconds",
			Help:    "Duration of upstream provider calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "mode"},
	)

	// TokensTotal counts tokens of completed non-streamed requests.
	// kind is "prompt" or "completion".
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_proxy_tokens_total",
			Help: "Total tokens processed",
		},
		[]string{"provider", "model", "kind"},
	)

	CostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_proxy_cost_usd_total",
			Help: "Accumulated estimated cost in USD",
		},
		[]string{"provider", "model"},
	)

	UsageDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llm_proxy_usage_dropped_total",
			Help: "Usage records dropped because the ingest buffer was full",
		},
	)

	UsagePersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llm_proxy_usage_persisted_total",
			Help: "Usage records written to the store",
		},
	)

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "llm_proxy_circuit_breaker_state",
			Help: "Circuit breaker state per provider",
		},
		[]string{"provider"},
	)
)
