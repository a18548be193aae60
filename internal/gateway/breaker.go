package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nulzo/llm-proxy/internal/httpclient"
	"github.com/nulzo/llm-proxy/internal/metrics"
	"github.com/nulzo/llm-proxy/pkg/api"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerSettings configures the optional per-provider circuit breaker.
type BreakerSettings struct {
	Enabled bool
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before a probe.
	OpenTimeout time.Duration
	// Interval clears counts while closed. Zero never clears.
	Interval time.Duration
}

func newBreaker(p api.Provider, s BreakerSettings, log *zap.Logger) *gobreaker.CircuitBreaker[any] {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	metrics.BreakerState.WithLabelValues(p.String()).Set(0)

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        p.String(),
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state change",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
}

// countsAsSuccess keeps client mistakes and caller cancellation from
// tripping the breaker. Only 5xx and transport failures count.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var upstream *httpclient.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode < http.StatusInternalServerError
	}
	return false
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func isOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
