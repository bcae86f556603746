package external

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/cvrisk-engine/internal/domain"
)

// ResilientAlgorithm wraps a risk algorithm client with a circuit breaker.
// It implements domain.RiskAlgorithm itself, so the orchestrator never sees
// the breaker directly. An open breaker fails fast with an AlgorithmError;
// the other branch keeps serving.
type ResilientAlgorithm struct {
	inner   domain.RiskAlgorithm
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewResilientAlgorithm wraps the given algorithm client.
func NewResilientAlgorithm(logger *logrus.Logger, inner domain.RiskAlgorithm) *ResilientAlgorithm {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(inner.ID()),
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ResilientAlgorithm{inner: inner, breaker: breaker, logger: logger}
}

// ID implements domain.RiskAlgorithm.
func (r *ResilientAlgorithm) ID() domain.AlgorithmID { return r.inner.ID() }

// ComputeRisk implements domain.RiskAlgorithm with breaker protection.
func (r *ResilientAlgorithm) ComputeRisk(ctx context.Context, profile *domain.NormalizedProfile) (*domain.RiskResult, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.inner.ComputeRisk(ctx, profile)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.NewAlgorithmError(r.inner.ID(),
				errors.New("service unavailable (circuit breaker open)"))
		}
		return nil, err
	}
	return result.(*domain.RiskResult), nil
}

// State returns the breaker's current state for health reporting.
func (r *ResilientAlgorithm) State() gobreaker.State { return r.breaker.State() }

// Counts returns the breaker's request counts for health reporting.
func (r *ResilientAlgorithm) Counts() gobreaker.Counts { return r.breaker.Counts() }
