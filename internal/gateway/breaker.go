// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package gateway

import (
	"context"
	"errors"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/pitwall-app/pitwall/internal/apperr"
	"github.com/pitwall-app/pitwall/internal/config"
	"github.com/pitwall-app/pitwall/internal/logging"
	"github.com/pitwall-app/pitwall/internal/metrics"
)

// BreakerClient wraps Client with a circuit breaker around the provider-facing
// discovery calls. Local-database calls (search, event status, jobs) bypass
// the breaker since they do not reach out to LiveRC.
//
// When the circuit is open, discovery returns apperr.ErrCircuitOpen so the
// reconciliation engine can fall back to local-only results instead of
// failing the search.
type BreakerClient struct {
	*Client
	cb   *gobreaker.CircuitBreaker[interface{}]
	name string
}

// NewBreakerClient creates a backend client with circuit breaker protection
// on discovery. The circuit opens when the failure rate reaches
// BreakerFailureRate with at least BreakerMinRequests observed inside the
// BreakerInterval window, and transitions to half-open after BreakerTimeout.
func NewBreakerClient(cfg *config.BackendConfig, disc *config.DiscoveryConfig) *BreakerClient {
	client := NewClient(cfg)
	cbName := "provider-discovery"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: disc.BreakerMaxRequests,
		Interval:    disc.BreakerInterval,
		Timeout:     disc.BreakerTimeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < disc.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= disc.BreakerFailureRate
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerClient{
		Client: client,
		cb:     cb,
		name:   cbName,
	}
}

// execute wraps a provider call with circuit breaker protection.
func (bc *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := bc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "rejected").Inc()
			return nil, apperr.ErrCircuitOpen
		}
		metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "success").Inc()
	return result, nil
}

func castResult[T any](result interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// DiscoverEvents runs event discovery through the circuit breaker.
func (bc *BreakerClient) DiscoverEvents(ctx context.Context, req DiscoverRequest) (*DiscoveryResult, error) {
	return castResult[DiscoveryResult](bc.execute(func() (interface{}, error) {
		return bc.Client.DiscoverEvents(ctx, req)
	}))
}

// DiscoverPracticeDays runs practice-day discovery through the circuit breaker.
func (bc *BreakerClient) DiscoverPracticeDays(ctx context.Context, req DiscoverRequest) (*PracticeDiscoveryResult, error) {
	return castResult[PracticeDiscoveryResult](bc.execute(func() (interface{}, error) {
		return bc.Client.DiscoverPracticeDays(ctx, req)
	}))
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

var _ Backend = (*BreakerClient)(nil)
