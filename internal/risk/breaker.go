// Package risk holds the pure order-admission policy and the circuit
// breaker that hardens it against a failing venue.
package risk

import (
	"sync"

	"go.uber.org/zap"

	"github.com/polyagents/executor/pkg/metrics"
)

// CircuitBreaker tracks consecutive submission failures. Once the failure
// count reaches the threshold, Halted reports true and the validator rejects
// every order until an operator resets the breaker or restarts the process.
//
// Only failures originating from the submission path may be recorded here;
// validator rejections never reach the venue and therefore never count.
type CircuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	logger    *zap.Logger
}

// NewCircuitBreaker creates an armed breaker with a zero failure count.
func NewCircuitBreaker(threshold int, logger *zap.Logger) *CircuitBreaker {
	return &CircuitBreaker{threshold: threshold, logger: logger}
}

// RecordFailure increments the consecutive failure count. The increment and
// the threshold comparison happen under one lock so a racing RecordSuccess
// cannot lose the update.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.failures == cb.threshold {
		metrics.BreakerHalts.Inc()
		cb.logger.Error("circuit breaker tripped, halting execution",
			zap.Int("consecutive_failures", cb.failures),
			zap.Int("threshold", cb.threshold))
	}
}

// RecordSuccess resets the consecutive failure count to zero.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
}

// Halted reports whether the failure count has reached the threshold.
func (cb *CircuitBreaker) Halted() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures >= cb.threshold
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset re-arms the breaker. Operator action only.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.failures >= cb.threshold {
		cb.logger.Warn("circuit breaker reset by operator",
			zap.Int("consecutive_failures", cb.failures))
	}
	cb.failures = 0
}
