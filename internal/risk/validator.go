package risk

import (
	"fmt"

	"github.com/polyagents/executor/pkg/models"
)

// RejectionError is a policy rejection. It is never retried and maps to
// HTTP 400 at the API boundary. Halted marks the one rejection that reflects
// transient system state (the tripped breaker) rather than a verdict on the
// order itself; batch consumers use it to re-attempt after a reset.
type RejectionError struct {
	Reason string
	Halted bool
}

func (e *RejectionError) Error() string { return e.Reason }

// Reject builds a RejectionError from a format string.
func Reject(format string, args ...any) *RejectionError {
	return &RejectionError{Reason: fmt.Sprintf(format, args...)}
}

// Limits are the hard risk limits the validator enforces.
type Limits struct {
	MaxTradeUSD float64
	// AllowedMarkets is the market allowlist; empty allows all markets.
	AllowedMarkets []string
}

// Validator is the pure admission decision for candidate orders. It has no
// side effects; the caller journals every rejection.
type Validator struct {
	limits  Limits
	allowed map[string]struct{}
	breaker *CircuitBreaker
}

// NewValidator builds a validator over the given limits and breaker.
func NewValidator(limits Limits, breaker *CircuitBreaker) *Validator {
	var allowed map[string]struct{}
	if len(limits.AllowedMarkets) > 0 {
		allowed = make(map[string]struct{}, len(limits.AllowedMarkets))
		for _, m := range limits.AllowedMarkets {
			allowed[m] = struct{}{}
		}
	}
	return &Validator{limits: limits, allowed: allowed, breaker: breaker}
}

// Validate accepts or rejects a candidate order. Checks run in a fixed order
// and the first failing check wins; the reasons are mutually exclusive.
func (v *Validator) Validate(order *models.OrderRequest) error {
	if v.breaker.Halted() {
		return &RejectionError{
			Reason: fmt.Sprintf("execution halted after %d consecutive failures", v.breaker.Failures()),
			Halted: true,
		}
	}
	if order.SizeUSD > v.limits.MaxTradeUSD {
		return Reject("order size $%g exceeds max $%g", order.SizeUSD, v.limits.MaxTradeUSD)
	}
	if v.allowed != nil {
		if _, ok := v.allowed[order.MarketID]; !ok {
			return Reject("market %s not in allowlist", order.MarketID)
		}
	}
	if order.MaxPrice < 0.01 || order.MaxPrice > 0.99 {
		return Reject("price %g out of bounds [0.01, 0.99]", order.MaxPrice)
	}
	return nil
}
