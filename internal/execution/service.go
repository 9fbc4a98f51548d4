// Package execution composes the risk validator, market reference client,
// submission driver, circuit breaker and audit journal into the single
// decision path every order takes, whether it arrives over HTTP or from the
// recommendation pipeline.
package execution

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/polyagents/executor/internal/journal"
	"github.com/polyagents/executor/internal/risk"
	"github.com/polyagents/executor/pkg/metrics"
	"github.com/polyagents/executor/pkg/models"
)

// Journal action tags, stable because the dashboards group on them.
const (
	ActionOrderRejected = "order_rejected"
	ActionOrderDryRun   = "order_dry_run"
	ActionOrderExecuted = "order_executed"
	ActionOrderFailed   = "order_failed"
	ActionOrderError    = "order_error"
)

// DryRunOrderID is the synthetic order id journaled for simulated executions.
const DryRunOrderID = "dry-run-simulated"

// MarketSource yields quote snapshots. Implemented by markets.Client.
type MarketSource interface {
	GetMarket(ctx context.Context, marketID string) (*models.MarketQuote, error)
}

// OrderDriver places orders on the venue. Implemented by venue.Driver.
type OrderDriver interface {
	BuyGTC(ctx context.Context, tokenID string, amount, price float64) (string, error)
	SellFOK(ctx context.Context, tokenID string, amount, refPrice float64) (string, bool, error)
}

// SubmitError is a failure on the submission path: the venue was reached (or
// retried) and the order did not go through. It trips the circuit breaker
// and maps to HTTP 500.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string { return e.Err.Error() }
func (e *SubmitError) Unwrap() error { return e.Err }

// Options are the risk knobs of the execution path.
type Options struct {
	MaxSlippageBps int
	DryRun         bool
}

// Service is the risk-gated execution core.
type Service struct {
	opts      Options
	validator *risk.Validator
	breaker   *risk.CircuitBreaker
	markets   MarketSource
	driver    OrderDriver
	journal   *journal.Journal
	logger    *zap.Logger
}

// NewService wires the execution core.
func NewService(opts Options, validator *risk.Validator, breaker *risk.CircuitBreaker,
	source MarketSource, driver OrderDriver, jrnl *journal.Journal, logger *zap.Logger) *Service {
	return &Service{
		opts:      opts,
		validator: validator,
		breaker:   breaker,
		markets:   source,
		driver:    driver,
		journal:   jrnl,
		logger:    logger,
	}
}

// Breaker exposes the shared circuit breaker for health reporting and the
// operator reset endpoint.
func (s *Service) Breaker() *risk.CircuitBreaker { return s.breaker }

// DryRun reports whether the service simulates submissions.
func (s *Service) DryRun() bool { return s.opts.DryRun }

// ExecuteOrder runs the full decision path for one normalized order:
// validate, quote, slippage check, then either a simulated or a real
// submission. Every outcome is journaled before it is returned.
func (s *Service) ExecuteOrder(ctx context.Context, order *models.OrderRequest) (*models.OrderResult, error) {
	if err := s.validator.Validate(order); err != nil {
		metrics.OrdersRejected.WithLabelValues("policy").Inc()
		s.append(ActionOrderRejected, order, false, err.Error())
		return nil, err
	}

	quote, err := s.markets.GetMarket(ctx, order.MarketID)
	if err != nil {
		s.append(ActionOrderError, order, false, err.Error())
		return nil, err
	}

	tokenID := quote.TokenID(order.OutcomeID)
	if tokenID == "" {
		rej := risk.Reject("no token id for outcome %s on market %s", order.OutcomeID, order.MarketID)
		metrics.OrdersRejected.WithLabelValues("market").Inc()
		s.append(ActionOrderRejected, order, false, rej.Reason)
		return nil, rej
	}

	currentPrice := quote.Price(order.OutcomeID)
	if currentPrice <= 0 {
		rej := risk.Reject("invalid current price %g for outcome %s", currentPrice, order.OutcomeID)
		metrics.OrdersRejected.WithLabelValues("market").Inc()
		s.append(ActionOrderRejected, order, false, rej.Reason)
		return nil, rej
	}
	tokenAmount := order.SizeUSD / currentPrice

	// The denominator is the caller's ceiling, not the quoted price. The
	// asymmetry is intentional and relied on by downstream consumers of
	// the journal.
	slippageBps := int(math.Abs(currentPrice-order.MaxPrice) / math.Max(order.MaxPrice, 0.0001) * 10000)
	if slippageBps > s.opts.MaxSlippageBps {
		rej := risk.Reject("slippage %dbps exceeds max %dbps", slippageBps, s.opts.MaxSlippageBps)
		metrics.OrdersRejected.WithLabelValues("slippage").Inc()
		s.append(ActionOrderRejected, order, false, rej.Reason)
		return nil, rej
	}

	if s.opts.DryRun {
		metrics.DryRuns.Inc()
		s.append(ActionOrderDryRun, order, true, "")
		return &models.OrderResult{
			Success:     true,
			DryRun:      true,
			OrderID:     DryRunOrderID,
			TokenID:     tokenID,
			TokenAmount: tokenAmount,
			Price:       currentPrice,
			SizeUSD:     order.SizeUSD,
		}, nil
	}

	// Once submission starts the retry loop runs to completion; a caller
	// disconnect must not abandon an order in flight.
	subCtx := context.WithoutCancel(ctx)

	var orderID string
	if order.Side == models.SideBuy {
		orderID, err = s.driver.BuyGTC(subCtx, tokenID, tokenAmount, order.MaxPrice)
	} else {
		var filled bool
		orderID, filled, err = s.driver.SellFOK(subCtx, tokenID, tokenAmount, currentPrice)
		if err == nil && !filled {
			err = errors.New("sell order did not fill")
		}
	}
	if err == nil && orderID == "" {
		err = errors.New("venue returned no order id")
	}
	if err != nil {
		s.breaker.RecordFailure()
		metrics.OrdersFailed.Inc()
		s.append(ActionOrderFailed, order, false, err.Error())
		return nil, &SubmitError{Err: err}
	}

	s.breaker.RecordSuccess()
	metrics.OrdersExecuted.WithLabelValues(order.Side).Inc()
	s.append(ActionOrderExecuted, order, true, "")
	return &models.OrderResult{
		Success:     true,
		OrderID:     orderID,
		TokenID:     tokenID,
		TokenAmount: tokenAmount,
		Price:       currentPrice,
		SizeUSD:     order.SizeUSD,
	}, nil
}

func (s *Service) append(action string, details any, success bool, errMsg string) {
	if err := s.journal.Append(action, details, success, errMsg); err != nil {
		s.logger.Error("journal append failed", zap.String("action", action), zap.Error(err))
	}
}
