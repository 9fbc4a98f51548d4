package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersExecuted counts orders accepted by the venue, by trade side.
var OrdersExecuted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "executor_orders_executed_total",
		Help: "Total number of orders accepted by the venue",
	},
	[]string{"side"},
)

// OrdersRejected counts orders rejected before submission, by reason class.
var OrdersRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "executor_orders_rejected_total",
		Help: "Total number of orders rejected by policy before any venue call",
	},
	[]string{"reason"},
)

// OrdersFailed counts submissions the venue refused or that errored out.
var OrdersFailed = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "executor_orders_failed_total",
		Help: "Total number of order submissions that failed at the venue",
	},
)

// DryRuns counts simulated executions.
var DryRuns = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "executor_orders_dry_run_total",
		Help: "Total number of simulated (dry-run) executions",
	},
)

// SubmissionRetries counts retry attempts in the submission driver.
var SubmissionRetries = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "executor_submission_retries_total",
		Help: "Total number of submission retry attempts after transport blocks",
	},
)

// RateLimitDenials counts requests denied by the per-caller sliding window.
var RateLimitDenials = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "executor_rate_limit_denials_total",
		Help: "Total number of requests denied by the per-caller rate limiter",
	},
)

// BreakerHalts counts transitions of the circuit breaker into the halted state.
var BreakerHalts = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "executor_breaker_halts_total",
		Help: "Total number of circuit breaker trips",
	},
)

// RecommendationsProcessed counts pipeline outcomes per recommendation.
var RecommendationsProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "executor_recommendations_processed_total",
		Help: "Total number of recommendations handled by the ingestion pipeline",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(OrdersExecuted, OrdersRejected, OrdersFailed, DryRuns)
	prometheus.MustRegister(SubmissionRetries, RateLimitDenials, BreakerHalts, RecommendationsProcessed)
}
