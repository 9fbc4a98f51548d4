// Package recs ingests the external recommendation feed and funnels
// accepted recommendations into the same execution path as the live API,
// at most one execution attempt per recommendation across restarts.
package recs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/polyagents/executor/internal/execution"
	"github.com/polyagents/executor/internal/journal"
	"github.com/polyagents/executor/internal/markets"
	"github.com/polyagents/executor/internal/risk"
	"github.com/polyagents/executor/internal/venue"
	"github.com/polyagents/executor/pkg/metrics"
	"github.com/polyagents/executor/pkg/models"
)

// defaultRiskPct sizes a recommendation that carries neither an explicit
// size nor a risk percentage.
const defaultRiskPct = 0.05

// Journal actions recorded by the pipeline, alongside the per-order actions
// written by the execution service.
const (
	ActionRecommendationExecuted = "recommendation_executed"
	ActionRecommendationFailed   = "recommendation_failed"
)

// Sizing converts a recommendation's risk percentage into dollars.
type Sizing struct {
	// ReferenceBalanceUSD is the balance risk_pct is applied to.
	ReferenceBalanceUSD float64
	// MaxTradeUSD caps every synthesized order.
	MaxTradeUSD float64
}

// Pipeline is the batch, idempotent recommendation consumer. It is invoked
// on demand; scheduling lives outside this package.
type Pipeline struct {
	feedPath  string
	processed *ProcessedSet
	exec      *execution.Service
	sizing    Sizing
	journal   *journal.Journal
	logger    *zap.Logger
}

// NewPipeline builds a pipeline over an already-loaded processed set. The
// journal is the same audit journal the execution service writes to.
func NewPipeline(feedPath string, processed *ProcessedSet, exec *execution.Service, sizing Sizing, jnl *journal.Journal, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		feedPath:  feedPath,
		processed: processed,
		exec:      exec,
		sizing:    sizing,
		journal:   jnl,
		logger:    logger,
	}
}

// Run reads the whole feed and executes every new actionable recommendation.
// One malformed or failing record never aborts the rest of the batch; Run
// only fails when the feed itself cannot be read.
func (p *Pipeline) Run(ctx context.Context) error {
	f, err := os.Open(p.feedPath)
	if err != nil {
		if os.IsNotExist(err) {
			p.logger.Info("no recommendation feed present", zap.String("path", p.feedPath))
			return nil
		}
		return fmt.Errorf("open recommendation feed: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec models.Recommendation
		if err := json.Unmarshal(line, &rec); err != nil {
			p.logger.Error("failed to parse recommendation", zap.Error(err))
			metrics.RecommendationsProcessed.WithLabelValues("malformed").Inc()
			continue
		}
		p.handle(ctx, &rec)
	}
	return scanner.Err()
}

func (p *Pipeline) handle(ctx context.Context, rec *models.Recommendation) {
	id := rec.Key()
	if id == "" || p.processed.Contains(id) {
		return
	}
	if !rec.Actionable() {
		// HEDGE and PASS are informational; they are not marked
		// processed because they never produce an execution attempt.
		metrics.RecommendationsProcessed.WithLabelValues("skipped").Inc()
		return
	}

	order := p.synthesize(rec)
	p.logger.Info("executing recommendation",
		zap.String("id", id),
		zap.String("market_id", order.MarketID),
		zap.String("decision", rec.Decision),
		zap.Float64("size_usd", order.SizeUSD))

	result, err := p.exec.ExecuteOrder(ctx, order)
	var rej *risk.RejectionError
	switch {
	case err == nil:
		metrics.RecommendationsProcessed.WithLabelValues("executed").Inc()
		p.append(ActionRecommendationExecuted, recOutcome{Recommendation: rec, Result: result}, true, "")
		p.markProcessed(id)
	case errors.Is(err, venue.ErrTransportBlocked) || errors.Is(err, markets.ErrUnavailable):
		// Transient: leave the recommendation unprocessed so the next
		// run re-attempts it.
		metrics.RecommendationsProcessed.WithLabelValues("deferred").Inc()
		p.logger.Warn("recommendation deferred", zap.String("id", id), zap.Error(err))
	case errors.As(err, &rej) && rej.Halted:
		// A halted breaker never reached the venue for this
		// recommendation; once an operator resets it the next run
		// re-attempts the feed.
		metrics.RecommendationsProcessed.WithLabelValues("deferred").Inc()
		p.logger.Warn("recommendation deferred until breaker reset", zap.String("id", id), zap.Error(err))
	default:
		// Policy rejections and terminal venue errors are definitive;
		// re-running them would only repeat the same outcome.
		metrics.RecommendationsProcessed.WithLabelValues("failed").Inc()
		p.append(ActionRecommendationFailed, rec, false, err.Error())
		p.logger.Error("recommendation failed", zap.String("id", id), zap.Error(err))
		p.markProcessed(id)
	}
}

// recOutcome pairs a recommendation with its execution result in the journal.
type recOutcome struct {
	Recommendation *models.Recommendation `json:"recommendation"`
	Result         *models.OrderResult    `json:"result"`
}

// synthesize converts an actionable recommendation into an order request.
func (p *Pipeline) synthesize(rec *models.Recommendation) *models.OrderRequest {
	size := 0.0
	if rec.SizeUSD != nil {
		size = *rec.SizeUSD
	} else {
		riskPct := rec.RiskPct
		if riskPct <= 0 {
			riskPct = defaultRiskPct
		}
		size = riskPct * p.sizing.ReferenceBalanceUSD
	}
	if size > p.sizing.MaxTradeUSD {
		size = p.sizing.MaxTradeUSD
	}

	outcome := models.OutcomeNo
	if rec.Decision == models.DecisionBuyYes {
		outcome = models.OutcomeYes
	}
	price := rec.TargetPrice
	if price == 0 {
		price = 0.5
	}

	return &models.OrderRequest{
		MarketID:  rec.MarketID,
		OutcomeID: outcome,
		Side:      models.SideBuy,
		SizeUSD:   size,
		MaxPrice:  price,
	}
}

func (p *Pipeline) markProcessed(id string) {
	if err := p.processed.Add(id); err != nil {
		p.logger.Error("failed to persist processed id", zap.String("id", id), zap.Error(err))
	}
}

func (p *Pipeline) append(action string, details any, success bool, errMsg string) {
	if err := p.journal.Append(action, details, success, errMsg); err != nil {
		p.logger.Error("journal append failed", zap.String("action", action), zap.Error(err))
	}
}
