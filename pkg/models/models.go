package models

import (
	"fmt"
	"strings"
)

// Outcome sides of a binary market.
const (
	OutcomeYes = "YES"
	OutcomeNo  = "NO"
)

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// OrderRequest is the body of POST /order and the unit of work synthesized
// from accepted recommendations. Fields are normalized once on entry and
// treated as immutable afterwards.
type OrderRequest struct {
	MarketID  string  `json:"marketId" binding:"required"`
	OutcomeID string  `json:"outcomeId" binding:"omitempty,outcome"`
	Side      string  `json:"side" binding:"omitempty,tradeside"`
	SizeUSD   float64 `json:"sizeUsd" binding:"required,gt=0"`
	MaxPrice  float64 `json:"maxPrice"`
}

// Normalize applies defaults and case-normalizes the enum fields. Any value
// outside the enums fails, it is never coerced.
func (o *OrderRequest) Normalize() error {
	if o.OutcomeID == "" {
		o.OutcomeID = OutcomeYes
	}
	o.OutcomeID = strings.ToUpper(o.OutcomeID)
	if o.OutcomeID != OutcomeYes && o.OutcomeID != OutcomeNo {
		return fmt.Errorf("outcomeId must be YES or NO, got %q", o.OutcomeID)
	}
	if o.Side == "" {
		o.Side = SideBuy
	}
	o.Side = strings.ToLower(o.Side)
	if o.Side != SideBuy && o.Side != SideSell {
		return fmt.Errorf("side must be buy or sell, got %q", o.Side)
	}
	if o.MaxPrice == 0 {
		o.MaxPrice = 0.5
	}
	if o.SizeUSD <= 0 {
		return fmt.Errorf("sizeUsd must be positive, got %v", o.SizeUSD)
	}
	return nil
}

// MarketQuote is a point-in-time snapshot of a binary market, fetched fresh
// per request from the market reference service.
type MarketQuote struct {
	ID          string  `json:"id"`
	Question    string  `json:"question"`
	Slug        string  `json:"slug"`
	ConditionID string  `json:"condition_id"`
	YesTokenID  string  `json:"yes_token_id"`
	NoTokenID   string  `json:"no_token_id"`
	YesPrice    float64 `json:"yes_price"`
	NoPrice     float64 `json:"no_price"`
	Volume      float64 `json:"volume"`
	Volume24h   float64 `json:"volume_24h"`
	Liquidity   float64 `json:"liquidity"`
	EndDate     string  `json:"end_date"`
	Active      bool    `json:"active"`
	Closed      bool    `json:"closed"`
	Resolved    bool    `json:"resolved"`
	Outcome     string  `json:"outcome,omitempty"`
}

// TokenID returns the venue token identifier for the given outcome side.
func (m *MarketQuote) TokenID(outcome string) string {
	if strings.EqualFold(outcome, OutcomeYes) {
		return m.YesTokenID
	}
	return m.NoTokenID
}

// Price returns the current best price for the given outcome side.
func (m *MarketQuote) Price(outcome string) float64 {
	if strings.EqualFold(outcome, OutcomeYes) {
		return m.YesPrice
	}
	return m.NoPrice
}

// Recommendation decisions.
const (
	DecisionBuyYes = "BUY_YES"
	DecisionBuyNo  = "BUY_NO"
	DecisionHedge  = "HEDGE"
	DecisionPass   = "PASS"
)

// Recommendation is one line of the upstream recommendation feed.
type Recommendation struct {
	ID          string   `json:"id"`
	Timestamp   string   `json:"timestamp,omitempty"`
	MarketID    string   `json:"market_id"`
	Decision    string   `json:"decision"`
	TargetPrice float64  `json:"targetPrice"`
	Edge        float64  `json:"edge"`
	Confidence  string   `json:"confidence"`
	RiskPct     float64  `json:"risk_pct"`
	SizeUSD     *float64 `json:"sizeUsd,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// Key returns the idempotency identifier for the recommendation. Feeds that
// omit an explicit id fall back to the market id.
func (r *Recommendation) Key() string {
	if r.ID != "" {
		return r.ID
	}
	return r.MarketID
}

// Actionable reports whether the decision calls for an order. HEDGE and PASS
// are informational.
func (r *Recommendation) Actionable() bool {
	return r.Decision == DecisionBuyYes || r.Decision == DecisionBuyNo
}

// OrderResult is the success payload of POST /order.
type OrderResult struct {
	Success     bool    `json:"success"`
	DryRun      bool    `json:"dry_run,omitempty"`
	OrderID     string  `json:"order_id"`
	TokenID     string  `json:"token_id"`
	TokenAmount float64 `json:"token_amount"`
	Price       float64 `json:"price"`
	SizeUSD     float64 `json:"size_usd,omitempty"`
}

// OpenOrder is a resting order reported by the venue.
type OpenOrder struct {
	OrderID string  `json:"order_id"`
	TokenID string  `json:"token_id"`
	Side    string  `json:"side"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
	Status  string  `json:"status"`
}

// Balance is the wallet snapshot returned by GET /balance. The actual values
// come from an external wallet collaborator.
type Balance struct {
	USDC    float64 `json:"usdc"`
	POL     float64 `json:"pol"`
	Address string  `json:"address"`
}
