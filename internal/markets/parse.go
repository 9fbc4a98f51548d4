package markets

import (
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/polyagents/executor/pkg/models"
)

// rawMarket mirrors the reference API's wire shape. Token ids and outcome
// prices arrive as stringified JSON arrays, and numeric fields may be either
// numbers or strings, so everything is parsed explicitly at this boundary.
type rawMarket struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Slug          string    `json:"slug"`
	ConditionID   string    `json:"conditionId"`
	ClobTokenIDs  string    `json:"clobTokenIds"`
	OutcomePrices string    `json:"outcomePrices"`
	Volume        flexFloat `json:"volume"`
	Volume24h     flexFloat `json:"volume24hr"`
	Liquidity     flexFloat `json:"liquidity"`
	EndDate       string    `json:"endDate"`
	Active        *bool     `json:"active"`
	Closed        bool      `json:"closed"`
	Resolved      bool      `json:"resolved"`
	Outcome       string    `json:"outcome"`
}

func (r *rawMarket) toQuote() (*models.MarketQuote, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("market payload missing id")
	}

	var tokens []string
	if r.ClobTokenIDs != "" {
		if err := json.Unmarshal([]byte(r.ClobTokenIDs), &tokens); err != nil {
			return nil, fmt.Errorf("market %s: bad clobTokenIds: %w", r.ID, err)
		}
	}
	prices := []float64{0.5, 0.5}
	if r.OutcomePrices != "" {
		var rawPrices []flexFloat
		if err := json.Unmarshal([]byte(r.OutcomePrices), &rawPrices); err != nil {
			return nil, fmt.Errorf("market %s: bad outcomePrices: %w", r.ID, err)
		}
		for i, p := range rawPrices {
			if i < len(prices) {
				prices[i] = float64(p)
			}
		}
	}

	quote := &models.MarketQuote{
		ID:          r.ID,
		Question:    r.Question,
		Slug:        r.Slug,
		ConditionID: r.ConditionID,
		YesPrice:    prices[0],
		NoPrice:     prices[1],
		Volume:      float64(r.Volume),
		Volume24h:   float64(r.Volume24h),
		Liquidity:   float64(r.Liquidity),
		EndDate:     r.EndDate,
		Active:      r.Active == nil || *r.Active,
		Closed:      r.Closed,
		Resolved:    r.Resolved,
		Outcome:     r.Outcome,
	}
	if len(tokens) > 0 {
		quote.YesTokenID = tokens[0]
	}
	if len(tokens) > 1 {
		quote.NoTokenID = tokens[1]
	}
	return quote, nil
}

// flexFloat accepts a JSON number, a quoted number, or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", string(data))
	}
	*f = flexFloat(v)
	return nil
}
