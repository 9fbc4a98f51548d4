// Package markets implements the market reference client: given a market
// identifier it returns current best prices per side and the venue token
// identifiers needed to place an order.
package markets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/polyagents/executor/pkg/models"
)

// ErrUnavailable wraps any failure to reach or parse the market reference
// service. No order is attempted when a quote cannot be fetched.
var ErrUnavailable = fmt.Errorf("market data unavailable")

// Client fetches market snapshots from a Gamma-style REST API. The optional
// Redis cache is the only caching in the system; quotes served to the
// execution core are otherwise fetched fresh per request.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewClient creates a market reference client. cache may be nil.
func NewClient(baseURL string, timeout time.Duration, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// GetMarket returns the current quote snapshot for a market.
func (c *Client) GetMarket(ctx context.Context, marketID string) (*models.MarketQuote, error) {
	if quote := c.cached(ctx, marketID); quote != nil {
		return quote, nil
	}

	var raw rawMarket
	if err := c.getJSON(ctx, fmt.Sprintf("%s/markets/%s", c.baseURL, url.PathEscape(marketID)), nil, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	quote, err := raw.toQuote()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.store(ctx, marketID, quote)
	return quote, nil
}

// GetTrendingMarkets returns open markets ordered by 24h volume.
func (c *Client) GetTrendingMarkets(ctx context.Context, limit int) ([]*models.MarketQuote, error) {
	params := url.Values{
		"closed":    {"false"},
		"limit":     {strconv.Itoa(limit)},
		"order":     {"volume24hr"},
		"ascending": {"false"},
	}
	var raws []rawMarket
	if err := c.getJSON(ctx, c.baseURL+"/markets", params, &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	quotes := make([]*models.MarketQuote, 0, len(raws))
	for i := range raws {
		q, err := raws[i].toQuote()
		if err != nil {
			c.logger.Warn("skipping unparseable market", zap.Error(err))
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// SearchMarkets filters open markets by a keyword in the question or slug.
// The reference API has no server-side text search, so a larger batch is
// fetched and filtered client-side.
func (c *Client) SearchMarkets(ctx context.Context, query string, limit int) ([]*models.MarketQuote, error) {
	fetchLimit := limit * 10
	if fetchLimit < 500 {
		fetchLimit = 500
	}
	all, err := c.GetTrendingMarkets(ctx, fetchLimit)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(query)
	var matches []*models.MarketQuote
	for _, m := range all {
		if strings.Contains(strings.ToLower(m.Question), query) || strings.Contains(strings.ToLower(m.Slug), query) {
			matches = append(matches, m)
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("market API responded %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return json.Unmarshal(body, out)
}

func (c *Client) cached(ctx context.Context, marketID string) *models.MarketQuote {
	if c.cache == nil {
		return nil
	}
	payload, err := c.cache.Get(ctx, quoteKey(marketID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("quote cache read failed", zap.Error(err))
		}
		return nil
	}
	var quote models.MarketQuote
	if err := json.Unmarshal(payload, &quote); err != nil {
		return nil
	}
	return &quote
}

func (c *Client) store(ctx context.Context, marketID string, quote *models.MarketQuote) {
	if c.cache == nil || c.cacheTTL <= 0 {
		return
	}
	payload, err := json.Marshal(quote)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, quoteKey(marketID), payload, c.cacheTTL).Err(); err != nil {
		c.logger.Debug("quote cache write failed", zap.Error(err))
	}
}

func quoteKey(marketID string) string { return "quote:" + marketID }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
