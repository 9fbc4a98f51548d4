// Package venue wraps order placement on the external CLOB with a bounded
// retry loop that can rotate the outbound network identity between attempts.
package venue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/polyagents/executor/pkg/metrics"
	"github.com/polyagents/executor/pkg/models"
)

// Order disciplines.
const (
	orderTypeGTC = "GTC" // rests until filled or cancelled
	orderTypeFOK = "FOK" // fills completely now or fails
)

const (
	sideBuy  = "BUY"
	sideSell = "SELL"
)

// sellHaircut is the fraction of the reference price an exit order crosses
// the book with, to guarantee a fill.
var sellHaircut = decimal.RequireFromString("0.90")

var minPrice = decimal.RequireFromString("0.01")

// TransportFactory builds a fresh HTTP client. With a rotating proxy each
// fresh client gets a new egress address, which is what defeats transient
// edge-network blocking. Kept separate from the retry loop so policy and
// rotation mechanism are testable independently.
type TransportFactory func() *http.Client

// Config tunes the submission driver.
type Config struct {
	BaseURL    string
	ProxyURL   string // non-empty enables identity rotation on retry
	MaxRetries int
	Timeout    time.Duration
	RetryPause time.Duration // initial inter-attempt pause, ~1s in production
}

// Driver submits orders to the venue. Safe for concurrent use; the shared
// HTTP client is swapped under a lock when the egress identity rotates.
type Driver struct {
	cfg        Config
	newClient  TransportFactory
	mu         sync.RWMutex
	client     *http.Client
	logger     *zap.Logger
	retryPause time.Duration
}

// NewDriver creates a driver with the default proxy-aware transport factory.
func NewDriver(cfg Config, logger *zap.Logger) *Driver {
	return NewDriverWithTransport(cfg, defaultTransportFactory(cfg), logger)
}

// NewDriverWithTransport creates a driver with an explicit transport
// factory, used by tests to observe rotation.
func NewDriverWithTransport(cfg Config, factory TransportFactory, logger *zap.Logger) *Driver {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	pause := cfg.RetryPause
	if pause <= 0 {
		pause = time.Second
	}
	return &Driver{
		cfg:        cfg,
		newClient:  factory,
		client:     factory(),
		logger:     logger,
		retryPause: pause,
	}
}

func defaultTransportFactory(cfg Config) TransportFactory {
	return func() *http.Client {
		transport := &http.Transport{}
		if cfg.ProxyURL != "" {
			if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		}
		return &http.Client{Transport: transport, Timeout: cfg.Timeout}
	}
}

// BuyGTC places a resting buy order at the caller's price ceiling. It rests
// until filled or cancelled.
func (d *Driver) BuyGTC(ctx context.Context, tokenID string, amount, price float64) (string, error) {
	rounded, _ := decimal.NewFromFloat(price).Round(2).Float64()
	resp, err := d.submit(ctx, orderArgs{
		TokenID:   tokenID,
		Price:     rounded,
		Size:      amount,
		Side:      sideBuy,
		OrderType: orderTypeGTC,
	})
	if err != nil {
		if isTransportBlock(err) {
			return "", fmt.Errorf("%w (%v)", ErrTransportBlocked, err)
		}
		return "", err
	}
	return resp.OrderID, nil
}

// SellFOK sells tokens fill-or-kill at a deliberate haircut below the
// reference price, crossing the book to guarantee the fill. Returns the
// order id, whether it filled, and a terminal error otherwise.
func (d *Driver) SellFOK(ctx context.Context, tokenID string, amount, refPrice float64) (string, bool, error) {
	sellPrice := decimal.NewFromFloat(refPrice).Mul(sellHaircut).Round(2)
	if sellPrice.LessThan(minPrice) {
		sellPrice = minPrice
	}
	price, _ := sellPrice.Float64()

	resp, err := d.submit(ctx, orderArgs{
		TokenID:   tokenID,
		Price:     price,
		Size:      amount,
		Side:      sideSell,
		OrderType: orderTypeFOK,
	})
	if err != nil {
		switch {
		case isTransportBlock(err):
			return "", false, fmt.Errorf("%w (%v)", ErrTransportBlocked, err)
		case isNoMatch(err):
			return "", false, fmt.Errorf("%w (at $%s)", ErrNoLiquidity, sellPrice.StringFixed(2))
		default:
			return "", false, err
		}
	}
	orderID := resp.OrderID
	if orderID == "" {
		orderID = "filled"
	}
	return orderID, true, nil
}

// Orders returns the currently open venue orders.
func (d *Driver) Orders(ctx context.Context) ([]models.OpenOrder, error) {
	var orders []models.OpenOrder
	if err := d.get(ctx, "/orders", &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CancelOrder cancels a resting order.
func (d *Driver) CancelOrder(ctx context.Context, orderID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		d.cfg.BaseURL+"/order/"+url.PathEscape(orderID), nil)
	if err != nil {
		return err
	}
	_, err = d.do(req)
	return err
}

// PriceLevel is one side level of a venue order book.
type PriceLevel struct {
	Price float64 `json:"price,string"`
	Size  float64 `json:"size,string"`
}

// OrderBook is the venue book snapshot for a token.
type OrderBook struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// Book fetches the order book for a token.
func (d *Driver) Book(ctx context.Context, tokenID string) (*OrderBook, error) {
	var book OrderBook
	if err := d.get(ctx, "/book?token_id="+url.QueryEscape(tokenID), &book); err != nil {
		return nil, err
	}
	return &book, nil
}

type orderArgs struct {
	TokenID   string  `json:"tokenID"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Side      string  `json:"side"`
	OrderType string  `json:"orderType"`
}

type orderResponse struct {
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
}

// submit runs the bounded retry loop. An error is retried only when it is a
// transport block signature AND a rotating proxy is configured; every other
// error aborts on first occurrence. Before each retry the transport is
// rebuilt to force a new egress address, after a short pause.
func (d *Driver) submit(ctx context.Context, args orderArgs) (*orderResponse, error) {
	rotating := d.cfg.ProxyURL != ""

	delay := backoff.NewExponentialBackOff()
	delay.InitialInterval = d.retryPause
	delay.RandomizationFactor = 0.2

	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.SubmissionRetries.Inc()
			d.logger.Warn("retrying venue submission with fresh egress identity",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", d.cfg.MaxRetries),
				zap.String("token_id", args.TokenID))
			d.rotateTransport()
			select {
			case <-time.After(delay.NextBackOff()):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := d.postOrder(ctx, args)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !(isTransportBlock(err) && rotating) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (d *Driver) rotateTransport() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		d.client.CloseIdleConnections()
	}
	d.client = d.newClient()
}

func (d *Driver) httpClient() *http.Client {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.client
}

func (d *Driver) postOrder(ctx context.Context, args orderArgs) (*orderResponse, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/order", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := d.do(req)
	if err != nil {
		return nil, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unparseable venue response: %w", err)
	}
	if resp.ErrorMsg != "" {
		return nil, fmt.Errorf("order rejected by venue: %s", resp.ErrorMsg)
	}
	return &resp, nil
}

func (d *Driver) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	body, err := d.do(req)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (d *Driver) do(req *http.Request) ([]byte, error) {
	resp, err := d.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
