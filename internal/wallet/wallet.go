// Package wallet queries the external wallet service for balance snapshots.
// Balances are informational; order sizing never depends on them.
package wallet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/polyagents/executor/pkg/models"
)

// Client talks to the wallet collaborator service. When no base URL is
// configured it degrades to reporting zero balances instead of failing the
// balance endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// Balances returns the current USDC and POL balances of the trading wallet.
func (c *Client) Balances(ctx context.Context) (*models.Balance, error) {
	if c.baseURL == "" {
		c.logger.Debug("no wallet service configured, reporting zero balances")
		return &models.Balance{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/balance", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wallet service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wallet service returned status %d", resp.StatusCode)
	}

	var bal models.Balance
	if err := json.Unmarshal(body, &bal); err != nil {
		return nil, fmt.Errorf("decode wallet balance: %w", err)
	}
	return &bal, nil
}
