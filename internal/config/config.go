package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all environment-driven options of the execution gateway.
type Config struct {
	ListenAddr string
	APIToken   string
	LogLevel   string
	LogFile    string
	DataDir    string

	// Risk limits.
	MaxTradeUSD            float64
	MaxSlippageBps         int
	AllowedMarkets         []string
	MaxConsecutiveFailures int
	DryRun                 bool

	// Rate limiting (per caller identity).
	RateLimitWindow time.Duration
	RateLimitMax    int

	// Recommendation sizing default, used when a recommendation only
	// carries risk_pct.
	DefaultBalanceUSD float64

	// Venue / market data endpoints.
	GammaAPIURL string
	ClobAPIURL  string
	WalletURL   string

	// Submission driver tuning. ProxyURL enables outbound identity
	// rotation between retries.
	ProxyURL    string
	MaxRetries  int
	HTTPTimeout time.Duration

	// Optional quote cache.
	RedisURL      string
	QuoteCacheTTL time.Duration
}

// Load reads configuration from the environment with sane defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 8789)
	v.SetDefault("HOST", "127.0.0.1")
	v.SetDefault("EXEC_API_TOKEN", "change-me-in-production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("MAX_TRADE_USD", 100.0)
	v.SetDefault("MAX_SLIPPAGE_BPS", 500)
	v.SetDefault("ALLOWED_MARKETS", "")
	v.SetDefault("MAX_CONSECUTIVE_FAILURES", 3)
	v.SetDefault("DRY_RUN", false)
	v.SetDefault("RATE_LIMIT_WINDOW", "60s")
	v.SetDefault("RATE_LIMIT_MAX", 10)
	v.SetDefault("DEFAULT_BALANCE_USD", 1000.0)
	v.SetDefault("GAMMA_API_URL", "https://gamma-api.polymarket.com")
	v.SetDefault("CLOB_API_URL", "https://clob.polymarket.com")
	v.SetDefault("WALLET_URL", "")
	v.SetDefault("CLOB_MAX_RETRIES", 5)
	v.SetDefault("CLOB_HTTP_TIMEOUT", "30s")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("QUOTE_CACHE_TTL", "15s")

	cfg := &Config{
		ListenAddr:             fmt.Sprintf("%s:%d", v.GetString("HOST"), v.GetInt("PORT")),
		APIToken:               v.GetString("EXEC_API_TOKEN"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		LogFile:                v.GetString("LOG_FILE"),
		DataDir:                v.GetString("DATA_DIR"),
		MaxTradeUSD:            v.GetFloat64("MAX_TRADE_USD"),
		MaxSlippageBps:         v.GetInt("MAX_SLIPPAGE_BPS"),
		AllowedMarkets:         splitCSV(v.GetString("ALLOWED_MARKETS")),
		MaxConsecutiveFailures: v.GetInt("MAX_CONSECUTIVE_FAILURES"),
		DryRun:                 v.GetBool("DRY_RUN"),
		RateLimitWindow:        v.GetDuration("RATE_LIMIT_WINDOW"),
		RateLimitMax:           v.GetInt("RATE_LIMIT_MAX"),
		DefaultBalanceUSD:      v.GetFloat64("DEFAULT_BALANCE_USD"),
		GammaAPIURL:            strings.TrimRight(v.GetString("GAMMA_API_URL"), "/"),
		ClobAPIURL:             strings.TrimRight(v.GetString("CLOB_API_URL"), "/"),
		WalletURL:              v.GetString("WALLET_URL"),
		ProxyURL:               firstNonEmpty(v.GetString("HTTPS_PROXY"), v.GetString("HTTP_PROXY")),
		MaxRetries:             v.GetInt("CLOB_MAX_RETRIES"),
		HTTPTimeout:            v.GetDuration("CLOB_HTTP_TIMEOUT"),
		RedisURL:               v.GetString("REDIS_URL"),
		QuoteCacheTTL:          v.GetDuration("QUOTE_CACHE_TTL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxTradeUSD <= 0 {
		return fmt.Errorf("MAX_TRADE_USD must be positive, got %v", c.MaxTradeUSD)
	}
	if c.MaxSlippageBps < 0 {
		return fmt.Errorf("MAX_SLIPPAGE_BPS must not be negative, got %d", c.MaxSlippageBps)
	}
	if c.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("MAX_CONSECUTIVE_FAILURES must be at least 1, got %d", c.MaxConsecutiveFailures)
	}
	if c.RateLimitMax < 1 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("invalid rate limit settings: max=%d window=%s", c.RateLimitMax, c.RateLimitWindow)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("CLOB_MAX_RETRIES must be at least 1, got %d", c.MaxRetries)
	}
	return nil
}

// MarketAllowed reports whether the market passes the allowlist. An empty
// allowlist allows all markets.
func (c *Config) MarketAllowed(marketID string) bool {
	if len(c.AllowedMarkets) == 0 {
		return true
	}
	for _, m := range c.AllowedMarkets {
		if m == marketID {
			return true
		}
	}
	return false
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
