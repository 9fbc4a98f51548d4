// Package gateway is the HTTP surface of the execution service. It binds and
// normalizes requests, enforces authentication and per-caller rate limits,
// and maps execution outcomes to status codes. All trading decisions live in
// the execution service, not here.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	limiter "github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memory "github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/polyagents/executor/internal/config"
	"github.com/polyagents/executor/internal/execution"
	"github.com/polyagents/executor/internal/journal"
	"github.com/polyagents/executor/internal/markets"
	"github.com/polyagents/executor/internal/ratelimit"
	"github.com/polyagents/executor/internal/risk"
	"github.com/polyagents/executor/internal/venue"
	"github.com/polyagents/executor/internal/wallet"
	"github.com/polyagents/executor/pkg/models"
)

// Server is the gin HTTP server around the execution core.
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server

	cfg     *config.Config
	exec    *execution.Service
	markets *markets.Client
	driver  *venue.Driver
	wallet  *wallet.Client
	journal *journal.Journal
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Config  *config.Config
	Exec    *execution.Service
	Markets *markets.Client
	Driver  *venue.Driver
	Wallet  *wallet.Client
	Journal *journal.Journal
	Limiter *ratelimit.Limiter
	Logger  *zap.Logger
}

// NewServer wires middleware and routes.
func NewServer(d Deps) *Server {
	s := &Server{
		cfg:     d.Config,
		exec:    d.Exec,
		markets: d.Markets,
		driver:  d.Driver,
		wallet:  d.Wallet,
		journal: d.Journal,
		limiter: d.Limiter,
		logger:  d.Logger,
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(d.Logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(d.Logger, true))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	// Coarse per-IP flood protection in front of the per-caller window.
	store := memory.NewStore()
	rate, _ := limiter.NewRateFromFormatted("100-M")
	router.Use(ginlimiter.NewMiddleware(limiter.New(store, rate)))

	s.router = router
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := s.router.Group("/", s.authenticate, s.rateLimit)
	{
		authed.POST("/order", s.placeOrder)
		authed.GET("/markets/:marketId", s.getMarket)
		authed.GET("/markets", s.listMarkets)
		authed.GET("/positions", s.positions)
		authed.GET("/book/:tokenId", s.book)
		authed.GET("/balance", s.balance)
		authed.DELETE("/order/:orderId", s.cancelOrder)
		authed.POST("/admin/reset-breaker", s.resetBreaker)
	}
}

// Start serves until the context is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("execution gateway listening", zap.String("addr", s.cfg.ListenAddr), zap.Bool("dry_run", s.exec.DryRun()))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) health(c *gin.Context) {
	breaker := s.exec.Breaker()
	c.JSON(http.StatusOK, gin.H{
		"status":               healthStatus(breaker),
		"dry_run":              s.exec.DryRun(),
		"max_trade_usd":        s.cfg.MaxTradeUSD,
		"consecutive_failures": breaker.Failures(),
	})
}

func healthStatus(b *risk.CircuitBreaker) string {
	if b.Halted() {
		return "halted"
	}
	return "ok"
}

func (s *Server) placeOrder(c *gin.Context) {
	var order models.OrderRequest
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := order.Normalize(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.exec.ExecuteOrder(c.Request.Context(), &order)
	if err != nil {
		s.writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// writeOrderError maps execution failures to HTTP semantics. Policy
// rejections are the caller's problem (400); everything downstream of the
// gate is ours (500 or 502).
func (s *Server) writeOrderError(c *gin.Context, err error) {
	var rej *risk.RejectionError
	switch {
	case errors.As(err, &rej):
		c.JSON(http.StatusBadRequest, gin.H{"error": rej.Reason})
	case errors.Is(err, markets.ErrUnavailable):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "market data unavailable, no order attempted"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) getMarket(c *gin.Context) {
	quote, err := s.markets.GetMarket(c.Request.Context(), c.Param("marketId"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, quote)
}

// listMarkets serves trending markets, or a text search when ?q= is set.
func (s *Server) listMarkets(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}

	var quotes []*models.MarketQuote
	if q := c.Query("q"); q != "" {
		quotes, err = s.markets.SearchMarkets(c.Request.Context(), q, limit)
	} else {
		quotes, err = s.markets.GetTrendingMarkets(c.Request.Context(), limit)
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"markets": quotes})
}

func (s *Server) positions(c *gin.Context) {
	orders, err := s.driver.Orders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": orders})
}

func (s *Server) book(c *gin.Context) {
	book, err := s.driver.Book(c.Request.Context(), c.Param("tokenId"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, book)
}

func (s *Server) balance(c *gin.Context) {
	bal, err := s.wallet.Balances(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (s *Server) cancelOrder(c *gin.Context) {
	orderID := c.Param("orderId")
	if err := s.driver.CancelOrder(c.Request.Context(), orderID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": orderID})
}

// resetBreaker is the operator escape hatch after a halt has been
// investigated. The reset itself is journaled.
func (s *Server) resetBreaker(c *gin.Context) {
	breaker := s.exec.Breaker()
	failures := breaker.Failures()
	breaker.Reset()
	if err := s.journal.Append("breaker_reset", gin.H{"failures_cleared": failures}, true, ""); err != nil {
		s.logger.Error("journal append failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "failures_cleared": failures})
}
