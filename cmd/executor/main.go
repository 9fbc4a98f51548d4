package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/polyagents/executor/internal/config"
	"github.com/polyagents/executor/internal/execution"
	"github.com/polyagents/executor/internal/gateway"
	"github.com/polyagents/executor/internal/journal"
	"github.com/polyagents/executor/internal/markets"
	"github.com/polyagents/executor/internal/ratelimit"
	"github.com/polyagents/executor/internal/recs"
	"github.com/polyagents/executor/internal/risk"
	"github.com/polyagents/executor/internal/venue"
	"github.com/polyagents/executor/internal/wallet"
	"github.com/polyagents/executor/pkg/logger"
)

const usage = `usage: executor <command>

commands:
  serve                     run the execution gateway HTTP server
  process-recommendations   run one pass over the recommendation feed
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	app, err := buildApp(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer app.close()

	switch os.Args[1] {
	case "serve":
		err = runServe(app, cfg, zapLogger)
	case "process-recommendations":
		err = runPipeline(app, zapLogger)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		zapLogger.Fatal("Command failed", zap.Error(err))
	}
}

// app holds the wired collaborators shared by both commands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	journal   *journal.Journal
	markets   *markets.Client
	driver    *venue.Driver
	wallet    *wallet.Client
	exec      *execution.Service
	redis     *redis.Client
	processed *recs.ProcessedSet
}

func buildApp(cfg *config.Config, zapLogger *zap.Logger) (*app, error) {
	var cache *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		cache = redis.NewClient(redisOpts)
	}

	jrnl, err := journal.Open(filepath.Join(cfg.DataDir, "executions.jsonl"), zapLogger)
	if err != nil {
		return nil, err
	}

	mkts := markets.NewClient(cfg.GammaAPIURL, cfg.HTTPTimeout, cache, cfg.QuoteCacheTTL, zapLogger)
	driver := venue.NewDriver(venue.Config{
		BaseURL:    cfg.ClobAPIURL,
		ProxyURL:   cfg.ProxyURL,
		MaxRetries: cfg.MaxRetries,
		Timeout:    cfg.HTTPTimeout,
	}, zapLogger)

	breaker := risk.NewCircuitBreaker(cfg.MaxConsecutiveFailures, zapLogger)
	validator := risk.NewValidator(risk.Limits{
		MaxTradeUSD:    cfg.MaxTradeUSD,
		AllowedMarkets: cfg.AllowedMarkets,
	}, breaker)

	svc := execution.NewService(
		execution.Options{MaxSlippageBps: cfg.MaxSlippageBps, DryRun: cfg.DryRun},
		validator, breaker, mkts, driver, jrnl, zapLogger)

	return &app{
		cfg:     cfg,
		logger:  zapLogger,
		journal: jrnl,
		markets: mkts,
		driver:  driver,
		wallet:  wallet.NewClient(cfg.WalletURL, zapLogger),
		exec:    svc,
		redis:   cache,
	}, nil
}

func (a *app) close() {
	a.journal.Close()
	if a.redis != nil {
		a.redis.Close()
	}
	if a.processed != nil {
		a.processed.Close()
	}
}

func runServe(a *app, cfg *config.Config, zapLogger *zap.Logger) error {
	srv := gateway.NewServer(gateway.Deps{
		Config:  cfg,
		Exec:    a.exec,
		Markets: a.markets,
		Driver:  a.driver,
		Wallet:  a.wallet,
		Journal: a.journal,
		Limiter: ratelimit.NewLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		Logger:  zapLogger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Start(ctx)
}

func runPipeline(a *app, zapLogger *zap.Logger) error {
	processed, err := recs.LoadProcessedSet(filepath.Join(a.cfg.DataDir, "processed_recommendations.txt"))
	if err != nil {
		return err
	}
	a.processed = processed

	pipeline := recs.NewPipeline(
		filepath.Join(a.cfg.DataDir, "recommendations.jsonl"),
		processed,
		a.exec,
		recs.Sizing{ReferenceBalanceUSD: a.cfg.DefaultBalanceUSD, MaxTradeUSD: a.cfg.MaxTradeUSD},
		a.journal,
		zapLogger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return pipeline.Run(ctx)
}
