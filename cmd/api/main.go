package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-service/config"
	httpHandler "wallet-service/internal/adapter/http/handler"
	memStorage "wallet-service/internal/adapter/storage/memory"
	pgStorage "wallet-service/internal/adapter/storage/postgres"
	redisStorage "wallet-service/internal/adapter/storage/redis"
	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/internal/service"
	"wallet-service/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	strategy := domain.Strategy(cfg.Wallet.Strategy)
	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("store", cfg.Wallet.Store).
		Str("strategy", string(strategy)).
		Msg("Starting wallet service")

	ctx := context.Background()
	var checkers []ports.HealthChecker

	// Balance store
	var store ports.BalanceStore
	switch cfg.Wallet.Store {
	case "memory":
		store = memStorage.NewWalletStore(strategy, cfg.Wallet.LockTimeout)
		log.Warn().Msg("Using in-memory balance store, balances are lost on restart")
	default:
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		if cfg.Database.AutoMigrate {
			if err := pgStorage.Migrate(ctx, pool); err != nil {
				log.Fatal().Err(err).Msg("Failed to apply schema")
			}
		}
		store = pgStorage.NewWalletStore(pool, strategy, cfg.Wallet.LockTimeout)
		checkers = append(checkers, pgStorage.NewHealthCheck(pool))
	}

	// Redis-backed cache and rate limiting
	var (
		balanceCache   ports.BalanceCache
		rateLimitStore *redisStorage.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		balanceCache = redisStorage.NewBalanceCache(rdb)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	} else {
		log.Info().Msg("Redis disabled, balance cache off and rate limiting per instance")
	}

	// Core services
	retry := service.NewRetryExecutor(service.RetryPolicy{
		MaxAttempts: cfg.Wallet.MaxAttempts,
		BaseDelay:   cfg.Wallet.BaseDelay,
		Multiplier:  cfg.Wallet.Multiplier,
		MaxDelay:    cfg.Wallet.MaxDelay,
		Jitter:      cfg.Wallet.Jitter,
	}, logger.Component(log, "retry"))
	cache := service.NewCacheAside(store, balanceCache, cfg.Wallet.CacheTTL, logger.Component(log, "cache"))
	walletSvc := service.NewWalletService(store, cache, retry, cfg.Wallet.TxTimeout, logger.Component(log, "wallet"))

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletSvc:      walletSvc,
		RateLimitStore: rateLimitStore,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		HealthCheckers: checkers,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Logger:         logger.Component(log, "http"),
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
