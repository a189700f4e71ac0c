package handler

import (
	"wallet-service/internal/adapter/http/middleware"
	redisStore "wallet-service/internal/adapter/storage/redis"
	"wallet-service/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletSvc      ports.WalletService
	RateLimitStore *redisStore.RateLimitStore // nil = in-process limiter
	RateLimitRPS   float64                    // <= 0 disables rate limiting
	RateLimitBurst int
	HealthCheckers []ports.HealthChecker
	MaxBodyBytes   int64
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(deps.MaxBodyBytes))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rl := rateLimiter(deps)

	walletHandler := NewWalletHandler(deps.WalletSvc)
	wallets := r.Group("/api/v1/wallets")
	{
		wallets.POST("", rl("wallet_operations"), walletHandler.Operate)
		wallets.GET("/:walletId", rl("wallet_reads"), walletHandler.GetBalance)
	}

	return r
}

// rateLimiter picks the shared Redis limiter when available and falls back to
// a per-instance token bucket otherwise.
func rateLimiter(deps RouterDeps) func(group string) gin.HandlerFunc {
	if deps.RateLimitRPS <= 0 {
		return func(string) gin.HandlerFunc {
			return func(c *gin.Context) { c.Next() }
		}
	}
	if deps.RateLimitStore != nil {
		rule := middleware.RuleFromRate(deps.RateLimitRPS)
		return func(group string) gin.HandlerFunc {
			return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
		}
	}
	local := middleware.NewLocalRateLimiter(deps.RateLimitRPS, deps.RateLimitBurst)
	return local.Middleware
}
