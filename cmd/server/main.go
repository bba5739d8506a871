// Command server wires together the routing engine and its ambient
// collaborators into one gin HTTP server: config load, State Store
// selection, Circuit Breaker, Adapter Registry, Priority Source, Routing
// Engine, Health Aggregator, Push Broadcaster and the Redis-backed rate
// limiter. Generalized from the teacher's cmd/server/main.go, which only
// printed a banner and set up slog — this is the full wiring spec §6
// describes, in the graceful-shutdown shape of the rest of the example pack
// (tobi-techy-RAIL-BACKEND-SERVICE's cmd/main.go).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/breaker"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/config"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/engine"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/handler"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/health"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/logging"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/metrics"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/model"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/priority"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/processor"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/push"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/ratelimit"
	"github.com/marlonbarreto-git/nimbus-payment-orchestrator/internal/store"
)

func main() {
	cfg := config.Load()

	st, closeStore, err := openStore(cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to open store: %v", err))
	}
	defer closeStore()

	logger := logging.New(model.LogLevel(cfg.LogLevel), "routing-engine", logging.WithSink(st))
	defer logger.Close()

	logger.Info("server_starting", "port", cfg.Port, "store_backend", cfg.StoreBackend)

	registry := processor.NewRegistry()
	ctx := context.Background()
	if err := seedProcessors(ctx, st, registry, logger); err != nil {
		logger.Error("processor_seed_failed", "error", err.Error())
		panic(fmt.Sprintf("failed to seed processors: %v", err))
	}

	cb := breaker.New(breaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		ResetTimeout:     cfg.CircuitBreakerResetTimeout,
	})

	var prioritySource priority.Source = priority.NewLocal(st)
	var statusReporter health.StatusReporter
	if cfg.PriorityOracleURL != "" {
		local := priority.NewLocal(st)
		fallback, err := local.GetPriorities(ctx)
		if err != nil {
			logger.Error("priority_fallback_seed_failed", "error", err.Error())
		}
		oracle := priority.NewOracle(cfg.PriorityOracleURL, fallback, logger)
		prioritySource = oracle
		statusReporter = oracle
	}

	eng := engine.New(prioritySource, registry, cb, st, logger)
	agg := health.New(st, cb, statusReporter)

	met := metrics.New()

	broadcaster := push.New(newPushSnapshotter(st, agg), logger, cfg.AllowedOrigins)
	if err := broadcaster.Start(ctx, fmt.Sprintf("@every %s", cfg.PushInterval)); err != nil {
		logger.Error("push_broadcaster_start_failed", "error", err.Error())
	}
	defer broadcaster.Stop()

	breakerGaugeStop := make(chan struct{})
	go reportBreakerGauges(cfg.PushInterval, cb, met, breakerGaugeStop)
	defer close(breakerGaugeStop)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware(met))
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	if limiter := buildRateLimiter(cfg, logger); limiter != nil {
		router.Use(limiter.Middleware())
	}

	h := handler.New(eng, agg, st, registry, prioritySource, logger, met)
	h.RegisterRoutes(router)
	router.GET("/ws", gin.WrapF(broadcaster.ServeWS))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server_listen_failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", "error", err.Error())
	}
	logger.Info("server_shutdown_complete")
}

// reportBreakerGauges periodically mirrors the breaker's per-processor open
// state into Prometheus, since the breaker itself has no metrics dependency.
func reportBreakerGauges(interval time.Duration, cb *breaker.Breaker, met *metrics.Metrics, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, s := range cb.GetCircuitBreakerStatus() {
				met.SetCircuitBreakerOpen(s.Name, s.IsOpen)
			}
		case <-stop:
			return
		}
	}
}

// openStore builds the State Store selected by STORE_BACKEND, returning a
// close function that is a no-op for the in-memory backend.
func openStore(cfg config.Config) (store.Store, func(), error) {
	if cfg.StoreBackend != "postgres" {
		return store.NewMemory(), func() {}, nil
	}

	pg, err := store.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.Migrate(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return pg, func() { _ = pg.Close() }, nil
}

// buildRateLimiter constructs the Redis-backed limiter, or nil when
// REDIS_URL is unset — rate limiting is an external collaborator per spec
// §1, so its absence disables the middleware rather than failing startup.
func buildRateLimiter(cfg config.Config, logger *logging.Logger) *ratelimit.Limiter {
	if cfg.RedisURL == "" {
		logger.Warn("rate_limiter_disabled", "reason", "REDIS_URL not set")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("rate_limiter_disabled", "reason", "invalid REDIS_URL", "error", err.Error())
		return nil
	}
	client := redis.NewClient(opts)
	return ratelimit.New(client, cfg.RateLimitRequests, cfg.RateLimitWindow, logger)
}

// corsMiddleware mirrors the teacher pack's ALLOWED_ORIGINS handling
// (spec §6): an empty list allows any origin, matching the push
// broadcaster's own CheckOrigin default.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			if _, ok := allowed[origin]; ok || len(allowed) == 0 {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Content-Type")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
