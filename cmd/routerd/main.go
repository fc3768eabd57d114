package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/inkwell-ai/chunkrouter/internal/audit"
	"github.com/inkwell-ai/chunkrouter/internal/backends"
	"github.com/inkwell-ai/chunkrouter/internal/config"
	"github.com/inkwell-ai/chunkrouter/internal/engine"
	"github.com/inkwell-ai/chunkrouter/internal/httpapi"
	"github.com/inkwell-ai/chunkrouter/internal/policy"
	"github.com/inkwell-ai/chunkrouter/internal/ratelimit"
	"github.com/inkwell-ai/chunkrouter/internal/selector"
	"github.com/inkwell-ai/chunkrouter/internal/telemetry"
	"github.com/inkwell-ai/chunkrouter/internal/usage"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	levelVar := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelVar,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()
	levelVar.Set(parseLogLevel(cfg.Telemetry.LogLevel))

	// Connect to PostgreSQL (audit log). The router works without it; audit
	// entries are dropped until the database comes back.
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to configure database pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable, audit entries will be dropped", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis (inbound rate limiting)
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable, inbound rate limiting disabled", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics()

	// Build the backend registry and tracker from the same inventory. The
	// backend set is fixed for the process lifetime.
	backendsCfg := loader.Backends()
	registry := backends.BuildFromConfig(backendsCfg)
	tracker := usage.NewTracker(backendMetas(backendsCfg), cooldownsFromConfig(cfg.Routing.Cooldowns))
	for _, name := range tracker.Available() {
		metrics.SetBackendAvailable(name, true)
	}

	// Optional Rego routing policy
	var backendFilter engine.BackendFilter
	if cfg.Policy.Enabled {
		evaluator := policy.NewEvaluator(tracker, func() config.PolicyConfig {
			return loader.Config().Policy
		})
		if err := evaluator.Load(); err != nil {
			logger.Warn("failed to load routing policies, continuing without", "error", err)
		}
		loader.OnReload(func() {
			if err := evaluator.Load(); err != nil {
				logger.Error("failed to reload routing policies", "error", err)
			}
		})
		backendFilter = evaluator
	}

	eng, err := engine.New(cfg.Routing, tracker, selector.New(tracker), registry, backendFilter, metrics)
	if err != nil {
		logger.Error("failed to build routing engine", "error", err)
		os.Exit(1)
	}

	handler := httpapi.NewHandler(eng, tracker, audit.NewRecorder(dbPool))
	limiter := ratelimit.NewLimiter(rdb)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/healthz", handler.Healthz)
	r.Get("/v1/status", handler.Status)
	r.Post("/v1/reset", handler.Reset)

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter, func() int {
			return loader.Config().Routing.InboundRPM
		}, metrics))
		r.Post("/v1/generate", handler.Generate)
	})

	// Metrics server on its own port
	if cfg.Telemetry.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
			logger.Info("metrics server starting", "addr", addr)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("router starting", "addr", addr, "version", version, "backends", registry.Len())
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown.Std())
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("router stopped")
}

// backendMetas derives tracker metadata for every backend that carries a
// credential, mirroring the registry's skip rule.
func backendMetas(cfg *config.BackendsConfig) []usage.BackendMeta {
	var metas []usage.BackendMeta
	for name, bc := range cfg.Backends {
		if bc.APIKey == "" {
			continue
		}
		metas = append(metas, usage.BackendMeta{
			Name:           name,
			Provider:       bc.Provider,
			Model:          bc.Model,
			Priority:       bc.Priority,
			MinDelay:       bc.MinDelay.Std(),
			ScriptsCapable: bc.ScriptsCapable,
			FastInference:  bc.FastInference,
			HighCapacity:   bc.HighCapacity,
		})
	}
	return metas
}

func cooldownsFromConfig(cc config.CooldownsConfig) usage.Cooldowns {
	cd := usage.DefaultCooldowns()
	if cc.RateLimitScript.Std() > 0 {
		cd.RateLimitScript = cc.RateLimitScript.Std()
	}
	if cc.RateLimitFast.Std() > 0 {
		cd.RateLimitFast = cc.RateLimitFast.Std()
	}
	if cc.RateLimitDefault.Std() > 0 {
		cd.RateLimitDefault = cc.RateLimitDefault.Std()
	}
	if cc.RetryAfterBuffer.Std() > 0 {
		cd.RetryAfterBuffer = cc.RetryAfterBuffer.Std()
	}
	if cc.Auth.Std() > 0 {
		cd.Auth = cc.Auth.Std()
	}
	if cc.Transient.Std() > 0 {
		cd.Transient = cc.Transient.Std()
	}
	if cc.Repeated.Std() > 0 {
		cd.Repeated = cc.Repeated.Std()
	}
	if cc.Unknown.Std() > 0 {
		cd.Unknown = cc.Unknown.Std()
	}
	return cd
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}
