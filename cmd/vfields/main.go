package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vfields/internal/catalog"
	"github.com/kailas-cloud/vfields/internal/config"
	dbRedis "github.com/kailas-cloud/vfields/internal/db/redis"
	"github.com/kailas-cloud/vfields/internal/domain"
	logpkg "github.com/kailas-cloud/vfields/internal/logger"
	"github.com/kailas-cloud/vfields/internal/metrics"
	"github.com/kailas-cloud/vfields/internal/registry"
	"github.com/kailas-cloud/vfields/internal/repository/fieldcache"
	chiTransport "github.com/kailas-cloud/vfields/internal/transport/chi"
	"github.com/kailas-cloud/vfields/internal/usecase/guard"
	healthuc "github.com/kailas-cloud/vfields/internal/usecase/health"
	"github.com/kailas-cloud/vfields/internal/usecase/monitor"
	"github.com/kailas-cloud/vfields/internal/usecase/processor"
	"github.com/kailas-cloud/vfields/internal/usecase/validator"
	"github.com/kailas-cloud/vfields/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting vfields API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("cache_driver", cfg.Cache.Driver),
		zap.Strings("cache_addrs", cfg.Cache.Addrs),
	)

	// Register engine metrics explicitly (no init())
	metrics.RegisterEngineMetrics()

	engineCfg := cfg.EngineSettings()
	ctx := context.Background()

	// Shared cache store; nil with the in-process cache.
	store := openStore(ctx, cfg, logger)
	if store != nil {
		defer store.Close()
	}

	var cache fieldcache.Store
	if store != nil {
		cache = fieldcache.NewKVStore(store, cfg.Cache.KeyPrefix, engineCfg.DefaultCacheTTL, metrics.CacheTotal, logger)
	} else {
		cache = fieldcache.NewMemoryStore(engineCfg.DefaultCacheTTL)
	}

	// Virtual field definitions from config
	reg := registry.New(logger)
	registerFields(reg, cfg.Fields, logger)

	mon := monitor.New(monitor.Config{
		SlowThreshold: engineCfg.SlowThreshold,
		HistorySize:   engineCfg.HistorySize,
		FieldWindow:   engineCfg.FieldWindow,
		TrackMemory:   engineCfg.TrackMemory,
	}, logger)
	proc := processor.New(reg, guard.New(engineCfg, mon, logger), logger).
		WithCache(cache).
		WithMonitor(mon)

	// Pass nil interface (not typed nil pointer!) when there is no shared cache.
	var pinger healthuc.CachePinger
	if store != nil {
		pinger = store
	}
	healthSvc := healthuc.New(pinger, reg)

	server := chiTransport.NewServer(proc, reg, mon, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// openStore connects to the shared cache for the redis and valkey drivers.
// Both speak RESP, so one rueidis store serves them.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) *dbRedis.Store {
	if cfg.Cache.Driver == config.DriverMemory {
		logger.Info("Using in-process virtual field cache")
		return nil
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Cache.Addrs,
		Password: cfg.Cache.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create cache store", zap.String("driver", cfg.Cache.Driver), zap.Error(err))
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		logger.Fatal("Cache not ready", zap.Error(err))
	}
	logger.Info("Connected to cache", zap.String("driver", cfg.Cache.Driver))
	return store
}

// registerFields registers the configured fields. Rejected fields are logged
// with every problem found; the rest are served.
func registerFields(reg *registry.Registry, specs map[string]catalog.Spec, logger *zap.Logger) {
	raw, buildErrs := catalog.New().RawConfig(specs)
	err := validator.New(logger).Register(reg, raw)

	var regErrs domain.ConfigErrors
	if err != nil && !errors.As(err, &regErrs) {
		logger.Fatal("Failed to register virtual fields", zap.Error(err))
	}
	for _, e := range append(buildErrs, regErrs...) {
		logger.Warn("Virtual field rejected",
			zap.String("field", e.Field),
			zap.String("problem", e.Problem),
		)
	}
	logger.Info("Virtual fields registered",
		zap.Int("fields", reg.Len()),
		zap.Strings("names", reg.Names()),
	)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.CodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("entity_type", chi.URLParam(r, "entityType")),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
