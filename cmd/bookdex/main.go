package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/openshelf/bookdex/internal/catalog"
	"github.com/openshelf/bookdex/internal/config"
	"github.com/openshelf/bookdex/internal/db"
	dbRedis "github.com/openshelf/bookdex/internal/db/redis"
	"github.com/openshelf/bookdex/internal/domain"
	"github.com/openshelf/bookdex/internal/index"
	logpkg "github.com/openshelf/bookdex/internal/logger"
	"github.com/openshelf/bookdex/internal/metrics"
	"github.com/openshelf/bookdex/internal/repository/embcache"
	chiTransport "github.com/openshelf/bookdex/internal/transport/chi"
	openaiEmb "github.com/openshelf/bookdex/internal/transport/openai"
	embeddinguc "github.com/openshelf/bookdex/internal/usecase/embedding"
	healthuc "github.com/openshelf/bookdex/internal/usecase/health"
	retrievaluc "github.com/openshelf/bookdex/internal/usecase/retrieval"
	"github.com/openshelf/bookdex/internal/version"
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

	logger.Info("Starting bookdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_path", cfg.Resources.IndexPath),
	)

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()

	// Load offline-built artifacts. Any load failure is fatal: a server
	// without its index has nothing to serve.
	ix, err := index.Load(cfg.Resources.IndexPath)
	if err != nil {
		logger.Fatal("Failed to load vector index", zap.Error(err))
	}
	meta, err := catalog.LoadMeta(cfg.Resources.MetaPath)
	if err != nil {
		logger.Fatal("Failed to load metadata table", zap.Error(err))
	}
	content, err := catalog.LoadContent(cfg.Resources.ContentPath)
	if err != nil {
		logger.Fatal("Failed to load content table", zap.Error(err))
	}
	logger.Info("Search artifacts loaded",
		zap.Int("vectors", ix.Len()),
		zap.Int("dimensions", ix.Dim()),
		zap.Int("content_rows", content.Len()),
	)

	ctx := context.Background()

	// Optional query-embedding cache.
	var store db.Store
	if cfg.Cache.Enabled {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache store not ready", zap.Error(err))
		}
		logger.Info("Connected to cache store", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	modelCache := embeddinguc.NewModelCache(func(_ context.Context, model string) (domain.Embedder, error) {
		return buildEmbedder(cfg.Embedding, model, store, logger), nil
	})
	embedder, err := modelCache.Get(ctx, cfg.Embedding.Model)
	if err != nil {
		logger.Fatal("Failed to create embedder", zap.Error(err))
	}
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
	)

	engine, err := retrievaluc.NewEngine(ix, meta, content, embedder, logger)
	if err != nil {
		logger.Fatal("Failed to create retrieval engine", zap.Error(err))
	}

	if cfg.Embedding.Warmup {
		warmup(ctx, embedder, logger)
	}

	var cachePinger healthuc.CachePinger
	if store != nil {
		cachePinger = store
	}
	healthSvc := healthuc.New(ix, cachePinger, embeddingChecker(cfg.Embedding))

	server := chiTransport.NewServer(engine, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// buildEmbedder assembles the decorator chain: provider -> cached -> instrumented.
func buildEmbedder(
	cfg config.EmbeddingConfig, model string, store db.Store, logger *zap.Logger,
) domain.Embedder {
	if cfg.Provider == "dryrun" {
		return embeddinguc.NewDryRunEmbedder(cfg.Dimensions)
	}

	var embedder domain.Embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Logger:     logger,
	})

	if store != nil {
		embedder = embcache.New(embedder, store, model, metrics.EmbeddingCacheTotal, logger)
	}

	return embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, model, logger)
}

// embeddingChecker builds a dedicated provider probe for health checks.
// A separate client keeps probes out of the cache and metrics of the
// serving chain; the dryrun provider needs no check.
func embeddingChecker(cfg config.EmbeddingConfig) healthuc.EmbeddingChecker {
	if cfg.Provider == "dryrun" {
		return nil
	}
	return openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		Provider: cfg.Provider,
	})
}

// warmup embeds a probe query so the first user request does not pay the
// provider's cold-path latency. Failures are logged, not fatal.
func warmup(ctx context.Context, embedder domain.Embedder, logger *zap.Logger) {
	warmupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	start := time.Now()
	if _, err := embedder.Embed(warmupCtx, "warmup"); err != nil {
		logger.Warn("Embedder warmup failed", zap.Error(err))
		return
	}
	logger.Info("Embedder warmed up", zap.Duration("took", time.Since(start)))
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
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
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
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
