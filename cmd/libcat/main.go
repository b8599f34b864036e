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

	"github.com/kailas-cloud/libcat/internal/config"
	dbRedis "github.com/kailas-cloud/libcat/internal/db/redis"
	"github.com/kailas-cloud/libcat/internal/domain"
	"github.com/kailas-cloud/libcat/internal/domain/search/query"
	"github.com/kailas-cloud/libcat/internal/index/bleve"
	"github.com/kailas-cloud/libcat/internal/index/meili"
	"github.com/kailas-cloud/libcat/internal/index/redisearch"
	"github.com/kailas-cloud/libcat/internal/index/solr"
	logpkg "github.com/kailas-cloud/libcat/internal/logger"
	"github.com/kailas-cloud/libcat/internal/metrics"
	catalogrepo "github.com/kailas-cloud/libcat/internal/repository/catalog"
	sessionrepo "github.com/kailas-cloud/libcat/internal/repository/session"
	chiTransport "github.com/kailas-cloud/libcat/internal/transport/chi"
	healthuc "github.com/kailas-cloud/libcat/internal/usecase/health"
	"github.com/kailas-cloud/libcat/internal/usecase/oai"
	searchuc "github.com/kailas-cloud/libcat/internal/usecase/search"
	"github.com/kailas-cloud/libcat/internal/usecase/snapshot"
	"github.com/kailas-cloud/libcat/internal/usecase/sru"
	"github.com/kailas-cloud/libcat/internal/version"
)

func main() {
	// Load configuration based on ENV
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

	logger.Info("Starting API server",
		zap.String("build", version.String()),
		zap.String("built_at", version.Date),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("search_backend", cfg.Search.Backend),
	)

	// Redis and Valkey speak the same protocol; one rueidis store serves both drivers.
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	pool, err := catalogrepo.Open(ctx, cfg.Catalog.DSN, cfg.Catalog.MaxConns)
	if err != nil {
		logger.Fatal("Failed to open catalog", zap.Error(err))
	}
	defer pool.Close()
	catalog := catalogrepo.New(pool)

	ix, closeIndex, err := openIndex(ctx, cfg.Search, store)
	if err != nil {
		logger.Fatal("Failed to open search index", zap.String("backend", cfg.Search.Backend), zap.Error(err))
	}
	defer closeIndex()
	logger.Info("Search index ready", zap.String("backend", ix.Name()))

	// Register search metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	builder := query.NewBuilder(cfg.Search.Location()).OnDegrade(func(param, raw string) {
		logger.Debug("Ignoring unparsable filter", zap.String("param", param), zap.String("value", raw))
	})

	exec := searchuc.NewExecutor(ix, cfg.Search.MaxNumberOfResults, cfg.Search.PerPage, cfg.Search.CSVPerPage,
		metrics.SearchDuration)

	// Pass nil interfaces (not typed nil pointers) for disabled features.
	caps := searchuc.Capabilities{Circulation: cfg.Features.CirculationEnabled()}
	if cfg.Features.SubjectEnabled() {
		caps.Subjects = catalog
	}
	if cfg.Features.BookmarkEnabled() {
		caps.Bookmarks = catalog
	}

	searchSvc := searchuc.New(exec, catalog, snapshot.New(metrics.SnapshotTotal), builder, caps)
	oaiEngine := oai.New(exec, catalog, oai.Config{
		RepositoryName:   cfg.OAI.RepositoryName,
		BaseURL:          cfg.OAI.BaseURL,
		AdminEmail:       cfg.OAI.AdminEmail,
		IdentifierPrefix: cfg.OAI.IdentifierPrefix,
		PageSize:         cfg.OAI.PageSize,
	}, metrics.OAIRequestsTotal)
	sruSvc := sru.New(exec, catalog, sru.NewTranslator(builder), sru.Config{
		Title:          cfg.SRU.Title,
		BaseURL:        cfg.OAI.BaseURL,
		MaximumRecords: cfg.SRU.MaximumRecords,
	})
	sessions := sessionrepo.New(store, cfg.Session.KeyPrefix, cfg.Session.TTL(), metrics.SessionLoadTotal, logger)
	healthSvc := healthuc.New(store, ix, catalog)

	// Create chi server
	server := chiTransport.NewServer(searchSvc, oaiEngine, sruSvc, healthSvc, chiTransport.Options{
		LoginURL: cfg.Auth.LoginURL,
		Requests: metrics.SearchRequestsTotal,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.FormatSuffix)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	r.Use(chiTransport.BearerAuthMiddleware(chiTransport.NewAuthenticator(apiKeyUsers(cfg.Auth.APIKeys), []byte(cfg.Auth.JWTSecret))))
	r.Use(chiTransport.SessionMiddleware(sessions, cfg.Session.CookieName, cfg.Session.TTL()))
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

// searchIndex is a backend the service can both query and health-check.
type searchIndex interface {
	searchuc.Index
	Ping(ctx context.Context) error
}

// openIndex connects the configured search backend. The returned func releases it.
func openIndex(ctx context.Context, cfg config.SearchConfig, store *dbRedis.Store) (searchIndex, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendSolr:
		return solr.New(cfg.URL, cfg.Timeout()), noop, nil
	case config.BackendMeilisearch:
		ix := meili.New(cfg.URL, cfg.APIKey, cfg.Index)
		if err := ix.EnsureIndex(ctx); err != nil {
			return nil, noop, fmt.Errorf("ensure meilisearch index: %w", err)
		}
		return ix, noop, nil
	case config.BackendRediSearch:
		ix := redisearch.New(store, cfg.Index)
		if err := ix.EnsureIndex(ctx); err != nil {
			return nil, noop, fmt.Errorf("ensure redisearch index: %w", err)
		}
		return ix, noop, nil
	default:
		ix, err := bleve.Open(cfg.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("open bleve index: %w", err)
		}
		return ix, func() { _ = ix.Close() }, nil
	}
}

// apiKeyUsers maps configured keys to principals. Roles were checked by config.Validate.
func apiKeyUsers(keys []config.APIKey) map[string]*domain.User {
	users := make(map[string]*domain.User, len(keys))
	for _, k := range keys {
		role, err := domain.ParseRole(k.Role)
		if err != nil {
			role = domain.DefaultRole()
		}
		users[k.Key] = &domain.User{Login: k.Login, Role: role}
	}
	return users
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

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("format", chiTransport.FormatFromContext(ctx)),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
