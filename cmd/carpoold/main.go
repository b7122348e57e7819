package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aicarpool/carpool/pkg/accounts"
	"github.com/aicarpool/carpool/pkg/allocator"
	"github.com/aicarpool/carpool/pkg/api"
	"github.com/aicarpool/carpool/pkg/audit"
	"github.com/aicarpool/carpool/pkg/binding"
	"github.com/aicarpool/carpool/pkg/config"
	"github.com/aicarpool/carpool/pkg/httputil"
	"github.com/aicarpool/carpool/pkg/middleware"
	"github.com/aicarpool/carpool/pkg/observability"
	"github.com/aicarpool/carpool/pkg/quota"
	"github.com/aicarpool/carpool/pkg/rbac"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting carpoold")

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := runMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		opts.DB = cfg.Redis.DB
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	recorder := buildRecorder(db, logger)

	assignmentStore := rbac.NewPostgresStore(db)
	evaluator := rbac.NewEvaluator(assignmentStore, rbac.EvaluatorConfig{
		CacheTTL:       cfg.Authz.CacheTTL,
		CacheSize:      cfg.Authz.CacheSize,
		ResolveTimeout: cfg.Authz.ResolveTimeout,
		Logger:         logger,
		Audit:          recorder,
		Metrics:        metrics,
	})

	directory := accounts.NewPostgresDirectory(db)
	bindingStore := binding.NewPostgresStore(db)

	// The manager provides limits to the tracker and consumes the tracker
	// for selection, so wire the tracker first with a deferred source.
	limits := &deferredLimits{}
	tracker := quota.NewTracker(quota.NewPostgresUsageStore(db), limits, nil)
	if metrics != nil {
		tracker.SetMetrics(metrics)
	}

	var mirror *allocator.Mirror
	if redisClient != nil {
		mirror = allocator.NewMirror(redisClient, "", cfg.Allocator.MirrorTTL)
	}
	alloc := allocator.New(allocator.Config{
		Store:          bindingStore,
		Directory:      directory,
		Schedule:       cfg.Allocator.Schedule,
		RefreshTimeout: cfg.Allocator.RefreshTimeout,
		Metrics:        metrics,
		Mirror:         mirror,
	})

	manager := binding.NewManager(binding.ManagerConfig{
		Store:     bindingStore,
		Directory: directory,
		Tracker:   tracker,
		Evaluator: evaluator,
		Source:    alloc,
		Logger:    logger,
		Metrics:   metrics,
		Audit:     recorder,
	})
	limits.source = manager

	// Warm the candidate snapshot before serving, then refresh on schedule.
	warmCtx, cancel := context.WithTimeout(context.Background(), cfg.Allocator.RefreshTimeout)
	if err := alloc.RefreshNow(warmCtx); err != nil {
		logger.WithError(err).Warn("initial candidate refresh failed, starting with live lookups")
	}
	cancel()
	if err := alloc.Start(); err != nil {
		log.Fatalf("Failed to start allocator: %v", err)
	}

	apiServer := api.NewServer(api.Config{
		Evaluator: evaluator,
		Manager:   manager,
		Tracker:   tracker,
		Allocator: alloc,
		DB:        db,
		Redis:     redisClient,
		Logger:    logger,
	})

	handler := buildHandler(cfg, apiServer, logger, redisClient)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := startHealthServer(cfg, registry, logger)

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		alloc.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})

	go func() {
		logger.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func runMigrations(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := rbac.RunMigrations(ctx, db); err != nil {
		return err
	}
	for _, ddl := range binding.GetMigrations() {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("binding migration failed: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, quota.Migration()); err != nil {
		return fmt.Errorf("quota migration failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, audit.Migration()); err != nil {
		return fmt.Errorf("audit migration failed: %w", err)
	}
	return nil
}

func buildRecorder(db *sql.DB, logger *observability.Logger) audit.Recorder {
	return audit.NewMultiRecorder(
		audit.NewLogRecorder(logger),
		audit.NewDBRecorder(db, logger),
	)
}

func buildHandler(cfg *config.Config, apiServer *api.Server, logger *observability.Logger, redisClient *redis.Client) http.Handler {
	chain := []func(http.Handler) http.Handler{
		httputil.RecoveryMiddleware(logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.MaxBytesMiddleware(1 << 20),
		middleware.NewIdentityMiddleware(false).Handler,
	}
	if cfg.RateLimit.Enabled && redisClient != nil {
		rl := middleware.NewDistributedRateLimitMiddleware(redisClient, &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerMinute,
			WindowDuration:    time.Minute,
		})
		chain = append(chain, rl.Handler)
	}
	return httputil.Chain(chain...)(apiServer.Router())
}

func startHealthServer(cfg *config.Config, registry *prometheus.Registry, logger *observability.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.Observability.MetricsEnabled {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	server := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: mux,
	}
	go func() {
		logger.WithField("addr", server.Addr).Info("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()
	return server
}

// deferredLimits breaks the construction cycle between the tracker and the
// binding manager.
type deferredLimits struct {
	source quota.LimitsSource
}

func (d *deferredLimits) Limits(ctx context.Context, subject quota.Subject) (quota.Limits, quota.Thresholds, error) {
	if d.source == nil {
		return quota.Limits{}, quota.Thresholds{}, fmt.Errorf("limits source not initialized")
	}
	return d.source.Limits(ctx, subject)
}
