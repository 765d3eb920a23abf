package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"github.com/metabuild-lab/labcore"
	"github.com/metabuild-lab/labcore/internal/config"
	"github.com/metabuild-lab/labcore/internal/db"
	"github.com/metabuild-lab/labcore/internal/routes"
	"github.com/metabuild-lab/labcore/pkg/metrics"
	"github.com/metabuild-lab/labcore/zapLogger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logFile := zapLogger.Init(cfg.Log.FilePath, cfg.Log.Level)
	log := zapLogger.Logger()

	pgDB, err := db.NewPostgresDB(cfg)
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize PostgreSQL: %v", err)
	}
	zapLogger.Log.Info("Successfully connected to PostgreSQL database")
	defer pgDB.Close()

	redisClient, err := db.NewRedisClient(cfg)
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize Redis: %v", err)
	}
	if redisClient != nil {
		zapLogger.Log.Info("Successfully connected to Redis")
		defer redisClient.Close()
	}

	store, err := labcore.NewGormStore(pgDB.GormDB, cfg.Engine.AutoMigrate)
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize job store: %v", err)
	}

	collector := metrics.NewCollector(cfg.App.Name)

	auditSink := labcore.NewStoreSink(store, log, collector)
	defer auditSink.Shutdown()

	roleRegistry, err := labcore.NewRoleRegistry()
	if err != nil {
		zapLogger.Log.Fatalf("Invalid role registry: %v", err)
	}

	resolver, err := labcore.NewResolver(labcore.ResolverConfig{
		Registry:    roleRegistry,
		Audit:       auditSink,
		Logger:      log,
		RedisClient: redisClient,
		CachePrefix: cfg.Engine.CachePrefix,
		CacheTTL:    cfg.Engine.CacheTTL,
	})
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize permission resolver: %v", err)
	}
	if err := resolver.InvalidateCache(context.Background()); err != nil {
		zapLogger.Log.Warnf("Failed to clear decision cache: %v", err)
	}

	jobRegistry, err := labcore.NewJobRegistry(context.Background(), labcore.RegistryConfig{
		Roles:                   roleRegistry,
		Store:                   store,
		Audit:                   auditSink,
		Notifier:                labcore.LogNotifier{Log: log},
		Logger:                  log,
		AutoQueueReview:         &cfg.Engine.AutoQueueReview,
		RequireReassignOnReject: cfg.Engine.RequireReassignOnReject,
		PersistRetryBackoff:     cfg.Engine.PersistRetryBackoff,
	})
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize job registry: %v", err)
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	app.Use(zapLogger.FiberLoggingMiddleware(logFile))
	app.Use(collector.FiberMiddleware())

	routes.Setup(app, &routes.Handler{
		Jobs:     jobRegistry,
		Resolver: resolver,
		Metrics:  collector,
		Log:      log,
	}, cfg.JWT)

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.MetricsPort),
		Handler: metrics.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLogger.Log.Infof("Server started on port %d", cfg.App.Port)
		return app.Listen(fmt.Sprintf(":%d", cfg.App.Port))
	})
	g.Go(func() error {
		zapLogger.Log.Infof("Metrics listener started on port %d", cfg.App.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil {
		zapLogger.Log.Errorf("Server exited: %v", err)
	}
}
