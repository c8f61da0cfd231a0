// Package main is the entry point for the counter API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"erpcounter/internal/bootstrap"
	"erpcounter/internal/config"
	"erpcounter/internal/domain/counter"
	v1 "erpcounter/internal/infrastructure/http/v1"
	"erpcounter/internal/infrastructure/metrics"
	"erpcounter/internal/infrastructure/storage/postgres"
	"erpcounter/internal/infrastructure/telemetry"
	"erpcounter/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configFile := flag.String("config", "", "path to config file (default: ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development || cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting counter server",
		"version", version,
		"env", cfg.App.Env,
		"driver", cfg.Database.Driver,
	)

	// --- Tracing ---
	tracer, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:       cfg.Tracing.Enabled,
		Endpoint:      cfg.Tracing.Endpoint,
		SamplingRatio: cfg.Tracing.SamplingRatio,
		Insecure:      cfg.Tracing.Insecure,
		ServiceName:   cfg.App.Name,
		Version:       version,
	}, log)
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// --- Storage ---
	backend, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to open counter storage", "error", err)
	}
	defer backend.Close()

	if backend.Cache != nil {
		if err := backend.Cache.Start(ctx); err != nil {
			log.Warnw("definition cache listener not started", "error", err)
		}
	}

	// --- Metrics ---
	recorder := metrics.NewRecorder()
	if backend.Pool != nil {
		recorder.RegisterPool(backend.Pool)
		go logPoolStats(logger.WithLogger(ctx, log), backend.Pool)
	}

	// --- Counter service ---
	opts := append([]counter.Option{counter.WithRecorder(recorder)}, backend.ServiceOptions()...)
	service := counter.NewService(backend.Definitions, backend.Sequences, opts...)
	if backend.IssueLog != nil {
		go cleanupIssueKeys(logger.WithLogger(ctx, log), backend.IssueLog)
	}

	// --- Router ---
	routerCfg := v1.RouterConfig{
		Logger:      log,
		Issuer:      service,
		Definitions: backend.Definitions,
		Retry:       cfg.Counter.RetryPolicy(),
		DB:          backend.Pinger,
		DBDriver:    backend.Driver,
		Version:     version,
		Development: cfg.IsDevelopment(),
	}
	if tracer.Enabled() {
		routerCfg.TracingService = cfg.App.Name
	}
	if cfg.Metrics.Enabled {
		routerCfg.Metrics = recorder.Handler()
		routerCfg.MetricsPath = cfg.Metrics.Path
	}
	router := v1.NewRouter(routerCfg)

	// --- HTTP Server ---
	port := strconv.Itoa(cfg.App.Port)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// --- Graceful shutdown ---
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	}

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("failed to flush spans", "error", err)
	}

	log.Info("server stopped")
}

func logPoolStats(ctx context.Context, pool *pgxpool.Pool) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			postgres.LogPoolStats(ctx, pool)
		}
	}
}

func cleanupIssueKeys(ctx context.Context, issues bootstrap.IssueLog) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := issues.CleanupExpired(ctx)
			if err != nil {
				logger.Warn(ctx, "idempotency key cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info(ctx, "expired idempotency keys removed", "count", n)
			}
		}
	}
}
