package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/logiride/client/internal/infrastructure/config"
	"github.com/logiride/client/internal/infrastructure/logger"
	"github.com/logiride/client/internal/infrastructure/metrics"
	"github.com/logiride/client/internal/infrastructure/persistence"
	"github.com/logiride/client/internal/infrastructure/telemetry"
	"github.com/logiride/client/internal/interfaces/devserver"
)

func main() {
	var (
		configPath string
		addr       string
		seed       bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config.toml (default: search ., $HOME/.logiride, /etc/logiride)")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides devserver.addr)")
	flag.BoolVar(&seed, "seed", false, "Seed demo data even when devserver.seed is off")
	flag.Parse()

	// Load configuration
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Devserver.Addr = addr
	}

	// Initialize logger
	log, err := logger.New(logger.FromConfig(cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	log.Info("Starting LogiRide devserver",
		zap.String("env", cfg.App.Env),
		zap.String("addr", cfg.Devserver.Addr),
		zap.String("db_driver", cfg.Devserver.DBDriver),
	)

	ctx := context.Background()

	tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}()

	db, err := persistence.Open(persistence.OptionsFromConfig(cfg, log))
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	store := persistence.NewStore(db)

	if cfg.Devserver.Seed || seed {
		opts := devserver.SeedOptions{Count: cfg.Devserver.SeedCount, Seed: uint64(cfg.Devserver.SeedValue)}
		if err := devserver.Seed(ctx, store, opts, log); err != nil {
			log.Fatal("Failed to seed demo data", zap.Error(err))
		}
	}

	opts := []devserver.Option{devserver.WithLogger(log)}
	if cfg.Metrics.Enabled {
		opts = append(opts, devserver.WithMetrics(metrics.New()))
	}
	if tp.IsEnabled() {
		opts = append(opts, devserver.WithTracing(cfg.Telemetry.ServiceName))
	}
	srv := devserver.New(cfg.Devserver, store, opts...)
	if err := srv.Dispatch(context.Background()); err != nil {
		log.Fatal("Failed to start schedule dispatcher", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Devserver.Addr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal("Devserver failed", zap.Error(err))
		}
		return
	case <-quit:
	}
	log.Info("Shutting down devserver...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Devserver forced to shutdown", zap.Error(err))
	}
	log.Info("Devserver exited gracefully")
}
