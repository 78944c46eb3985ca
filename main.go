package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"counsellor/config"
	"counsellor/dataset"
	"counsellor/db"
	qhttp "counsellor/http"
	"counsellor/logging"
	"counsellor/monitoring"
	"counsellor/registry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Look for config in the parent directory when run from a subdirectory
	if _, err := os.Stat(*configPath); os.IsNotExist(err) && !filepath.IsAbs(*configPath) {
		if _, err := os.Stat(filepath.Join("..", *configPath)); err == nil {
			*configPath = filepath.Join("..", *configPath)
		}
	}

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logging
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 3. Initialize database
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer store.Close()
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Metrics, live events and the model registry
	metrics := monitoring.NewMetrics()
	hub := monitoring.NewHub(cfg.Server.AllowedOrigins, metrics, logger)
	go hub.Run(ctx)

	reg, err := registry.New(registry.Options{
		Logger:           logger,
		TargetCandidates: cfg.Model.TargetCandidates,
		ExcludedColumns:  cfg.Model.ExcludedColumns,
		Importance:       registry.ImportanceMode(cfg.Model.Importance),
		CacheSize:        cfg.Model.CacheSize,
		Observer:         metrics,
		OnEvent:          hub.Publish,
	})
	if err != nil {
		logger.Fatal("failed to create registry", zap.Error(err))
	}

	loader := dataset.NewLoader(dataset.LoaderConfig{
		Dir:       cfg.Datasets.Dir,
		TestRatio: cfg.Datasets.TestRatio,
		Seed:      cfg.Datasets.Seed,
	}, reg.ResolveTarget, logger)
	reloader := qhttp.NewReloader(loader, reg, store, logger)

	// 5. Load datasets and build models; serve even if some datasets fail
	if err := reloader.Reload(ctx); err != nil {
		logger.Warn("initial model build incomplete", zap.Error(err))
	}

	if cfg.Datasets.Watch {
		watcher, err := dataset.NewWatcher(cfg.Datasets.Dir, cfg.Datasets.Debounce, func() {
			if err := reloader.Reload(ctx); err != nil {
				logger.Warn("reload incomplete", zap.Error(err))
			}
		}, logger)
		if err != nil {
			logger.Error("failed to watch dataset directory", zap.String("dir", cfg.Datasets.Dir), zap.Error(err))
		} else {
			defer watcher.Close()
			go watcher.Run(ctx)
		}
	}

	// 6. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Server.Port,
		Timeout:        cfg.Server.Timeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}, qhttp.Deps{
		Registry: reg,
		Store:    store,
		Metrics:  metrics,
		Hub:      hub,
		Reload:   reloader.HandlerFunc(),
		Logger:   logger,
	})
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 7. Handle graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}
