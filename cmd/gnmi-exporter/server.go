package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netobserv-lab/gnmi-exporter/internal/exporter"
	"github.com/netobserv-lab/gnmi-exporter/internal/httpserver"
	"github.com/netobserv-lab/gnmi-exporter/internal/plugin"
	"github.com/netobserv-lab/gnmi-exporter/internal/plugin/gauges"
	"github.com/netobserv-lab/gnmi-exporter/internal/plugin/ocif"
	"github.com/netobserv-lab/gnmi-exporter/internal/store"
	"github.com/netobserv-lab/gnmi-exporter/internal/target"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// runServer wires the pipeline: targets -> sessions -> plugins ->
// store -> collector -> /metrics.
func runServer(cfg appConfig) error {
	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	targets, err := loadTargets(cfg.TargetsFile)
	if err != nil {
		return fmt.Errorf("failed to load targets: %w", err)
	}

	metricStore := store.New(logger)
	sweeper := store.NewSweeper(metricStore, logger, store.SweeperConfig{
		Threshold: cfg.StaleThreshold,
		Interval:  cfg.SweepInterval,
	})
	defer sweeper.Stop()

	registry := plugin.NewRegistry()
	registry.Register(ocif.TypeName, ocif.New)
	registry.Register(gauges.TypeName, gauges.New)

	manager, err := target.NewManager(target.ManagerConfig{
		Targets:            targets,
		Registry:           registry,
		Writer:             metricStore,
		Evictor:            metricStore,
		Logger:             logger,
		MetricPrefix:       cfg.MetricPrefix,
		Oversampling:       cfg.Oversampling,
		WatchdogMultiplier: cfg.WatchdogMultiplier,
		BackoffInitial:     cfg.BackoffInitial,
		BackoffMax:         cfg.BackoffMax,
		BackoffJitter:      cfg.BackoffJitter,
		MaxRetries:         cfg.MaxRetries,
		HaltedSleep:        cfg.HaltedSleep,
		ShutdownGrace:      cfg.ShutdownGrace,
	})
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(exporter.NewCollector(exporter.Config{
		Reader:       metricStore,
		Health:       manager,
		Logger:       logger,
		MetricPrefix: cfg.MetricPrefix,
		StaleCutoff:  cfg.StaleThreshold,
	}))

	apiServer := httpserver.NewServer(cfg.ListenAddr, promRegistry, manager, logger)
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	defer apiServer.Stop()

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down gracefully, press Ctrl+C again to force")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(cfg.ShutdownGrace + 5*time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			logger.Warn("force shutdown")
		case <-deadline.C:
			logger.Warn("shutdown timed out, forcing exit")
		}
		os.Exit(1)
	}()

	manager.Start(ctx)
	logger.Info("exporter running",
		zap.String("listen", cfg.ListenAddr),
		zap.Int("targets", manager.Targets()),
		zap.String("targets_file", cfg.TargetsFile))

	// Sessions run under the manager's errgroup; nothing else blocks,
	// so wait directly for the shutdown signal.
	<-ctx.Done()

	if err := manager.Stop(); err != nil {
		logger.Warn("session shutdown incomplete", zap.Error(err))
	}

	signal.Stop(sigCh)
	return nil
}

func buildLogger(cfg appConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log-level %q: %w", cfg.LogLevel, err)
	}

	zcfg := zap.NewProductionConfig()
	if !cfg.LogJSON {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
