// Package main implements miniacd, a minimal example host that wires a
// miniac Application together from a JSON configuration file: the built-in
// "$SYS"/"$MAILBOX" gateways, a local loopback "echo" gateway, and,
// if configured, a NATS bridge gateway and a bbolt-backed persistent store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gboxsw/miniac"
	"github.com/gboxsw/miniac/config"
	"github.com/gboxsw/miniac/gateways/echo"
	"github.com/gboxsw/miniac/gateways/nats"
	"github.com/gboxsw/miniac/internal/retry"
	"github.com/gboxsw/miniac/metric"
	boltstorage "github.com/gboxsw/miniac/storage/bolt"
)

const (
	Version = "0.1.0"
	appName = "miniacd"
)

func main() {
	if err := run(); err != nil {
		slog.Error("miniacd exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry := metric.NewRegistry()

	opts := []miniac.Option{
		miniac.WithLogger(logger),
		miniac.WithMetrics(registry.Metrics),
	}

	var closeStorage func() error
	if cfg.Storage.Driver == "bolt" {
		store, err := boltstorage.Open(cfg.Storage.Path, retry.DefaultConfig())
		if err != nil {
			return fmt.Errorf("open bolt storage: %w", err)
		}
		opts = append(opts, miniac.WithStorage(store))
		closeStorage = store.Close
	}

	app := miniac.NewApplication(opts...)

	if err := app.AddGateway("local", echo.New()); err != nil {
		return fmt.Errorf("add local gateway: %w", err)
	}

	if _, ok := cfg.Gateways["nats"]; ok {
		natsCfg := nats.DefaultConfig()
		if err := config.GatewayConfig(cfg, "nats", &natsCfg); err != nil {
			return fmt.Errorf("load nats gateway config: %w", err)
		}
		if err := app.AddGateway("data", nats.New(natsCfg, nil)); err != nil {
			return fmt.Errorf("add data gateway: %w", err)
		}
	}

	var metricsServer *http.Server
	if cliCfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry.Prometheus(), promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cliCfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := app.Start(signalCtx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	logger.Info("miniacd started", "config", cliCfg.ConfigPath, "platform", cfg.Platform.ID)

	<-signalCtx.Done()
	logger.Info("received shutdown signal")

	stopped := make(chan struct{})
	go func() {
		app.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(cliCfg.ShutdownTimeout):
		logger.Warn("shutdown timed out", "timeout", cliCfg.ShutdownTimeout)
	}

	if metricsServer != nil {
		_ = metricsServer.Close()
	}
	if closeStorage != nil {
		if err := closeStorage(); err != nil {
			logger.Warn("failed to close storage", "error", err)
		}
	}

	logger.Info("miniacd shutdown complete")
	return nil
}
