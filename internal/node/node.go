// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package node

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/grove"
	"github.com/blinklabs-io/grove/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// nodeOptions maps the loaded configuration onto node options
func nodeOptions(
	cfg *config.Config,
	logger *slog.Logger,
) ([]grove.ConfigOptionFunc, error) {
	shutdownTimeout, err := time.ParseDuration(cfg.ShutdownTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	return []grove.ConfigOptionFunc{
		grove.WithLogger(logger),
		grove.WithDatabasePath(cfg.DatabasePath),
		grove.WithBlobPlugin(cfg.BlobPlugin),
		grove.WithMetadataPlugin(cfg.MetadataPlugin),
		grove.WithParams(cfg.Governance),
		grove.WithSchedulerInterval(cfg.SchedulerInterval),
		grove.WithSchedulerMaxSteps(cfg.SchedulerMaxSteps),
		grove.WithCycleTickInterval(cfg.CycleTickInterval),
		grove.WithShutdownTimeout(shutdownTimeout),
		grove.WithTracing(cfg.Tracing),
		grove.WithTracingStdout(cfg.TracingStdout),
	}, nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	opts, err := nodeOptions(cfg, logger)
	if err != nil {
		return err
	}
	shutdownTimeout, _ := time.ParseDuration(cfg.ShutdownTimeout)
	g, err := grove.New(
		grove.NewConfig(
			append(
				opts,
				// Enable metrics with default prometheus registry
				grove.WithPrometheusRegistry(prometheus.DefaultRegisterer),
			)...,
		),
	)
	if err != nil {
		return err
	}
	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	metricsAddr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.MetricsPort)
	logger.Info(
		"serving prometheus metrics on "+metricsAddr,
		"component",
		"node",
	)
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "node",
			)
			os.Exit(1)
		}
	}()
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run node in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- g.Run(signalCtx)
	}()

	shutdown := func() error {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
		if err := g.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		return nil
	}

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		if err := shutdown(); err != nil {
			return err
		}
		logger.Info("shutdown complete")
		return nil
	case err := <-errChan:
		if err == nil {
			logger.Info("node stopped")
			return shutdown()
		}
		logger.Error("node error", "error", err)
		signalCtxStop()
		_ = shutdown()
		return err
	}
}
