package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoquery/internal/logger"
	"github.com/marmos91/dittoquery/pkg/config"
	"github.com/marmos91/dittoquery/pkg/node"
	"github.com/marmos91/dittoquery/pkg/query"
	"github.com/marmos91/dittoquery/pkg/server"
)

func startCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the query node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")

	return cmd
}

func runStart(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger.SetOutput(os.Stdout, cfg.Logging.Format)
	logger.SetLevel(cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("DittoQuery - Query-serving node")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	loggerFactory, err := config.CreateLoggerFactory(&cfg.Logging)
	if err != nil {
		return err
	}
	defer func() {
		if err := loggerFactory.Close(); err != nil {
			logger.Warn("Failed to close log outputs: %v", err)
		}
	}()

	idx, err := config.CreateIndex(ctx, &cfg.Index)
	if err != nil {
		return err
	}
	defer func() {
		if err := idx.Close(); err != nil {
			logger.Error("Failed to close index: %v", err)
		}
	}()
	logger.Info("Index store: %s", cfg.Index.Type)

	if cfg.Index.Snapshot.Enabled {
		loader, err := config.CreateSnapshotLoader(ctx, &cfg.Index.Snapshot)
		if err != nil {
			return err
		}
		loaded, err := loader.Load(ctx, idx)
		if err != nil {
			return fmt.Errorf("failed to load index snapshot: %w", err)
		}
		logger.Info("Index snapshot loaded: %d entities", loaded)

		refresher := config.CreateSnapshotRefresher(&cfg.Index.Snapshot, loader, idx)
		refresher.Start()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer stopCancel()
			if err := refresher.Stop(stopCtx); err != nil {
				logger.Warn("Snapshot refresher did not stop: %v", err)
			}
		}()
	}

	runner := query.NewIndexRunner(idx)

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	srv := server.New(runner, node.ID(cfg.Node.ID), cfg.Server.ShutdownTimeout)
	for _, a := range config.CreateAdapters(cfg, loggerFactory, runner, metricsResult.QueryMetrics) {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
		logger.Info("Adapter enabled: %s on port %d", a.Protocol(), a.Port())
	}

	logger.Info("Node %s configuration:", cfg.Node.ID)
	logger.Info("  Query port: %d", cfg.Adapters.Query.Port)
	logger.Info("  Subscription port: %d", cfg.Adapters.Query.SubscriptionPort)
	if cfg.Adapters.Query.MaxConnections > 0 {
		logger.Info("  Max connections: %d", cfg.Adapters.Query.MaxConnections)
	} else {
		logger.Info("  Max connections: unlimited")
	}
	if cfg.Adapters.Query.AcceptRate > 0 {
		logger.Info("  Accept rate: %.1f/s (burst %d)", cfg.Adapters.Query.AcceptRate, cfg.Adapters.Query.AcceptBurst)
	}
	logger.Info("  Shutdown timeout: %v", cfg.Server.ShutdownTimeout)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Node is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()

		if err := <-serverDone; err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		logger.Info("Node stopped gracefully")

	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("Node stopped")
	}

	return nil
}
