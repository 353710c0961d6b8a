package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voting-ledger/api"
	"voting-ledger/blockchain"
	"voting-ledger/config"
	"voting-ledger/service"
	"voting-ledger/storage"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	cfg := config.Default()
	c := &cobra.Command{
		Use:   "serve",
		Short: "Runs the ledger HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runServe(c.Context(), cfg)
		},
	}
	cfg.BindFlags(c.Flags())
	return c
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return fmt.Errorf("failed to setup storage: %w", err)
	}

	_, admin, err := config.LoadOrGenerateAdminKey(cfg.AdminKeyPath())
	if err != nil {
		return err
	}
	logger.Info("administrator loaded",
		zap.Stringer("admin", admin),
		zap.String("credentials", cfg.AdminKeyPath()),
	)

	store, closeStore, err := openStore(ctx, cfg, logger.Named("storage"))
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close journal store", zap.Error(err))
		}
	}()

	chain, err := blockchain.Open(ctx, store, uint8(cfg.Difficulty), logger.Named("journal"))
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := service.NewMetrics(registry)
	if err != nil {
		return err
	}

	ledger, err := service.NewLedger(service.Config{Admin: admin},
		service.WithJournal(chain),
		service.WithLogger(logger.Named("ledger")),
		service.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	sequencer := service.NewSequencer(ledger, cfg.QueueSize, logger.Named("sequencer"))
	sequencer.Start()
	defer sequencer.Stop()

	snapshots, err := storage.NewSnapshotStore(filepath.Join(cfg.StorageDir, "snapshots"), cfg.SnapshotKeep, logger.Named("snapshots"))
	if err != nil {
		return err
	}

	server := api.NewServer(ledger, sequencer,
		api.WithLogger(logger.Named("api")),
		api.WithMetrics(registry),
		api.WithSnapshots(snapshots),
		api.WithRequestTimeout(cfg.RequestTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down", zap.NamedError("cause", context.Cause(ctx)))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	logger.Info("server shutdown completed")
	return nil
}
