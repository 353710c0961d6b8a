package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"voting-ledger/blockchain"
	"voting-ledger/config"
	"voting-ledger/storage"
)

// openStore returns the journal backend selected by cfg and a func releasing
// it.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (blockchain.Store, func() error, error) {
	noop := func() error { return nil }

	switch config.StoreKind(cfg.Store) {
	case config.StoreMemory:
		logger.Warn("journal kept in memory only, state is lost on exit")
		return storage.NewMemoryStore(), noop, nil
	case config.StoreJSON:
		store, err := storage.NewJSONStore(filepath.Join(cfg.StorageDir, "journal"), logger)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case config.StorePostgres:
		store, err := storage.ConnectPostgres(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
