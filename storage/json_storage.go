package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"voting-ledger/models"
)

const chainFileName = "ledger_chain.json"

// Chain is the on-disk layout of the journal.
type Chain struct {
	Blocks []*models.Block `json:"blocks"`
}

// JSONStore keeps the journal in a single JSON file that is rewritten
// atomically on every append.
type JSONStore struct {
	basePath string
	mu       sync.RWMutex
	chain    *Chain
	logger   *zap.Logger
}

func NewJSONStore(basePath string, logger *zap.Logger) (*JSONStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	store := &JSONStore{
		basePath: basePath,
		logger:   logger,
	}

	chain, err := store.loadChainFromFile()
	if err != nil {
		return nil, fmt.Errorf("failed to load chain: %w", err)
	}
	store.chain = chain

	logger.Info("json store opened",
		zap.String("path", store.path()),
		zap.Int("blocks", len(chain.Blocks)),
	)
	return store, nil
}

func (s *JSONStore) Append(_ context.Context, block *models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if block.Index != uint64(len(s.chain.Blocks)) {
		return fmt.Errorf("%w: block %d appended at height %d", ErrConflict, block.Index, len(s.chain.Blocks))
	}

	next := &Chain{Blocks: append(s.chain.Blocks[:len(s.chain.Blocks):len(s.chain.Blocks)], block)}
	if err := s.saveChainToFile(next); err != nil {
		s.logger.Error("failed to persist block",
			zap.Uint64("index", block.Index),
			zap.Error(err),
		)
		return err
	}
	s.chain = next
	return nil
}

func (s *JSONStore) Load(_ context.Context) ([]*models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return a copy of the blocks to prevent modification
	blocks := make([]*models.Block, len(s.chain.Blocks))
	copy(blocks, s.chain.Blocks)
	return blocks, nil
}

func (s *JSONStore) path() string {
	return filepath.Join(s.basePath, chainFileName)
}

func (s *JSONStore) loadChainFromFile() (*Chain, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return &Chain{Blocks: make([]*models.Block, 0)}, nil
		}
		return nil, err
	}

	var chain Chain
	if err := json.Unmarshal(data, &chain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chain: %w", err)
	}
	if chain.Blocks == nil {
		chain.Blocks = make([]*models.Block, 0)
	}

	return &chain, nil
}

func (s *JSONStore) saveChainToFile(chain *Chain) error {
	path := s.path()

	data, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chain: %w", err)
	}

	// Write to temporary file first
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write chain file: %w", err)
	}

	// Atomic rename to ensure consistency
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save chain file: %w", err)
	}

	return nil
}
