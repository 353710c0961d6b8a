// Package blockchain keeps the ledger's audit journal: one mined, hash-linked
// block per accepted mutation.
package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"voting-ledger/models"
)

// Store persists journal blocks in order.
type Store interface {
	Append(ctx context.Context, block *models.Block) error
	Load(ctx context.Context) ([]*models.Block, error)
}

type Chain struct {
	store      Store
	difficulty uint8
	logger     *zap.Logger

	mutex  sync.RWMutex
	blocks []*models.Block
}

// Open loads the stored journal and validates it.
func Open(ctx context.Context, store Store, difficulty uint8, logger *zap.Logger) (*Chain, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if difficulty > models.MaxDifficulty {
		return nil, fmt.Errorf("difficulty %d exceeds maximum %d", difficulty, models.MaxDifficulty)
	}

	blocks, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}
	if err := models.ValidateChain(blocks); err != nil {
		return nil, err
	}

	logger.Info("journal loaded", zap.Int("blocks", len(blocks)))
	return &Chain{
		store:      store,
		difficulty: difficulty,
		logger:     logger,
		blocks:     blocks,
	}, nil
}

// Append mines a block for ev and persists it. The in-memory chain only grows
// once the store accepted the block; if ctx ends while mining nothing is
// stored.
func (c *Chain) Append(ctx context.Context, ev models.Event) (*models.Block, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	block, err := models.NewBlock(ctx, uint64(len(c.blocks)), data, c.lastHash(), c.difficulty)
	if err != nil {
		return nil, err
	}
	if err := c.store.Append(ctx, block); err != nil {
		return nil, fmt.Errorf("failed to append block %d: %w", block.Index, err)
	}
	c.blocks = append(c.blocks, block)

	c.logger.Debug("block appended",
		zap.Uint64("index", block.Index),
		zap.String("kind", string(ev.Kind)),
		zap.Stringer("event_id", ev.ID),
		zap.Uint64("nonce", block.Nonce),
	)
	return block, nil
}

func (c *Chain) Blocks() []*models.Block {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	blocks := make([]*models.Block, len(c.blocks))
	copy(blocks, c.blocks)
	return blocks
}

func (c *Chain) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.blocks)
}

func (c *Chain) Validate() error {
	return models.ValidateChain(c.Blocks())
}

// Events decodes the payload of every block.
func (c *Chain) Events() ([]models.Event, error) {
	return DecodeEvents(c.Blocks())
}

func DecodeEvents(blocks []*models.Block) ([]models.Event, error) {
	events := make([]models.Event, 0, len(blocks))
	for _, block := range blocks {
		ev, err := models.DecodeEvent(block.Data)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", block.Index, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *Chain) lastHash() []byte {
	if len(c.blocks) == 0 {
		return models.GenesisPrevHash
	}
	return c.blocks[len(c.blocks)-1].Hash
}
