package storage

import (
	"context"
	"fmt"
	"sync"

	"voting-ledger/models"
)

// MemoryStore is a non-durable journal, used by tests and the "memory" store
// kind.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks []*models.Block
}

func NewMemoryStore(seed ...*models.Block) *MemoryStore {
	return &MemoryStore{blocks: append([]*models.Block(nil), seed...)}
}

func (s *MemoryStore) Append(_ context.Context, block *models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if block.Index != uint64(len(s.blocks)) {
		return fmt.Errorf("%w: block %d appended at height %d", ErrConflict, block.Index, len(s.blocks))
	}
	s.blocks = append(s.blocks, block)
	return nil
}

func (s *MemoryStore) Load(_ context.Context) ([]*models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks := make([]*models.Block, len(s.blocks))
	copy(blocks, s.blocks)
	return blocks, nil
}
