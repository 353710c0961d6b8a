package models

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// MaxDifficulty bounds the proof of work. Each extra zero byte multiplies
// the expected mining time by 256, and mining runs under the ledger lock.
const MaxDifficulty = 2

const mineCheckInterval = 1000

var ErrInvalidChain = errors.New("invalid chain")

// GenesisPrevHash is the PrevHash of the first block in a chain.
var GenesisPrevHash = make([]byte, sha256.Size)

type Block struct {
	Index      uint64 `json:"index"`
	Timestamp  int64  `json:"timestamp"`
	Data       []byte `json:"data"`
	PrevHash   []byte `json:"prev_hash"`
	Hash       []byte `json:"hash"`
	Nonce      uint64 `json:"nonce"`
	Difficulty uint8  `json:"difficulty"` // Number of leading zero bytes required
}

// NewBlock builds and mines a block. It fails only when ctx ends before a
// valid nonce is found.
func NewBlock(ctx context.Context, index uint64, data []byte, prevHash []byte, difficulty uint8) (*Block, error) {
	block := &Block{
		Index:      index,
		Timestamp:  time.Now().UnixNano(),
		Data:       data,
		PrevHash:   prevHash,
		Difficulty: difficulty,
	}

	if err := block.Mine(ctx); err != nil {
		return nil, err
	}
	return block, nil
}

// Mine searches for a nonce meeting the block's difficulty, checking ctx
// before starting and every mineCheckInterval hashes.
func (b *Block) Mine(ctx context.Context) error {
	if b.Difficulty > MaxDifficulty {
		return fmt.Errorf("difficulty %d exceeds maximum %d", b.Difficulty, MaxDifficulty)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mining block %d: %w", b.Index, err)
	}

	target := make([]byte, b.Difficulty)
	var nonce uint64
	for {
		b.Nonce = nonce
		b.Hash = b.calculateHash()

		if bytes.HasPrefix(b.Hash, target) {
			return nil
		}

		nonce++
		if nonce%mineCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("mining block %d: %w", b.Index, err)
			}
		}
	}
}

func (b *Block) calculateHash() []byte {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.BigEndian, b.Index)
	binary.Write(buffer, binary.BigEndian, b.Timestamp)
	binary.Write(buffer, binary.BigEndian, uint64(len(b.Data)))
	buffer.Write(b.Data)
	buffer.Write(b.PrevHash)
	binary.Write(buffer, binary.BigEndian, b.Nonce)
	buffer.WriteByte(b.Difficulty)

	hash := sha256.Sum256(buffer.Bytes())
	return hash[:]
}

func (b *Block) Validate() bool {
	calculatedHash := b.calculateHash()
	if !bytes.Equal(calculatedHash, b.Hash) {
		return false
	}

	target := make([]byte, b.Difficulty)
	return bytes.HasPrefix(calculatedHash, target)
}

// ValidateChain checks hashes, proof of work, links, indices and timestamps.
// An empty chain is valid.
func ValidateChain(blocks []*Block) error {
	for i, block := range blocks {
		if !block.Validate() {
			return fmt.Errorf("%w: block %d has invalid hash", ErrInvalidChain, i)
		}
		if block.Index != uint64(i) {
			return fmt.Errorf("%w: block %d has index %d", ErrInvalidChain, i, block.Index)
		}

		if i == 0 {
			if !bytes.Equal(block.PrevHash, GenesisPrevHash) {
				return fmt.Errorf("%w: genesis block has non-zero previous hash", ErrInvalidChain)
			}
			continue
		}

		previous := blocks[i-1]
		if !bytes.Equal(block.PrevHash, previous.Hash) {
			return fmt.Errorf("%w: block %d has invalid previous hash link", ErrInvalidChain, i)
		}
		if block.Timestamp < previous.Timestamp {
			return fmt.Errorf("%w: block %d is older than its predecessor", ErrInvalidChain, i)
		}
	}

	return nil
}
