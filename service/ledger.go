// Package service implements the commit-reveal voting ledger and the
// machinery around it: ordered submission, tallies, audits and metrics.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"voting-ledger/blockchain"
	"voting-ledger/commitment"
	"voting-ledger/models"
)

const (
	opCommit = "commit"
	opReveal = "reveal"
	opStop   = "stop"
)

var ErrNoJournal = errors.New("ledger has no journal")

// Config is fixed at ledger creation.
type Config struct {
	// Admin is the only identity allowed to stop voting.
	Admin common.Address
}

type Option func(*Ledger)

// WithJournal records every accepted mutation in chain and restores the
// ledger state from it on creation.
func WithJournal(chain *blockchain.Chain) Option {
	return func(l *Ledger) { l.chain = chain }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(l *Ledger) { l.metrics = metrics }
}

// Ledger is the voting state machine. Mutations are serialised by a single
// write lock held from validation through journaling to the in-memory update,
// so every call either takes full effect or none.
type Ledger struct {
	mu      sync.RWMutex
	state   *state
	chain   *blockchain.Chain
	logger  *zap.Logger
	metrics *Metrics
}

func NewLedger(cfg Config, opts ...Option) (*Ledger, error) {
	if cfg.Admin == (common.Address{}) {
		return nil, errors.New("administrator address is required")
	}

	l := &Ledger{
		state:  newState(cfg.Admin),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.chain != nil {
		if err := l.replay(); err != nil {
			return nil, err
		}
	}
	l.metrics.setState(l.state)

	l.logger.Info("ledger ready",
		zap.Stringer("admin", cfg.Admin),
		zap.Bool("stopped", l.state.period.IsStopped()),
		zap.Int("participants", len(l.state.commits)),
		zap.Int("revealed", l.state.revealed),
	)
	return l, nil
}

func (l *Ledger) replay() error {
	for _, block := range l.chain.Blocks() {
		ev, err := models.DecodeEvent(block.Data)
		if err != nil {
			return fmt.Errorf("replay block %d: %w", block.Index, err)
		}
		if err := l.state.applyEvent(ev, time.Unix(0, block.Timestamp)); err != nil {
			return fmt.Errorf("replay block %d (%s by %s): %w", block.Index, ev.Kind, ev.Caller, err)
		}
	}
	return nil
}

// CommitVote records hash as caller's commitment. It fails with
// ErrVotingStopped once voting is stopped, ErrEmptyCommitment for the zero
// hash (the value an identity without a record reads as) and
// ErrAlreadyCommitted when caller already holds a commitment.
func (l *Ledger) CommitVote(ctx context.Context, caller common.Address, hash common.Hash) error {
	start := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.state.checkCommit(caller, hash); err != nil {
		return l.reject(opCommit, start, caller, err)
	}
	if _, err := l.journal(ctx, models.NewCommitEvent(caller, hash)); err != nil {
		return l.fail(opCommit, start, caller, err)
	}
	l.state.applyCommit(caller, hash)

	l.metrics.observe(opCommit, time.Since(start), nil)
	l.metrics.setState(l.state)
	l.logger.Info("vote committed",
		zap.Stringer("caller", caller),
		zap.Stringer("commitment", hash),
	)
	return nil
}

// RevealVote checks (candidate, secret, caller) against caller's commitment
// and counts the vote on an exact match.
func (l *Ledger) RevealVote(ctx context.Context, caller, candidate common.Address, secret commitment.Secret) error {
	start := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.state.checkReveal(caller, candidate, secret); err != nil {
		return l.reject(opReveal, start, caller, err)
	}
	if _, err := l.journal(ctx, models.NewRevealEvent(caller, candidate, secret)); err != nil {
		return l.fail(opReveal, start, caller, err)
	}
	l.state.applyReveal(caller, candidate)

	l.metrics.observe(opReveal, time.Since(start), nil)
	l.metrics.setState(l.state)
	l.logger.Info("vote revealed",
		zap.Stringer("caller", caller),
		zap.Stringer("candidate", candidate),
		zap.Uint64("candidate_votes", l.state.votes[candidate]),
	)
	return nil
}

// StopVoting ends the voting period. Only the administrator may call it; a
// repeated call by the administrator succeeds without effect.
func (l *Ledger) StopVoting(ctx context.Context, caller common.Address) error {
	_, err := l.stopVoting(ctx, caller)
	return err
}

// stopVoting is StopVoting that also reports whether this call stopped the
// period.
func (l *Ledger) stopVoting(ctx context.Context, caller common.Address) (bool, error) {
	start := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	changes, err := l.state.checkStop(caller)
	if err != nil {
		return false, l.reject(opStop, start, caller, err)
	}
	if !changes {
		l.metrics.observe(opStop, time.Since(start), nil)
		l.logger.Debug("voting already stopped", zap.Stringer("caller", caller))
		return false, nil
	}

	at, err := l.journal(ctx, models.NewStopEvent(caller))
	if err != nil {
		return false, l.fail(opStop, start, caller, err)
	}
	l.state.applyStop(at)

	l.metrics.observe(opStop, time.Since(start), nil)
	l.metrics.setState(l.state)
	l.logger.Info("voting stopped", zap.Stringer("caller", caller))
	return true, nil
}

// Commits returns identity's participant record, or the zero record.
func (l *Ledger) Commits(identity common.Address) models.Commit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.commits[identity]
}

// Votes returns the number of revealed votes for candidate.
func (l *Ledger) Votes(candidate common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.votes[candidate]
}

func (l *Ledger) Stopped() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.period.IsStopped()
}

func (l *Ledger) Admin() common.Address {
	return l.state.admin
}

// Journal returns the audit chain, nil when the ledger was built without one.
func (l *Ledger) Journal() *blockchain.Chain {
	return l.chain
}

func (l *Ledger) Results() Results {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.results()
}

// journal appends ev and returns the time of the accepted block.
func (l *Ledger) journal(ctx context.Context, ev models.Event) (time.Time, error) {
	if l.chain == nil {
		return time.Now(), nil
	}
	block, err := l.chain.Append(ctx, ev)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, block.Timestamp), nil
}

func (l *Ledger) reject(op string, start time.Time, caller common.Address, err error) error {
	l.metrics.observe(op, time.Since(start), err)
	l.logger.Debug("operation rejected",
		zap.String("op", op),
		zap.Stringer("caller", caller),
		zap.Error(err),
	)
	return err
}

func (l *Ledger) fail(op string, start time.Time, caller common.Address, err error) error {
	err = fmt.Errorf("journal %s: %w", op, err)
	l.metrics.observe(op, time.Since(start), err)
	l.logger.Error("operation failed",
		zap.String("op", op),
		zap.Stringer("caller", caller),
		zap.Error(err),
	)
	return err
}
