package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"voting-ledger/commitment"
)

type Op string

const (
	OpCommit Op = opCommit
	OpReveal Op = opReveal
	OpStop   Op = opStop
)

// Request is one mutating ledger call as submitted by a transport.
type Request struct {
	Op         Op
	Caller     common.Address
	Commitment common.Hash       // OpCommit
	Candidate  common.Address    // OpReveal
	Secret     commitment.Secret // OpReveal
}

// Result reports what an accepted request did.
type Result struct {
	// Changed is false only for a stop that found voting already stopped.
	Changed bool
}

const (
	jobQueued int32 = iota
	jobStarted
	jobDropped
)

type job struct {
	ctx   context.Context
	req   Request
	state atomic.Int32
	done  chan outcome
}

type outcome struct {
	result Result
	err    error
}

// Sequencer feeds mutating requests to the ledger from a single worker in
// arrival order, with a bounded queue in front of it.
type Sequencer struct {
	ledger *Ledger
	jobs   chan *job
	logger *zap.Logger

	mu         sync.RWMutex
	shutdownCh chan struct{}
	stopped    bool
	wg         sync.WaitGroup
}

func NewSequencer(ledger *Ledger, queueSize int, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Sequencer{
		ledger:     ledger,
		jobs:       make(chan *job, queueSize),
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}
}

func (s *Sequencer) Start() {
	s.wg.Add(1)
	go s.worker()
}

// Stop refuses new requests, applies the ones already queued and waits for
// the worker to exit.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.shutdownCh)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Submit queues req and waits for its outcome.
func (s *Sequencer) Submit(ctx context.Context, req Request) error {
	_, err := s.Do(ctx, req)
	return err
}

// Do queues req and waits for its outcome. If ctx ends while the request is
// still queued it is dropped and ctx.Err() is returned. Once the worker has
// started on it, Do waits for the ledger's answer, so a returned error always
// means the request had no effect.
func (s *Sequencer) Do(ctx context.Context, req Request) (Result, error) {
	j := &job{ctx: ctx, req: req, done: make(chan outcome, 1)}

	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return Result{}, ErrSequencerStopped
	}
	select {
	case s.jobs <- j:
	default:
		s.mu.RUnlock()
		s.logger.Warn("submission queue is full",
			zap.String("op", string(req.Op)),
			zap.Stringer("caller", req.Caller),
		)
		s.ledger.metrics.RecordRejection(string(req.Op), ErrQueueFull)
		return Result{}, ErrQueueFull
	}
	s.mu.RUnlock()

	select {
	case o := <-j.done:
		return o.result, o.err
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobQueued, jobDropped) {
			return Result{}, ctx.Err()
		}
		// The ledger call is in flight and honours ctx while journaling.
		o := <-j.done
		return o.result, o.err
	}
}

func (s *Sequencer) worker() {
	defer s.wg.Done()

	for {
		select {
		case j := <-s.jobs:
			s.process(j)
		case <-s.shutdownCh:
			for {
				select {
				case j := <-s.jobs:
					s.process(j)
				default:
					return
				}
			}
		}
	}
}

func (s *Sequencer) process(j *job) {
	if !j.state.CompareAndSwap(jobQueued, jobStarted) {
		return
	}
	if err := j.ctx.Err(); err != nil {
		j.done <- outcome{err: err}
		return
	}
	result, err := s.apply(j.ctx, j.req)
	j.done <- outcome{result: result, err: err}
}

func (s *Sequencer) apply(ctx context.Context, req Request) (Result, error) {
	switch req.Op {
	case OpCommit:
		err := s.ledger.CommitVote(ctx, req.Caller, req.Commitment)
		return Result{Changed: err == nil}, err
	case OpReveal:
		err := s.ledger.RevealVote(ctx, req.Caller, req.Candidate, req.Secret)
		return Result{Changed: err == nil}, err
	case OpStop:
		changed, err := s.ledger.stopVoting(ctx, req.Caller)
		return Result{Changed: changed}, err
	default:
		return Result{}, fmt.Errorf("unknown operation %q", req.Op)
	}
}
