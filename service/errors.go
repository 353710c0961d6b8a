package service

import (
	"errors"

	"voting-ledger/storage"
)

var (
	ErrVotingStopped      = errors.New("voting stopped")
	ErrAlreadyCommitted   = errors.New("already voted")
	ErrEmptyCommitment    = errors.New("empty commitment")
	ErrNoCommitment       = errors.New("no commitment")
	ErrAlreadyRevealed    = errors.New("already revealed")
	ErrCommitmentMismatch = errors.New("invalid commit")
	ErrUnauthorized       = errors.New("caller is not the administrator")

	ErrQueueFull        = errors.New("submission queue is full")
	ErrSequencerStopped = errors.New("sequencer stopped")
)

// Reason maps an operation error to a short machine-readable code, used as a
// metric label and in API error bodies.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrVotingStopped):
		return "voting_stopped"
	case errors.Is(err, ErrAlreadyCommitted):
		return "already_committed"
	case errors.Is(err, ErrEmptyCommitment):
		return "empty_commitment"
	case errors.Is(err, ErrNoCommitment):
		return "no_commitment"
	case errors.Is(err, ErrAlreadyRevealed):
		return "already_revealed"
	case errors.Is(err, ErrCommitmentMismatch):
		return "commitment_mismatch"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrQueueFull):
		return "queue_full"
	case errors.Is(err, ErrSequencerStopped):
		return "sequencer_stopped"
	case errors.Is(err, storage.ErrConflict):
		return "journal_conflict"
	default:
		return "internal"
	}
}
