package service

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"voting-ledger/commitment"
	"voting-ledger/models"
)

// state is the commit-reveal state machine without locking or journaling.
// The check* methods never mutate; apply* methods assume the matching check
// passed.
type state struct {
	admin    common.Address
	commits  map[common.Address]models.Commit
	votes    map[common.Address]uint64
	revealed int
	period   VotingPeriod
}

func newState(admin common.Address) *state {
	return &state{
		admin:   admin,
		commits: make(map[common.Address]models.Commit),
		votes:   make(map[common.Address]uint64),
	}
}

func (s *state) checkCommit(caller common.Address, hash common.Hash) error {
	if s.period.IsStopped() {
		return ErrVotingStopped
	}
	if hash == (common.Hash{}) {
		return ErrEmptyCommitment
	}
	if _, ok := s.commits[caller]; ok {
		return ErrAlreadyCommitted
	}
	return nil
}

func (s *state) applyCommit(caller common.Address, hash common.Hash) {
	s.commits[caller] = models.Commit{Hash: hash}
}

func (s *state) checkReveal(caller, candidate common.Address, secret commitment.Secret) error {
	if s.period.IsStopped() {
		return ErrVotingStopped
	}
	record, ok := s.commits[caller]
	if !ok {
		return ErrNoCommitment
	}
	if record.Revealed {
		return ErrAlreadyRevealed
	}
	if err := commitment.Verify(record.Hash, candidate, secret, caller); err != nil {
		return ErrCommitmentMismatch
	}
	return nil
}

func (s *state) applyReveal(caller, candidate common.Address) {
	record := s.commits[caller]
	record.Revealed = true
	s.commits[caller] = record
	s.votes[candidate]++
	s.revealed++
}

// checkStop reports whether stopping would change the period.
func (s *state) checkStop(caller common.Address) (bool, error) {
	if caller != s.admin {
		return false, ErrUnauthorized
	}
	return !s.period.IsStopped(), nil
}

func (s *state) applyStop(at time.Time) {
	s.period.Stop(at)
}

// applyEvent runs a journaled event through the same checks a live call gets.
func (s *state) applyEvent(ev models.Event, at time.Time) error {
	switch ev.Kind {
	case models.EventCommit:
		if err := s.checkCommit(ev.Caller, *ev.Commitment); err != nil {
			return err
		}
		s.applyCommit(ev.Caller, *ev.Commitment)
	case models.EventReveal:
		if err := s.checkReveal(ev.Caller, *ev.Candidate, *ev.Secret); err != nil {
			return err
		}
		s.applyReveal(ev.Caller, *ev.Candidate)
	case models.EventStop:
		if _, err := s.checkStop(ev.Caller); err != nil {
			return err
		}
		s.applyStop(at)
	}
	return nil
}

func (s *state) results() Results {
	tally := make(map[common.Address]uint64, len(s.votes))
	for candidate, n := range s.votes {
		tally[candidate] = n
	}

	r := Results{
		Stopped:      s.period.IsStopped(),
		Participants: len(s.commits),
		Revealed:     s.revealed,
		Pending:      len(s.commits) - s.revealed,
		Tally:        tally,
	}
	if r.Stopped {
		at := s.period.StoppedAt()
		r.StoppedAt = &at
	}
	return r
}
