package service

import "time"

// VotingPeriod is the write-once open/stopped state of the ledger. It is
// guarded by the ledger lock.
type VotingPeriod struct {
	stopped   bool
	stoppedAt time.Time
}

func (p *VotingPeriod) IsStopped() bool {
	return p.stopped
}

// StoppedAt is zero while voting is open.
func (p *VotingPeriod) StoppedAt() time.Time {
	return p.stoppedAt
}

// Stop closes the period and reports whether this call changed it.
func (p *VotingPeriod) Stop(at time.Time) bool {
	if p.stopped {
		return false
	}
	p.stopped = true
	p.stoppedAt = at
	return true
}
