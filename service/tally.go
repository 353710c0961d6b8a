package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"voting-ledger/models"
)

// Results is a point-in-time view of the tally.
type Results struct {
	Stopped      bool                      `json:"stopped"`
	StoppedAt    *time.Time                `json:"stopped_at,omitempty"`
	Participants int                       `json:"participants"`
	Revealed     int                       `json:"revealed"`
	Pending      int                       `json:"pending"`
	Tally        map[common.Address]uint64 `json:"tally"`
}

// Candidates returns the candidates with at least one vote, most votes first.
func (r Results) Candidates() []common.Address {
	candidates := make([]common.Address, 0, len(r.Tally))
	for candidate := range r.Tally {
		candidates = append(candidates, candidate)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := r.Tally[candidates[i]], r.Tally[candidates[j]]
		if a != b {
			return a > b
		}
		return candidates[i].Cmp(candidates[j]) < 0
	})
	return candidates
}

// AuditReport is the outcome of replaying a journal from scratch.
type AuditReport struct {
	Blocks        int      `json:"blocks"`
	ChainValid    bool     `json:"chain_valid"`
	Results       Results  `json:"results"`
	Discrepancies []string `json:"discrepancies,omitempty"`
}

func (r *AuditReport) OK() bool {
	return r.ChainValid && len(r.Discrepancies) == 0
}

// Audit rebuilds the ledger state from blocks, re-verifying every commitment
// and the administrator's authority, and reports anything that does not
// hold. It needs nothing but the journal and the administrator address.
func Audit(blocks []*models.Block, admin common.Address) *AuditReport {
	report := &AuditReport{Blocks: len(blocks), ChainValid: true}
	if err := models.ValidateChain(blocks); err != nil {
		report.ChainValid = false
		report.Discrepancies = append(report.Discrepancies, err.Error())
	}

	s := newState(admin)
	for _, block := range blocks {
		ev, err := models.DecodeEvent(block.Data)
		if err != nil {
			report.Discrepancies = append(report.Discrepancies,
				fmt.Sprintf("block %d: %v", block.Index, err))
			continue
		}
		if err := s.applyEvent(ev, time.Unix(0, block.Timestamp)); err != nil {
			report.Discrepancies = append(report.Discrepancies,
				fmt.Sprintf("block %d: %s by %s rejected: %v", block.Index, ev.Kind, ev.Caller, err))
		}
	}

	report.Results = s.results()
	return report
}

// Audit replays the ledger's own journal and additionally compares the
// result with the live in-memory state.
func (l *Ledger) Audit() (*AuditReport, error) {
	if l.chain == nil {
		return nil, ErrNoJournal
	}

	l.mu.RLock()
	blocks := l.chain.Blocks()
	live := l.state.results()
	admin := l.state.admin
	l.mu.RUnlock()

	report := Audit(blocks, admin)
	report.Discrepancies = append(report.Discrepancies, compareResults(live, report.Results)...)
	return report, nil
}

func compareResults(live, replayed Results) []string {
	var out []string
	if live.Stopped != replayed.Stopped {
		out = append(out, fmt.Sprintf("stopped: live %t, journal %t", live.Stopped, replayed.Stopped))
	}
	if live.Participants != replayed.Participants {
		out = append(out, fmt.Sprintf("participants: live %d, journal %d", live.Participants, replayed.Participants))
	}
	if live.Revealed != replayed.Revealed {
		out = append(out, fmt.Sprintf("revealed: live %d, journal %d", live.Revealed, replayed.Revealed))
	}

	seen := make(map[common.Address]bool)
	for _, tally := range []map[common.Address]uint64{live.Tally, replayed.Tally} {
		for candidate := range tally {
			if seen[candidate] {
				continue
			}
			seen[candidate] = true
			if a, b := live.Tally[candidate], replayed.Tally[candidate]; a != b {
				out = append(out, fmt.Sprintf("votes for %s: live %d, journal %d", candidate, a, b))
			}
		}
	}
	sort.Strings(out)
	return out
}
