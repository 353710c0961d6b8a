package models

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"voting-ledger/commitment"
)

type EventKind string

const (
	EventCommit EventKind = "commit"
	EventReveal EventKind = "reveal"
	EventStop   EventKind = "stop"
)

// Event is one accepted ledger mutation, the payload of a journal block.
// Reveal events carry the disclosed candidate and secret so an auditor can
// recompute the matching commitment.
type Event struct {
	ID         uuid.UUID          `json:"id"`
	Kind       EventKind          `json:"kind"`
	Caller     common.Address     `json:"caller"`
	Commitment *common.Hash       `json:"commitment,omitempty"`
	Candidate  *common.Address    `json:"candidate,omitempty"`
	Secret     *commitment.Secret `json:"secret,omitempty"`
}

func NewCommitEvent(caller common.Address, hash common.Hash) Event {
	return Event{ID: uuid.New(), Kind: EventCommit, Caller: caller, Commitment: &hash}
}

func NewRevealEvent(caller, candidate common.Address, secret commitment.Secret) Event {
	return Event{ID: uuid.New(), Kind: EventReveal, Caller: caller, Candidate: &candidate, Secret: &secret}
}

func NewStopEvent(caller common.Address) Event {
	return Event{ID: uuid.New(), Kind: EventStop, Caller: caller}
}

// DecodeEvent parses a block payload and checks that the fields required by
// its kind are present.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	switch ev.Kind {
	case EventCommit:
		if ev.Commitment == nil {
			return Event{}, fmt.Errorf("commit event %s has no commitment", ev.ID)
		}
	case EventReveal:
		if ev.Candidate == nil || ev.Secret == nil {
			return Event{}, fmt.Errorf("reveal event %s is incomplete", ev.ID)
		}
	case EventStop:
	default:
		return Event{}, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return ev, nil
}
