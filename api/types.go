package api

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"voting-ledger/commitment"
	"voting-ledger/models"
	"voting-ledger/service"
)

const (
	ActionCommit = "commit"
	ActionReveal = "reveal"
	ActionStop   = "stop"
)

// CommitPayload is the signed body of POST /api/commits.
type CommitPayload struct {
	Action     string      `json:"action"`
	Commitment common.Hash `json:"commitment"`
}

// RevealPayload is the signed body of POST /api/reveals.
type RevealPayload struct {
	Action    string            `json:"action"`
	Candidate common.Address    `json:"candidate"`
	Secret    commitment.Secret `json:"secret"`
}

// StopPayload is the signed body of POST /api/stop.
type StopPayload struct {
	Action string `json:"action"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CommitResponse struct {
	Caller     common.Address `json:"caller"`
	Commitment common.Hash    `json:"commitment"`
}

type RevealResponse struct {
	Caller    common.Address `json:"caller"`
	Candidate common.Address `json:"candidate"`
	Votes     uint64         `json:"votes"`
}

type StopResponse struct {
	Results  service.Results `json:"results"`
	Snapshot string          `json:"snapshot,omitempty"`
}

type ParticipantResponse struct {
	Address   common.Address `json:"address"`
	Committed bool           `json:"committed"`
	models.Commit
}

type VotesResponse struct {
	Candidate common.Address `json:"candidate"`
	Votes     uint64         `json:"votes"`
}

type CandidateResult struct {
	Candidate common.Address `json:"candidate"`
	Votes     uint64         `json:"votes"`
}

type ResultsResponse struct {
	service.Results
	Ranking []CandidateResult `json:"ranking"`
}

type StatusResponse struct {
	Admin         common.Address `json:"admin"`
	VotingActive  bool           `json:"voting_active"`
	StoppedAt     *time.Time     `json:"stopped_at,omitempty"`
	Participants  int            `json:"participants"`
	Revealed      int            `json:"revealed"`
	JournalBlocks int            `json:"journal_blocks"`
}

type ChainResponse struct {
	Length   int         `json:"length"`
	IsValid  bool        `json:"is_valid"`
	Error    string      `json:"error,omitempty"`
	LastHash string      `json:"last_hash,omitempty"`
	Blocks   []BlockInfo `json:"blocks"`
}

type BlockInfo struct {
	Index      uint64        `json:"index"`
	Timestamp  int64         `json:"timestamp"`
	Hash       string        `json:"hash"`
	PrevHash   string        `json:"prev_hash"`
	Nonce      uint64        `json:"nonce"`
	Difficulty uint8         `json:"difficulty"`
	Event      *models.Event `json:"event,omitempty"`
	Data       string        `json:"data,omitempty"`
}
