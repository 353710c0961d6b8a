package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"voting-ledger/auth"
	"voting-ledger/blockchain"
	"voting-ledger/models"
	"voting-ledger/service"
)

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var payload CommitPayload
	caller, ok := s.readSigned(w, r, ActionCommit, &payload, func() string { return payload.Action })
	if !ok {
		return
	}

	_, err := s.submit(r.Context(), service.Request{
		Op:         service.OpCommit,
		Caller:     caller,
		Commitment: payload.Commitment,
	})
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CommitResponse{Caller: caller, Commitment: payload.Commitment})
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	var payload RevealPayload
	caller, ok := s.readSigned(w, r, ActionReveal, &payload, func() string { return payload.Action })
	if !ok {
		return
	}

	_, err := s.submit(r.Context(), service.Request{
		Op:        service.OpReveal,
		Caller:    caller,
		Candidate: payload.Candidate,
		Secret:    payload.Secret,
	})
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RevealResponse{
		Caller:    caller,
		Candidate: payload.Candidate,
		Votes:     s.ledger.Votes(payload.Candidate),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var payload StopPayload
	caller, ok := s.readSigned(w, r, ActionStop, &payload, func() string { return payload.Action })
	if !ok {
		return
	}

	res, err := s.submit(r.Context(), service.Request{Op: service.OpStop, Caller: caller})
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}

	resp := StopResponse{Results: s.ledger.Results()}
	if s.snapshots != nil && res.Changed {
		path, err := s.snapshots.Save(resp.Results)
		if err != nil {
			s.logger.Error("failed to save results snapshot", zap.Error(err))
		} else {
			resp.Snapshot = path
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCommit(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}

	commit := s.ledger.Commits(addr)
	writeJSON(w, http.StatusOK, ParticipantResponse{
		Address:   addr,
		Committed: commit.Exists(),
		Commit:    commit,
	})
}

func (s *Server) handleGetVotes(w http.ResponseWriter, r *http.Request) {
	candidate, ok := pathAddress(w, r, "candidate")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, VotesResponse{Candidate: candidate, Votes: s.ledger.Votes(candidate)})
}

func (s *Server) handleGetResults(w http.ResponseWriter, _ *http.Request) {
	results := s.ledger.Results()

	resp := ResultsResponse{Results: results, Ranking: []CandidateResult{}}
	for _, candidate := range results.Candidates() {
		resp.Ranking = append(resp.Ranking, CandidateResult{Candidate: candidate, Votes: results.Tally[candidate]})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	results := s.ledger.Results()

	resp := StatusResponse{
		Admin:        s.ledger.Admin(),
		VotingActive: !results.Stopped,
		StoppedAt:    results.StoppedAt,
		Participants: results.Participants,
		Revealed:     results.Revealed,
	}
	if chain := s.ledger.Journal(); chain != nil {
		resp.JournalBlocks = chain.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetChain(w http.ResponseWriter, _ *http.Request) {
	chain := s.ledger.Journal()
	if chain == nil {
		writeError(w, http.StatusNotFound, "no_journal", service.ErrNoJournal.Error())
		return
	}
	writeJSON(w, http.StatusOK, convertToChainResponse(chain))
}

func (s *Server) handleAuditChain(w http.ResponseWriter, _ *http.Request) {
	report, err := s.ledger.Audit()
	if errors.Is(err, service.ErrNoJournal) {
		writeError(w, http.StatusNotFound, "no_journal", err.Error())
		return
	}
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}

	if !report.OK() {
		s.logger.Warn("journal audit found discrepancies", zap.Strings("discrepancies", report.Discrepancies))
	}
	writeJSON(w, http.StatusOK, report)
}

// readSigned decodes and verifies a signed envelope from r into payload and
// returns the signer. On failure the response has already been written.
func (s *Server) readSigned(w http.ResponseWriter, r *http.Request, action string, payload any, gotAction func() string) (common.Address, bool) {
	var env auth.Envelope
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return common.Address{}, false
	}

	caller, err := env.Recover()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_signature", err.Error())
		return common.Address{}, false
	}

	if err := env.Decode(payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", fmt.Sprintf("invalid payload: %v", err))
		return common.Address{}, false
	}
	if got := gotAction(); got != action {
		writeError(w, http.StatusBadRequest, "invalid_action",
			fmt.Sprintf("payload action %q does not match %q", got, action))
		return common.Address{}, false
	}
	return caller, true
}

func (s *Server) submit(ctx context.Context, req service.Request) (service.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sequencer.Do(ctx, req)
}

func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	code := service.Reason(err)
	switch {
	case errors.Is(err, service.ErrVotingStopped),
		errors.Is(err, service.ErrAlreadyCommitted),
		errors.Is(err, service.ErrAlreadyRevealed):
		writeError(w, http.StatusConflict, code, err.Error())
	case errors.Is(err, service.ErrEmptyCommitment):
		writeError(w, http.StatusBadRequest, code, err.Error())
	case errors.Is(err, service.ErrNoCommitment):
		writeError(w, http.StatusNotFound, code, err.Error())
	case errors.Is(err, service.ErrCommitmentMismatch):
		writeError(w, http.StatusUnprocessableEntity, code, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusForbidden, code, err.Error())
	case errors.Is(err, service.ErrQueueFull),
		errors.Is(err, service.ErrSequencerStopped):
		writeError(w, http.StatusServiceUnavailable, code, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		s.logger.Error("ledger operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func pathAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := mux.Vars(r)[name]
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid_address", fmt.Sprintf("invalid %s %q", name, raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func convertToChainResponse(chain *blockchain.Chain) ChainResponse {
	blocks := chain.Blocks()
	resp := ChainResponse{
		Length:  len(blocks),
		IsValid: true,
		Blocks:  make([]BlockInfo, len(blocks)),
	}
	if err := models.ValidateChain(blocks); err != nil {
		resp.IsValid = false
		resp.Error = err.Error()
	}
	if len(blocks) > 0 {
		resp.LastHash = hexutil.Encode(blocks[len(blocks)-1].Hash)
	}

	for i, block := range blocks {
		info := BlockInfo{
			Index:      block.Index,
			Timestamp:  block.Timestamp,
			Hash:       hexutil.Encode(block.Hash),
			PrevHash:   hexutil.Encode(block.PrevHash),
			Nonce:      block.Nonce,
			Difficulty: block.Difficulty,
		}
		if ev, err := models.DecodeEvent(block.Data); err == nil {
			info.Event = &ev
		} else {
			info.Data = hexutil.Encode(block.Data)
		}
		resp.Blocks[i] = info
	}
	return resp
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
