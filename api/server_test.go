package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"voting-ledger/auth"
	"voting-ledger/blockchain"
	"voting-ledger/commitment"
	"voting-ledger/models"
	"voting-ledger/service"
	"voting-ledger/storage"
)

var candidate = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")

type testEnv struct {
	handler  http.Handler
	ledger   *service.Ledger
	adminKey *ecdsa.PrivateKey
	voterKey *ecdsa.PrivateKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, storage.NewMemoryStore())
}

func newTestEnvWithStore(t *testing.T, store blockchain.Store, opts ...Option) *testEnv {
	t.Helper()
	require := require.New(t)

	adminKey, err := crypto.GenerateKey()
	require.NoError(err)
	voterKey, err := crypto.GenerateKey()
	require.NoError(err)

	chain, err := blockchain.Open(context.Background(), store, 0, nil)
	require.NoError(err)

	reg := prometheus.NewRegistry()
	metrics, err := service.NewMetrics(reg)
	require.NoError(err)

	ledger, err := service.NewLedger(service.Config{Admin: auth.Address(adminKey)},
		service.WithJournal(chain),
		service.WithMetrics(metrics),
	)
	require.NoError(err)

	seq := service.NewSequencer(ledger, 16, nil)
	seq.Start()
	t.Cleanup(seq.Stop)

	snapshots, err := storage.NewSnapshotStore(t.TempDir(), 2, nil)
	require.NoError(err)

	opts = append([]Option{WithMetrics(reg), WithSnapshots(snapshots)}, opts...)
	srv := NewServer(ledger, seq, opts...)
	return &testEnv{
		handler:  srv.Handler(),
		ledger:   ledger,
		adminKey: adminKey,
		voterKey: voterKey,
	}
}

func (e *testEnv) post(t *testing.T, path string, payload any, key *ecdsa.PrivateKey) *httptest.ResponseRecorder {
	t.Helper()
	env, err := auth.SignJSON(payload, key)
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return e.do(httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body)))
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	require.Equal(t, code, decode[ErrorResponse](t, rec).Code)
}

func secretOf(t *testing.T, s string) commitment.Secret {
	t.Helper()
	secret, err := commitment.SecretFromString(s)
	require.NoError(t, err)
	return secret
}

func TestVotingRoundTrip(t *testing.T) {
	require := require.New(t)
	e := newTestEnv(t)
	voter := auth.Address(e.voterKey)
	secret := secretOf(t, "1337")
	hash := commitment.Digest(candidate, secret, voter)

	rec := e.post(t, "/api/commits", CommitPayload{Action: ActionCommit, Commitment: hash}, e.voterKey)
	require.Equal(http.StatusCreated, rec.Code, rec.Body.String())
	committed := decode[CommitResponse](t, rec)
	require.Equal(voter, committed.Caller)
	require.Equal(hash, committed.Commitment)

	rec = e.post(t, "/api/commits", CommitPayload{Action: ActionCommit, Commitment: hash}, e.voterKey)
	requireError(t, rec, http.StatusConflict, "already_committed")

	rec = e.get("/api/commits/" + voter.Hex())
	require.Equal(http.StatusOK, rec.Code)
	participant := decode[ParticipantResponse](t, rec)
	require.True(participant.Committed)
	require.Equal(hash, participant.Hash)
	require.False(participant.Revealed)

	rec = e.post(t, "/api/reveals", RevealPayload{Action: ActionReveal, Candidate: candidate, Secret: secretOf(t, "1338")}, e.voterKey)
	requireError(t, rec, http.StatusUnprocessableEntity, "commitment_mismatch")

	rec = e.post(t, "/api/reveals", RevealPayload{Action: ActionReveal, Candidate: candidate, Secret: secret}, e.voterKey)
	require.Equal(http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(uint64(1), decode[RevealResponse](t, rec).Votes)

	rec = e.post(t, "/api/reveals", RevealPayload{Action: ActionReveal, Candidate: candidate, Secret: secret}, e.voterKey)
	requireError(t, rec, http.StatusConflict, "already_revealed")

	rec = e.get("/api/votes/" + candidate.Hex())
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(uint64(1), decode[VotesResponse](t, rec).Votes)

	rec = e.get("/api/results")
	require.Equal(http.StatusOK, rec.Code)
	results := decode[ResultsResponse](t, rec)
	require.Equal([]CandidateResult{{Candidate: candidate, Votes: 1}}, results.Ranking)
	require.Equal(1, results.Participants)
	require.Equal(1, results.Revealed)
}

func TestStopVoting(t *testing.T) {
	require := require.New(t)
	e := newTestEnv(t)

	rec := e.post(t, "/api/stop", StopPayload{Action: ActionStop}, e.voterKey)
	requireError(t, rec, http.StatusForbidden, "unauthorized")

	rec = e.post(t, "/api/stop", StopPayload{Action: ActionStop}, e.adminKey)
	require.Equal(http.StatusOK, rec.Code, rec.Body.String())
	stopped := decode[StopResponse](t, rec)
	require.True(stopped.Results.Stopped)
	require.NotEmpty(stopped.Snapshot)

	rec = e.post(t, "/api/stop", StopPayload{Action: ActionStop}, e.adminKey)
	require.Equal(http.StatusOK, rec.Code)
	require.Empty(decode[StopResponse](t, rec).Snapshot)

	hash := commitment.Digest(candidate, secretOf(t, "1337"), auth.Address(e.voterKey))
	rec = e.post(t, "/api/commits", CommitPayload{Action: ActionCommit, Commitment: hash}, e.voterKey)
	requireError(t, rec, http.StatusConflict, "voting_stopped")

	rec = e.get("/api/status")
	require.Equal(http.StatusOK, rec.Code)
	status := decode[StatusResponse](t, rec)
	require.False(status.VotingActive)
	require.NotNil(status.StoppedAt)
	require.Equal(auth.Address(e.adminKey), status.Admin)
	require.Equal(1, status.JournalBlocks)
}

func TestRejectsBadRequests(t *testing.T) {
	e := newTestEnv(t)
	hash := commitment.Digest(candidate, secretOf(t, "1337"), auth.Address(e.voterKey))

	t.Run("garbage body", func(t *testing.T) {
		rec := e.do(httptest.NewRequest(http.MethodPost, "/api/commits", strings.NewReader("{")))
		requireError(t, rec, http.StatusBadRequest, "invalid_request")
	})

	t.Run("missing signature", func(t *testing.T) {
		body := `{"payload":{"action":"commit","commitment":"` + hash.Hex() + `"}}`
		rec := e.do(httptest.NewRequest(http.MethodPost, "/api/commits", strings.NewReader(body)))
		requireError(t, rec, http.StatusUnauthorized, "invalid_signature")
	})

	t.Run("short signature", func(t *testing.T) {
		body := `{"payload":{"action":"commit"},"signature":"0x0102"}`
		rec := e.do(httptest.NewRequest(http.MethodPost, "/api/commits", strings.NewReader(body)))
		requireError(t, rec, http.StatusUnauthorized, "invalid_signature")
	})

	t.Run("action mismatch", func(t *testing.T) {
		rec := e.post(t, "/api/commits", StopPayload{Action: ActionStop}, e.adminKey)
		requireError(t, rec, http.StatusBadRequest, "invalid_action")
	})

	t.Run("malformed commitment", func(t *testing.T) {
		rec := e.post(t, "/api/commits", map[string]string{"action": ActionCommit, "commitment": "0x1234"}, e.voterKey)
		requireError(t, rec, http.StatusBadRequest, "invalid_payload")
	})

	t.Run("empty commitment", func(t *testing.T) {
		rec := e.post(t, "/api/commits", CommitPayload{Action: ActionCommit}, e.voterKey)
		requireError(t, rec, http.StatusBadRequest, "empty_commitment")
	})

	t.Run("reveal without commit", func(t *testing.T) {
		rec := e.post(t, "/api/reveals", RevealPayload{Action: ActionReveal, Candidate: candidate, Secret: secretOf(t, "1337")}, e.voterKey)
		requireError(t, rec, http.StatusNotFound, "no_commitment")
	})

	t.Run("invalid address", func(t *testing.T) {
		requireError(t, e.get("/api/votes/not-an-address"), http.StatusBadRequest, "invalid_address")
	})

	t.Run("wrong method", func(t *testing.T) {
		requireError(t, e.get("/api/stop"), http.StatusMethodNotAllowed, "method_not_allowed")
	})
}

func TestUnknownParticipantReadsAsZero(t *testing.T) {
	e := newTestEnv(t)
	rec := e.get("/api/commits/" + auth.Address(e.voterKey).Hex())
	require.Equal(t, http.StatusOK, rec.Code)

	participant := decode[ParticipantResponse](t, rec)
	require.False(t, participant.Committed)
	require.Equal(t, common.Hash{}, participant.Hash)
}

func TestChainAndAudit(t *testing.T) {
	require := require.New(t)
	e := newTestEnv(t)
	voter := auth.Address(e.voterKey)
	secret := secretOf(t, "1337")

	rec := e.post(t, "/api/commits", CommitPayload{Action: ActionCommit, Commitment: commitment.Digest(candidate, secret, voter)}, e.voterKey)
	require.Equal(http.StatusCreated, rec.Code)
	rec = e.post(t, "/api/reveals", RevealPayload{Action: ActionReveal, Candidate: candidate, Secret: secret}, e.voterKey)
	require.Equal(http.StatusOK, rec.Code)

	rec = e.get("/api/chain")
	require.Equal(http.StatusOK, rec.Code)
	chain := decode[ChainResponse](t, rec)
	require.Equal(2, chain.Length)
	require.True(chain.IsValid)
	require.NotNil(chain.Blocks[1].Event)
	require.Equal(voter, chain.Blocks[1].Event.Caller)
	require.Equal(chain.Blocks[1].Hash, chain.LastHash)

	rec = e.get("/api/chain/audit")
	require.Equal(http.StatusOK, rec.Code)
	report := decode[service.AuditReport](t, rec)
	require.True(report.OK(), report.Discrepancies)
	require.Equal(uint64(1), report.Results.Tally[candidate])
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	hash := commitment.Digest(candidate, secretOf(t, "1337"), auth.Address(e.voterKey))
	require.Equal(t, http.StatusCreated, e.post(t, "/api/commits", CommitPayload{Action: ActionCommit, Commitment: hash}, e.voterKey).Code)

	rec := e.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ledger_commits_total 1")
}

func TestConcurrentStopsWriteOneSnapshot(t *testing.T) {
	require := require.New(t)
	e := newTestEnv(t)

	const stops = 8
	var wg sync.WaitGroup
	snapshots := make(chan string, stops)
	for i := 0; i < stops; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := e.post(t, "/api/stop", StopPayload{Action: ActionStop}, e.adminKey)
			if rec.Code != http.StatusOK {
				t.Errorf("stop returned %d: %s", rec.Code, rec.Body.String())
				return
			}
			var resp StopResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Error(err)
				return
			}
			snapshots <- resp.Snapshot
		}()
	}
	wg.Wait()
	close(snapshots)

	written := 0
	for path := range snapshots {
		if path != "" {
			written++
		}
	}
	require.Equal(1, written)
}

type slowStore struct {
	storage.MemoryStore
	delay time.Duration
}

func (s *slowStore) Append(ctx context.Context, block *models.Block) error {
	time.Sleep(s.delay)
	return s.MemoryStore.Append(ctx, block)
}

func TestSlowJournalStillReportsAppliedCommit(t *testing.T) {
	require := require.New(t)
	e := newTestEnvWithStore(t, &slowStore{delay: 100 * time.Millisecond}, WithRequestTimeout(20*time.Millisecond))
	voter := auth.Address(e.voterKey)
	hash := commitment.Digest(candidate, secretOf(t, "1337"), voter)

	rec := e.post(t, "/api/commits", CommitPayload{Action: ActionCommit, Commitment: hash}, e.voterKey)
	require.Equal(http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(hash, e.ledger.Commits(voter).Hash)
}
