package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"voting-ledger/commitment"
	"voting-ledger/models"
	"voting-ledger/storage"
)

func TestResultsCandidatesOrder(t *testing.T) {
	r := Results{Tally: map[common.Address]uint64{
		candidateA: 1,
		candidateB: 3,
		voter:      1,
	}}

	got := r.Candidates()
	require.Equal(t, candidateB, got[0])
	require.Len(t, got, 3)
	require.Equal(t, -1, got[1].Cmp(got[2]))
}

func TestLedgerResults(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := newLedger(t)

	secret := secretOf(t, "1337")
	require.NoError(l.CommitVote(ctx, voter, commitment.Digest(candidateA, secret, voter)))
	require.NoError(l.CommitVote(ctx, voter2, commitment.Digest(candidateA, secret, voter2)))
	require.NoError(l.RevealVote(ctx, voter, candidateA, secret))

	r := l.Results()
	require.Equal(2, r.Participants)
	require.Equal(1, r.Revealed)
	require.Equal(1, r.Pending)
	require.False(r.Stopped)
	require.Nil(r.StoppedAt)
	require.Equal(map[common.Address]uint64{candidateA: 1}, r.Tally)
}

func TestAuditCleanJournal(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	l := newJournaledLedger(t, storage.NewMemoryStore())

	secret := secretOf(t, "1337")
	require.NoError(l.CommitVote(ctx, voter, commitment.Digest(candidateA, secret, voter)))
	require.NoError(l.RevealVote(ctx, voter, candidateA, secret))
	require.NoError(l.StopVoting(ctx, admin))

	report, err := l.Audit()
	require.NoError(err)
	require.True(report.OK(), "discrepancies: %v", report.Discrepancies)
	require.Equal(3, report.Blocks)
	require.Equal(uint64(1), report.Results.Tally[candidateA])
}

func TestAuditWithoutJournal(t *testing.T) {
	_, err := newLedger(t).Audit()
	require.ErrorIs(t, err, ErrNoJournal)
}

func TestAuditDetectsForgedReveal(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newJournaledLedger(t, store)

	secret := secretOf(t, "1337")
	require.NoError(l.CommitVote(ctx, voter, commitment.Digest(candidateA, secret, voter)))
	require.NoError(l.RevealVote(ctx, voter, candidateA, secret))

	// Rewrite the reveal to point at another candidate and re-mine the tail
	// so the hash chain itself stays consistent.
	blocks, err := store.Load(ctx)
	require.NoError(err)
	forged, err := json.Marshal(models.NewRevealEvent(voter, candidateB, secret))
	require.NoError(err)
	blocks[1].Data = forged
	require.NoError(blocks[1].Mine(ctx))

	report := Audit(blocks, admin)
	require.True(report.ChainValid)
	require.False(report.OK())
	require.Len(report.Discrepancies, 1)
	require.Contains(report.Discrepancies[0], ErrCommitmentMismatch.Error())
	require.Zero(report.Results.Tally[candidateB])

	live, err := l.Audit()
	require.NoError(err)
	require.False(live.OK())
}

func TestAuditDetectsUnauthorizedStop(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newJournaledLedger(t, store)
	require.NoError(l.StopVoting(ctx, admin))

	blocks, err := store.Load(ctx)
	require.NoError(err)

	report := Audit(blocks, voter)
	require.False(report.OK())
	require.False(report.Results.Stopped)
}

func TestCompareResults(t *testing.T) {
	live := Results{Participants: 2, Revealed: 1, Tally: map[common.Address]uint64{candidateA: 1}}
	replayed := Results{Participants: 2, Revealed: 1, Tally: map[common.Address]uint64{candidateB: 1}}

	diff := compareResults(live, replayed)
	require.Len(t, diff, 2)
	require.Empty(t, compareResults(live, live))
}
