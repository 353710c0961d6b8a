package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"voting-ledger/api"
	"voting-ledger/auth"
	"voting-ledger/blockchain"
	"voting-ledger/commitment"
	"voting-ledger/config"
	"voting-ledger/service"
	"voting-ledger/storage"
)

var (
	candidate   = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	participant = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func run(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.Bytes(), err
}

func TestDigest(t *testing.T) {
	require := require.New(t)

	out, err := run(t, "digest",
		"--candidate", candidate.Hex(),
		"--participant", participant.Hex(),
		"--secret", "1337",
	)
	require.NoError(err)

	var got digestOutput
	require.NoError(json.Unmarshal(out, &got))
	secret, err := commitment.SecretFromString("1337")
	require.NoError(err)
	require.Equal(secret, got.Secret)
	require.Equal(commitment.Digest(candidate, secret, participant), got.Commitment)
}

func TestDigestGeneratesSecret(t *testing.T) {
	require := require.New(t)

	out, err := run(t, "digest", "--candidate", candidate.Hex(), "--participant", participant.Hex())
	require.NoError(err)

	var got digestOutput
	require.NoError(json.Unmarshal(out, &got))
	require.NotEqual(commitment.Secret{}, got.Secret)
	require.NoError(commitment.Verify(got.Commitment, candidate, got.Secret, participant))
}

func TestDigestRejectsBadInput(t *testing.T) {
	_, err := run(t, "digest", "--participant", participant.Hex())
	require.Error(t, err)

	_, err = run(t, "digest", "--candidate", "0x1234", "--participant", participant.Hex())
	require.Error(t, err)

	_, err = run(t, "digest", "--candidate", candidate.Hex(), "--participant", participant.Hex(),
		"--secret", "a", "--secret-hex", hexutil.Encode(make([]byte, 32)))
	require.Error(t, err)
}

func TestSign(t *testing.T) {
	require := require.New(t)
	key, err := crypto.GenerateKey()
	require.NoError(err)
	hexKey := hexutil.Encode(crypto.FromECDSA(key))
	hash := commitment.Digest(candidate, commitment.Secret{1}, auth.Address(key))

	out, err := run(t, "sign", "commit", "--key", hexKey, "--commitment", hash.Hex())
	require.NoError(err)

	var env auth.Envelope
	require.NoError(json.Unmarshal(out, &env))
	signer, err := env.Recover()
	require.NoError(err)
	require.Equal(auth.Address(key), signer)

	var payload api.CommitPayload
	require.NoError(env.Decode(&payload))
	require.Equal(api.ActionCommit, payload.Action)
	require.Equal(hash, payload.Commitment)

	_, err = run(t, "sign", "reveal", "--key", hexKey, "--candidate", candidate.Hex())
	require.Error(err)

	_, err = run(t, "sign", "stop")
	require.Error(err)
}

func TestSignWithKeyFile(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "voter.json")

	_, err := run(t, "keygen", "--out", path)
	require.NoError(err)
	_, err = run(t, "keygen", "--out", path)
	require.Error(err, "keygen must not overwrite credentials")

	key, err := config.LoadAdminKey(path)
	require.NoError(err)

	out, err := run(t, "sign", "stop", "--key-file", path)
	require.NoError(err)

	var env auth.Envelope
	require.NoError(json.Unmarshal(out, &env))
	signer, err := env.Recover()
	require.NoError(err)
	require.Equal(auth.Address(key), signer)
}

func TestAudit(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	adminKey, err := crypto.GenerateKey()
	require.NoError(err)
	admin := auth.Address(adminKey)

	store, err := storage.NewJSONStore(filepath.Join(dir, "journal"), nil)
	require.NoError(err)
	chain, err := blockchain.Open(ctx, store, 0, nil)
	require.NoError(err)
	ledger, err := service.NewLedger(service.Config{Admin: admin}, service.WithJournal(chain))
	require.NoError(err)

	secret := commitment.Secret{7}
	require.NoError(ledger.CommitVote(ctx, participant, commitment.Digest(candidate, secret, participant)))
	require.NoError(ledger.RevealVote(ctx, participant, candidate, secret))
	require.NoError(ledger.StopVoting(ctx, admin))

	out, err := run(t, "audit", "--storage", dir, "--admin", admin.Hex())
	require.NoError(err)

	var report service.AuditReport
	require.NoError(json.Unmarshal(out, &report))
	require.True(report.OK())
	require.Equal(3, report.Blocks)
	require.Equal(uint64(1), report.Results.Tally[candidate])
	require.True(report.Results.Stopped)

	_, err = run(t, "audit", "--storage", dir, "--admin", participant.Hex())
	require.ErrorIs(err, errAuditFailed)
}
