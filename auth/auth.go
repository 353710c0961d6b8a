// Package auth establishes the caller identity for ledger operations received
// over an untrusted transport.
//
// A request carries a JSON payload and an ECDSA signature over the EIP-191
// personal-message hash of the exact payload bytes. The caller is the address
// recovered from that signature.
package auth

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Envelope is a signed request body.
type Envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature hexutil.Bytes   `json:"signature"`
}

// Sign wraps payload in an Envelope signed by key. The payload is compacted
// first so the signed bytes survive json.Marshal of the envelope unchanged.
func Sign(payload []byte, key *ecdsa.PrivateKey) (*Envelope, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	payload = buf.Bytes()

	sig, err := crypto.Sign(accounts.TextHash(payload), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	// Wallets emit V as 27/28.
	sig[crypto.RecoveryIDOffset] += 27
	return &Envelope{
		Payload:   json.RawMessage(payload),
		Signature: sig,
	}, nil
}

// SignJSON marshals v and signs the result.
func SignJSON(v any, key *ecdsa.PrivateKey) (*Envelope, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return Sign(payload, key)
}

// Recover returns the address that signed the envelope's payload.
func (e *Envelope) Recover() (common.Address, error) {
	if len(e.Signature) == 0 {
		return common.Address{}, ErrMissingSignature
	}
	if len(e.Signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: want %d bytes, got %d",
			ErrInvalidSignature, crypto.SignatureLength, len(e.Signature))
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, e.Signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(e.Payload), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(e.Payload, v)
}

// ParsePrivateKey decodes a hex private key, with or without 0x prefix.
func ParsePrivateKey(keyStr string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(keyStr), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// Address returns the ledger identity controlled by key.
func Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
