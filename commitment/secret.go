package commitment

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const SecretLength = 32

var ErrSecretTooLong = errors.New("secret string must be shorter than 32 bytes")

// Secret is the participant's private nonce, a bytes32 on the wire.
type Secret [SecretLength]byte

// NewSecret draws a random secret.
func NewSecret() (Secret, error) {
	var s Secret
	if _, err := io.ReadFull(rand.Reader, s[:]); err != nil {
		return Secret{}, fmt.Errorf("failed to read random secret: %w", err)
	}
	return s, nil
}

// SecretFromString encodes s the way ethers' formatBytes32String does: the
// UTF-8 bytes right-padded with zeros, leaving room for a null terminator.
func SecretFromString(s string) (Secret, error) {
	var secret Secret
	if len(s) > SecretLength-1 {
		return Secret{}, ErrSecretTooLong
	}
	copy(secret[:], s)
	return secret, nil
}

// ParseSecret decodes a 0x-prefixed 32-byte hex value.
func ParseSecret(s string) (Secret, error) {
	var secret Secret
	if err := secret.UnmarshalText([]byte(s)); err != nil {
		return Secret{}, err
	}
	return secret, nil
}

func (s Secret) Hex() string {
	return hexutil.Encode(s[:])
}

func (s Secret) String() string {
	return s.Hex()
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.Hex()), nil
}

func (s *Secret) UnmarshalText(input []byte) error {
	b, err := hexutil.Decode(string(input))
	if err != nil {
		return fmt.Errorf("invalid secret: %w", err)
	}
	if len(b) != SecretLength {
		return fmt.Errorf("invalid secret: want %d bytes, got %d", SecretLength, len(b))
	}
	copy(s[:], b)
	return nil
}
