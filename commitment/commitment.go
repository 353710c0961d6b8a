// Package commitment builds and checks the digests participants submit during
// the commit phase.
//
// A commitment binds the chosen candidate, a private 32-byte secret and the
// participant's own address:
//
//	keccak256(candidate[20] || secret[32] || participant[20])
//
// which is the packed encoding Solidity produces for
// abi.encodePacked(address, bytes32, address). Clients that build their
// commitment with ethers' solidityKeccak256 therefore reveal successfully
// against this package.
package commitment

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

var ErrInvalidCommitment = errors.New("invalid commit")

// Digest computes the commitment for candidate, secret and participant.
func Digest(candidate common.Address, secret Secret, participant common.Address) common.Hash {
	return keccak256(candidate.Bytes(), secret[:], participant.Bytes())
}

// Verify recomputes the digest and compares it with hash.
func Verify(hash common.Hash, candidate common.Address, secret Secret, participant common.Address) error {
	if Digest(candidate, secret, participant) != hash {
		return ErrInvalidCommitment
	}
	return nil
}

func keccak256(data ...[]byte) common.Hash {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return common.BytesToHash(d.Sum(nil))
}
