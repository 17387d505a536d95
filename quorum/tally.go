package quorum

import (
	"errors"
	"fmt"

	"github.com/iykyk-syn/narwhal"
	"github.com/iykyk-syn/narwhal/crypto"
)

var (
	// ErrUnknownSigner is returned when a signature comes from outside of the Includers set.
	ErrUnknownSigner = errors.New("the signer is not a part of includers set")
	// ErrDuplicateSignature is returned when the same signer signed more than once.
	ErrDuplicateSignature = errors.New("duplicate signature from the signer")
)

// Tally sums the stake behind the given signatures.
// It does not verify signatures cryptographically, that is a caller's concern.
func (incl *Includers) Tally(signatures []crypto.Signature) (int64, error) {
	seen := make(map[narwhal.Address]struct{}, len(signatures))

	var stake int64
	for _, s := range signatures {
		includer := incl.GetByPubKey(s.Signer)
		if includer == nil {
			return 0, fmt.Errorf("%w: %X", ErrUnknownSigner, s.Signer)
		}

		addr := includer.PubKey.Address()
		if _, ok := seen[addr]; ok {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateSignature, addr)
		}
		seen[addr] = struct{}{}

		stake = safeAddClip(stake, includer.Stake)
		if stake > MaxStake {
			panic(fmt.Sprintf(
				"Total stake exceeds MaxStake: %v; got: %v",
				MaxStake,
				stake))
		}
	}
	return stake, nil
}

// HasQuorum reports whether the given signatures carry enough stake.
func (incl *Includers) HasQuorum(signatures []crypto.Signature) (bool, error) {
	stake, err := incl.Tally(signatures)
	if err != nil {
		return false, err
	}
	return stake >= incl.StakeRequired(), nil
}
