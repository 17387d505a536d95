package main

import (
	"crypto/sha256"
	"fmt"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"

	"github.com/iykyk-syn/narwhal"
	"github.com/iykyk-syn/narwhal/crypto/ed25519"
	"github.com/iykyk-syn/narwhal/quorum"
)

const includerStake = 1000

// committee is deterministically derived out of the network name,
// so every node knows every includer without any bootstrapping.
type committee struct {
	keys      []ed25519.PrivateKey
	includers *quorum.Includers
}

func newCommittee(network string, size int) (*committee, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid committee size %d", size)
	}

	keys := make([]ed25519.PrivateKey, size)
	incls := make([]*quorum.Includer, size)
	for i := range size {
		seed := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", network, i)))
		key, err := ed25519.PrivKeyFromSeed(seed[:])
		if err != nil {
			return nil, err
		}

		keys[i] = key
		incls[i] = quorum.NewIncluder(key.PubKey(), includerStake)
	}

	includers := quorum.NewIncludersSet(incls)
	if err := includers.Validate(); err != nil {
		return nil, err
	}
	return &committee{keys: keys, includers: includers}, nil
}

func (c *committee) address(i int) narwhal.Address {
	return c.keys[i].PubKey().Address()
}

// p2pKey converts the i-th key into the libp2p identity.
func (c *committee) p2pKey(i int) (libp2pcrypto.PrivKey, error) {
	return libp2pcrypto.UnmarshalEd25519PrivateKey(c.keys[i])
}
