// Package certificatetest provides signed certificates of a local committee for tests.
package certificatetest

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/narwhal"
	"github.com/iykyk-syn/narwhal/crypto/ed25519"
	"github.com/iykyk-syn/narwhal/crypto/local"
	"github.com/iykyk-syn/narwhal/dag/certificate"
	"github.com/iykyk-syn/narwhal/quorum"
)

const DefaultStake = 1000

// Committee is a set of local signers forming the includers set.
type Committee struct {
	Signers   []*local.Signer
	Includers *quorum.Includers
}

// NewCommittee generates a committee of the given size with equal stakes.
func NewCommittee(t testing.TB, size int) *Committee {
	signers := make([]*local.Signer, size)
	incls := make([]*quorum.Includer, size)
	for i := range size {
		pub, priv, err := ed25519.GenKeys()
		require.NoError(t, err)

		signers[i], err = local.NewSigner(priv)
		require.NoError(t, err)
		incls[i] = quorum.NewIncluder(pub, DefaultStake)
	}

	return &Committee{
		Signers:   signers,
		Includers: quorum.NewIncludersSet(incls),
	}
}

// Address returns the Address of the i-th signer.
func (c *Committee) Address(i int) narwhal.Address {
	return c.Signers[i].PubKey().Address()
}

// Certificate produces a certificate of the i-th signer signed by the given number of signers.
func (c *Committee) Certificate(
	t testing.TB,
	round uint64,
	author int,
	signers int,
	parents ...narwhal.CertificateID,
) *certificate.BatchCertificate {
	cert, err := certificate.New(round, c.Address(author), []narwhal.TransmissionID{RandBatchID()}, parents)
	require.NoError(t, err)

	for _, signer := range c.Signers[:signers] {
		err = cert.Sign(signer)
		require.NoError(t, err)
	}
	return cert
}

// RandBatchID generates a random batch TransmissionID.
func RandBatchID() narwhal.TransmissionID {
	var id narwhal.BatchID
	rand.Read(id[:]) //nolint: errcheck
	return id.TransmissionID()
}
