package dag_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/narwhal/crypto"
	"github.com/iykyk-syn/narwhal/dag"
	"github.com/iykyk-syn/narwhal/dag/certificate/certificatetest"
	"github.com/iykyk-syn/narwhal/quorum"
)

func TestVerifier(t *testing.T) {
	committee := certificatetest.NewCommittee(t, 4)
	verifier := dag.NewVerifier(committee.Includers)

	// 3 out of 4 equal stakes is above 2/3
	cert := committee.Certificate(t, 1, 0, 3)
	err := verifier.Verify(cert)
	require.NoError(t, err)

	cert = committee.Certificate(t, 1, 0, 2)
	err = verifier.Verify(cert)
	assert.ErrorIs(t, err, dag.ErrInsufficientStake)

	outsiders := certificatetest.NewCommittee(t, 1)
	cert = outsiders.Certificate(t, 1, 0, 1)
	err = verifier.Verify(cert)
	assert.ErrorIs(t, err, dag.ErrUnknownAuthor)
}

func TestVerifierSignatures(t *testing.T) {
	committee := certificatetest.NewCommittee(t, 4)
	verifier := dag.NewVerifier(committee.Includers)

	t.Run("unknown signer", func(t *testing.T) {
		outsiders := certificatetest.NewCommittee(t, 1)
		cert := committee.Certificate(t, 1, 0, 3)
		require.NoError(t, cert.Sign(outsiders.Signers[0]))

		err := verifier.Verify(cert)
		assert.ErrorIs(t, err, quorum.ErrUnknownSigner)
	})

	t.Run("duplicate signer", func(t *testing.T) {
		cert := committee.Certificate(t, 1, 0, 2)
		require.NoError(t, cert.Sign(committee.Signers[0]))

		err := verifier.Verify(cert)
		assert.ErrorIs(t, err, quorum.ErrDuplicateSignature)
	})

	t.Run("forged signature", func(t *testing.T) {
		cert := committee.Certificate(t, 1, 0, 2)
		require.NoError(t, cert.Sign(forgingSigner{committee.Signers[3]}))

		err := verifier.Verify(cert)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, dag.ErrInsufficientStake)
	})
}

// forgingSigner signs over anything but the given message.
type forgingSigner struct {
	crypto.Signer
}

func (s forgingSigner) Sign([]byte) (crypto.Signature, error) {
	return s.Signer.Sign([]byte("forged"))
}
