package local

import (
	"errors"

	"github.com/iykyk-syn/narwhal/crypto"
	"github.com/iykyk-syn/narwhal/crypto/ed25519"
)

var errInvalidSignature = errors.New("signature is invalid")

// Signer implements [crypto.Signer] over a locally held private key.
type Signer struct {
	privKey crypto.PrivKey
	pubKey  crypto.PubKey
}

func NewSigner(privKey crypto.PrivKey) (*Signer, error) {
	pubKey := privKey.PubKey()
	if pubKey == nil || len(pubKey.Bytes()) == 0 {
		return nil, errors.New("invalid pubKey received")
	}

	return &Signer{
		privKey: privKey,
		pubKey:  pubKey,
	}, nil
}

func (s *Signer) ID() []byte {
	return s.pubKey.Bytes()
}

// PubKey returns the public key of the Signer.
func (s *Signer) PubKey() crypto.PubKey {
	return s.pubKey
}

func (s *Signer) Sign(msg []byte) (crypto.Signature, error) {
	signature, err := s.privKey.Sign(msg)
	if err != nil {
		return crypto.Signature{}, err
	}

	return crypto.Signature{
		Signer: s.ID(),
		Body:   signature,
	}, nil
}

// Verify verifies a signature of any signer, not only the local one.
func (s *Signer) Verify(msg []byte, signature crypto.Signature) error {
	pubK := ed25519.PublicKey(signature.Signer)
	ok := pubK.VerifySignature(msg, signature.Body)
	if !ok {
		return errInvalidSignature
	}
	return nil
}
