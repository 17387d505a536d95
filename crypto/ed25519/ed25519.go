package ed25519

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"

	"github.com/iykyk-syn/narwhal"
	ncrypto "github.com/iykyk-syn/narwhal/crypto"
)

const (
	KeyType = "ed25519"
)

var errInvalidKeyLength = errors.New("invalid key length")

type PublicKey []byte

func (pubKey PublicKey) VerifySignature(msg []byte, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize || len(pubKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), msg, sig)
}

func (pubKey PublicKey) Equals(other []byte) bool {
	if len(other) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.PublicKey(pubKey).Equal(ed25519.PublicKey(other))
}

func (pubKey PublicKey) Bytes() []byte {
	return pubKey
}

// Address derives the validator Address out of the PublicKey.
func (pubKey PublicKey) Address() narwhal.Address {
	var addr narwhal.Address
	copy(addr[:], pubKey)
	return addr
}

func (pubKey PublicKey) Type() string {
	return KeyType
}

type PrivateKey []byte

func (privKey PrivateKey) Sign(msg []byte) ([]byte, error) {
	// ed25519 signs the message itself, so no prehashing
	return ed25519.PrivateKey(privKey).Sign(rand.Reader, msg, crypto.Hash(0))
}

func (privKey PrivateKey) PubKey() ncrypto.PubKey {
	public := ed25519.PrivateKey(privKey).Public().(ed25519.PublicKey)
	key := make(PublicKey, ed25519.PublicKeySize)
	copy(key, public)
	return key
}

func (privKey PrivateKey) Equals(other []byte) bool {
	if len(other) != ed25519.PrivateKeySize {
		return false
	}
	return ed25519.PrivateKey(privKey).Equal(ed25519.PrivateKey(other))
}

func (privKey PrivateKey) Type() string {
	return KeyType
}

func GenKeys() (PublicKey, PrivateKey, error) {
	return GenKeysFrom(rand.Reader)
}

// GenKeysFrom generates keys out of the given randomness source.
// Deterministic sources yield deterministic keys.
func GenKeysFrom(r io.Reader) (PublicKey, PrivateKey, error) {
	pubK, privK, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, nil, err
	}

	public := make(PublicKey, ed25519.PublicKeySize)
	copy(public, pubK)
	private := make(PrivateKey, ed25519.PrivateKeySize)
	copy(private, privK)

	return public, private, nil
}

// PrivKeyFromSeed derives the PrivateKey from the 32 bytes seed.
func PrivKeyFromSeed(seed []byte) (PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errInvalidKeyLength
	}
	return PrivateKey(ed25519.NewKeyFromSeed(seed)), nil
}

func BytesToPubKey(b []byte) (PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, errInvalidKeyLength
	}

	key := make(PublicKey, ed25519.PublicKeySize)
	copy(key, b)
	return key, nil
}
