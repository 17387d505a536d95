// Package crypto separates asymmetric cryptography out of certificate handling.
package crypto

import "github.com/iykyk-syn/narwhal"

type PubKey interface {
	VerifySignature([]byte, []byte) bool
	Bytes() []byte
	Address() narwhal.Address
	Equals([]byte) bool
	Type() string
}

type PrivKey interface {
	Sign([]byte) ([]byte, error)
	PubKey() PubKey
	Equals([]byte) bool
	Type() string
}

// Signature is a tuple containing signature body and reference to signing identity.
type Signature struct {
	// Body of the signature.
	Body []byte
	// Signer identity who produced the signature.
	Signer []byte
}

// Signer encapsulates private key management together with the signing scheme.
type Signer interface {
	// ID returns Signer identity like public key
	ID() []byte
	// Sign produces a cryptographic Signature over the given data with internally managed identity.
	Sign([]byte) (Signature, error)
	// Verify performs cryptographic Signature verification of the given data.
	Verify([]byte, Signature) error
}
