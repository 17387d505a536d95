// Package narwhal defines the canonical types shared by the DAG-based mempool:
//   - Certificates indexed by round and author, stored in the certificate DAG
//   - Transmissions (batches, solutions) tracked while being fetched from peers
//   - Identities of validators authoring certificates
//
// The package holds no implementation. Certificate construction,
// verification, ordering and networking are layered on top of these types.
package narwhal

import (
	"encoding/hex"
	"fmt"
)

// AddressSize is the size of an Address in bytes.
const AddressSize = 32

// Address identifies a validator authoring certificates.
// It is the raw ed25519 public key of the validator.
type Address [AddressSize]byte

// AddressFromBytes converts the given bytes into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressSize {
		return addr, fmt.Errorf("invalid address length: %d", len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// Bytes returns the Address as a byte slice.
func (a Address) Bytes() []byte {
	return a[:]
}

// String returns hex representation of the Address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// CertificateIDSize is the size of a CertificateID in bytes.
const CertificateIDSize = 32

// CertificateID is a content derived identifier of a Certificate.
type CertificateID [CertificateIDSize]byte

// CertificateIDFromBytes converts the given bytes into a CertificateID.
func CertificateIDFromBytes(b []byte) (CertificateID, error) {
	var id CertificateID
	if len(b) != CertificateIDSize {
		return id, fmt.Errorf("invalid certificate id length: %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Bytes returns the CertificateID as a byte slice.
func (id CertificateID) Bytes() []byte {
	return id[:]
}

// String returns hex representation of the CertificateID.
func (id CertificateID) String() string {
	return fmt.Sprintf("%X", id[:])
}

// Certificate is an attested unit of data produced once per author per round.
// It is immutable once produced, and implementations must be safe to share by value.
type Certificate interface {
	// Round returns the round the Certificate was produced for.
	Round() uint64
	// Author returns the identity of the validator that produced the Certificate.
	Author() Address
	// ID returns the unique identifier of the Certificate.
	ID() CertificateID
}
