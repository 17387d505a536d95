package narwhal

import (
	"errors"
	"fmt"
)

// TransmissionKind distinguishes kinds of fetchable data.
type TransmissionKind uint8

const (
	// Batch is a batch of transactions.
	Batch TransmissionKind = iota + 1
	// Solution is a solution submitted by a prover.
	Solution
)

func (k TransmissionKind) String() string {
	switch k {
	case Batch:
		return "batch"
	case Solution:
		return "solution"
	default:
		return "unknown"
	}
}

// TransmissionHashSize is the size of the hash within TransmissionID.
const TransmissionHashSize = 32

// TransmissionIDSize is the size of the canonical TransmissionID encoding.
const TransmissionIDSize = 1 + TransmissionHashSize

var errInvalidTransmissionID = errors.New("invalid transmission id")

// TransmissionID identifies a unit of fetchable data.
// It is comparable and can be used as a map key.
type TransmissionID struct {
	Kind TransmissionKind
	Hash [TransmissionHashSize]byte
}

// String returns string representation of the TransmissionID.
func (id TransmissionID) String() string {
	return fmt.Sprintf("%s:%X", id.Kind, id.Hash[:])
}

// MarshalBinary serializes TransmissionID into its canonical form.
func (id TransmissionID) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, TransmissionIDSize)
	buf = append(buf, byte(id.Kind))
	buf = append(buf, id.Hash[:]...)
	return buf, nil
}

// UnmarshalBinary deserializes TransmissionID from its canonical form.
func (id *TransmissionID) UnmarshalBinary(data []byte) error {
	if len(data) != TransmissionIDSize {
		return fmt.Errorf("%w: length %d", errInvalidTransmissionID, len(data))
	}

	kind := TransmissionKind(data[0])
	if kind != Batch && kind != Solution {
		return fmt.Errorf("%w: kind %d", errInvalidTransmissionID, data[0])
	}

	id.Kind = kind
	copy(id.Hash[:], data[1:])
	return nil
}

// BatchID is the hash of a batch. It converts into TransmissionID.
type BatchID [TransmissionHashSize]byte

// TransmissionID converts BatchID into its TransmissionID.
func (id BatchID) TransmissionID() TransmissionID {
	return TransmissionID{Kind: Batch, Hash: id}
}

// SolutionID is the commitment of a solution. It converts into TransmissionID.
type SolutionID [TransmissionHashSize]byte

// TransmissionID converts SolutionID into its TransmissionID.
func (id SolutionID) TransmissionID() TransmissionID {
	return TransmissionID{Kind: Solution, Hash: id}
}
