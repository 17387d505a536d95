// Package bapl implements rudimentary implementation of BatchPool
package bapl

import (
	"context"
	"crypto/sha256"

	"github.com/iykyk-syn/narwhal"
)

type Batch struct {
	Data []byte
}

// ID returns the TransmissionID of the Batch.
func (b *Batch) ID() narwhal.TransmissionID {
	return narwhal.BatchID(sha256.Sum256(b.Data)).TransmissionID()
}

type BatchPool interface {
	Push(context.Context, *Batch) error
	// Pull blocks until the Batch is available or the context is done.
	// A Batch already in the pool is returned even for a done context.
	Pull(context.Context, narwhal.TransmissionID) (*Batch, error)
	Has(context.Context, narwhal.TransmissionID) (bool, error)
	Delete(context.Context, narwhal.TransmissionID) error
	Size(context.Context) (int, error)
}
