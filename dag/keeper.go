package dag

import (
	"context"
	"errors"
	"log/slog"

	"github.com/iykyk-syn/narwhal"
)

const stateOperationsChannelSize = 32

// ErrClosedKeeper signals that Keeper is accessed after being stopped.
var ErrClosedKeeper = errors.New("closed keeper access")

// Keeper owns a [DAG] and serializes every access to it through a single state loop.
// This lets the gossip layer insert and the ordering layer commit from different
// goroutines without the DAG itself being synchronized.
type Keeper[C narwhal.Certificate] struct {
	// the actual state of the Keeper
	dag *DAG[C]

	// channel for operation submission to be executed
	stateOpCh chan *stateOp[C]
	// signalling for graceful shutdown
	closeCh, closedCh chan struct{}

	log *slog.Logger
}

// NewKeeper instantiates a new [Keeper] over the given [DAG].
// This passes full ownership of the [DAG] to [Keeper],
// thus it must not be accessed directly until [Keeper] has been stopped.
func NewKeeper[C narwhal.Certificate](dag *DAG[C]) *Keeper[C] {
	k := &Keeper[C]{
		dag:       dag,
		stateOpCh: make(chan *stateOp[C], stateOperationsChannelSize),
		closeCh:   make(chan struct{}),
		closedCh:  make(chan struct{}),
		log:       slog.With("module", "dag-keeper"),
	}
	go k.stateLoop()
	return k
}

// Stop gracefully stops the [Keeper] allowing early termination through context.
// It ensures all the in-progress state operations are completed before termination.
func (k *Keeper[C]) Stop(ctx context.Context) error {
	select {
	case <-k.closeCh:
		return ErrClosedKeeper
	default:
	}

	close(k.closeCh)
	select {
	case <-k.closedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Insert inserts the certificate into the [DAG].
func (k *Keeper[C]) Insert(ctx context.Context, cert C) error {
	return k.execOp(ctx, newStateOp(func(dag *DAG[C]) {
		dag.Insert(cert)
	}))
}

// InsertUncommitted inserts the certificate unless its author has already committed its round.
// It reports whether the certificate was inserted.
func (k *Keeper[C]) InsertUncommitted(ctx context.Context, cert C) (bool, error) {
	var inserted bool
	err := k.execOp(ctx, newStateOp(func(dag *DAG[C]) {
		if round, ok := dag.lastCommittedAuthors[cert.Author()]; ok && round >= cert.Round() {
			return
		}
		dag.Insert(cert)
		inserted = true
	}))
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// Commit commits the certificate garbage collecting the [DAG] with the given window.
func (k *Keeper[C]) Commit(ctx context.Context, cert C, maxGCRounds uint64) error {
	return k.execOp(ctx, newStateOp(func(dag *DAG[C]) {
		dag.Commit(cert, maxGCRounds)
		k.log.DebugContext(ctx, "committed",
			"round", cert.Round(),
			"author", cert.Author(),
			"last_committed_round", dag.LastCommittedRound(),
		)
	}))
}

// View executes the given function over the [DAG] exclusively.
// The function must not retain the [DAG] or call the Keeper.
func (k *Keeper[C]) View(ctx context.Context, fn func(*DAG[C])) error {
	return k.execOp(ctx, newStateOp(fn))
}

// CertificatesForRound returns the certificates in the given round.
func (k *Keeper[C]) CertificatesForRound(ctx context.Context, round uint64) (map[narwhal.Address]C, bool, error) {
	var (
		certs map[narwhal.Address]C
		ok    bool
	)
	err := k.View(ctx, func(dag *DAG[C]) {
		certs, ok = dag.CertificatesForRound(round)
	})
	if err != nil {
		return nil, false, err
	}
	return certs, ok, nil
}

// ContainsCertificateInRound reports whether a certificate with the given id exists in the round.
func (k *Keeper[C]) ContainsCertificateInRound(ctx context.Context, round uint64, id narwhal.CertificateID) (bool, error) {
	var ok bool
	err := k.View(ctx, func(dag *DAG[C]) {
		ok = dag.ContainsCertificateInRound(round, id)
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// LastCommittedRound returns the last committed round of the [DAG].
func (k *Keeper[C]) LastCommittedRound(ctx context.Context) (uint64, error) {
	var round uint64
	err := k.View(ctx, func(dag *DAG[C]) {
		round = dag.LastCommittedRound()
	})
	if err != nil {
		return 0, err
	}
	return round, nil
}

// execOp submits operation for execution by [stateLoop] and awaits for its completion
// It permits submission until closedCh is closed or context is cancelled, even after closing is
// triggered. This allows some "last-minute" operations to "squeeze in" before [Keeper] fully finishes.
func (k *Keeper[C]) execOp(ctx context.Context, op *stateOp[C]) error {
	select {
	case k.stateOpCh <- op:
	case <-k.closedCh:
		return ErrClosedKeeper
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-op.doneCh:
		return nil
	case <-k.closedCh:
		// the op might have been drained right before closing
		select {
		case <-op.doneCh:
			return nil
		default:
			return ErrClosedKeeper
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stateLoop is an event loop performing state operations on the DAG
// and ensures access to it is single-threaded
func (k *Keeper[C]) stateLoop() {
	defer func() {
		// this mechanism ensures we drain the channel
		// and execute all the pending ops before we fully close
		for {
			select {
			case op := <-k.stateOpCh:
				op.do(k.dag)
			default:
				close(k.closedCh)
				return
			}
		}
	}()

	for {
		select {
		case op := <-k.stateOpCh:
			op.do(k.dag)
		case <-k.closeCh:
			return
		}
	}
}
