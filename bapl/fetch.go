package bapl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/iykyk-syn/narwhal"
	"github.com/iykyk-syn/narwhal/pending"
)

var defaultProtocolID = protocol.ID("/bapl/fetch/v0.0.1")

const (
	// DefaultServeTimeout bounds how long a served request awaits the Batch locally.
	DefaultServeTimeout = time.Second * 5
	// MaxBatchSize bounds the size of a fetched Batch.
	MaxBatchSize = 4 << 20
)

// ErrNoPeers is returned when a Batch is neither local nor announced by any peer.
var ErrNoPeers = errors.New("no peers to fetch from")

var (
	errUnsupportedKind = errors.New("unsupported transmission kind")
	errHashMismatch    = errors.New("fetched batch hash mismatch")
	errBatchTooLarge   = errors.New("fetched batch is too large")
)

// FetchPool decorates BatchPool with fetching of missing batches from peers that announced them.
type FetchPool struct {
	pool    BatchPool
	host    host.Host
	pending *pending.Pending[narwhal.TransmissionID]

	protocolID   protocol.ID
	serveTimeout time.Duration
	maxBatchSize int64

	log *slog.Logger
}

func NewFetchPool(pool BatchPool, host host.Host, serveTimeout time.Duration) *FetchPool {
	if serveTimeout <= 0 {
		serveTimeout = DefaultServeTimeout
	}
	return &FetchPool{
		pool:         pool,
		host:         host,
		pending:      pending.New[narwhal.TransmissionID](),
		protocolID:   defaultProtocolID,
		serveTimeout: serveTimeout,
		maxBatchSize: MaxBatchSize,
		log:          slog.With("module", "bapl-fetch"),
	}
}

func (p *FetchPool) Start() {
	p.host.SetStreamHandler(p.protocolID, func(stream network.Stream) {
		if err := p.serve(stream); err != nil {
			p.log.Error("serving Batch", "peer", stream.Conn().RemotePeer(), "err", err)
		}
	})
}

func (p *FetchPool) Stop() {
	p.host.RemoveStreamHandler(p.protocolID)
}

// Announce records that the given peer holds the transmission.
func (p *FetchPool) Announce(id narwhal.TransmissionID, from peer.ID) {
	p.pending.Insert(id, from)
}

// Pending reports the number of transmissions awaiting fetch.
func (p *FetchPool) Pending() int {
	return p.pending.Len()
}

func (p *FetchPool) Push(ctx context.Context, batch *Batch) error {
	return p.pool.Push(ctx, batch)
}

// Pull returns the local Batch or fetches it from the peers that announced it.
func (p *FetchPool) Pull(ctx context.Context, id narwhal.TransmissionID) (*Batch, error) {
	batch, err := p.pullLocal(ctx, id)
	if err == nil {
		return batch, nil
	}
	if id.Kind != narwhal.Batch {
		return nil, fmt.Errorf("%w: %s", errUnsupportedKind, id.Kind)
	}

	peers, ok := p.pending.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPeers, id)
	}

	var errs []error
	for from := range peers {
		batch, err := p.fetch(ctx, id, from)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetching from %s: %w", from, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if err = p.pool.Push(ctx, batch); err != nil {
			return nil, fmt.Errorf("pushing fetched Batch: %w", err)
		}
		p.pending.Remove(id)
		p.log.DebugContext(ctx, "fetched", "id", id, "peer", from)
		return batch, nil
	}
	return nil, errors.Join(errs...)
}

// pullLocal gets the Batch from the local pool without waiting for it.
func (p *FetchPool) pullLocal(ctx context.Context, id narwhal.TransmissionID) (*Batch, error) {
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	return p.pool.Pull(ctx, id)
}

func (p *FetchPool) Has(ctx context.Context, id narwhal.TransmissionID) (bool, error) {
	return p.pool.Has(ctx, id)
}

func (p *FetchPool) Delete(ctx context.Context, id narwhal.TransmissionID) error {
	p.pending.Remove(id)
	return p.pool.Delete(ctx, id)
}

func (p *FetchPool) Size(ctx context.Context) (int, error) {
	return p.pool.Size(ctx)
}

func (p *FetchPool) fetch(ctx context.Context, id narwhal.TransmissionID, from peer.ID) (*Batch, error) {
	stream, err := p.host.NewStream(ctx, from, p.protocolID)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	defer stream.Close()

	// set stream deadline from the context deadline.
	// if it is empty, then we assume that it will
	// hang until the server will close the stream by the timeout.
	if dl, ok := ctx.Deadline(); ok {
		if err = stream.SetDeadline(dl); err != nil {
			p.log.WarnContext(ctx, "error setting deadline", "err", err)
		}
	}

	req, err := id.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if _, err = stream.Write(req); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if err = stream.CloseWrite(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(stream, p.maxBatchSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading Batch: %w", err)
	}
	if int64(len(data)) > p.maxBatchSize {
		stream.Reset() //nolint: errcheck
		return nil, fmt.Errorf("%w: over %d bytes", errBatchTooLarge, p.maxBatchSize)
	}

	batch := &Batch{Data: data}
	if batch.ID() != id {
		return nil, fmt.Errorf("%w: got %s", errHashMismatch, batch.ID())
	}
	return batch, nil
}

func (p *FetchPool) serve(stream network.Stream) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.serveTimeout)
	defer cancel()

	if err := stream.SetDeadline(time.Now().Add(p.serveTimeout)); err != nil {
		p.log.Warn("error setting deadline", "err", err)
	}

	req := make([]byte, narwhal.TransmissionIDSize)
	if _, err := io.ReadFull(stream, req); err != nil {
		stream.Reset() //nolint: errcheck
		return fmt.Errorf("reading request: %w", err)
	}

	var id narwhal.TransmissionID
	if err := id.UnmarshalBinary(req); err != nil {
		stream.Reset() //nolint: errcheck
		return err
	}

	batch, err := p.pool.Pull(ctx, id)
	if err != nil {
		// resetting signals the requester we don't have it
		stream.Reset() //nolint: errcheck
		return fmt.Errorf("pulling %s: %w", id, err)
	}

	if _, err = stream.Write(batch.Data); err != nil {
		stream.Reset() //nolint: errcheck
		return fmt.Errorf("writing Batch: %w", err)
	}
	return stream.Close()
}
