package bapl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iykyk-syn/narwhal"
)

var ErrBatchDeleted = errors.New("batch deleted")

type MemPool struct {
	batchesMu   sync.Mutex
	batches     map[narwhal.TransmissionID]batchEntry
	batchesSubs map[narwhal.TransmissionID]map[chan *Batch]struct{}

	closeOnce sync.Once
	closeCh   chan struct{}
}

type batchEntry struct {
	*Batch
	time time.Time
}

func NewMemPool() *MemPool {
	pool := &MemPool{
		batches:     make(map[narwhal.TransmissionID]batchEntry),
		batchesSubs: make(map[narwhal.TransmissionID]map[chan *Batch]struct{}),
		closeCh:     make(chan struct{}),
	}
	go pool.gc()
	return pool
}

func (p *MemPool) Close() {
	p.closeOnce.Do(func() { close(p.closeCh) })
}

func (p *MemPool) Size(context.Context) (int, error) {
	p.batchesMu.Lock()
	defer p.batchesMu.Unlock()
	return len(p.batches), nil
}

func (p *MemPool) Push(_ context.Context, batch *Batch) error {
	p.batchesMu.Lock()
	defer p.batchesMu.Unlock()

	id := batch.ID()
	p.batches[id] = batchEntry{Batch: batch, time: time.Now()}

	for sub := range p.batchesSubs[id] {
		sub <- batch // subs are always buffered, so this won't block
	}
	delete(p.batchesSubs, id)
	return nil
}

func (p *MemPool) Pull(ctx context.Context, id narwhal.TransmissionID) (*Batch, error) {
	p.batchesMu.Lock()
	r, ok := p.batches[id]
	if ok {
		p.batchesMu.Unlock()
		return r.Batch, nil
	}

	subs, ok := p.batchesSubs[id]
	if !ok {
		subs = make(map[chan *Batch]struct{})
		p.batchesSubs[id] = subs
	}

	sub := make(chan *Batch, 1)
	subs[sub] = struct{}{}
	p.batchesMu.Unlock()

	select {
	case resp, ok := <-sub:
		if !ok {
			return nil, ErrBatchDeleted
		}
		return resp, nil
	case <-ctx.Done():
		// no need to keep the request, if the caller has canceled
		p.batchesMu.Lock()
		delete(subs, sub)
		if len(p.batchesSubs[id]) == 0 {
			delete(p.batchesSubs, id)
		}
		p.batchesMu.Unlock()
		return nil, ctx.Err()
	}
}

func (p *MemPool) Has(_ context.Context, id narwhal.TransmissionID) (bool, error) {
	p.batchesMu.Lock()
	defer p.batchesMu.Unlock()
	_, ok := p.batches[id]
	return ok, nil
}

func (p *MemPool) Delete(_ context.Context, id narwhal.TransmissionID) error {
	p.batchesMu.Lock()
	defer p.batchesMu.Unlock()
	p.delete(id)
	return nil
}

// delete must be called with batchesMu held.
func (p *MemPool) delete(id narwhal.TransmissionID) {
	delete(p.batches, id)
	for sub := range p.batchesSubs[id] {
		close(sub)
	}
	delete(p.batchesSubs, id)
}

var (
	gcTime     = time.Second * 10
	staleAfter = time.Minute
)

// gc periodically cleans up stale batches
func (p *MemPool) gc() {
	ticker := time.NewTicker(gcTime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			p.batchesMu.Lock()
			for id, b := range p.batches {
				if b.time.Add(staleAfter).Before(now) {
					p.delete(id)
				}
			}
			p.batchesMu.Unlock()
		case <-p.closeCh:
			return
		}
	}
}
