// Package pending tracks transmissions being fetched from the network
// together with the peers known to hold them.
package pending

import (
	"maps"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Pending maps pending transmission ids to the peers that have the transmission.
//
// Every operation is atomic on its own, but they do not compose atomically,
// e.g. Contains followed by Insert may interleave with other callers.
// Fetching tolerates that, as a duplicate fetch is wasteful, not unsafe.
//
// Pending is safe for concurrent use and must be shared by pointer.
type Pending[T comparable] struct {
	pendingMu sync.RWMutex
	pending   map[T]map[peer.ID]struct{}
}

// New instantiates an empty [Pending].
func New[T comparable]() *Pending[T] {
	return &Pending[T]{pending: make(map[T]map[peer.ID]struct{})}
}

// IsEmpty reports whether nothing is pending.
func (p *Pending[T]) IsEmpty() bool {
	return p.Len() == 0
}

// Len returns the number of pending items.
func (p *Pending[T]) Len() int {
	p.pendingMu.RLock()
	defer p.pendingMu.RUnlock()
	return len(p.pending)
}

// Contains reports whether the item is pending.
func (p *Pending[T]) Contains(item T) bool {
	p.pendingMu.RLock()
	defer p.pendingMu.RUnlock()
	_, ok := p.pending[item]
	return ok
}

// ContainsPeer reports whether the item is pending for the given peer.
func (p *Pending[T]) ContainsPeer(item T, id peer.ID) bool {
	p.pendingMu.RLock()
	defer p.pendingMu.RUnlock()
	_, ok := p.pending[item][id]
	return ok
}

// Get returns a copy of the peers having the item.
func (p *Pending[T]) Get(item T) (map[peer.ID]struct{}, bool) {
	p.pendingMu.RLock()
	defer p.pendingMu.RUnlock()
	peers, ok := p.pending[item]
	if !ok {
		return nil, false
	}
	return maps.Clone(peers), true
}

// Insert records the peer as having the item.
// Inserting the same pair again is a no-op.
func (p *Pending[T]) Insert(item T, id peer.ID) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	peers, ok := p.pending[item]
	if !ok {
		peers = make(map[peer.ID]struct{})
		p.pending[item] = peers
	}
	peers[id] = struct{}{}
}

// Remove removes the item with all its peers.
// It reports whether the item was pending.
func (p *Pending[T]) Remove(item T) bool {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	_, ok := p.pending[item]
	delete(p.pending, item)
	return ok
}
