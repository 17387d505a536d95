// Package dag maintains the in-memory DAG of certificates indexed by round and author,
// together with the commit and garbage collection rules bounding its growth.
package dag

import (
	"maps"
	"math"
	"slices"

	xmaps "golang.org/x/exp/maps"

	"github.com/iykyk-syn/narwhal"
)

// DAG is the in-memory collection of certificates by round and by author.
//
// It keeps at most one certificate per author per round and prunes the history once
// certificates are committed. DAG is not safe for concurrent use. It is meant to be owned
// by a single writer, see [Keeper].
type DAG[C narwhal.Certificate] struct {
	graph map[uint64]map[narwhal.Address]C
	// the last round that was committed
	lastCommittedRound uint64
	// the last rounds committed per author
	lastCommittedAuthors map[narwhal.Address]uint64
}

// New instantiates an empty [DAG].
func New[C narwhal.Certificate]() *DAG[C] {
	return &DAG[C]{
		graph:                make(map[uint64]map[narwhal.Address]C),
		lastCommittedAuthors: make(map[narwhal.Address]uint64),
	}
}

// Graph returns a copy of the whole DAG.
func (d *DAG[C]) Graph() map[uint64]map[narwhal.Address]C {
	graph := make(map[uint64]map[narwhal.Address]C, len(d.graph))
	for round, certs := range d.graph {
		graph[round] = maps.Clone(certs)
	}
	return graph
}

// Rounds lists all the rounds present in the DAG in ascending order.
func (d *DAG[C]) Rounds() []uint64 {
	rounds := xmaps.Keys(d.graph)
	slices.Sort(rounds)
	return rounds
}

// LastCommittedRound returns the highest round any certificate was committed at.
func (d *DAG[C]) LastCommittedRound() uint64 {
	return d.lastCommittedRound
}

// LastCommittedAuthors returns a copy of the last committed round per author.
func (d *DAG[C]) LastCommittedAuthors() map[narwhal.Address]uint64 {
	return maps.Clone(d.lastCommittedAuthors)
}

// ContainsCertificateInRound reports whether a certificate with the given id exists in the round.
func (d *DAG[C]) ContainsCertificateInRound(round uint64, id narwhal.CertificateID) bool {
	_, ok := d.CertificateForRoundWithID(round, id)
	return ok
}

// CertificateForRoundWithAuthor returns the certificate of the author in the given round.
func (d *DAG[C]) CertificateForRoundWithAuthor(round uint64, author narwhal.Address) (C, bool) {
	cert, ok := d.graph[round][author]
	return cert, ok
}

// CertificateForRoundWithID returns the certificate with the given id in the given round.
func (d *DAG[C]) CertificateForRoundWithID(round uint64, id narwhal.CertificateID) (C, bool) {
	for _, cert := range d.graph[round] {
		if cert.ID() == id {
			return cert, true
		}
	}

	var empty C
	return empty, false
}

// CertificatesForRound returns a copy of all the certificates in the given round by their authors.
func (d *DAG[C]) CertificatesForRound(round uint64) (map[narwhal.Address]C, bool) {
	certs, ok := d.graph[round]
	if !ok {
		return nil, false
	}
	return maps.Clone(certs), true
}

// Insert inserts the certificate into the DAG, replacing the previous certificate
// of the same author in the same round, if any.
// The certificate is expected to be validated beforehand.
func (d *DAG[C]) Insert(cert C) {
	round, author := cert.Round(), cert.Author()

	certs, ok := d.graph[round]
	if !ok {
		certs = make(map[narwhal.Address]C)
		d.graph[round] = certs
	}
	certs[author] = cert
}

// Commit commits the certificate and garbage collects the DAG:
//   - rounds falling out of the maxGCRounds window behind the last committed round are removed;
//   - certificates of the author at or below the committed round are removed.
//
// Committing a certificate below the author's last committed round never lowers it,
// but still triggers garbage collection.
func (d *DAG[C]) Commit(cert C, maxGCRounds uint64) {
	certRound, author := cert.Round(), cert.Author()

	if last, ok := d.lastCommittedAuthors[author]; !ok || certRound > last {
		d.lastCommittedAuthors[author] = certRound
	}
	// the map always has at least the entry above
	d.lastCommittedRound = slices.Max(xmaps.Values(d.lastCommittedAuthors))

	for round := range d.graph {
		if expired(round, maxGCRounds, d.lastCommittedRound) {
			delete(d.graph, round)
		}
	}

	for round, certs := range d.graph {
		if round > certRound {
			continue
		}

		delete(certs, author)
		if len(certs) == 0 {
			delete(d.graph, round)
		}
	}
}

// expired reports whether the round is out of the gc window.
// Overflowing window never expires.
func expired(round, maxGCRounds, lastCommittedRound uint64) bool {
	if round > math.MaxUint64-maxGCRounds {
		return false
	}
	return round+maxGCRounds <= lastCommittedRound
}
