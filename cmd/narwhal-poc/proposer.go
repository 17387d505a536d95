package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	xmaps "golang.org/x/exp/maps"

	"github.com/iykyk-syn/narwhal"
	"github.com/iykyk-syn/narwhal/bapl"
	"github.com/iykyk-syn/narwhal/crypto/local"
	"github.com/iykyk-syn/narwhal/dag"
	"github.com/iykyk-syn/narwhal/dag/certificate"
	"github.com/iykyk-syn/narwhal/gossip"
	"github.com/iykyk-syn/narwhal/quorum"
)

// proposer produces a batch and its certificate every round.
type proposer struct {
	self      narwhal.Address
	signers   []*local.Signer
	gossip    *gossip.Gossip
	keeper    *dag.Keeper[*certificate.BatchCertificate]
	pool      bapl.BatchPool
	includers *quorum.Includers
	batchSize int

	log *slog.Logger
}

func newProposer(
	self narwhal.Address,
	signers []*local.Signer,
	gsp *gossip.Gossip,
	keeper *dag.Keeper[*certificate.BatchCertificate],
	pool bapl.BatchPool,
	includers *quorum.Includers,
	batchSize int,
) *proposer {
	return &proposer{
		self:      self,
		signers:   signers,
		gossip:    gsp,
		keeper:    keeper,
		pool:      pool,
		includers: includers,
		batchSize: batchSize,
		log:       slog.With("module", "proposer"),
	}
}

func (p *proposer) run(ctx context.Context, roundTime time.Duration) {
	ticker := time.NewTicker(roundTime)
	defer ticker.Stop()

	round := uint64(1)
	for {
		select {
		case <-ticker.C:
			parents, ok, err := p.parents(ctx, round)
			if err != nil {
				p.log.ErrorContext(ctx, "getting parents", "round", round, "err", err)
				return
			}
			if !ok {
				p.log.DebugContext(ctx, "waiting for previous round", "round", round)
				continue
			}

			err = p.propose(ctx, round, parents)
			if err != nil {
				p.log.ErrorContext(ctx, "proposing", "round", round, "err", err)
				continue
			}
			round++
		case <-ctx.Done():
			return
		}
	}
}

// parents returns certificate ids of the previous round once it is full.
func (p *proposer) parents(ctx context.Context, round uint64) ([]narwhal.CertificateID, bool, error) {
	if round == 1 {
		return nil, true, nil
	}

	certs, _, err := p.keeper.CertificatesForRound(ctx, round-1)
	if err != nil {
		return nil, false, err
	}
	if len(certs) < p.includers.Len() {
		return nil, false, nil
	}

	parents := make([]narwhal.CertificateID, 0, len(certs))
	for _, cert := range xmaps.Values(certs) {
		parents = append(parents, cert.ID())
	}
	return parents, true, nil
}

func (p *proposer) propose(ctx context.Context, round uint64, parents []narwhal.CertificateID) error {
	batch := &bapl.Batch{Data: make([]byte, p.batchSize)}
	rand.Read(batch.Data) //nolint: errcheck
	err := p.pool.Push(ctx, batch)
	if err != nil {
		return fmt.Errorf("pushing batch: %w", err)
	}

	cert, err := certificate.New(round, p.self, []narwhal.TransmissionID{batch.ID()}, parents)
	if err != nil {
		return err
	}
	// every committee key is local, so the certificate gets the full quorum right away
	for _, signer := range p.signers {
		if err = cert.Sign(signer); err != nil {
			return err
		}
	}

	err = p.gossip.Publish(ctx, cert)
	if err != nil {
		return err
	}

	p.log.DebugContext(ctx, "proposed", "round", round, "cert", cert, "parents", len(parents))
	return nil
}
