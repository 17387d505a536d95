package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	xmaps "golang.org/x/exp/maps"

	"github.com/iykyk-syn/narwhal/bapl"
	"github.com/iykyk-syn/narwhal/dag"
	"github.com/iykyk-syn/narwhal/dag/certificate"
	"github.com/iykyk-syn/narwhal/quorum"
)

// orderer commits round r once round r+1 has certificates from every includer.
type orderer struct {
	keeper       *dag.Keeper[*certificate.BatchCertificate]
	pool         bapl.BatchPool
	includers    *quorum.Includers
	maxGCRounds  uint64
	fetchTimeout time.Duration

	next uint64

	log *slog.Logger
}

func newOrderer(
	keeper *dag.Keeper[*certificate.BatchCertificate],
	pool bapl.BatchPool,
	includers *quorum.Includers,
	maxGCRounds uint64,
	fetchTimeout time.Duration,
) *orderer {
	return &orderer{
		keeper:       keeper,
		pool:         pool,
		includers:    includers,
		maxGCRounds:  maxGCRounds,
		fetchTimeout: fetchTimeout,
		next:         1,
		log:          slog.With("module", "orderer"),
	}
}

func (o *orderer) run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				ok, err := o.commitNext(ctx)
				if err != nil {
					o.log.ErrorContext(ctx, "committing", "round", o.next, "err", err)
					return
				}
				if !ok {
					break
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// commitNext commits the next round if it is ready and reports whether it did.
func (o *orderer) commitNext(ctx context.Context) (bool, error) {
	var (
		certs []*certificate.BatchCertificate
		ready bool
	)
	err := o.keeper.View(ctx, func(d *dag.DAG[*certificate.BatchCertificate]) {
		children, _ := d.CertificatesForRound(o.next + 1)
		if len(children) < o.includers.Len() {
			return
		}

		ready = true
		round, _ := d.CertificatesForRound(o.next)
		certs = xmaps.Values(round)
	})
	if err != nil || !ready {
		return false, err
	}

	slices.SortFunc(certs, func(a, b *certificate.BatchCertificate) int {
		return bytes.Compare(a.Author().Bytes(), b.Author().Bytes())
	})

	// every transmission must be local before anything in the round is committed
	for _, cert := range certs {
		err = o.fetchTransmissions(ctx, cert)
		if err != nil {
			o.log.WarnContext(ctx, "fetching transmissions, retrying later", "round", o.next, "cert", cert, "err", err)
			return false, nil
		}
	}

	for _, cert := range certs {
		err = o.keeper.Commit(ctx, cert, o.maxGCRounds)
		if err != nil {
			return false, err
		}

		for _, id := range cert.Transmissions() {
			if err = o.pool.Delete(ctx, id); err != nil {
				o.log.WarnContext(ctx, "deleting transmission", "id", id, "err", err)
			}
		}
	}

	o.log.InfoContext(ctx, "committed round", "round", o.next, "certificates", len(certs))
	o.next++
	return true, nil
}

// fetchTransmissions makes sure the transmissions of the certificate are available locally.
func (o *orderer) fetchTransmissions(ctx context.Context, cert *certificate.BatchCertificate) error {
	ctx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	defer cancel()

	var errs []error
	for _, id := range cert.Transmissions() {
		_, err := o.pool.Pull(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetching %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
