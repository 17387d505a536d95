// Package gossip disseminates batch certificates over libp2p pubsub
// and feeds the valid ones into the local DAG.
package gossip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/iykyk-syn/narwhal"
	"github.com/iykyk-syn/narwhal/dag"
	"github.com/iykyk-syn/narwhal/dag/certificate"
)

const validatorTimeout = time.Second

// Announcer learns which peer can serve the transmission.
type Announcer interface {
	Announce(narwhal.TransmissionID, peer.ID)
}

// TopicName returns the pubsub topic certificates of the network are gossiped on.
func TopicName(network string) string {
	return "/narwhal/certificates/" + network
}

type Gossip struct {
	topicName string

	self   peer.ID
	pubsub *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription

	verifier  *dag.Verifier
	keeper    *dag.Keeper[*certificate.BatchCertificate]
	announcer Announcer

	log *slog.Logger
}

// New instantiates a new certificate [Gossip] for the given network.
func New(
	network string,
	self peer.ID,
	ps *pubsub.PubSub,
	verifier *dag.Verifier,
	keeper *dag.Keeper[*certificate.BatchCertificate],
	announcer Announcer,
) *Gossip {
	return &Gossip{
		topicName: TopicName(network),
		self:      self,
		pubsub:    ps,
		verifier:  verifier,
		keeper:    keeper,
		announcer: announcer,
		log:       slog.With("module", "gossip"),
	}
}

func (g *Gossip) Start() (err error) {
	err = g.pubsub.RegisterTopicValidator(
		g.topicName,
		g.validate,
		pubsub.WithValidatorTimeout(validatorTimeout),
	)
	if err != nil {
		return err
	}

	g.topic, err = g.pubsub.Join(g.topicName)
	if err != nil {
		return err
	}

	// pubsub forces us to create at least one subscription
	g.sub, err = g.topic.Subscribe()
	if err != nil {
		return err
	}
	go func() {
		for {
			_, err := g.sub.Next(context.Background())
			if err != nil {
				return
			}
		}
	}()
	return nil
}

func (g *Gossip) Stop(context.Context) (err error) {
	g.sub.Cancel()
	err = errors.Join(err, g.topic.Close())
	err = errors.Join(err, g.pubsub.UnregisterTopicValidator(g.topicName))
	return err
}

// Publish gossips the certificate to the network.
// The local validator processes it first, so it lands in the local DAG as well.
func (g *Gossip) Publish(ctx context.Context, cert *certificate.BatchCertificate) error {
	data, err := cert.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshalling certificate(%s): %w", cert, err)
	}

	err = g.topic.Publish(ctx, data)
	if err != nil {
		return fmt.Errorf("publishing certificate(%s): %w", cert, err)
	}
	return nil
}

// validate processes a gossiped certificate and reports its validity status
func (g *Gossip) validate(ctx context.Context, from peer.ID, msg *pubsub.Message) (res pubsub.ValidationResult) {
	defer func() {
		// recover from potential panics caused by network gossips
		err := recover()
		if err != nil {
			g.log.ErrorContext(ctx, "validate gossip panic", "err", err)
			res = pubsub.ValidationReject
		}
	}()

	cert, err := certificate.Unmarshal(msg.Data)
	if err != nil {
		g.log.ErrorContext(ctx, "unmarshalling certificate", "peer", from, "err", err)
		return pubsub.ValidationReject
	}

	err = g.verifier.Verify(cert)
	if err != nil {
		g.log.ErrorContext(ctx, "verifying certificate", "peer", from, "err", err)
		return pubsub.ValidationReject
	}

	inserted, err := g.keeper.InsertUncommitted(ctx, cert)
	if err != nil {
		g.log.WarnContext(ctx, "inserting certificate", "cert", cert, "err", err)
		return pubsub.ValidationIgnore
	}
	if !inserted {
		g.log.DebugContext(ctx, "ignoring committed certificate", "cert", cert, "author", cert.Author())
		return pubsub.ValidationIgnore
	}

	// the publisher holds the transmissions, while the relaying peer may not
	origin := msg.GetFrom()
	if origin == "" {
		origin = from
	}
	if origin != g.self {
		for _, id := range cert.Transmissions() {
			g.announcer.Announce(id, origin)
		}
	}

	g.log.DebugContext(ctx, "inserted",
		"round", cert.Round(),
		"author", cert.Author(),
		"transmissions", len(cert.Transmissions()),
	)
	return pubsub.ValidationAccept
}
