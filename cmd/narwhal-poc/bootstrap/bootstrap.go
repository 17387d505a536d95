// Package bootstrap exchanges peer lists, so a node knowing a single peer reaches the whole network.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

var bootstrapProtocol protocol.ID = "/narwhal/bootstrap/v0.0.1"

const pollInterval = time.Millisecond * 100

type Service struct {
	host host.Host

	log *slog.Logger
}

func NewService(host host.Host) *Service {
	return &Service{
		host: host,
		log:  slog.With("module", "bootstrap-svc"),
	}
}

// Serve starts serving peers known to the host.
func (serv *Service) Serve() {
	serv.host.SetStreamHandler(bootstrapProtocol, func(stream network.Stream) {
		if err := serv.serve(stream); err != nil {
			serv.log.Error("serving peers", "peer", stream.Conn().RemotePeer(), "err", err)
		}
	})
}

func (serv *Service) Stop() {
	serv.host.RemoveStreamHandler(bootstrapProtocol)
}

// Bootstrap connects to bootstrapper and then to every peer it knows.
func (serv *Service) Bootstrap(ctx context.Context, bootstrapper peer.AddrInfo) error {
	err := serv.host.Connect(ctx, bootstrapper)
	if err != nil {
		return fmt.Errorf("connecting to bootstrapper: %w", err)
	}
	serv.log.DebugContext(ctx, "connected to bootstrapper", "peer", bootstrapper.ID)

	s, err := serv.host.NewStream(ctx, bootstrapper.ID, bootstrapProtocol)
	if err != nil {
		return err
	}
	defer s.Close()

	bytes, err := io.ReadAll(s)
	if err != nil {
		return err
	}

	var peers []peer.AddrInfo
	err = json.Unmarshal(bytes, &peers)
	if err != nil {
		return err
	}

	for _, p := range peers {
		if p.ID == serv.host.ID() {
			continue
		}

		go func() {
			err := serv.host.Connect(ctx, p)
			if err != nil {
				serv.log.ErrorContext(ctx, "connecting to peer", "peer", p.ID, "err", err)
			}
		}()
	}
	return nil
}

// AwaitPeers blocks until the host is connected to at least the given number of peers.
func (serv *Service) AwaitPeers(ctx context.Context, count int) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		peers := len(serv.host.Network().Peers())
		if peers >= count {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("awaiting %d peers, got %d: %w", count, peers, ctx.Err())
		}
	}
}

func (serv *Service) serve(stream network.Stream) error {
	store := serv.host.Peerstore()
	peerIDs := serv.host.Network().Peers()

	peers := make([]peer.AddrInfo, len(peerIDs))
	for i, p := range peerIDs {
		peers[i] = store.PeerInfo(p)
	}

	bytes, err := json.Marshal(peers)
	if err != nil {
		stream.Reset() //nolint: errcheck
		return err
	}

	_, err = stream.Write(bytes)
	if err != nil {
		stream.Reset() //nolint: errcheck
		return err
	}
	return stream.Close()
}
