package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	p2phost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/iykyk-syn/narwhal/bapl"
	"github.com/iykyk-syn/narwhal/cmd/narwhal-poc/bootstrap"
	"github.com/iykyk-syn/narwhal/crypto/local"
	"github.com/iykyk-syn/narwhal/dag"
	"github.com/iykyk-syn/narwhal/dag/certificate"
	"github.com/iykyk-syn/narwhal/gossip"
)

var (
	listen        string
	peers         string
	bootstrapper  string
	kickoffWait   time.Duration
	networkName   string
	maxGCRounds   uint64
	fetchTimeout  time.Duration
	index         int
	committeeSize int
	roundTime     time.Duration
	batchSize     int
)

func init() {
	flag.StringVar(&listen, "listen", "/ip4/0.0.0.0/udp/10000/quic-v1",
		"Comma separated multiaddrs to listen on",
	)
	flag.StringVar(&peers, "peers", "",
		"Comma separated p2p multiaddrs of static peers",
	)
	flag.StringVar(&bootstrapper, "bootstrapper", "",
		"Specifies network bootstrapper multiaddr",
	)
	flag.DurationVar(&kickoffWait, "kickoff-timeout", time.Minute,
		"Timeout awaiting the whole committee to connect before proposing",
	)
	flag.StringVar(&networkName, "network", "poc", "Network name the committee is derived from")
	flag.Uint64Var(&maxGCRounds, "gc-rounds", 50,
		"Rounds kept in the DAG behind the last committed round",
	)
	flag.DurationVar(&fetchTimeout, "fetch-timeout", time.Second*5,
		"Timeout for fetching and serving a single batch",
	)
	flag.IntVar(&index, "index", 0, "Index of the node key within the committee")
	flag.IntVar(&committeeSize, "committee-size", 4, "Number of includers in the committee")
	flag.DurationVar(&roundTime, "round-time", time.Second, "Round production time")
	flag.IntVar(&batchSize, "batch-size", 2000*125,
		"Batch size to be produced every round (bytes)",
	)
}

func main() {
	flag.Parse()
	slog.SetLogLoggerLevel(slog.LevelDebug)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := run(ctx)
	if err != nil {
		fmt.Println(err)
		defer os.Exit(1)
		return
	}
}

func run(ctx context.Context) error {
	comm, err := newCommittee(networkName, committeeSize)
	if err != nil {
		return err
	}
	if batchSize <= 0 || batchSize > bapl.MaxBatchSize {
		return fmt.Errorf("batch size %d is out of (0, %d]", batchSize, bapl.MaxBatchSize)
	}
	if index < 0 || index >= committeeSize {
		return fmt.Errorf("index %d is out of committee of %d", index, committeeSize)
	}

	p2pKey, err := comm.p2pKey(index)
	if err != nil {
		return err
	}

	listenMAddrs, err := parseMultiaddrs(listen)
	if err != nil {
		return fmt.Errorf("wrong listen multiaddr: %w", err)
	}

	host, err := libp2p.New(
		libp2p.Identity(p2pKey),
		libp2p.ListenAddrs(listenMAddrs...),
		libp2p.ResourceManager(&network.NullResourceManager{}),
	)
	if err != nil {
		return err
	}
	defer host.Close()

	addrs, err := peer.AddrInfoToP2pAddrs(p2phost.InfoFromHost(host))
	if err != nil {
		return err
	}

	fmt.Println("The p2p host is listening on:")
	for _, addr := range addrs {
		fmt.Println("* ", addr.String())
	}
	fmt.Println()

	pSub, err := pubsub.NewFloodSub(ctx, host)
	if err != nil {
		return err
	}

	peerMAddrs, err := parseMultiaddrs(peers)
	if err != nil {
		return fmt.Errorf("wrong peer multiaddr: %w", err)
	}
	connectPeers(ctx, host, peerMAddrs)

	bootstrapSvc := bootstrap.NewService(host)
	bootstrapSvc.Serve()
	defer bootstrapSvc.Stop()
	if bootstrapper != "" {
		maddr, err := multiaddr.NewMultiaddr(bootstrapper)
		if err != nil {
			return fmt.Errorf("wrong bootstrapper multiaddr: %w", err)
		}

		addrInfo, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			return err
		}

		err = bootstrapSvc.Bootstrap(ctx, *addrInfo)
		if err != nil {
			return err
		}
	}

	pool := bapl.NewMemPool()
	defer pool.Close()
	fetchPool := bapl.NewFetchPool(pool, host, fetchTimeout)
	fetchPool.Start()
	defer fetchPool.Stop()

	keeper := dag.NewKeeper(dag.New[*certificate.BatchCertificate]())
	defer keeper.Stop(context.Background()) //nolint: errcheck

	verifier := dag.NewVerifier(comm.includers)
	gsp := gossip.New(networkName, host.ID(), pSub, verifier, keeper, fetchPool)
	err = gsp.Start()
	if err != nil {
		return err
	}
	defer gsp.Stop(ctx) //nolint: errcheck

	signers := make([]*local.Signer, len(comm.keys))
	for i, key := range comm.keys {
		signers[i], err = local.NewSigner(key)
		if err != nil {
			return err
		}
	}

	kickoffCtx, cancel := context.WithTimeout(ctx, kickoffWait)
	defer cancel()
	err = bootstrapSvc.AwaitPeers(kickoffCtx, committeeSize-1)
	if err != nil {
		return err
	}

	ord := newOrderer(keeper, fetchPool, comm.includers, maxGCRounds, fetchTimeout)
	go ord.run(ctx, roundTime/2)

	prop := newProposer(comm.address(index), signers, gsp, keeper, fetchPool, comm.includers, batchSize)
	prop.run(ctx, roundTime)
	return nil
}

func parseMultiaddrs(s string) ([]multiaddr.Multiaddr, error) {
	if s == "" {
		return nil, nil
	}

	var maddrs []multiaddr.Multiaddr
	for _, addr := range strings.Split(s, ",") {
		maddr, err := multiaddr.NewMultiaddr(strings.TrimSpace(addr))
		if err != nil {
			return nil, err
		}
		maddrs = append(maddrs, maddr)
	}
	return maddrs, nil
}

func connectPeers(ctx context.Context, host p2phost.Host, maddrs []multiaddr.Multiaddr) {
	log := slog.With("module", "connector")
	for _, maddr := range maddrs {
		addrInfo, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			log.ErrorContext(ctx, "parsing peer", "addr", maddr, "err", err)
			continue
		}

		go func() {
			err := host.Connect(ctx, *addrInfo)
			if err != nil {
				log.ErrorContext(ctx, "connecting to peer", "peer", addrInfo.ID, "err", err)
				return
			}
			log.DebugContext(ctx, "connected", "peer", addrInfo.ID)
		}()
	}
}
