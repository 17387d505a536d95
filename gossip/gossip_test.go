package gossip

import (
	"context"
	"sync"
	"testing"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/narwhal"
	"github.com/iykyk-syn/narwhal/dag"
	"github.com/iykyk-syn/narwhal/dag/certificate"
	"github.com/iykyk-syn/narwhal/dag/certificate/certificatetest"
)

const testNetwork = "test"

func TestGossip(t *testing.T) {
	const nodeCount = 4

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	committee := certificatetest.NewCommittee(t, nodeCount)

	net, err := mocknet.FullMeshLinked(nodeCount)
	require.NoError(t, err)

	nodes := make([]*testNode, nodeCount)
	for i, h := range net.Hosts() {
		nodes[i] = newTestNode(t, h, committee)
	}

	connect(ctx, t, net)
	for _, n := range nodes {
		err := n.gossip.Start()
		require.NoError(t, err)
		t.Cleanup(func() { n.gossip.Stop(ctx) }) //nolint: errcheck
	}
	awaitMesh(t, nodes)

	// 3 signatures out of 4 equal stakes reach the quorum
	cert := committee.Certificate(t, 1, 0, 3)
	err = nodes[0].gossip.Publish(ctx, cert)
	require.NoError(t, err)

	for i, n := range nodes {
		require.Eventually(t, func() bool {
			ok, err := n.keeper.ContainsCertificateInRound(ctx, cert.Round(), cert.ID())
			return err == nil && ok
		}, time.Second*5, time.Millisecond*50, "node %d", i)
	}

	// the publisher already holds the transmissions
	assert.Empty(t, nodes[0].announcer.announced())
	for _, n := range nodes[1:] {
		announced := n.announcer.announced()
		for _, id := range cert.Transmissions() {
			assert.Contains(t, announced, id)
		}
	}
}

func TestGossipAnnouncesPublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	committee := certificatetest.NewCommittee(t, 4)

	// a line of a - b - c, so c only hears from a through b
	net := mocknet.New()
	t.Cleanup(func() { net.Close() })
	hosts := make([]host.Host, 3)
	for i := range hosts {
		h, err := net.GenPeer()
		require.NoError(t, err)
		hosts[i] = h
	}

	nodes := make([]*testNode, len(hosts))
	for i, h := range hosts {
		nodes[i] = newTestNode(t, h, committee)
	}

	for _, pair := range [][2]int{{0, 1}, {1, 2}} {
		a, b := hosts[pair[0]].ID(), hosts[pair[1]].ID()
		_, err := net.LinkPeers(a, b)
		require.NoError(t, err)
		_, err = net.ConnectPeers(a, b)
		require.NoError(t, err)
	}

	for _, n := range nodes {
		err := n.gossip.Start()
		require.NoError(t, err)
		t.Cleanup(func() { n.gossip.Stop(ctx) }) //nolint: errcheck
	}
	for i, want := range []int{1, 2, 1} {
		require.Eventually(t, func() bool {
			return len(nodes[i].gossip.topic.ListPeers()) == want
		}, time.Second*5, time.Millisecond*50)
	}

	cert := committee.Certificate(t, 1, 0, 3)
	err := nodes[0].gossip.Publish(ctx, cert)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ok, err := nodes[2].keeper.ContainsCertificateInRound(ctx, cert.Round(), cert.ID())
		return err == nil && ok
	}, time.Second*5, time.Millisecond*50)

	for _, n := range nodes[1:] {
		for _, id := range cert.Transmissions() {
			assert.Equal(t, []peer.ID{hosts[0].ID()}, n.announcer.announcedBy(id))
		}
	}
}

func TestGossipIgnoresCommitted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	committee := certificatetest.NewCommittee(t, 4)
	net, err := mocknet.FullMeshLinked(1)
	require.NoError(t, err)
	n := newTestNode(t, net.Hosts()[0], committee)

	committed := committee.Certificate(t, 2, 0, 3)
	err = n.keeper.Commit(ctx, committed, 10)
	require.NoError(t, err)

	for round, want := range map[uint64]pubsub.ValidationResult{
		1: pubsub.ValidationIgnore,
		2: pubsub.ValidationIgnore,
		3: pubsub.ValidationAccept,
	} {
		cert := committee.Certificate(t, round, 0, 3)
		data, err := cert.MarshalBinary()
		require.NoError(t, err)

		msg := &pubsub.Message{Message: &pb.Message{Data: data}}
		res := n.gossip.validate(ctx, "", msg)
		assert.Equal(t, want, res, "round %d", round)

		ok, err := n.keeper.ContainsCertificateInRound(ctx, round, cert.ID())
		require.NoError(t, err)
		assert.Equal(t, want == pubsub.ValidationAccept, ok, "round %d", round)
	}
}

func TestGossipRejectsInsufficientStake(t *testing.T) {
	const nodeCount = 2

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)

	committee := certificatetest.NewCommittee(t, 4)

	net, err := mocknet.FullMeshLinked(nodeCount)
	require.NoError(t, err)

	nodes := make([]*testNode, nodeCount)
	for i, h := range net.Hosts() {
		nodes[i] = newTestNode(t, h, committee)
	}

	connect(ctx, t, net)
	for _, n := range nodes {
		err := n.gossip.Start()
		require.NoError(t, err)
		t.Cleanup(func() { n.gossip.Stop(ctx) }) //nolint: errcheck
	}

	cert := committee.Certificate(t, 1, 0, 2)
	err = nodes[0].gossip.Publish(ctx, cert)
	require.Error(t, err)

	ok, err := nodes[0].keeper.ContainsCertificateInRound(ctx, cert.Round(), cert.ID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGossipRejectsGarbage(t *testing.T) {
	committee := certificatetest.NewCommittee(t, 1)
	net, err := mocknet.FullMeshLinked(1)
	require.NoError(t, err)

	n := newTestNode(t, net.Hosts()[0], committee)
	msg := &pubsub.Message{Message: &pb.Message{Data: []byte("garbage")}}
	res := n.gossip.validate(context.Background(), "", msg)
	assert.Equal(t, pubsub.ValidationReject, res)
}

type testNode struct {
	gossip    *Gossip
	keeper    *dag.Keeper[*certificate.BatchCertificate]
	announcer *testAnnouncer
}

func newTestNode(t *testing.T, h host.Host, committee *certificatetest.Committee) *testNode {
	psub, err := pubsub.NewGossipSub(context.Background(), h, pubsub.WithMessageSignaturePolicy(pubsub.StrictNoSign))
	require.NoError(t, err)

	keeper := dag.NewKeeper(dag.New[*certificate.BatchCertificate]())
	t.Cleanup(func() { keeper.Stop(context.Background()) }) //nolint: errcheck

	announcer := &testAnnouncer{}
	verifier := dag.NewVerifier(committee.Includers)
	return &testNode{
		gossip:    New(testNetwork, h.ID(), psub, verifier, keeper, announcer),
		keeper:    keeper,
		announcer: announcer,
	}
}

func connect(ctx context.Context, t *testing.T, net mocknet.Mocknet) {
	hs := net.Hosts()
	subs := make([]event.Subscription, len(hs))
	for i, h := range hs {
		subs[i], _ = h.EventBus().Subscribe(&event.EvtPeerIdentificationCompleted{})
	}

	err := net.ConnectAllButSelf()
	require.NoError(t, err)

	for _, sub := range subs {
		select {
		case <-sub.Out():
		case <-ctx.Done():
			require.Fail(t, "timeout waiting for peers to connect")
		}
	}
}

// awaitMesh waits until every node sees all the others subscribed to the topic.
func awaitMesh(t *testing.T, nodes []*testNode) {
	for _, n := range nodes {
		require.Eventually(t, func() bool {
			return len(n.gossip.topic.ListPeers()) == len(nodes)-1
		}, time.Second*5, time.Millisecond*50)
	}
}

type testAnnouncer struct {
	mu   sync.Mutex
	seen map[narwhal.TransmissionID][]peer.ID
}

func (a *testAnnouncer) Announce(id narwhal.TransmissionID, from peer.ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seen == nil {
		a.seen = make(map[narwhal.TransmissionID][]peer.ID)
	}
	a.seen[id] = append(a.seen[id], from)
}

func (a *testAnnouncer) announcedBy(id narwhal.TransmissionID) []peer.ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]peer.ID(nil), a.seen[id]...)
}

func (a *testAnnouncer) announced() []narwhal.TransmissionID {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]narwhal.TransmissionID, 0, len(a.seen))
	for id := range a.seen {
		ids = append(ids, id)
	}
	return ids
}
