package bapl

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iykyk-syn/narwhal"
)

func TestFetchPool(t *testing.T) {
	const nodeCount = 5

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	pools := fetchPools(t, nodeCount)

	// every node pushes its own batch
	batches := make([]*Batch, nodeCount)
	for i, p := range pools {
		batches[i] = randBatch()
		err := p.Push(ctx, batches[i])
		require.NoError(t, err)
	}

	// and learns about the batches of others
	for i, p := range pools {
		for j, b := range batches {
			if i != j {
				p.Announce(b.ID(), pools[j].host.ID())
			}
		}
		assert.Equal(t, nodeCount-1, p.Pending())
	}

	wg, wctx := errgroup.WithContext(ctx)
	for _, p := range pools {
		for _, b := range batches {
			wg.Go(func() error {
				got, err := p.Pull(wctx, b.ID())
				if err != nil {
					return err
				}
				assert.Equal(t, b.Data, got.Data)
				return nil
			})
		}
	}
	require.NoError(t, wg.Wait())

	for _, p := range pools {
		assert.Zero(t, p.Pending())

		size, err := p.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, nodeCount, size)
	}
}

func TestFetchPoolNoPeers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	pools := fetchPools(t, 1)

	_, err := pools[0].Pull(ctx, randBatch().ID())
	require.ErrorIs(t, err, ErrNoPeers)

	var solution narwhal.SolutionID
	_, err = pools[0].Pull(ctx, solution.TransmissionID())
	require.ErrorIs(t, err, errUnsupportedKind)
}

func TestFetchPoolAllPeersFail(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)

	pools := fetchPools(t, 3)
	id := randBatch().ID()

	// nobody actually has the batch
	pools[0].Announce(id, pools[1].host.ID())
	pools[0].Announce(id, pools[2].host.ID())

	_, err := pools[0].Pull(ctx, id)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPeers)

	// pending stays for a later retry
	peers, ok := pools[0].pending.Get(id)
	require.True(t, ok)
	assert.Equal(t, map[peer.ID]struct{}{
		pools[1].host.ID(): {},
		pools[2].host.ID(): {},
	}, peers)
}

func TestFetchPoolDelete(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	pools := fetchPools(t, 2)
	batch := randBatch()
	pools[0].Announce(batch.ID(), pools[1].host.ID())

	err := pools[0].Delete(ctx, batch.ID())
	require.NoError(t, err)
	assert.Zero(t, pools[0].Pending())
}

func TestFetchPoolBatchTooLarge(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)

	pools := fetchPools(t, 2)
	batch := randBatch()
	require.NoError(t, pools[1].Push(ctx, batch))
	pools[0].Announce(batch.ID(), pools[1].host.ID())

	pools[0].maxBatchSize = int64(len(batch.Data)) - 1
	_, err := pools[0].Pull(ctx, batch.ID())
	require.ErrorIs(t, err, errBatchTooLarge)
	assert.Equal(t, 1, pools[0].Pending())

	pools[0].maxBatchSize = int64(len(batch.Data))
	got, err := pools[0].Pull(ctx, batch.ID())
	require.NoError(t, err)
	assert.Equal(t, batch.Data, got.Data)
}

// vanishingPool loses its batches right after reporting them.
type vanishingPool struct {
	*MemPool
}

func (p vanishingPool) Has(context.Context, narwhal.TransmissionID) (bool, error) {
	return true, nil
}

func TestFetchPoolLocalMiss(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)

	net, err := mocknet.FullMeshConnected(2)
	require.NoError(t, err)
	t.Cleanup(func() { net.Close() })
	hosts := net.Hosts()

	pools := make([]*FetchPool, 2)
	for i, h := range hosts {
		mem := NewMemPool()
		t.Cleanup(mem.Close)

		pools[i] = NewFetchPool(vanishingPool{mem}, h, time.Millisecond*100)
		pools[i].Start()
		t.Cleanup(pools[i].Stop)
	}

	batch := randBatch()
	require.NoError(t, pools[1].Push(ctx, batch))
	pools[0].Announce(batch.ID(), hosts[1].ID())

	// the local miss falls through to peers instead of awaiting the batch locally
	got, err := pools[0].Pull(ctx, batch.ID())
	require.NoError(t, err)
	assert.Equal(t, batch.Data, got.Data)
	assert.Zero(t, pools[0].Pending())
}

func fetchPools(t *testing.T, count int) []*FetchPool {
	net, err := mocknet.FullMeshConnected(count)
	require.NoError(t, err)
	t.Cleanup(func() { net.Close() })

	pools := make([]*FetchPool, count)
	for i, h := range net.Hosts() {
		mem := NewMemPool()
		t.Cleanup(mem.Close)

		pools[i] = NewFetchPool(mem, h, time.Millisecond*100)
		pools[i].Start()
		t.Cleanup(pools[i].Stop)
	}
	return pools
}
