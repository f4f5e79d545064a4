package txpool

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestPoolPendingRespectsMax(t *testing.T) {
	p := NewPool()
	p.AddTx([]byte("a"))
	p.AddTx([]byte("b"))
	p.AddTx([]byte("c"))

	require.Equal(t, 3, p.Len())
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, p.Pending(2))
	require.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, p.Pending(0))
}

func TestPoolRemoveCommitted(t *testing.T) {
	p := NewPool()
	p.AddTx([]byte("a"))
	p.AddTx([]byte("b"))
	p.AddTx([]byte("c"))

	p.RemoveCommitted([][]byte{[]byte("b")})
	require.Equal(t, [][]byte{[]byte("a"), []byte("c")}, p.Pending(0))
}

func TestWorkerBuildPendingBlockIsCachedPerParent(t *testing.T) {
	pool := NewPool()
	pool.AddTx([]byte("tx-1"))
	worker := NewWorker(pool, 10)

	parent := common.Hash{0x01}
	pb1, err := worker.BuildPendingBlock(parent)
	require.NoError(t, err)
	require.Len(t, pb1.Txs, 1)

	pool.AddTx([]byte("tx-2"))
	pb2, err := worker.BuildPendingBlock(parent)
	require.NoError(t, err)
	require.Same(t, pb1, pb2, "a second build for the same parent must return the already-built candidate")
	require.Len(t, pb2.Txs, 1, "the cached candidate must not pick up transactions added after it was built")
}

func TestWorkerBuildPendingBlockRespectsCap(t *testing.T) {
	pool := NewPool()
	for i := 0; i < 5; i++ {
		pool.AddTx([]byte{byte(i)})
	}
	worker := NewWorker(pool, 3)

	pb, err := worker.BuildPendingBlock(common.Hash{0x01})
	require.NoError(t, err)
	require.Len(t, pb.Txs, 3)
}

func TestWorkerDirectlyGetPendingBlock(t *testing.T) {
	pool := NewPool()
	worker := NewWorker(pool, 10)

	require.Nil(t, worker.DirectlyGetPendingBlockByParentHash(common.Hash{0x01}))

	pb, err := worker.BuildPendingBlock(common.Hash{0x01})
	require.NoError(t, err)
	require.Same(t, pb, worker.DirectlyGetPendingBlockByParentHash(common.Hash{0x01}))
}

func TestWorkerClearBelowDropsOtherParents(t *testing.T) {
	pool := NewPool()
	worker := NewWorker(pool, 10)

	_, err := worker.BuildPendingBlock(common.Hash{0x01})
	require.NoError(t, err)
	_, err = worker.BuildPendingBlock(common.Hash{0x02})
	require.NoError(t, err)

	worker.ClearBelow(common.Hash{0x02})

	require.Nil(t, worker.DirectlyGetPendingBlockByParentHash(common.Hash{0x01}))
	require.NotNil(t, worker.DirectlyGetPendingBlockByParentHash(common.Hash{0x02}))
}
