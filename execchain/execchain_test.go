package execchain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestDeterministicStubIsDeterministic(t *testing.T) {
	stub := NewDeterministicStub()
	parent := common.Hash{0x01}
	txs := [][]byte{[]byte("tx-1"), []byte("tx-2")}

	root1, receipts1, err := stub.ApplyBlock(parent, txs)
	require.NoError(t, err)
	root2, receipts2, err := stub.ApplyBlock(parent, txs)
	require.NoError(t, err)

	require.Equal(t, root1, root2)
	require.Len(t, receipts1, 2)
	require.Equal(t, receipts1[0].TxHash, receipts2[0].TxHash)
	for _, r := range receipts1 {
		require.Equal(t, uint64(1), r.Status)
	}
}

func TestDeterministicStubDiffersOnDifferentInputs(t *testing.T) {
	stub := NewDeterministicStub()

	rootA, _, err := stub.ApplyBlock(common.Hash{0x01}, [][]byte{[]byte("tx-1")})
	require.NoError(t, err)
	rootB, _, err := stub.ApplyBlock(common.Hash{0x02}, [][]byte{[]byte("tx-1")})
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootB, "different parent state roots must produce different results")

	rootC, _, err := stub.ApplyBlock(common.Hash{0x01}, [][]byte{[]byte("tx-2")})
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootC, "different transactions must produce different results")
}

func TestDeterministicStubEmptyBlock(t *testing.T) {
	stub := NewDeterministicStub()
	root, receipts, err := stub.ApplyBlock(common.Hash{}, nil)
	require.NoError(t, err)
	require.Empty(t, receipts)
	require.NotEqual(t, common.Hash{}, root, "even an empty block hashes to a non-zero root")
}
