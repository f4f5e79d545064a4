// Package execchain provides the execution seam the block pipeline
// calls into when applying a finalized block's transactions. EVM
// execution semantics are an explicit non-goal of this repository; this
// package exists so that seam is real and exercised, backed by a
// deterministic stub rather than an interpreter.
package execchain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Receipt is a minimal per-transaction execution result, standing in
// for the full EVM receipt (logs, gas, status) an interpreter would
// produce.
type Receipt struct {
	TxHash common.Hash
	Status uint64
}

// Applier applies a block's transactions against a parent state root
// and returns the resulting state root and receipts.
type Applier interface {
	ApplyBlock(parentStateRoot common.Hash, txs [][]byte) (stateRoot common.Hash, receipts []*Receipt, err error)
}

// DeterministicStub is a reproducible stand-in for the EVM: the
// resulting state root is keccak256(parentStateRoot ‖ rlp([txs...])),
// and every transaction is reported as having succeeded. This keeps
// block hashing and the commit pipeline end-to-end exercisable without
// an execution backend.
type DeterministicStub struct{}

// NewDeterministicStub constructs the stub applier.
func NewDeterministicStub() *DeterministicStub {
	return &DeterministicStub{}
}

func (s *DeterministicStub) ApplyBlock(parentStateRoot common.Hash, txs [][]byte) (common.Hash, []*Receipt, error) {
	bz, err := rlp.EncodeToBytes(txs)
	if err != nil {
		return common.Hash{}, nil, err
	}
	buf := make([]byte, 0, len(parentStateRoot)+len(bz))
	buf = append(buf, parentStateRoot[:]...)
	buf = append(buf, bz...)
	stateRoot := crypto.Keccak256Hash(buf)

	receipts := make([]*Receipt, 0, len(txs))
	for _, tx := range txs {
		receipts = append(receipts, &Receipt{TxHash: crypto.Keccak256Hash(tx), Status: 1})
	}
	return stateRoot, receipts, nil
}
