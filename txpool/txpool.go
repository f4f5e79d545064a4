// Package txpool provides the minimal transaction pool and block
// builder the consensus state machine depends on. Full mempool
// semantics like fee-based eviction and replace-by-fee are out of
// scope; what the state machine actually needs — a way to ask "build me
// a candidate block on top of this parent" — is implemented here as a
// real, if simple, FIFO pool plus Worker.
package txpool

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	rsync "github.com/reimint/reimint/libs/sync"
)

// Pool is an in-memory FIFO transaction pool with no eviction policy:
// transactions are added, drained into candidate blocks by the Worker,
// and removed only once a block embedding them commits.
type Pool struct {
	mtx sync.Mutex
	txs [][]byte
}

// NewPool constructs an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

// AddTx appends tx to the pool.
func (p *Pool) AddTx(tx []byte) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.txs = append(p.txs, tx)
}

// Pending returns up to maxTxs transactions currently queued, oldest
// first, without removing them (removal happens via RemoveCommitted).
func (p *Pool) Pending(maxTxs int) [][]byte {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if maxTxs <= 0 || maxTxs > len(p.txs) {
		maxTxs = len(p.txs)
	}
	out := make([][]byte, maxTxs)
	copy(out, p.txs[:maxTxs])
	return out
}

// Len reports the number of queued transactions.
func (p *Pool) Len() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.txs)
}

// RemoveCommitted drops the given transactions from the pool, e.g.
// after the block embedding them commits.
func (p *Pool) RemoveCommitted(committed [][]byte) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if len(committed) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(committed))
	for _, tx := range committed {
		seen[string(tx)] = struct{}{}
	}
	remaining := p.txs[:0]
	for _, tx := range p.txs {
		if _, ok := seen[string(tx)]; !ok {
			remaining = append(remaining, tx)
		}
	}
	p.txs = remaining
}

// PendingBlock is a candidate block body the Worker assembled, not yet
// proposed or signed.
type PendingBlock struct {
	ParentHash common.Hash
	Txs        [][]byte
}

// Worker assembles PendingBlocks for a proposer to turn into a Proposal
// + ProposalBlock decideProposal.
type Worker struct {
	mtx        rsync.Mutex
	pool       *Pool
	maxTxsPerBlock int

	pending map[common.Hash]*PendingBlock
}

// NewWorker constructs a Worker drawing transactions from pool, capping
// each built block at maxTxsPerBlock transactions.
func NewWorker(pool *Pool, maxTxsPerBlock int) *Worker {
	return &Worker{pool: pool, maxTxsPerBlock: maxTxsPerBlock, pending: make(map[common.Hash]*PendingBlock)}
}

// BuildPendingBlock assembles (or returns an already-built) candidate
// block extending parentHash, draining up to maxTxsPerBlock
// transactions from the pool.
func (w *Worker) BuildPendingBlock(parentHash common.Hash) (*PendingBlock, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if pb, ok := w.pending[parentHash]; ok {
		return pb, nil
	}
	pb := &PendingBlock{ParentHash: parentHash, Txs: w.pool.Pending(w.maxTxsPerBlock)}
	w.pending[parentHash] = pb
	return pb, nil
}

// DirectlyGetPendingBlockByParentHash returns an already-built pending
// block for parentHash without building a new one, or nil if none
// exists yet.
func (w *Worker) DirectlyGetPendingBlockByParentHash(parentHash common.Hash) *PendingBlock {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.pending[parentHash]
}

// ClearBelow discards cached pending blocks whose parent is not
// keepParent, e.g. once a height finalizes and earlier candidates are
// moot.
func (w *Worker) ClearBelow(keepParent common.Hash) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	for parent := range w.pending {
		if parent != keepParent {
			delete(w.pending, parent)
		}
	}
}
