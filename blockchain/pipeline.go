package blockchain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/reimint/reimint/evidence"
	"github.com/reimint/reimint/execchain"
	"github.com/reimint/reimint/internal/consensus/cstypes"
	"github.com/reimint/reimint/privval"
	"github.com/reimint/reimint/staking"
	"github.com/reimint/reimint/txpool"
	"github.com/reimint/reimint/types"
)

// Pipeline wires together the BlockStore, the execution applier, the
// staking validator-set reader, the tx-pool worker, the evidence pool
// and the node's own private validator into the single collaborator
// the consensus State calls into on commit: CommitBlock runs the EVM,
// persists the block, then lets the state machine re-enter at the next
// height.
type Pipeline struct {
	ChainID string

	Store    *BlockStore
	Applier  execchain.Applier
	Staking  staking.Reader
	Worker   *txpool.Worker
	Evidence *evidence.Pool
	Signer   *privval.FilePV
}

// NewPipeline constructs a Pipeline from its collaborators.
func NewPipeline(chainID string, store *BlockStore, applier execchain.Applier, stakingReader staking.Reader, worker *txpool.Worker, evPool *evidence.Pool, signer *privval.FilePV) *Pipeline {
	return &Pipeline{
		ChainID:  chainID,
		Store:    store,
		Applier:  applier,
		Staking:  stakingReader,
		Worker:   worker,
		Evidence: evPool,
		Signer:   signer,
	}
}

// CommitBlock applies block's transactions, persists the block, and
// advances the evidence pool's pruning watermark — the single entry
// point commonly named commitBlock(block).
func (p *Pipeline) CommitBlock(block *types.Block) error {
	stateRoot, _, err := p.Applier.ApplyBlock(block.Header.StateRoot, block.Txs)
	if err != nil {
		return fmt.Errorf("blockchain: applying block %d: %w", block.Header.Number, err)
	}
	block.Header.StateRoot = stateRoot

	if err := p.Store.SaveBlock(block); err != nil {
		return fmt.Errorf("blockchain: persisting block %d: %w", block.Header.Number, err)
	}

	ed, err := block.Header.DecodeExtraData()
	if err != nil {
		return fmt.Errorf("blockchain: decoding extraData of block %d: %w", block.Header.Number, err)
	}
	if err := p.Evidence.Update(ed.Evidence, block.Header.Number); err != nil {
		return fmt.Errorf("blockchain: updating evidence pool for block %d: %w", block.Header.Number, err)
	}

	p.Worker.ClearBelow(mustHash(block))
	return nil
}

func mustHash(block *types.Block) common.Hash {
	hash, err := block.Hash()
	if err != nil {
		return common.Hash{}
	}
	return hash
}

// BuildPendingBlock asks the tx-pool worker for a candidate block body
// extending parentHash.
func (p *Pipeline) BuildPendingBlock(parentHash common.Hash) (*txpool.PendingBlock, error) {
	return p.Worker.BuildPendingBlock(parentHash)
}

// GetValidatorSet resolves the validator set active at stateRoot via
// the staking collaborator.
func (p *Pipeline) GetValidatorSet(stateRoot common.Hash) (*types.ValidatorSet, error) {
	return p.Staking.GetValidatorSet(stateRoot)
}

// SignVote delegates to the node's own private validator.
func (p *Pipeline) SignVote(chainID string, v *types.Vote, step cstypes.RoundStepType) error {
	return p.Signer.SignVote(chainID, v, step)
}

// SignProposal delegates to the node's own private validator.
func (p *Pipeline) SignProposal(chainID string, prop *types.Proposal) error {
	return p.Signer.SignProposal(chainID, prop)
}

// PrepareBlock speculatively applies txs on top of parentHeader's state
// root and assembles the resulting header, the way a proposer must
// pre-execute a block before broadcasting it (// decideProposal). Every other validator performing the same
// deterministic application during prevote validation reaches the same
// StateRoot, so CommitBlock's own re-application at finalization is
// redundant but harmless, not a source of divergence.
func (p *Pipeline) PrepareBlock(parentHeader *types.Header, coinbase common.Address, txs [][]byte, timestamp uint64) (*types.Block, error) {
	stateRoot, _, err := p.Applier.ApplyBlock(parentHeader.StateRoot, txs)
	if err != nil {
		return nil, fmt.Errorf("blockchain: preparing block: %w", err)
	}
	parentHash, err := parentHeader.Hash()
	if err != nil {
		return nil, fmt.Errorf("blockchain: hashing parent header: %w", err)
	}
	txsBz, err := rlp.EncodeToBytes(txs)
	if err != nil {
		return nil, err
	}
	header := &types.Header{
		ParentHash: parentHash,
		Number:     parentHeader.Number + 1,
		StateRoot:  stateRoot,
		TxHash:     crypto.Keccak256Hash(txsBz),
		Time:       timestamp,
		Coinbase:   coinbase,
	}
	return &types.Block{Header: header, Txs: txs}, nil
}

// GetValidatorSetAtHeight implements evidence.ValidatorSetSource by
// resolving the block committed at height and reading its state root.
func (p *Pipeline) GetValidatorSetAtHeight(height uint64) (*types.ValidatorSet, error) {
	block, err := p.Store.LoadBlockByHeight(height)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("blockchain: no block at height %d", height)
	}
	return p.GetValidatorSet(block.Header.StateRoot)
}
