package consensus

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	rcrypto "github.com/reimint/reimint/crypto"
	"github.com/reimint/reimint/internal/consensus/cstypes"
	"github.com/reimint/reimint/txpool"
	"github.com/reimint/reimint/types"
	"github.com/stretchr/testify/require"
)

// fakePipeline is an in-memory stand-in for blockchain.Pipeline: it
// signs with a fixed key, applies a deterministic (parent, txs) ->
// stateRoot function, and records every block it is asked to commit.
type fakePipeline struct {
	priv rcrypto.PrivKey
	vals *types.ValidatorSet

	committed []*types.Block
}

func newFakePipeline(t *testing.T, priv rcrypto.PrivKey, vals *types.ValidatorSet) *fakePipeline {
	t.Helper()
	return &fakePipeline{priv: priv, vals: vals}
}

func (f *fakePipeline) CommitBlock(block *types.Block) error {
	f.committed = append(f.committed, block)
	return nil
}

func (f *fakePipeline) BuildPendingBlock(parentHash common.Hash) (*txpool.PendingBlock, error) {
	return &txpool.PendingBlock{ParentHash: parentHash}, nil
}

func (f *fakePipeline) PrepareBlock(parentHeader *types.Header, coinbase common.Address, txs [][]byte, timestamp uint64) (*types.Block, error) {
	parentHash, err := parentHeader.Hash()
	if err != nil {
		return nil, err
	}
	stateRoot := crypto256(parentHeader.StateRoot, parentHeader.Number)
	header := &types.Header{
		ParentHash: parentHash,
		Number:     parentHeader.Number + 1,
		StateRoot:  stateRoot,
		Time:       timestamp,
		Coinbase:   coinbase,
	}
	return &types.Block{Header: header, Txs: txs}, nil
}

func (f *fakePipeline) GetValidatorSet(stateRoot common.Hash) (*types.ValidatorSet, error) {
	return f.vals.Copy(), nil
}

func (f *fakePipeline) SignVote(chainID string, v *types.Vote, step cstypes.RoundStepType) error {
	return v.Sign(chainID, f.priv)
}

func (f *fakePipeline) SignProposal(chainID string, p *types.Proposal) error {
	return p.Sign(chainID, f.priv)
}

// crypto256 derives a deterministic, non-zero pseudo state root from the
// parent root and height, avoiding a real keccak dependency in the test
// helper (any injective-enough function works for these tests).
func crypto256(parentRoot common.Hash, height uint64) common.Hash {
	var out common.Hash
	copy(out[:], parentRoot[:])
	out[31] ^= byte(height + 1)
	return out
}

// fakeEvidencePool is a no-op evidencePool: no evidence is ever
// generated in the single-validator test scenarios below, but the
// State still calls PendingEvidence on every proposal/commit.
type fakeEvidencePool struct {
	added []*types.DuplicateVoteEvidence
}

func (f *fakeEvidencePool) AddEvidence(ev *types.DuplicateVoteEvidence) error {
	f.added = append(f.added, ev)
	return nil
}

func (f *fakeEvidencePool) PendingEvidence(maxBytes uint64) ([]*types.DuplicateVoteEvidence, error) {
	return nil, nil
}

type testValidator struct {
	priv rcrypto.PrivKey
	val  *types.Validator
}

func makeConsensusValidators(t *testing.T, n int, power int64) ([]*testValidator, *types.ValidatorSet) {
	t.Helper()
	out := make([]*testValidator, n)
	vals := make([]*types.Validator, n)
	for i := 0; i < n; i++ {
		priv, err := rcrypto.GenPrivKey()
		require.NoError(t, err)
		val := types.NewValidator(priv.PubKey(), power)
		out[i] = &testValidator{priv: priv, val: val}
		vals[i] = val
	}
	set, err := types.NewValidatorSet(vals)
	require.NoError(t, err)
	return out, set
}

func makeGenesisHeader(t *testing.T) *types.Header {
	t.Helper()
	h := &types.Header{Number: 0}
	require.NoError(t, h.SetExtraData(&types.ExtraData{Round: 0, CommitRound: -1, POLRound: types.NoPOLRound}))
	return h
}
