package privval

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/reimint/reimint/internal/consensus/cstypes"
	"github.com/reimint/reimint/types"
	"github.com/stretchr/testify/require"
)

func newTestPaths(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "key.json"), filepath.Join(dir, "state.json")
}

func TestGenFilePVSignsVoteAndProposal(t *testing.T) {
	keyPath, statePath := newTestPaths(t)
	pv, err := GenFilePV(keyPath, statePath)
	require.NoError(t, err)

	p := &types.Proposal{Height: 1, Round: 0, POLRound: types.NoPOLRound, BlockHash: common.Hash{0x02}}
	require.NoError(t, pv.SignProposal("test-chain", p))

	v := &types.Vote{Type: types.PrevoteType, Height: 1, Round: 0, BlockHash: common.Hash{0x01}}
	require.NoError(t, pv.SignVote("test-chain", v, cstypes.RoundStepPrevote))
	require.Equal(t, pv.Address(), v.ValidatorAddress)
	require.NoError(t, v.Verify("test-chain", pv.Address()))
}

func TestFilePVRejectsConflictingSignAtSameHRS(t *testing.T) {
	keyPath, statePath := newTestPaths(t)
	pv, err := GenFilePV(keyPath, statePath)
	require.NoError(t, err)

	v1 := &types.Vote{Type: types.PrevoteType, Height: 1, Round: 0, BlockHash: common.Hash{0x01}}
	require.NoError(t, pv.SignVote("test-chain", v1, cstypes.RoundStepPrevote))

	v2 := &types.Vote{Type: types.PrevoteType, Height: 1, Round: 0, BlockHash: common.Hash{0x02}}
	err = pv.SignVote("test-chain", v2, cstypes.RoundStepPrevote)
	require.ErrorIs(t, err, ErrDoubleSign)
}

func TestFilePVAllowsIdenticalReplayAtSameHRS(t *testing.T) {
	keyPath, statePath := newTestPaths(t)
	pv, err := GenFilePV(keyPath, statePath)
	require.NoError(t, err)

	v1 := &types.Vote{Type: types.PrevoteType, Height: 1, Round: 0, BlockHash: common.Hash{0x01}}
	require.NoError(t, pv.SignVote("test-chain", v1, cstypes.RoundStepPrevote))

	v2 := &types.Vote{Type: types.PrevoteType, Height: 1, Round: 0, BlockHash: common.Hash{0x01}}
	require.NoError(t, pv.SignVote("test-chain", v2, cstypes.RoundStepPrevote))
	require.Equal(t, v1.Signature, v2.Signature)
}

func TestFilePVRejectsEarlierHeight(t *testing.T) {
	keyPath, statePath := newTestPaths(t)
	pv, err := GenFilePV(keyPath, statePath)
	require.NoError(t, err)

	v1 := &types.Vote{Type: types.PrevoteType, Height: 5, Round: 0, BlockHash: common.Hash{0x01}}
	require.NoError(t, pv.SignVote("test-chain", v1, cstypes.RoundStepPrevote))

	v2 := &types.Vote{Type: types.PrevoteType, Height: 4, Round: 0, BlockHash: common.Hash{0x01}}
	err = pv.SignVote("test-chain", v2, cstypes.RoundStepPrevote)
	require.ErrorIs(t, err, ErrDoubleSign)
}

func TestFilePVSaveAndLoadRoundTrip(t *testing.T) {
	keyPath, statePath := newTestPaths(t)
	pv, err := GenFilePV(keyPath, statePath)
	require.NoError(t, err)

	v := &types.Vote{Type: types.PrevoteType, Height: 1, Round: 0, BlockHash: common.Hash{0x01}}
	require.NoError(t, pv.SignVote("test-chain", v, cstypes.RoundStepPrevote))
	require.NoError(t, pv.Save())

	loaded, err := LoadFilePV(keyPath, statePath)
	require.NoError(t, err)
	require.Equal(t, pv.Address(), loaded.Address())
	require.Equal(t, uint64(1), loaded.LastSignState.Height)

	// Replaying the identical vote against the reloaded state must still
	// succeed; a conflicting one must still be rejected.
	v2 := &types.Vote{Type: types.PrevoteType, Height: 1, Round: 0, BlockHash: common.Hash{0x01}}
	require.NoError(t, loaded.SignVote("test-chain", v2, cstypes.RoundStepPrevote))

	v3 := &types.Vote{Type: types.PrevoteType, Height: 1, Round: 0, BlockHash: common.Hash{0x99}}
	err = loaded.SignVote("test-chain", v3, cstypes.RoundStepPrevote)
	require.ErrorIs(t, err, ErrDoubleSign)
}

func TestLoadOrGenFilePVGeneratesOnce(t *testing.T) {
	keyPath, statePath := newTestPaths(t)

	first, err := LoadOrGenFilePV(keyPath, statePath)
	require.NoError(t, err)

	second, err := LoadOrGenFilePV(keyPath, statePath)
	require.NoError(t, err)

	require.Equal(t, first.Address(), second.Address())
}
