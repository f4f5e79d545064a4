package consensus

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/reimint/reimint/internal/consensus/cstypes"
	"github.com/reimint/reimint/types"
	"github.com/stretchr/testify/require"
)

func TestFileWALRoundTripsMsgAndTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal")
	w, err := OpenFileWAL(path)
	require.NoError(t, err)

	require.NoError(t, w.WriteMsg(msgInfo{
		Msg:    &NewValidBlockMessage{Height: 3, Round: 1, BlockHash: common.Hash{0x01}, IsCommit: false},
		PeerID: "peer-1",
	}))
	require.NoError(t, w.WriteTimeout(timeoutInfo{
		Duration: 250 * time.Millisecond,
		Height:   3,
		Round:    1,
		Step:     cstypes.RoundStepPrevote,
	}))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	envs, err := readAllWAL(path)
	require.NoError(t, err)
	require.Len(t, envs, 2)

	require.Equal(t, walKindMsg, envs[0].Kind)
	require.Equal(t, "peer-1", envs[0].PeerID)
	decoded, err := DecodeMsg(envs[0].MsgBytes)
	require.NoError(t, err)
	nvb, ok := decoded.(*NewValidBlockMessage)
	require.True(t, ok)
	require.Equal(t, uint64(3), nvb.Height)

	require.Equal(t, walKindTimeout, envs[1].Kind)
	require.Equal(t, uint64(3), envs[1].Height)
	require.Equal(t, uint32(1), envs[1].Round)
	require.Equal(t, cstypes.RoundStepPrevote, envs[1].Step)
	require.Equal(t, uint64(250), envs[1].DurationMs)
}

func TestReadAllWALMissingFileReturnsNil(t *testing.T) {
	envs, err := readAllWAL(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	require.Nil(t, envs)
}

func TestReadAllWALRejectsTruncatedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal")
	w, err := OpenFileWAL(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteTimeout(timeoutInfo{Duration: time.Second, Height: 1, Round: 0, Step: cstypes.RoundStepPropose}))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-1], 0644))

	_, err = readAllWAL(path)
	require.Error(t, err)
}

func TestNilWALDiscardsEverything(t *testing.T) {
	var w nilWAL
	require.NoError(t, w.WriteMsg(msgInfo{Msg: &GetProposalBlockMessage{BlockHash: common.Hash{0x01}}}))
	require.NoError(t, w.WriteTimeout(timeoutInfo{}))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())
}

// TestStateCatchupReplayReappliesPersistedVote writes one VoteMessage
// record to a WAL file behind the State's back, then calls
// catchupReplay directly and confirms the vote lands in the current
// round's VoteSet exactly as if it had arrived live.
func TestStateCatchupReplayReappliesPersistedVote(t *testing.T) {
	tvs, set := makeConsensusValidators(t, 2, 10)
	genesis := makeGenesisHeader(t)
	pipeline := newFakePipeline(t, tvs[0].priv, set)
	cs := NewState(fastTestConfig(), "test-chain", genesis, set, pipeline, &fakeEvidencePool{})

	path := filepath.Join(t.TempDir(), "wal")
	w, err := OpenFileWAL(path)
	require.NoError(t, err)

	offender := tvs[1]
	idx := int32(set.GetIndexByAddress(offender.val.Address))
	v := &types.Vote{Type: types.PrevoteType, Height: cs.Height, Round: 0, BlockHash: common.Hash{0x01}, ValidatorIndex: idx}
	require.NoError(t, v.Sign("test-chain", offender.priv))

	require.NoError(t, w.WriteMsg(msgInfo{Msg: &VoteMessage{Vote: v}, PeerID: "peer-1"}))
	require.NoError(t, w.Close())

	require.NoError(t, cs.catchupReplay(path))

	votes := cs.Votes.Prevotes(0)
	require.NotNil(t, votes)
	require.Len(t, votes.List(), 1)
	require.Equal(t, idx, votes.List()[0].ValidatorIndex)
}

// TestWithWALFileReplaysOnStart exercises the same replay path through
// the public OnStart entry point: a vote persisted before the State
// ever ran must already be present the moment Start returns.
func TestWithWALFileReplaysOnStart(t *testing.T) {
	tvs, set := makeConsensusValidators(t, 2, 10)
	genesis := makeGenesisHeader(t)
	pipeline := newFakePipeline(t, tvs[0].priv, set)

	path := filepath.Join(t.TempDir(), "wal")
	w, err := OpenFileWAL(path)
	require.NoError(t, err)

	offender := tvs[1]
	idx := int32(set.GetIndexByAddress(offender.val.Address))
	v := &types.Vote{Type: types.PrevoteType, Height: genesis.Number + 1, Round: 0, BlockHash: common.Hash{0x01}, ValidatorIndex: idx}
	require.NoError(t, v.Sign("test-chain", offender.priv))
	require.NoError(t, w.WriteMsg(msgInfo{Msg: &VoteMessage{Vote: v}, PeerID: "peer-1"}))
	require.NoError(t, w.Close())

	cs := NewState(fastTestConfig(), "test-chain", genesis, set, pipeline, &fakeEvidencePool{}, WithWALFile(path))
	require.NoError(t, cs.Start())
	defer cs.Stop()

	require.Eventually(t, func() bool {
		votes := cs.GetRoundState().Votes.Prevotes(0)
		return votes != nil && len(votes.List()) >= 1
	}, time.Second, time.Millisecond, "a vote persisted before Start must be replayed into the current VoteSet")
}
