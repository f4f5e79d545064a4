package consensus

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/reimint/reimint/internal/consensus/cstypes"
	"github.com/reimint/reimint/types"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTripAllTypes(t *testing.T) {
	tvs, _ := makeConsensusValidators(t, 1, 10)
	v := &types.Vote{Type: types.PrevoteType, Height: 1, Round: 0, BlockHash: common.Hash{0x01}}
	require.NoError(t, v.Sign("test-chain", tvs[0].priv))
	p := &types.Proposal{Height: 1, Round: 0, POLRound: types.NoPOLRound, BlockHash: common.Hash{0x01}}
	require.NoError(t, p.Sign("test-chain", tvs[0].priv))
	block := &types.Block{Header: makeGenesisHeader(t)}

	cases := []Message{
		&NewRoundStepMessage{Height: 5, Round: 1, Step: cstypes.RoundStepPropose, SecondsSinceStartTime: 3, LastCommitRound: 0},
		&NewValidBlockMessage{Height: 5, Round: 1, BlockHash: common.Hash{0x02}, IsCommit: true},
		&HasVoteMessage{Height: 5, Round: 1, Type: types.PrevoteType, Index: 2},
		&ProposalMessage{Proposal: p},
		&ProposalPOLMessage{Height: 5, ProposalPOLRound: 1, ProposalPOL: []bool{true, false, true}},
		&ProposalBlockMessage{Block: block},
		&VoteMessage{Vote: v},
		&VoteSetMaj23Message{Height: 5, Round: 1, Type: types.PrecommitType, BlockHash: common.Hash{0x03}},
		&VoteSetBitsMessage{Height: 5, Round: 1, Type: types.PrecommitType, BlockHash: common.Hash{0x03}, Votes: []bool{true, false}},
		&GetProposalBlockMessage{BlockHash: common.Hash{0x04}},
	}

	for _, msg := range cases {
		bz, err := EncodeMsg(msg)
		require.NoError(t, err)

		out, err := DecodeMsg(bz)
		require.NoError(t, err)
		require.IsType(t, msg, out)
	}
}

func TestDecodeMsgRejectsUnknownCode(t *testing.T) {
	bz, err := rlp.EncodeToBytes(&envelope{Code: 0xfe, Payload: []byte{0x80}})
	require.NoError(t, err)

	_, err = DecodeMsg(bz)
	require.Error(t, err)
	require.ErrorAs(t, err, new(ErrConsensusMessageNotRecognized))
}

func TestNewRoundStepMessageValidateBasicRejectsZeroStep(t *testing.T) {
	msg := &NewRoundStepMessage{Height: 1, Round: 0, Step: 0}
	require.Error(t, msg.ValidateBasic())
}

func TestHasVoteMessageValidateBasicRejectsNonVoteType(t *testing.T) {
	msg := &HasVoteMessage{Height: 1, Round: 0, Type: types.SignedMsgType(0xff), Index: 0}
	require.Error(t, msg.ValidateBasic())
}
