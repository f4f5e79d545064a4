package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVoteSetTwoThirdsMajority(t *testing.T) {
	chainID := "test-chain"
	tvs, set := makeTestValidators(t, 4, 1)
	vs := NewVoteSet(chainID, 1, 0, PrecommitType, set)

	blockHash := testHash(0xAA)

	for i, tv := range tvs[:2] {
		v := &Vote{Type: PrecommitType, Height: 1, Round: 0, BlockHash: blockHash, ValidatorIndex: int32(i)}
		require.NoError(t, v.Sign(chainID, tv.priv))
		added, err := vs.AddVote(v)
		require.NoError(t, err)
		require.True(t, added)
	}
	_, ok := vs.HasTwoThirdsMajority()
	require.False(t, ok, "2 of 4 equal-power votes must not cross 2/3")

	v := &Vote{Type: PrecommitType, Height: 1, Round: 0, BlockHash: blockHash, ValidatorIndex: 2}
	require.NoError(t, v.Sign(chainID, tvs[2].priv))
	added, err := vs.AddVote(v)
	require.NoError(t, err)
	require.True(t, added)

	hash, ok := vs.HasTwoThirdsMajority()
	require.True(t, ok, "3 of 4 equal-power votes must cross 2/3")
	require.Equal(t, blockHash, hash)
}

func TestVoteSetConflictingVotes(t *testing.T) {
	chainID := "test-chain"
	tvs, set := makeTestValidators(t, 4, 1)
	vs := NewVoteSet(chainID, 1, 0, PrecommitType, set)

	v1 := &Vote{Type: PrecommitType, Height: 1, Round: 0, BlockHash: testHash(0x01), ValidatorIndex: 0}
	require.NoError(t, v1.Sign(chainID, tvs[0].priv))
	added, err := vs.AddVote(v1)
	require.NoError(t, err)
	require.True(t, added)

	// Identical repeat is idempotent, not an error.
	added, err = vs.AddVote(v1)
	require.NoError(t, err)
	require.False(t, added)

	v2 := &Vote{Type: PrecommitType, Height: 1, Round: 0, BlockHash: testHash(0x02), ValidatorIndex: 0}
	require.NoError(t, v2.Sign(chainID, tvs[0].priv))
	_, err = vs.AddVote(v2)
	require.Error(t, err)

	var conflict *ErrConflictingVotes
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, v1, conflict.VoteA)
	require.Equal(t, v2, conflict.VoteB)
}

func TestVoteSetRejectsWrongHeightRoundType(t *testing.T) {
	chainID := "test-chain"
	tvs, set := makeTestValidators(t, 1, 1)
	vs := NewVoteSet(chainID, 5, 1, PrevoteType, set)

	v := &Vote{Type: PrecommitType, Height: 5, Round: 1, BlockHash: ZeroHash, ValidatorIndex: 0}
	require.NoError(t, v.Sign(chainID, tvs[0].priv))
	_, err := vs.AddVote(v)
	require.ErrorIs(t, err, ErrVoteHeightRoundTypeMismatch)
}

func TestVoteSetRejectsBadSignature(t *testing.T) {
	chainID := "test-chain"
	tvs, set := makeTestValidators(t, 2, 1)
	vs := NewVoteSet(chainID, 1, 0, PrecommitType, set)

	v := &Vote{Type: PrecommitType, Height: 1, Round: 0, BlockHash: testHash(0x01), ValidatorIndex: 0}
	require.NoError(t, v.Sign(chainID, tvs[1].priv)) // signed by the wrong validator

	_, err := vs.AddVote(v)
	require.ErrorIs(t, err, ErrInvalidVoteSignature)
}

func TestVoteSetList(t *testing.T) {
	chainID := "test-chain"
	tvs, set := makeTestValidators(t, 3, 1)
	vs := NewVoteSet(chainID, 1, 0, PrevoteType, set)

	require.Empty(t, vs.List())

	for i, tv := range tvs {
		v := &Vote{Type: PrevoteType, Height: 1, Round: 0, BlockHash: testHash(0x01), ValidatorIndex: int32(i)}
		require.NoError(t, v.Sign(chainID, tv.priv))
		_, err := vs.AddVote(v)
		require.NoError(t, err)
	}
	require.Len(t, vs.List(), 3)
}
