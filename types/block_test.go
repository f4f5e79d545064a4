package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeTestHeader(t *testing.T, ed *ExtraData) *Header {
	t.Helper()
	h := &Header{
		Number:    1,
		StateRoot: testHash(0x11),
		TxHash:    testHash(0x22),
	}
	require.NoError(t, h.SetExtraData(ed))
	return h
}

// TestHeaderHashExcludesVotesAndProposal is Testable Property 8: two
// headers that agree on everything but their commit/proposal must hash
// identically, since only the evidence hashes feed the seal.
func TestHeaderHashExcludesVotesAndProposal(t *testing.T) {
	tvs, _ := makeTestValidators(t, 1, 1)
	proposal := &Proposal{Height: 1, Round: 0, POLRound: NoPOLRound, BlockHash: testHash(0x99)}
	require.NoError(t, proposal.Sign("test-chain", tvs[0].priv))

	commit := &Commit{Height: 1, Round: 0, BlockHash: testHash(0x99), Bitmap: []bool{true}, Signatures: [][]byte{{1, 2, 3}}}

	h1 := makeTestHeader(t, &ExtraData{Round: 0, POLRound: NoPOLRound})
	h2 := makeTestHeader(t, &ExtraData{Round: 0, POLRound: NoPOLRound, Proposal: proposal, Commit: commit})

	hash1, err := h1.Hash()
	require.NoError(t, err)
	hash2, err := h2.Hash()
	require.NoError(t, err)

	require.Equal(t, hash1, hash2, "proposal/commit must not affect the block hash")
}

// TestHeaderHashCoversEvidence is the other half of Testable Property 8:
// headers that differ only in their evidence set must hash differently.
func TestHeaderHashCoversEvidence(t *testing.T) {
	tvs, _ := makeTestValidators(t, 1, 1)
	va := &Vote{Type: PrecommitType, Height: 1, Round: 0, BlockHash: testHash(0x01), ValidatorIndex: 0}
	require.NoError(t, va.Sign("test-chain", tvs[0].priv))
	vb := &Vote{Type: PrecommitType, Height: 1, Round: 0, BlockHash: testHash(0x02), ValidatorIndex: 0}
	require.NoError(t, vb.Sign("test-chain", tvs[0].priv))
	ev := NewDuplicateVoteEvidence(va, vb)

	h1 := makeTestHeader(t, &ExtraData{Round: 0, POLRound: NoPOLRound})
	h2 := makeTestHeader(t, &ExtraData{Round: 0, POLRound: NoPOLRound, Evidence: []*DuplicateVoteEvidence{ev}})

	hash1, err := h1.Hash()
	require.NoError(t, err)
	hash2, err := h2.Hash()
	require.NoError(t, err)

	require.NotEqual(t, hash1, hash2, "evidence must affect the block hash")
}

func TestExtraDataRoundTrip(t *testing.T) {
	tvs, _ := makeTestValidators(t, 1, 1)
	va := &Vote{Type: PrecommitType, Height: 1, Round: 2, BlockHash: testHash(0x01), ValidatorIndex: 0}
	require.NoError(t, va.Sign("test-chain", tvs[0].priv))
	vb := &Vote{Type: PrecommitType, Height: 1, Round: 2, BlockHash: testHash(0x02), ValidatorIndex: 0}
	require.NoError(t, vb.Sign("test-chain", tvs[0].priv))
	ev := NewDuplicateVoteEvidence(va, vb)

	ed := &ExtraData{
		Round:       2,
		CommitRound: 3,
		POLRound:    1,
		Evidence:    []*DuplicateVoteEvidence{ev},
	}
	bz, err := EncodeExtraData(ed)
	require.NoError(t, err)

	out, err := DecodeExtraData(bz)
	require.NoError(t, err)
	require.Equal(t, ed.Round, out.Round)
	require.Equal(t, ed.CommitRound, out.CommitRound)
	require.Equal(t, ed.POLRound, out.POLRound)
	require.Len(t, out.Evidence, 1)
	require.Equal(t, ev.VoteA.ValidatorIndex, out.Evidence[0].VoteA.ValidatorIndex)
}

func TestExtraDataRoundTripNegativePOLRound(t *testing.T) {
	ed := &ExtraData{Round: 0, CommitRound: -1, POLRound: NoPOLRound}
	bz, err := EncodeExtraData(ed)
	require.NoError(t, err)

	out, err := DecodeExtraData(bz)
	require.NoError(t, err)
	require.Equal(t, int32(NoPOLRound), out.POLRound)
	require.Equal(t, int32(-1), out.CommitRound)
}
