package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// DuplicateVoteEvidence records two votes signed by the same validator
// for the same (height, round, type) but different blockHashes — proof
// of Byzantine behaviour.
type DuplicateVoteEvidence struct {
	VoteA *Vote
	VoteB *Vote
}

// NewDuplicateVoteEvidence orders the two votes canonically
// (VoteA.BlockHash < VoteB.BlockHash) so the same pair of conflicting
// votes always produces the same evidence regardless of arrival order.
func NewDuplicateVoteEvidence(v1, v2 *Vote) *DuplicateVoteEvidence {
	a, b := CanonicalOrder(v1, v2)
	return &DuplicateVoteEvidence{VoteA: a, VoteB: b}
}

// Height is the height at which the conflicting votes were cast.
func (e *DuplicateVoteEvidence) Height() uint64 { return e.VoteA.Height }

// ValidatorAddress is the offending validator's address.
func (e *DuplicateVoteEvidence) ValidatorAddress() common.Address {
	return e.VoteA.ValidatorAddress
}

// Verify checks that both votes share (validatorIndex, height, round,
// type), carry distinct blockHashes, and both signatures are valid
// against addr.
func (e *DuplicateVoteEvidence) Verify(chainID string, addr common.Address) error {
	a, b := e.VoteA, e.VoteB
	if a.ValidatorIndex != b.ValidatorIndex || a.Height != b.Height ||
		a.Round != b.Round || a.Type != b.Type {
		return fmt.Errorf("types: duplicate vote evidence votes do not share (validator,height,round,type)")
	}
	if a.BlockHash == b.BlockHash {
		return fmt.Errorf("types: duplicate vote evidence votes commit to the same block")
	}
	if err := a.Verify(chainID, addr); err != nil {
		return fmt.Errorf("types: duplicate vote evidence vote A: %w", err)
	}
	if err := b.Verify(chainID, addr); err != nil {
		return fmt.Errorf("types: duplicate vote evidence vote B: %w", err)
	}
	return nil
}

// evidenceRLP is the wire shape for a DuplicateVoteEvidence:
// RLP([kind=0, voteA, voteB]).
type evidenceRLP struct {
	Kind  uint8
	VoteA *Vote
	VoteB *Vote
}

const duplicateVoteEvidenceKind = 0

// Bytes returns the canonical RLP wire encoding of the evidence.
func (e *DuplicateVoteEvidence) Bytes() ([]byte, error) {
	return rlp.EncodeToBytes(&evidenceRLP{
		Kind:  duplicateVoteEvidenceKind,
		VoteA: e.VoteA,
		VoteB: e.VoteB,
	})
}

// Hash is keccak256 of the evidence's RLP encoding — the value embedded
// in ExtraData and used as the block-hash-affecting commitment.
func (e *DuplicateVoteEvidence) Hash() (common.Hash, error) {
	bz, err := e.Bytes()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(bz), nil
}

func (e *DuplicateVoteEvidence) String() string {
	return fmt.Sprintf("DuplicateVoteEvidence{validator=%s height=%d round=%d}", e.ValidatorAddress().Hex(), e.Height(), e.VoteA.Round)
}
