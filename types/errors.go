package types

import (
	"errors"
	"fmt"
)

var (
	// ErrVoteInvalidValidatorIndex is returned when a vote's
	// ValidatorIndex is out of range of the validator set it is being
	// added against.
	ErrVoteInvalidValidatorIndex = errors.New("types: vote has invalid validator index")

	// ErrInvalidVoteSignature is returned when a vote's signature does
	// not recover to the address of the validator at its index.
	ErrInvalidVoteSignature = errors.New("types: vote signature does not match validator")

	// ErrVoteHeightRoundTypeMismatch is returned by VoteSet.AddVote when
	// the vote does not belong to this (height, round, type).
	ErrVoteHeightRoundTypeMismatch = errors.New("types: vote height/round/type does not match vote set")

	// ErrGotVoteFromUnwantedRound is returned by HeightVoteSet.AddVote
	// when a peer tries to seed more than the allowed number of future
	// rounds.
	ErrGotVoteFromUnwantedRound = errors.New("types: peer catchup round limit exceeded")

	// ErrInvalidProposalPOLRound is returned when a Proposal's POLRound
	// is out of the legal {-1} ∪ [0, round-1] range.
	ErrInvalidProposalPOLRound = errors.New("types: proposal POLRound out of range")

	// ErrInvalidProposalSignature is returned when a Proposal's
	// signature does not recover to the set's proposer.
	ErrInvalidProposalSignature = errors.New("types: proposal signature does not match proposer")

	// ErrCommitQuorumNotMet is returned by MakeCommit when no maj23 has
	// been reached on the precommit VoteSet.
	ErrCommitQuorumNotMet = errors.New("types: cannot make commit, no +2/3 majority of precommits")
)

// ErrConflictingVotes is raised by VoteSet.AddVote when a validator has
// already voted for a different block at the same (height, round, type).
// It is not treated as a protocol violation by the state machine — it is
// routed to the Evidence Pool instead.
type ErrConflictingVotes struct {
	VoteA *Vote
	VoteB *Vote
}

func (e *ErrConflictingVotes) Error() string {
	return fmt.Sprintf("types: conflicting votes from validator index %d at height %d round %d", e.VoteA.ValidatorIndex, e.VoteA.Height, e.VoteA.Round)
}
