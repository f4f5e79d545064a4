package consensus

import "errors"

var (
	// ErrInvalidProposalBlock is logged and turned into a nil prevote;
	// it is never a protocol violation unless the proposer's signature
	// itself is forged .
	ErrInvalidProposalBlock = errors.New("consensus: invalid proposal block")

	// ErrProposalWithoutPreviousCommit means addProposalBlock was asked
	// to validate a block whose parent we have not finalized.
	ErrProposalWithoutPreviousCommit = errors.New("consensus: proposal block references unknown parent")

	// ErrPubKeyIsNotSet means the local privValidator has no key loaded
	// yet, so decideProposal/signVote cannot proceed.
	ErrPubKeyIsNotSet = errors.New("consensus: private validator's public key is not set")

	// ErrNilPrivValidator means the State was not given a privValidator
	// and therefore can never be the proposer.
	ErrNilPrivValidator = errors.New("consensus: private validator is not set")

	// ErrCommitBlockFailed is logged as fatal-for-this-height: the
	// height stays parked at Commit until the next height's timeout
	// machinery naturally re-enters consensus .
	ErrCommitBlockFailed = errors.New("consensus: commitBlock failed")
)

// ErrConsensusMessageNotRecognized wraps an unknown wire message code
// encountered in Reactor demultiplexing.
type ErrConsensusMessageNotRecognized struct {
	Code byte
}

func (e ErrConsensusMessageNotRecognized) Error() string {
	return "consensus: unrecognized message code"
}

// ErrDenyMessageOverflow describes a bounded per-peer queue that would
// need to grow past its limit. No code path in this package constructs
// or returns it: enqueue handles a full queue by dropping the oldest
// entry.
type ErrDenyMessageOverflow struct {
	Queue string
	cause error
}

func (e *ErrDenyMessageOverflow) Error() string {
	return "consensus: message queue overflow: " + e.Queue
}

func (e *ErrDenyMessageOverflow) Unwrap() error {
	return e.cause
}
