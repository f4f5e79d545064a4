// Package cstypes holds the transient per-height state the Reimint
// state machine mutates: RoundState and its RoundStepType, mirroring
// cometbft's internal/consensus/types package (pruned from the
// retrieved pack; rebuilt here from its call sites in state.go).
package cstypes

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reimint/reimint/types"
)

// RoundStepType enumerates the phases a round passes through.
type RoundStepType uint8

const (
	RoundStepNewHeight RoundStepType = iota + 1
	RoundStepNewRound
	RoundStepPropose
	RoundStepPrevote
	RoundStepPrevoteWait
	RoundStepPrecommit
	RoundStepPrecommitWait
	RoundStepCommit
)

func (s RoundStepType) String() string {
	switch s {
	case RoundStepNewHeight:
		return "RoundStepNewHeight"
	case RoundStepNewRound:
		return "RoundStepNewRound"
	case RoundStepPropose:
		return "RoundStepPropose"
	case RoundStepPrevote:
		return "RoundStepPrevote"
	case RoundStepPrevoteWait:
		return "RoundStepPrevoteWait"
	case RoundStepPrecommit:
		return "RoundStepPrecommit"
	case RoundStepPrecommitWait:
		return "RoundStepPrecommitWait"
	case RoundStepCommit:
		return "RoundStepCommit"
	default:
		return fmt.Sprintf("RoundStepUnknown(%d)", uint8(s))
	}
}

// RoundState is the full transient state the Reimint state machine
// drives forward, one height at a time.
type RoundState struct {
	Height uint64
	Round  int32
	Step   RoundStepType

	StartTime  time.Time
	CommitTime time.Time

	Validators *types.ValidatorSet

	Proposal          *types.Proposal
	ProposalBlockHash common.Hash
	ProposalBlock     *types.Block

	LockedRound int32
	LockedBlock *types.Block

	ValidRound int32
	ValidBlock *types.Block

	Votes *types.HeightVoteSet

	CommitRound int32

	TriggeredTimeoutPrecommit bool
}

// NewRoundState constructs a RoundState for height with LockedRound,
// ValidRound and CommitRound seeded to -1.
func NewRoundState(height uint64, validators *types.ValidatorSet, votes *types.HeightVoteSet) *RoundState {
	return &RoundState{
		Height:      height,
		Round:       0,
		Step:        RoundStepNewHeight,
		Validators:  validators,
		Votes:       votes,
		LockedRound: -1,
		ValidRound:  -1,
		CommitRound: -1,
	}
}

// HasProposalBlock reports whether the full block body for the current
// proposal has arrived.
func (rs *RoundState) HasProposalBlock() bool {
	return rs.ProposalBlock != nil
}

func (rs *RoundState) String() string {
	return fmt.Sprintf("RoundState{H:%d R:%d %s}", rs.Height, rs.Round, rs.Step)
}
