package types

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// priorityWindowSizeFactor bounds the spread of proposer priorities to
// 2*totalVotingPower ("if min/max spread exceeds 2*P,
// every priority is scaled").
const priorityWindowSizeFactor = 2

// ErrInvalidValidatorSet is returned by NewValidatorSet when the supplied
// validators cannot form a legal set, e.g. total voting power overflowing
// 63 bits.
type ErrInvalidValidatorSet struct {
	Reason string
}

func (e *ErrInvalidValidatorSet) Error() string {
	return fmt.Sprintf("invalid validator set: %s", e.Reason)
}

// ValidatorSet is an ordered, weighted set of validators together with
// the proposer-priority accumulator used to deterministically rotate the
// proposer across rounds.
type ValidatorSet struct {
	Validators []*Validator
	proposer   *Validator

	totalVotingPower int64
}

// NewValidatorSet builds a ValidatorSet from the given validators and
// sorts them deterministically. Running an IncrementProposerPriority
// step from an all-zero-priority starting point isn't meaningful for a
// set freshly seeded from staking state, so the initial proposer is
// simply the first validator in sorted order until the first real
// IncrementProposerPriority call establishes a priority-driven proposer.
func NewValidatorSet(vals []*Validator) (*ValidatorSet, error) {
	if len(vals) == 0 {
		return nil, &ErrInvalidValidatorSet{Reason: "empty validator list"}
	}

	cp := make([]*Validator, len(vals))
	for i, v := range vals {
		cp[i] = v.Copy()
	}
	sort.Sort(ValidatorsByAddress(cp))

	vs := &ValidatorSet{Validators: cp}
	if err := vs.recomputeTotalVotingPower(); err != nil {
		return nil, err
	}
	vs.proposer = vs.Validators[0]
	return vs, nil
}

func (vs *ValidatorSet) recomputeTotalVotingPower() error {
	var total int64
	for _, v := range vs.Validators {
		if v.VotingPower <= 0 {
			return &ErrInvalidValidatorSet{Reason: fmt.Sprintf("validator %s has non-positive voting power %d", v.Address.Hex(), v.VotingPower)}
		}
		sum, overflow := safeAdd(total, v.VotingPower)
		if overflow {
			return &ErrInvalidValidatorSet{Reason: "total voting power overflows 63 bits"}
		}
		total = sum
	}
	vs.totalVotingPower = total
	return nil
}

// TotalVotingPower returns P = Σ votingPower.
func (vs *ValidatorSet) TotalVotingPower() int64 {
	return vs.totalVotingPower
}

// Length returns the number of validators in the set.
func (vs *ValidatorSet) Length() int {
	return len(vs.Validators)
}

// Copy returns a deep copy: validators and their priorities, and the
// current proposer pointer rebound to the copy's own slice.
func (vs *ValidatorSet) Copy() *ValidatorSet {
	cp := make([]*Validator, len(vs.Validators))
	var proposerIdx = -1
	for i, v := range vs.Validators {
		cp[i] = v.Copy()
		if vs.proposer != nil && v == vs.proposer {
			proposerIdx = i
		}
	}
	out := &ValidatorSet{
		Validators:       cp,
		totalVotingPower: vs.totalVotingPower,
	}
	if proposerIdx >= 0 {
		out.proposer = cp[proposerIdx]
	}
	return out
}

// GetIndexByAddress returns the index of the validator with the given
// address, or -1 if absent.
func (vs *ValidatorSet) GetIndexByAddress(addr common.Address) int {
	for i, v := range vs.Validators {
		if v.Address == addr {
			return i
		}
	}
	return -1
}

// GetByIndex returns the validator at the given index, or nil if out of
// range.
func (vs *ValidatorSet) GetByIndex(index int) *Validator {
	if index < 0 || index >= len(vs.Validators) {
		return nil
	}
	return vs.Validators[index]
}

// GetVotingPower returns the voting power of the validator at addr, or
// zero if it is not in the set.
func (vs *ValidatorSet) GetVotingPower(addr common.Address) int64 {
	idx := vs.GetIndexByAddress(addr)
	if idx < 0 {
		return 0
	}
	return vs.Validators[idx].VotingPower
}

// Proposer returns the validator selected by the most recent
// IncrementProposerPriority call (or the seeded proposer before the
// first increment).
func (vs *ValidatorSet) Proposer() *Validator {
	return vs.proposer
}

// IncrementProposerPriority advances the proposer-priority accumulator
// `times` rounds and returns the new proposer, as follows:
//
//  1. add each validator's voting power to its priority;
//  2. scale (clamp) every priority down if the min/max spread exceeds 2*P;
//  3. re-center priorities around a mean of zero;
//  4. select the highest-priority validator (address tiebreak);
//  5. subtract P from the selected validator's priority.
func (vs *ValidatorSet) IncrementProposerPriority(times int) *Validator {
	if times <= 0 {
		return vs.proposer
	}
	for i := 0; i < times; i++ {
		vs.incrementProposerPriorityOnce()
	}
	return vs.proposer
}

func (vs *ValidatorSet) incrementProposerPriorityOnce() {
	for _, v := range vs.Validators {
		v.ProposerPriority = mustSafeAdd(v.ProposerPriority, v.VotingPower)
	}

	vs.rescalePriorities()
	vs.centerPriorities()

	var mostPriority *Validator
	for _, v := range vs.Validators {
		mostPriority = mostPriority.CompareProposerPriority(v)
	}
	mostPriority.ProposerPriority = mustSafeSub(mostPriority.ProposerPriority, vs.totalVotingPower)
	vs.proposer = mostPriority
}

// rescalePriorities scales every priority down when the spread between
// the highest and lowest priority exceeds priorityWindowSizeFactor*P,
// "diffMax = 2*P; divisor = ceil(diff / diffMax)".
func (vs *ValidatorSet) rescalePriorities() {
	if len(vs.Validators) == 0 {
		return
	}
	diffMax := priorityWindowSizeFactor * vs.totalVotingPower

	max := vs.Validators[0].ProposerPriority
	min := vs.Validators[0].ProposerPriority
	for _, v := range vs.Validators[1:] {
		if v.ProposerPriority > max {
			max = v.ProposerPriority
		}
		if v.ProposerPriority < min {
			min = v.ProposerPriority
		}
	}
	diff := max - min
	if diff < 0 {
		diff = -diff
	}
	if diff <= diffMax {
		return
	}

	divisor := diff/diffMax + 1
	if diff%diffMax == 0 {
		divisor = diff / diffMax
	}
	if divisor <= 0 {
		divisor = 1
	}
	for _, v := range vs.Validators {
		v.ProposerPriority /= divisor
	}
}

// centerPriorities subtracts the (floor-divided) mean priority from
// every validator so the new mean is zero.
func (vs *ValidatorSet) centerPriorities() {
	if len(vs.Validators) == 0 {
		return
	}
	var sum int64
	for _, v := range vs.Validators {
		sum = mustSafeAdd(sum, v.ProposerPriority)
	}
	mean := sum / int64(len(vs.Validators))
	for _, v := range vs.Validators {
		v.ProposerPriority = mustSafeSub(v.ProposerPriority, mean)
	}
}

func (vs *ValidatorSet) String() string {
	return fmt.Sprintf("ValidatorSet{%d validators, totalPower=%d, proposer=%s}", len(vs.Validators), vs.totalVotingPower, vs.proposer)
}
