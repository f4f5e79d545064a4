package types

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	rcrypto "github.com/reimint/reimint/crypto"
)

// Validator is a single entry of a ValidatorSet: an address, its voting
// power, and the proposer-priority accumulator maintained across rounds.
//
// NOTE: ProposerPriority is intentionally excluded from any hash of the
// validator — it is volatile, per-node-local state recomputed from the
// voting power alone, not consensus data that needs to be agreed on ahead
// of time (it IS consensus-critical in the sense that every correct node
// computes the same sequence of priorities deterministically from the
// same starting set, per Testable Property 2).
type Validator struct {
	Address common.Address
	PubKey  rcrypto.PubKey

	VotingPower int64

	ProposerPriority int64
}

// NewValidator constructs a Validator with a zeroed ProposerPriority.
func NewValidator(pubKey rcrypto.PubKey, votingPower int64) *Validator {
	return &Validator{
		Address:     pubKey.Address(),
		PubKey:      pubKey,
		VotingPower: votingPower,
	}
}

// Copy returns a copy of the validator so ProposerPriority can be mutated
// without aliasing the original.
func (v *Validator) Copy() *Validator {
	vCopy := *v
	return &vCopy
}

// CompareProposerPriority returns the validator with the higher priority
// of the two, breaking ties by address (lower address wins), matching
// "ties broken by address" rule.
func (v *Validator) CompareProposerPriority(other *Validator) *Validator {
	if v == nil {
		return other
	}
	switch {
	case v.ProposerPriority > other.ProposerPriority:
		return v
	case v.ProposerPriority < other.ProposerPriority:
		return other
	default:
		if bytes.Compare(v.Address[:], other.Address[:]) < 0 {
			return v
		}
		return other
	}
}

func (v *Validator) String() string {
	if v == nil {
		return "nil-Validator"
	}
	return fmt.Sprintf("Validator{%s power=%d priority=%d}", v.Address.Hex(), v.VotingPower, v.ProposerPriority)
}

// ValidatorsByAddress sorts validators by descending voting power, with
// address as a tiebreak ("Ordered by descending voting
// power, then by address as a tiebreak").
type ValidatorsByAddress []*Validator

func (vs ValidatorsByAddress) Len() int { return len(vs) }

func (vs ValidatorsByAddress) Less(i, j int) bool {
	if vs[i].VotingPower != vs[j].VotingPower {
		return vs[i].VotingPower > vs[j].VotingPower
	}
	return bytes.Compare(vs[i].Address[:], vs[j].Address[:]) < 0
}

func (vs ValidatorsByAddress) Swap(i, j int) { vs[i], vs[j] = vs[j], vs[i] }
