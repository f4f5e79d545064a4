package evidence

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidEvidence wraps a DuplicateVoteEvidence that failed
// verification (mismatched validator indices, equal blockHashes, bad
// signature).
type ErrInvalidEvidence struct {
	Reason string
}

func (e *ErrInvalidEvidence) Error() string {
	return fmt.Sprintf("evidence: invalid: %s", e.Reason)
}

// ErrEvidenceTooOld is returned by checkEvidence when an entry is older
// than maxAgeNumBlocks.
type ErrEvidenceTooOld struct {
	Height    uint64
	MaxHeight uint64
}

func (e *ErrEvidenceTooOld) Error() string {
	return fmt.Sprintf("evidence: height %d is older than max age height %d", e.Height, e.MaxHeight)
}

// ErrEvidenceAlreadyCommitted is returned by checkEvidence and addEvidence
// for an entry that has already been included in a committed block.
type ErrEvidenceAlreadyCommitted struct {
	Hash common.Hash
}

func (e *ErrEvidenceAlreadyCommitted) Error() string {
	return fmt.Sprintf("evidence: %s was already committed", e.Hash.Hex())
}

// ErrVotingPowerDoesNotMatch mirrors cometbft's evidence/errors.go:
// the validator a piece of evidence targets has a different voting
// power in our view of the validator set at that height than the
// evidence's signer recovers to, which should not happen for valid
// evidence.
type ErrVotingPowerDoesNotMatch struct {
	TrustedVotingPower  int64
	EvidenceVotingPower int64
}

func (e *ErrVotingPowerDoesNotMatch) Error() string {
	return fmt.Sprintf("evidence: total voting power from the evidence and our validator set does not match (%d != %d)", e.TrustedVotingPower, e.EvidenceVotingPower)
}

// ErrAddressNotValidatorAtHeight is returned when the address a piece of
// evidence implicates was not a member of the validator set at that
// height.
type ErrAddressNotValidatorAtHeight struct {
	Address common.Address
	Height  uint64
}

func (e *ErrAddressNotValidatorAtHeight) Error() string {
	return fmt.Sprintf("evidence: address %s was not a validator at height %d", e.Address.Hex(), e.Height)
}
