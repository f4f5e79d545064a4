// Package staking stands in for the staking-contract reader: a
// deterministic function from a state root to the validator set active
// at that root. The real implementation would read a staking contract's
// storage through the EVM state trie; that execution path is out of
// scope, so this package only provides the seam and an in-memory table
// a node operator or test populates directly.
package staking

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reimint/reimint/types"
)

// Reader resolves the validator set active at a given state root,
// matching getValidatorSet(stateRoot) -> ValidatorSet.
type Reader interface {
	GetValidatorSet(stateRoot common.Hash) (*types.ValidatorSet, error)
}

// ErrUnknownStateRoot is returned by InMemoryReader when no validator
// set was ever registered for a given root.
type ErrUnknownStateRoot struct {
	StateRoot common.Hash
}

func (e *ErrUnknownStateRoot) Error() string {
	return fmt.Sprintf("staking: no validator set registered for state root %s", e.StateRoot.Hex())
}

// InMemoryReader is a deterministic, in-memory Reader: a fixed mapping
// from state root to validator set, set up once at genesis/test time
// and never mutated afterward except via Register (e.g. on an
// epoch/validator-set-change commit).
type InMemoryReader struct {
	mtx  sync.RWMutex
	sets map[common.Hash]*types.ValidatorSet
}

// NewInMemoryReader constructs an empty reader.
func NewInMemoryReader() *InMemoryReader {
	return &InMemoryReader{sets: make(map[common.Hash]*types.ValidatorSet)}
}

// Register associates stateRoot with vals. Subsequent lookups for that
// root return a defensive copy of vals.
func (r *InMemoryReader) Register(stateRoot common.Hash, vals *types.ValidatorSet) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.sets[stateRoot] = vals
}

// GetValidatorSet implements Reader.
func (r *InMemoryReader) GetValidatorSet(stateRoot common.Hash) (*types.ValidatorSet, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	vs, ok := r.sets[stateRoot]
	if !ok {
		return nil, &ErrUnknownStateRoot{StateRoot: stateRoot}
	}
	return vs.Copy(), nil
}
