package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	rcrypto "github.com/reimint/reimint/crypto"
)

// testValidator pairs a generated key with the Validator entry it
// signs on behalf of, for building ValidatorSets and signed votes in
// tests without a running privval.
type testValidator struct {
	priv rcrypto.PrivKey
	val  *Validator
}

func makeTestValidators(t *testing.T, n int, power int64) ([]*testValidator, *ValidatorSet) {
	t.Helper()
	tvs := make([]*testValidator, n)
	vals := make([]*Validator, n)
	for i := 0; i < n; i++ {
		priv, err := rcrypto.GenPrivKey()
		require.NoError(t, err)
		val := NewValidator(priv.PubKey(), power)
		tvs[i] = &testValidator{priv: priv, val: val}
		vals[i] = val
	}
	set, err := NewValidatorSet(vals)
	require.NoError(t, err)
	// Return tvs in the set's own order, so tvs[i] signs for index i.
	ordered := make([]*testValidator, n)
	for i, v := range set.Validators {
		for _, tv := range tvs {
			if tv.val.Address == v.Address {
				ordered[i] = tv
			}
		}
	}
	return ordered, set
}

// testHash returns a deterministic non-zero hash for use as a stand-in
// blockHash, distinguished by its single seed byte.
func testHash(seed byte) common.Hash {
	var h common.Hash
	h[len(h)-1] = seed
	return h
}

// mustPubKey generates a fresh key and returns only its public half, for
// tests that only need a Validator's identity, not its signing key.
func mustPubKey(t *testing.T) rcrypto.PubKey {
	t.Helper()
	priv, err := rcrypto.GenPrivKey()
	require.NoError(t, err)
	return priv.PubKey()
}
