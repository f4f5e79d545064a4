package evidence

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	rcrypto "github.com/reimint/reimint/crypto"
	"github.com/reimint/reimint/types"
	"github.com/stretchr/testify/require"
)

type testValidator struct {
	priv rcrypto.PrivKey
	val  *types.Validator
}

func makeTestValidators(t *testing.T, n int, power int64) ([]*testValidator, *types.ValidatorSet) {
	t.Helper()
	out := make([]*testValidator, n)
	vals := make([]*types.Validator, n)
	for i := 0; i < n; i++ {
		priv, err := rcrypto.GenPrivKey()
		require.NoError(t, err)
		val := types.NewValidator(priv.PubKey(), power)
		out[i] = &testValidator{priv: priv, val: val}
		vals[i] = val
	}
	set, err := types.NewValidatorSet(vals)
	require.NoError(t, err)
	return out, set
}

// fakeValSource answers GetValidatorSetAtHeight with a single fixed set
// regardless of the requested height, which is all the pool's own
// verification logic needs from its ValidatorSetSource dependency.
type fakeValSource struct {
	set *types.ValidatorSet
	err error
}

func (f *fakeValSource) GetValidatorSetAtHeight(height uint64) (*types.ValidatorSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.set, nil
}

func testHash(seed byte) common.Hash {
	var h common.Hash
	h[31] = seed
	return h
}
