package evidence

import (
	"testing"

	"github.com/reimint/reimint/types"
	"github.com/stretchr/testify/require"
)

func makeConflictingEvidence(t *testing.T, tv *testValidator, height uint64, round int32) *types.DuplicateVoteEvidence {
	t.Helper()
	va := &types.Vote{Type: types.PrecommitType, Height: height, Round: round, BlockHash: testHash(0x01), ValidatorIndex: 0}
	require.NoError(t, va.Sign("test-chain", tv.priv))
	vb := &types.Vote{Type: types.PrecommitType, Height: height, Round: round, BlockHash: testHash(0x02), ValidatorIndex: 0}
	require.NoError(t, vb.Sign("test-chain", tv.priv))
	return types.NewDuplicateVoteEvidence(va, vb)
}

func newTestPool(t *testing.T, set *types.ValidatorSet, maxAge uint64) *Pool {
	t.Helper()
	pool, err := NewPool(t.TempDir(), "test-chain", &fakeValSource{set: set}, maxAge, 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestPoolAddEvidenceAndFetchPending(t *testing.T) {
	tvs, set := makeTestValidators(t, 1, 10)
	pool := newTestPool(t, set, 1000)

	ev := makeConflictingEvidence(t, tvs[0], 5, 0)
	require.NoError(t, pool.AddEvidence(ev))

	pending, err := pool.PendingEvidence(1 << 20)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, ev.VoteA.ValidatorIndex, pending[0].VoteA.ValidatorIndex)
}

func TestPoolAddEvidenceRejectsUnknownValidator(t *testing.T) {
	tvs, _ := makeTestValidators(t, 1, 10)
	otherTvs, otherSet := makeTestValidators(t, 1, 10)
	_ = otherTvs
	pool := newTestPool(t, otherSet, 1000)

	ev := makeConflictingEvidence(t, tvs[0], 5, 0)
	err := pool.AddEvidence(ev)
	require.Error(t, err)
	require.ErrorAs(t, err, new(*ErrAddressNotValidatorAtHeight))
}

func TestPoolAddEvidenceRejectsInvalidSignature(t *testing.T) {
	tvs, set := makeTestValidators(t, 2, 10)
	pool := newTestPool(t, set, 1000)

	// vote signed by validator 1's key but claiming to be validator 0.
	va := &types.Vote{Type: types.PrecommitType, Height: 5, Round: 0, BlockHash: testHash(0x01), ValidatorIndex: 0}
	require.NoError(t, va.Sign("test-chain", tvs[1].priv))
	va.ValidatorAddress = tvs[0].val.Address
	vb := &types.Vote{Type: types.PrecommitType, Height: 5, Round: 0, BlockHash: testHash(0x02), ValidatorIndex: 0}
	require.NoError(t, vb.Sign("test-chain", tvs[1].priv))
	vb.ValidatorAddress = tvs[0].val.Address

	ev := &types.DuplicateVoteEvidence{VoteA: va, VoteB: vb}
	err := pool.AddEvidence(ev)
	require.Error(t, err)
	require.ErrorAs(t, err, new(*ErrInvalidEvidence))
}

func TestPoolUpdateMovesPendingToCommitted(t *testing.T) {
	tvs, set := makeTestValidators(t, 1, 10)
	pool := newTestPool(t, set, 1000)

	ev := makeConflictingEvidence(t, tvs[0], 5, 0)
	require.NoError(t, pool.AddEvidence(ev))

	require.NoError(t, pool.Update([]*types.DuplicateVoteEvidence{ev}, 6))

	pending, err := pool.PendingEvidence(1 << 20)
	require.NoError(t, err)
	require.Empty(t, pending)

	err = pool.AddEvidence(ev)
	require.Error(t, err)
	require.ErrorAs(t, err, new(*ErrEvidenceAlreadyCommitted))
}

func TestPoolUpdatePrunesOldPendingEvidence(t *testing.T) {
	tvs, set := makeTestValidators(t, 1, 10)
	pool := newTestPool(t, set, 5)

	oldEv := makeConflictingEvidence(t, tvs[0], 1, 0)
	require.NoError(t, pool.AddEvidence(oldEv))

	require.NoError(t, pool.Update(nil, 100))

	pending, err := pool.PendingEvidence(1 << 20)
	require.NoError(t, err)
	require.Empty(t, pending, "evidence older than maxAgeNumBlocks relative to the new height must be pruned")
}

func TestPoolCheckEvidenceRejectsTooOld(t *testing.T) {
	tvs, set := makeTestValidators(t, 1, 10)
	pool := newTestPool(t, set, 5)

	ev := makeConflictingEvidence(t, tvs[0], 1, 0)
	err := pool.CheckEvidence([]*types.DuplicateVoteEvidence{ev}, 100)
	require.Error(t, err)
	require.ErrorAs(t, err, new(*ErrEvidenceTooOld))
}

func TestPoolCheckEvidenceAcceptsFresh(t *testing.T) {
	tvs, set := makeTestValidators(t, 1, 10)
	pool := newTestPool(t, set, 1000)

	ev := makeConflictingEvidence(t, tvs[0], 90, 0)
	require.NoError(t, pool.CheckEvidence([]*types.DuplicateVoteEvidence{ev}, 100))
}
