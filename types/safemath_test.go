package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafeAddOverflow(t *testing.T) {
	_, overflow := safeAdd(maxInt64, 1)
	require.True(t, overflow)

	_, overflow = safeAdd(minInt64, -1)
	require.True(t, overflow)

	sum, overflow := safeAdd(10, 20)
	require.False(t, overflow)
	require.Equal(t, int64(30), sum)
}

func TestSafeSubOverflow(t *testing.T) {
	_, overflow := safeSub(minInt64, 1)
	require.True(t, overflow)

	diff, overflow := safeSub(30, 10)
	require.False(t, overflow)
	require.Equal(t, int64(20), diff)
}

func TestSafeMulOverflow(t *testing.T) {
	_, overflow := safeMul(maxInt64, 2)
	require.True(t, overflow)

	product, overflow := safeMul(6, 7)
	require.False(t, overflow)
	require.Equal(t, int64(42), product)

	product, overflow = safeMul(-6, 7)
	require.False(t, overflow)
	require.Equal(t, int64(-42), product)

	product, overflow = safeMul(0, maxInt64)
	require.False(t, overflow)
	require.Equal(t, int64(0), product)
}

func TestMustSafeAddPanicsOnOverflow(t *testing.T) {
	require.Panics(t, func() { mustSafeAdd(maxInt64, 1) })
	require.NotPanics(t, func() { mustSafeAdd(1, 1) })
}

func TestMustSafeSubPanicsOnOverflow(t *testing.T) {
	require.Panics(t, func() { mustSafeSub(minInt64, 1) })
	require.NotPanics(t, func() { mustSafeSub(2, 1) })
}
