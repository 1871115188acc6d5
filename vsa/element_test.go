package vsa

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func singleton(vals ...uint64) AbsStackElem {
	e := newElem(nil)
	for _, v := range vals {
		e.append(uint256.NewInt(v))
	}
	return e
}

func TestMergeIdempotentAndCommutative(t *testing.T) {
	a := singleton(1, 2)
	b := singleton(3, 5)

	assert.True(t, a.Merge(a).Equal(a))

	ab := a.Merge(b)
	ba := b.Merge(a)
	assert.True(t, ab.Equal(ba))

	vals, unknown := ab.Vals()
	assert.False(t, unknown)
	assert.Len(t, vals, 4)
}

func TestMergeWithTopIsTop(t *testing.T) {
	a := singleton(1)
	top := topElem(nil)
	assert.True(t, a.Merge(top).IsTop())
	assert.True(t, top.Merge(a).IsTop())
}

func TestMergeWidensToTopWhenOverCapacity(t *testing.T) {
	auth := newAuthorizedValues(map[uint64]struct{}{1: {}, 2: {}})
	a := newElem(auth)
	a.append(uint256.NewInt(1))
	b := newElem(auth)
	b.append(uint256.NewInt(2))

	merged := a.Merge(b)
	assert.False(t, merged.IsTop(), "2 values exactly at capacity should not widen")

	c := newElem(auth)
	c.append(uint256.NewInt(99)) // not an authorized value -> collapses to unknown
	merged2 := a.Merge(c).Merge(b)
	// {1} merged with {unknown} merged with {2}: three distinct slots
	// (1, unknown, 2) against a capacity of 2 -> widens to TOP.
	assert.True(t, merged2.IsTop())
}

func TestAndCommutativeAndWithTop(t *testing.T) {
	a := singleton(0xff)
	b := singleton(0x0f)
	ab := a.And(b)
	ba := b.And(a)
	assert.True(t, ab.Equal(ba))

	vals, unknown := ab.Vals()
	assert.False(t, unknown)
	require := assert.New(t)
	require.Len(vals, 1)
	for v := range vals {
		require.Equal(uint64(0x0f), v.Uint64())
	}

	top := topElem(nil)
	assert.True(t, a.And(top).IsTop())
	assert.True(t, top.And(a).IsTop())
}

func TestAndPropagatesUnknown(t *testing.T) {
	a := newElem(nil)
	a.append(nil) // unknown
	b := singleton(7)

	result := a.And(b)
	_, unknown := result.Vals()
	assert.True(t, unknown)
}

func TestAuthorizedValuesCollapseToUnknown(t *testing.T) {
	auth := newAuthorizedValues(map[uint64]struct{}{0x10: {}})
	e := newElem(auth)
	e.append(uint256.NewInt(0x10))
	e.append(uint256.NewInt(0x20)) // not authorized -> unknown
	e.append(uint256.NewInt(0x30)) // also unknown, must not double count

	vals, unknown := e.Vals()
	assert.True(t, unknown)
	assert.Len(t, vals, 1)
	assert.Equal(t, 2, e.count())
}

func TestEqual(t *testing.T) {
	a := singleton(1, 2)
	b := singleton(2, 1)
	assert.True(t, a.Equal(b))

	c := singleton(1, 2, 3)
	assert.False(t, a.Equal(c))

	assert.True(t, topElem(nil).Equal(topElem(nil)))
	assert.False(t, topElem(nil).Equal(a))
}
