package vsa

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopRoundTrip(t *testing.T) {
	s := newStack(nil)
	s.Push(uint256.NewInt(42))
	got := s.Pop()
	vals, unknown := got.Vals()
	assert.False(t, unknown)
	require.Len(t, vals, 1)
	for v := range vals {
		assert.Equal(t, uint64(42), v.Uint64())
	}
	assert.Equal(t, 0, s.Depth())
}

func TestPopFromEmptyExtendsWithUnknown(t *testing.T) {
	s := newStack(nil)
	top := s.Pop()
	_, unknown := top.Vals()
	assert.True(t, unknown)
}

func TestSwap(t *testing.T) {
	s := newStack(nil)
	s.Push(uint256.NewInt(1))
	s.Push(uint256.NewInt(2))
	s.Push(uint256.NewInt(3))
	s.Swap(2) // swap top (3) with 3rd from top (1)

	require.Equal(t, 3, s.Depth())
	top := s.Pop()
	vals, _ := top.Vals()
	for v := range vals {
		assert.Equal(t, uint64(1), v.Uint64())
	}
}

func TestSwapUnderflowExtends(t *testing.T) {
	s := newStack(nil)
	s.Push(uint256.NewInt(9))
	s.Swap(2) // depth 1, need depth 3: bottom gets padded with unknowns

	require.Equal(t, 3, s.Depth())
	// The top slot itself is untouched by an underflowing swap (only the
	// (n+1)-th-from-top slot receives the prior top); it stays the
	// original concrete value.
	top := s.Pop()
	vals, unknown := top.Vals()
	assert.False(t, unknown)
	for v := range vals {
		assert.Equal(t, uint64(9), v.Uint64())
	}

	// The (n+1)-th-from-top slot (now the bottom) holds the prior top.
	s.Pop()
	bottom := s.Pop()
	vals, _ = bottom.Vals()
	for v := range vals {
		assert.Equal(t, uint64(9), v.Uint64())
	}
}

func TestDup(t *testing.T) {
	s := newStack(nil)
	s.Push(uint256.NewInt(1))
	s.Push(uint256.NewInt(2))
	s.Dup(2) // duplicate the 1 from below the top

	require.Equal(t, 3, s.Depth())
	top := s.Pop()
	vals, _ := top.Vals()
	for v := range vals {
		assert.Equal(t, uint64(1), v.Uint64())
	}
}

func TestDupUnderflowPushesUnknown(t *testing.T) {
	s := newStack(nil)
	s.Dup(1)
	require.Equal(t, 1, s.Depth())
	_, unknown := s.Pop().Vals()
	assert.True(t, unknown)
}

func TestMergeStacksShorterTakesDeeperVerbatim(t *testing.T) {
	short := newStack(nil)
	short.Push(uint256.NewInt(100)) // depth 1: [100]

	long := newStack(nil)
	long.Push(uint256.NewInt(7)) // bottom, no counterpart in short
	long.Push(uint256.NewInt(9)) // top, merges with short's only slot

	merged := mergeStacks([]*Stack{short, long}, nil)
	require.Equal(t, 2, merged.Depth())

	top := merged.Pop()
	vals, _ := top.Vals()
	assert.Len(t, vals, 2, "top slot is shared by both predecessors and merges")

	bottom := merged.Pop()
	vals, _ = bottom.Vals()
	require.Len(t, vals, 1)
	for v := range vals {
		assert.Equal(t, uint64(7), v.Uint64(), "slot only present in the longer stack is taken verbatim")
	}
}

func TestMergeStacksUnionsOverlappingSlots(t *testing.T) {
	path1 := newStack(nil)
	path1.Push(uint256.NewInt(1)) // bottom: shared
	path1.PushElem(func() AbsStackElem {
		e := newElem(nil)
		e.append(uint256.NewInt(1))
		e.append(uint256.NewInt(2))
		return e
	}())

	path2 := newStack(nil)
	path2.Push(uint256.NewInt(1))
	path2.PushElem(func() AbsStackElem {
		e := newElem(nil)
		e.append(uint256.NewInt(3))
		e.append(uint256.NewInt(5))
		return e
	}())

	merged := mergeStacks([]*Stack{path1, path2}, nil)
	require.Equal(t, 2, merged.Depth())

	top := merged.Pop()
	vals, _ := top.Vals()
	assert.Len(t, vals, 4)

	bottom := merged.Pop()
	vals, _ = bottom.Vals()
	assert.Len(t, vals, 1)
}

func TestStackEqual(t *testing.T) {
	a := newStack(nil)
	a.Push(uint256.NewInt(1))
	b := newStack(nil)
	b.Push(uint256.NewInt(1))
	assert.True(t, a.Equal(b))

	b.Push(uint256.NewInt(2))
	assert.False(t, a.Equal(b))
}
