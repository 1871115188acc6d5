package opcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpCodeString(t *testing.T) {
	cases := []struct {
		op   OpCode
		name string
	}{
		{STOP, "STOP"},
		{PUSH1, "PUSH1"},
		{PUSH32, "PUSH32"},
		{DUP16, "DUP16"},
		{SWAP1, "SWAP1"},
		{LOG4, "LOG4"},
		{JUMPDEST, "JUMPDEST"},
		{OpCode(0x0c), "INVALID"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.name, tc.op.String())
	}
}

func TestPushDupSwapHelpers(t *testing.T) {
	assert.True(t, PUSH1.IsPush())
	assert.Equal(t, 1, PUSH1.PushSize())
	assert.Equal(t, 32, PUSH32.PushSize())
	assert.False(t, STOP.IsPush())

	assert.True(t, DUP3.IsDup())
	assert.Equal(t, 3, DUP3.DupN())

	assert.True(t, SWAP5.IsSwap())
	assert.Equal(t, 5, SWAP5.SwapN())
}

func TestIsTerminator(t *testing.T) {
	assert.True(t, IsTerminator("STOP"))
	assert.True(t, IsTerminator("JUMPI"))
	assert.True(t, IsTerminator(SuicideMnemonic))
	assert.False(t, IsTerminator("ADD"))
}

func TestPopsPushes(t *testing.T) {
	pops, pushes := PopsPushes(ADD)
	assert.Equal(t, uint8(2), pops)
	assert.Equal(t, uint8(1), pushes)

	pops, pushes = PopsPushes(SWAP3)
	assert.Equal(t, uint8(4), pops)
	assert.Equal(t, uint8(4), pushes)

	pops, pushes = PopsPushes(JUMPDEST)
	assert.Equal(t, uint8(0), pops)
	assert.Equal(t, uint8(0), pushes)

	pops, pushes = PopsPushes(PUSH16)
	assert.Equal(t, uint8(0), pops)
	assert.Equal(t, uint8(1), pushes)
}

func TestDecodeSimple(t *testing.T) {
	// PUSH1 0x01, PUSH1 0x02, ADD, STOP
	code := []byte{0x60, 0x01, 0x60, 0x02, 0x01, 0x00}
	instructions := Decode(code)
	require.Len(t, instructions, 4)

	assert.Equal(t, uint64(0), instructions[0].PC)
	assert.Equal(t, PUSH1, instructions[0].Op)
	require.NotNil(t, instructions[0].Operand)
	assert.Equal(t, uint64(1), instructions[0].Operand.Uint64())

	assert.Equal(t, uint64(2), instructions[1].PC)
	assert.Equal(t, uint64(4), instructions[2].PC)
	assert.Equal(t, "ADD", instructions[2].Name())
	assert.Equal(t, uint64(5), instructions[3].PC)
	assert.Equal(t, "STOP", instructions[3].Name())
}

func TestDecodeTruncatedPush(t *testing.T) {
	// PUSH2 with only one trailing byte available.
	code := []byte{0x61, 0xff}
	instructions := Decode(code)
	require.Len(t, instructions, 1)
	require.NotNil(t, instructions[0].Operand)
	assert.Equal(t, uint64(0xff00), instructions[0].Operand.Uint64())
}
