package evmcfg

import (
	"testing"

	"github.com/crytic/evm-cfg-builder/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyBytecode(t *testing.T) {
	cfg, err := New(nil, DefaultOptions())
	require.NoError(t, err)

	assert.Empty(t, cfg.BasicBlocks())
	assert.Empty(t, cfg.Functions())
	assert.Nil(t, cfg.EntryPoint())
}

func TestSingleStopYieldsOnlyDispatcher(t *testing.T) {
	cfg, err := New([]byte{0x00}, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, cfg.BasicBlocks(), 1)
	functions := cfg.Functions()
	require.Len(t, functions, 1)
	assert.Equal(t, ir.DispatcherKey, functions[0].Selector)
	assert.Equal(t, "_dispatcher", functions[0].Name)
}

func TestTrivialSelectorDispatch(t *testing.T) {
	// PUSH4 0x12345678; PUSH1 0x09; JUMPI; REVERT; JUMPDEST; STOP
	code := []byte{
		0x63, 0x12, 0x34, 0x56, 0x78, // pc0: PUSH4 0x12345678
		0x60, 0x09, // pc5: PUSH1 0x09
		0x57,       // pc7: JUMPI
		0xfd,       // pc8: REVERT (false branch)
		0x5b,       // pc9: JUMPDEST (true branch / function entry)
		0x00,       // pc10: STOP
	}

	cfg, err := New(code, DefaultOptions())
	require.NoError(t, err)

	fn := cfg.FunctionAt(9)
	require.NotNil(t, fn)
	assert.Equal(t, ir.FunctionKey(0x12345678), fn.Selector)
	assert.Equal(t, uint64(9), fn.StartPC)

	entry := cfg.BasicBlockAt(9)
	require.NotNil(t, entry)
	assert.True(t, entry.ReachableFor(fn.Selector))

	dispatcher := cfg.FunctionAt(0)
	require.NotNil(t, dispatcher)
	assert.Equal(t, ir.DispatcherKey, dispatcher.Selector)
}

func TestFallbackViaCalldatasize(t *testing.T) {
	// PUSH1 4; CALLDATASIZE; LT; PUSH2 0x000a; JUMPI; REVERT; STOP; JUMPDEST; STOP
	code := []byte{
		0x60, 0x04, // pc0: PUSH1 4
		0x36,       // pc2: CALLDATASIZE
		0x10,       // pc3: LT
		0x61, 0x00, 0x0a, // pc4: PUSH2 0x000a
		0x57, // pc7: JUMPI
		0xfd, // pc8: REVERT (false branch)
		0x00, // pc9: STOP (dead filler block)
		0x5b, // pc10: JUMPDEST (fallback entry)
		0x00, // pc11: STOP
	}

	cfg, err := New(code, DefaultOptions())
	require.NoError(t, err)

	fn := cfg.FunctionAt(10)
	require.NotNil(t, fn)
	assert.Equal(t, ir.FallbackKey, fn.Selector)
	assert.Equal(t, "_fallback", fn.Name)
}

func TestMetadataStrippingIsIdempotent(t *testing.T) {
	trailer := append([]byte{0xa1, 0x65, 0x62, 0x7a, 0x7a, 0x72, 0x30, 0x58, 0x20}, make([]byte, 32)...)
	trailer = append(trailer, 0x00, 0x29)
	bytecode := append([]byte{0x00}, trailer...)

	once := stripMetadata(bytecode)
	twice := stripMetadata(once)
	assert.Equal(t, once, twice)
	assert.Equal(t, []byte{0x00}, once)
}

func TestLibraryPlaceholderRewriteIsIdempotent(t *testing.T) {
	src := "60ff__$abcdef0123456789abcdef0123456789ab$__60ff"
	first, err := NormalizeHex(src)
	require.NoError(t, err)

	// A second normalization of the already-rewritten hex (re-hex-encoded)
	// finds no placeholder left to rewrite.
	assert.NotContains(t, fixtureHex(first), "__")
}

func fixtureHex(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

func TestMalformedHexReturnsError(t *testing.T) {
	_, err := NewFromHex("0xzz", DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedHex)
}

func TestResetClearsDerivedState(t *testing.T) {
	cfg, err := New([]byte{0x00}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, cfg.Functions(), 1)

	require.NoError(t, cfg.Reset(nil))
	assert.Empty(t, cfg.Functions())
	assert.Empty(t, cfg.BasicBlocks())
}
