// Package evmcfg recovers a control-flow graph from EVM bytecode: it
// decodes and splits the bytecode into basic blocks (package ir),
// discovers the dispatcher's selector functions, and runs a per-function
// stack value-set analysis (package vsa) to resolve indirect jump targets,
// classify function mutability, and compute per-function reachability.
package evmcfg

import (
	"sort"

	"github.com/crytic/evm-cfg-builder/ir"
	"github.com/crytic/evm-cfg-builder/opcode"
	"github.com/crytic/evm-cfg-builder/signatures"
	"github.com/crytic/evm-cfg-builder/vsa"
)

// Options configures a CFG's construction and analysis (spec.md §6's
// `new(...)` parameter list, plus spec.md §9's tunables).
type Options struct {
	// RemoveMetadata strips the trailing Solidity metadata trailer before
	// decoding (spec.md §4.1).
	RemoveMetadata bool
	// Analyze runs function discovery (and, if ComputeCFGs, the VSA) at
	// construction time.
	Analyze bool
	// ComputeCFGs runs the per-function VSA; only meaningful when Analyze
	// is also set.
	ComputeCFGs bool
	// OptimizationEnabled turns on the authorized_values widening
	// (spec.md §3/§9); implementers must support it but may disable it for
	// testing/comparison.
	OptimizationEnabled bool
	// MaxExploration bounds per-block re-transfers in the VSA (spec.md §9).
	MaxExploration int
	// Signatures resolves selectors to human names (spec.md §6, consumed
	// interface). Nil disables renaming.
	Signatures signatures.Table
}

// DefaultOptions returns spec.md's defaults: metadata stripped, full
// analysis including CFGs, optimization on, the built-in signature table.
func DefaultOptions() Options {
	return Options{
		RemoveMetadata:      true,
		Analyze:             true,
		ComputeCFGs:         true,
		OptimizationEnabled: true,
		MaxExploration:      vsa.DefaultOptions().MaxExploration,
		Signatures:          signatures.Known,
	}
}

// CFG is the public façade over a recovered control-flow graph (spec.md
// §6, "Public operations of the CFG").
type CFG struct {
	bytecode []byte
	opts     Options

	ir        *ir.CFG
	functions map[uint64]*ir.Function
}

// New builds a CFG from raw or "0x"-prefixed-ASCII-hex bytecode bytes
// (spec.md §6, "Input"). Use NewFromHex for a plain hex string.
func New(bytecode []byte, opts Options) (*CFG, error) {
	normalized, err := normalizeBytes(bytecode)
	if err != nil {
		return nil, err
	}
	return newCFG(normalized, opts), nil
}

// NewFromHex builds a CFG from an ASCII-hex bytecode literal, optionally
// "0x"-prefixed, with embedded newlines and library placeholders tolerated
// (spec.md §6, "Input").
func NewFromHex(hexBytecode string, opts Options) (*CFG, error) {
	normalized, err := NormalizeHex(hexBytecode)
	if err != nil {
		return nil, err
	}
	return newCFG(normalized, opts), nil
}

func newCFG(bytecode []byte, opts Options) *CFG {
	c := &CFG{
		bytecode:  bytecode,
		opts:      opts,
		ir:        ir.NewCFG(),
		functions: make(map[uint64]*ir.Function),
	}
	if opts.RemoveMetadata {
		c.bytecode = stripMetadata(c.bytecode)
	}
	if opts.Analyze {
		c.Analyze()
	}
	return c
}

// Reset replaces the bytecode and clears all derived state, matching the
// original's bytecode-reassignment behavior (SPEC_FULL.md §6, supplemented
// feature).
func (c *CFG) Reset(bytecode []byte) error {
	normalized, err := normalizeBytes(bytecode)
	if err != nil {
		return err
	}
	if c.opts.RemoveMetadata {
		normalized = stripMetadata(normalized)
	}
	c.bytecode = normalized
	c.ir = ir.NewCFG()
	c.functions = make(map[uint64]*ir.Function)
	if c.opts.Analyze {
		c.Analyze()
	}
	return nil
}

// Bytecode returns the normalized bytecode backing this CFG.
func (c *CFG) Bytecode() []byte { return c.bytecode }

// BasicBlocks returns every distinct basic block.
func (c *CFG) BasicBlocks() []*ir.BasicBlock { return c.ir.BasicBlocks() }

// EntryPoint returns the basic block at PC 0, or nil for empty bytecode.
func (c *CFG) EntryPoint() *ir.BasicBlock { return c.ir.BasicBlockAt(0) }

// Functions returns every discovered function, including the fallback and
// synthetic dispatcher when present.
func (c *CFG) Functions() []*ir.Function {
	out := make([]*ir.Function, 0, len(c.functions))
	for _, f := range c.functions {
		out = append(out, f)
	}
	return out
}

// Instructions returns every decoded instruction, unordered.
func (c *CFG) Instructions() []*opcode.Instruction { return c.ir.Instructions() }

// InstructionAt returns the instruction at pc, or nil.
func (c *CFG) InstructionAt(pc uint64) *opcode.Instruction { return c.ir.InstructionAt(pc) }

// BasicBlockAt returns the basic block starting or ending at pc, or nil.
func (c *CFG) BasicBlockAt(pc uint64) *ir.BasicBlock { return c.ir.BasicBlockAt(pc) }

// FunctionAt returns the function whose entry PC is addr, or nil.
func (c *CFG) FunctionAt(addr uint64) *ir.Function { return c.functions[addr] }

// Analyze runs `compute_basic_blocks . compute_functions . create_cfgs`
// (spec.md §6). It is idempotent in the same sense SplitBlocks is: once
// functions have been discovered, calling it again is a no-op.
func (c *CFG) Analyze() {
	if len(c.functions) > 0 {
		return
	}
	instructions := opcode.Decode(c.bytecode)
	c.ir.SplitBlocks(instructions)

	entry := c.ir.BasicBlockAt(0)
	if entry == nil {
		// Empty (or otherwise block-less) bytecode: nothing to discover.
		return
	}

	discovered := computeFunctions(c.ir, entry)
	for start, fn := range discovered {
		c.functions[start] = fn
	}
	c.functions[0] = ir.NewFunction(ir.DispatcherKey, 0, entry)

	c.renameFromSignatures()

	if c.opts.ComputeCFGs {
		c.createCFGs()
	}
}

func (c *CFG) renameFromSignatures() {
	if c.opts.Signatures == nil {
		return
	}
	for _, fn := range c.functions {
		if fn.Selector == ir.DispatcherKey || fn.Selector == ir.FallbackKey {
			continue
		}
		if name, ok := c.opts.Signatures.Lookup(uint32(fn.Selector)); ok {
			fn.Name = name
		}
	}
}

// createCFGs runs the per-function VSA, in the order the dispatcher-revisit
// guard requires: every non-dispatcher function before the synthetic
// dispatcher (see DESIGN.md, "Deviation from a literal spec.md reading").
func (c *CFG) createCFGs() {
	jumpdests := vsa.CollectJumpdests(c.ir)

	for _, fn := range c.orderedFunctions() {
		opts := vsa.Options{
			MaxExploration:      c.opts.MaxExploration,
			OptimizationEnabled: c.opts.OptimizationEnabled,
			Jumpdests:           jumpdests,
		}
		analysis := vsa.New(c.ir, fn.Entry, fn.Selector, opts)
		explored := analysis.Analyze()

		fn.BasicBlocks = fn.BasicBlocks[:0]
		for _, pc := range explored {
			if bb := c.ir.BasicBlockAt(pc); bb != nil {
				fn.BasicBlocks = append(fn.BasicBlocks, bb)
			}
		}

		if fn.Selector != ir.DispatcherKey {
			fn.Classify()
		}
	}
}

// orderedFunctions returns every function sorted by entry PC with the
// dispatcher (if present) moved last, regardless of its PC (always 0).
func (c *CFG) orderedFunctions() []*ir.Function {
	var dispatcher *ir.Function
	others := make([]*ir.Function, 0, len(c.functions))
	for _, fn := range c.functions {
		if fn.Selector == ir.DispatcherKey {
			dispatcher = fn
			continue
		}
		others = append(others, fn)
	}
	sort.Slice(others, func(i, j int) bool { return others[i].StartPC < others[j].StartPC })
	if dispatcher != nil {
		others = append(others, dispatcher)
	}
	return others
}
