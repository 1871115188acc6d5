// Package ir holds the address-indexed intermediate representation of a
// disassembled EVM program: instructions, basic blocks and functions,
// plus the linear (fall-through) edge discovery, reachability and
// attribute-classification passes that do not require abstract
// interpretation. Indirect-jump edges are installed from the outside by
// package vsa, which owns the stack value-set analysis.
package ir

import (
	"github.com/crytic/evm-cfg-builder/opcode"
	mapset "github.com/deckarep/golang-set/v2"
)

// FunctionKey namespaces the incoming/outgoing edge maps so the same
// BasicBlock can participate in several functions' sub-CFGs with distinct
// predecessor/successor relations (spec.md §9, "per-function edge
// namespace").
type FunctionKey int64

const (
	// DispatcherKey denotes the synthetic function owning the dispatcher
	// sub-CFG.
	DispatcherKey FunctionKey = -2
	// FallbackKey denotes the contract's fallback function.
	FallbackKey FunctionKey = -1
)

// BasicBlock is a maximal straight-line run of instructions, contiguous by
// PC, terminated either by a terminator opcode or immediately preceding a
// JUMPDEST. Identity is stable: edges reference blocks, never PCs.
type BasicBlock struct {
	instructions []*opcode.Instruction

	incoming map[FunctionKey]mapset.Set[*BasicBlock]
	outgoing map[FunctionKey]mapset.Set[*BasicBlock]

	reachableFor mapset.Set[FunctionKey]
}

func newBasicBlock() *BasicBlock {
	return &BasicBlock{
		incoming:     make(map[FunctionKey]mapset.Set[*BasicBlock]),
		outgoing:     make(map[FunctionKey]mapset.Set[*BasicBlock]),
		reachableFor: mapset.NewThreadUnsafeSet[FunctionKey](),
	}
}

func (b *BasicBlock) addInstruction(ins *opcode.Instruction) {
	b.instructions = append(b.instructions, ins)
}

// Start returns the block's first instruction.
func (b *BasicBlock) Start() *opcode.Instruction { return b.instructions[0] }

// End returns the block's last instruction.
func (b *BasicBlock) End() *opcode.Instruction { return b.instructions[len(b.instructions)-1] }

// Instructions returns the block's instructions in program order.
func (b *BasicBlock) Instructions() []*opcode.Instruction {
	return b.instructions
}

// EndsWithJumpI reports whether the block's terminator is JUMPI.
func (b *BasicBlock) EndsWithJumpI() bool {
	return b.End().Name() == "JUMPI"
}

// EndsWithJumpOrJumpI reports whether the block's terminator is JUMP or
// JUMPI.
func (b *BasicBlock) EndsWithJumpOrJumpI() bool {
	name := b.End().Name()
	return name == "JUMP" || name == "JUMPI"
}

// ContainsOp reports whether any instruction in the block has the given
// mnemonic.
func (b *BasicBlock) ContainsOp(name string) bool {
	for _, ins := range b.instructions {
		if ins.Name() == name {
			return true
		}
	}
	return false
}

func (b *BasicBlock) outgoingSet(key FunctionKey) mapset.Set[*BasicBlock] {
	s, ok := b.outgoing[key]
	if !ok {
		s = mapset.NewThreadUnsafeSet[*BasicBlock]()
		b.outgoing[key] = s
	}
	return s
}

func (b *BasicBlock) incomingSet(key FunctionKey) mapset.Set[*BasicBlock] {
	s, ok := b.incoming[key]
	if !ok {
		s = mapset.NewThreadUnsafeSet[*BasicBlock]()
		b.incoming[key] = s
	}
	return s
}

// AddOutgoing records that control can flow from b to dst under key. The
// caller is responsible for also calling dst.AddIncoming(b, key) to
// preserve the edge-symmetry invariant (spec.md §8); AddEdge below does
// both at once and should be preferred.
func (b *BasicBlock) AddOutgoing(dst *BasicBlock, key FunctionKey) {
	b.outgoingSet(key).Add(dst)
}

// AddIncoming records src as a predecessor of b under key.
func (b *BasicBlock) AddIncoming(src *BasicBlock, key FunctionKey) {
	b.incomingSet(key).Add(src)
}

// AddEdge installs a src->dst edge under key on both sides at once.
func AddEdge(src, dst *BasicBlock, key FunctionKey) {
	src.AddOutgoing(dst, key)
	dst.AddIncoming(src, key)
}

// Outgoing returns b's successors under key (possibly empty).
func (b *BasicBlock) Outgoing(key FunctionKey) []*BasicBlock {
	s, ok := b.outgoing[key]
	if !ok {
		return nil
	}
	return s.ToSlice()
}

// Incoming returns b's predecessors under key (possibly empty).
func (b *BasicBlock) Incoming(key FunctionKey) []*BasicBlock {
	s, ok := b.incoming[key]
	if !ok {
		return nil
	}
	return s.ToSlice()
}

// RemoveEdges drops all incoming/outgoing edges recorded under key. Used
// by reachability pruning to clean up simple-edge residues left over on
// blocks the function never actually executes.
func (b *BasicBlock) RemoveEdges(key FunctionKey) {
	delete(b.incoming, key)
	delete(b.outgoing, key)
}

// MarkReachable records that key can reach b.
func (b *BasicBlock) MarkReachable(key FunctionKey) {
	b.reachableFor.Add(key)
}

// ReachableFor reports whether key can reach b.
func (b *BasicBlock) ReachableFor(key FunctionKey) bool {
	return b.reachableFor.Contains(key)
}

// AllOutgoing returns every successor recorded under any function key,
// de-duplicated. Used by renderers that draw the whole program graph
// without regard to per-function edge namespaces (spec.md §6, grounded on
// basic_block.py's all_outgoing_basic_blocks).
func (b *BasicBlock) AllOutgoing() []*BasicBlock {
	seen := mapset.NewThreadUnsafeSet[*BasicBlock]()
	for _, s := range b.outgoing {
		seen = seen.Union(s)
	}
	return seen.ToSlice()
}

// Reached reports whether ANY function key has already been marked as
// reaching b. Used by the VSA driver to stop the dispatcher's walk from
// descending into a function body some other function has already
// claimed (see DESIGN.md on the dispatcher-revisit guard).
func (b *BasicBlock) Reached() bool {
	return b.reachableFor.Cardinality() > 0
}
