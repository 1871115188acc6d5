package ir

import "github.com/crytic/evm-cfg-builder/opcode"

// CFG is the low-level, address-indexed store of a disassembled program:
// every instruction and every basic block, looked up by PC in O(1)
// (spec.md §6). It owns all Instructions and BasicBlocks; Function and the
// VSA only ever hold non-owning references into it (spec.md §5).
//
// CFG itself never runs the stack value-set analysis — that is package
// vsa's job, invoked by the root evmcfg package, which is the only
// component that imports both.
type CFG struct {
	instructions map[uint64]*opcode.Instruction
	basicBlocks  map[uint64]*BasicBlock
}

// NewCFG builds an empty CFG ready for SplitBlocks.
func NewCFG() *CFG {
	return &CFG{
		instructions: make(map[uint64]*opcode.Instruction),
		basicBlocks:  make(map[uint64]*BasicBlock),
	}
}

// InstructionAt returns the instruction at pc, or nil.
func (c *CFG) InstructionAt(pc uint64) *opcode.Instruction {
	return c.instructions[pc]
}

// BasicBlockAt returns the basic block starting or ending at pc, or nil.
func (c *CFG) BasicBlockAt(pc uint64) *BasicBlock {
	return c.basicBlocks[pc]
}

// Instructions returns every decoded instruction, unordered.
func (c *CFG) Instructions() []*opcode.Instruction {
	out := make([]*opcode.Instruction, 0, len(c.instructions))
	for _, ins := range c.instructions {
		out = append(out, ins)
	}
	return out
}

// BasicBlocks returns the set of distinct basic blocks (each block is
// registered under up to two PCs, start and end; this de-duplicates).
func (c *CFG) BasicBlocks() []*BasicBlock {
	seen := make(map[*BasicBlock]struct{}, len(c.basicBlocks))
	out := make([]*BasicBlock, 0, len(c.basicBlocks))
	for _, bb := range c.basicBlocks {
		if _, ok := seen[bb]; ok {
			continue
		}
		seen[bb] = struct{}{}
		out = append(out, bb)
	}
	return out
}

// isBlockEnd reports whether an instruction with this mnemonic, as a
// block's last instruction, ends the block outright (spec.md §4.3 rule 2).
func isBlockEnd(name string) bool {
	return opcode.IsTerminator(name)
}

// SplitBlocks partitions already-decoded instructions into basic blocks
// and registers them under both their start and end PC (spec.md §3/§4.3).
// It is idempotent: a second call on a CFG that already has blocks is a
// no-op, matching the Python original's compute_basic_blocks guard.
func (c *CFG) SplitBlocks(instructions []opcode.Instruction) {
	if len(c.basicBlocks) > 0 {
		return
	}

	bb := newBasicBlock()

	for i := range instructions {
		ins := &instructions[i]
		c.instructions[ins.PC] = ins

		if ins.Name() == "JUMPDEST" {
			// JUMPDEST ends the current block (if non-empty) and begins a
			// new one.
			if len(bb.instructions) > 0 {
				c.basicBlocks[bb.End().PC] = bb
			}
			bb = newBasicBlock()
			c.basicBlocks[ins.PC] = bb
		}

		bb.addInstruction(ins)

		if bb.Start().PC == ins.PC {
			c.basicBlocks[ins.PC] = bb
		}

		if isBlockEnd(bb.End().Name()) {
			c.basicBlocks[bb.End().PC] = bb
			bb = newBasicBlock()
		}
	}

	// A trailing block that no terminator closed still gets its end PC.
	if len(bb.instructions) > 0 {
		c.basicBlocks[bb.End().PC] = bb
	}
}

// ComputeSimpleEdges adds, for function key, every fall-through edge that
// does not require abstract interpretation: the false branch of a JUMPI,
// and the edge from a non-terminator block into the JUMPDEST that must
// follow it (spec.md §4.4). Indirect JUMP/JUMPI edges are added later by
// the VSA.
func (c *CFG) ComputeSimpleEdges(key FunctionKey) {
	for _, bb := range c.BasicBlocks() {
		end := bb.End()

		if end.Name() == "JUMPI" {
			if dst := c.basicBlocks[end.PC+1]; dst != nil {
				AddEdge(bb, dst, key)
			}
		}

		if !isBlockEnd(end.Name()) {
			fallThroughPC := end.PC + 1 + uint64(end.OperandSize)
			dst, ok := c.basicBlocks[fallThroughPC]
			if !ok {
				// spec.md §7: a computed fall-through PC that starts no
				// block is skipped, not fatal (possible when the
				// terminator is the program's last instruction).
				continue
			}
			AddEdge(bb, dst, key)
		}
	}
}

// ComputeReachability forward-traverses from entry along key's outgoing
// edges, marking every visited block reachable, then strips any
// ComputeSimpleEdges residue left on unreached blocks (spec.md §4.6,
// "Reachability pruning").
func (c *CFG) ComputeReachability(entry *BasicBlock, key FunctionKey) {
	seen := map[*BasicBlock]struct{}{entry: {}}
	stack := []*BasicBlock{entry}

	for len(stack) > 0 {
		bb := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, son := range bb.Outgoing(key) {
			if _, ok := seen[son]; ok {
				continue
			}
			seen[son] = struct{}{}
			stack = append(stack, son)
		}
	}

	for bb := range seen {
		bb.MarkReachable(key)
	}

	for _, bb := range c.BasicBlocks() {
		if _, ok := seen[bb]; ok {
			continue
		}
		bb.RemoveEdges(key)
	}
}
