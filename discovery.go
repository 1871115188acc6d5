package evmcfg

import "github.com/crytic/evm-cfg-builder/ir"

// discoveryTask is one pending node in the dispatcher walk: a block plus
// whether it is still part of the entry chain solc emits before any
// selector comparison (spec.md §4.5).
type discoveryTask struct {
	bb      *ir.BasicBlock
	isEntry bool
}

// computeFunctions walks the dispatcher skeleton starting at entry and
// returns every discovered Function keyed by its entry PC (spec.md §4.5).
// The walk is naturally recursive in the upstream Python (compute_functions
// calls itself); spec.md §9 calls for an explicit queue instead, to bound
// stack depth on dispatch tables with many selectors.
func computeFunctions(cfg *ir.CFG, entry *ir.BasicBlock) map[uint64]*ir.Function {
	functions := make(map[uint64]*ir.Function)
	queue := []discoveryTask{{bb: entry, isEntry: true}}

	for len(queue) > 0 {
		n := len(queue) - 1
		task := queue[n]
		queue = queue[:n]
		bb := task.bb

		if task.isEntry && bb.EndsWithJumpI() && bb.ContainsOp("CALLVALUE") {
			// The compiler's non-payable-contract prologue (Solidity >=
			// 0.5.2): reject nonzero CALLVALUE, then fall into the real
			// dispatcher on the true branch. The destination is the
			// operand of the penultimate instruction (the PUSH that
			// supplies JUMPI's target).
			instructions := bb.Instructions()
			push := instructions[len(instructions)-2]
			if dst := cfg.BasicBlockAt(push.Operand.Uint64()); dst != nil {
				queue = append(queue, discoveryTask{bb: dst, isEntry: true})
			}
			continue
		}

		start, selector, ok := isJumpToFunction(bb)
		if !ok {
			continue
		}

		if bb.ContainsOp("GT") {
			// A tree-shaped dispatcher: this block is an internal node of
			// a binary search over selectors, not a selector compare
			// itself. Recurse into its jump target instead of recording a
			// function.
			if next := cfg.BasicBlockAt(start); next != nil {
				queue = append(queue, discoveryTask{bb: next})
			}
		} else if target := cfg.BasicBlockAt(start); target != nil {
			functions[start] = ir.NewFunction(ir.FunctionKey(selector), start, target)
		}

		if bb.EndsWithJumpI() {
			if falseBranch := cfg.BasicBlockAt(bb.End().PC + 1); falseBranch != nil {
				queue = append(queue, discoveryTask{bb: falseBranch})
			}
		}
	}

	return functions
}

// isJumpToFunction is the heuristic that recognizes a selector
// compare-and-branch block, or the CALLDATASIZE-based fallback dispatch
// (spec.md §4.5).
func isJumpToFunction(bb *ir.BasicBlock) (target uint64, selector int64, ok bool) {
	hasCalldataSize := false
	var lastPushed, prevPushed *uint64
	var lastPushedValid, prevPushedValid bool

	for _, ins := range bb.Instructions() {
		if ins.Name() == "CALLDATASIZE" {
			hasCalldataSize = true
		}
		if ins.Op.IsPush() && ins.Operand != nil {
			prevPushed, prevPushedValid = lastPushed, lastPushedValid
			v := ins.Operand.Uint64()
			lastPushed, lastPushedValid = &v, true
		}
	}

	if !bb.EndsWithJumpI() {
		return 0, 0, false
	}
	if hasCalldataSize && lastPushedValid {
		return *lastPushed, int64(ir.FallbackKey), true
	}
	if lastPushedValid && prevPushedValid {
		return *lastPushed, int64(*prevPushed), true
	}
	return 0, 0, false
}
