package vsa

import (
	"github.com/crytic/evm-cfg-builder/ir"
	"github.com/crytic/evm-cfg-builder/opcode"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

const defaultMaxExploration = 100

// Options configures an Analysis run (spec.md §4.6/§6/§9).
type Options struct {
	// MaxExploration bounds how many times a single basic block may be
	// re-transferred before the VSA gives up on that block (spec.md §9:
	// "keep MAX_EXPLORATION = 100 as default and make it tunable").
	MaxExploration int
	// OptimizationEnabled turns on the authorized_values widening
	// described in spec.md §3/§9. Implementers MUST support disabling it
	// only for testing/comparison; production use keeps it on.
	OptimizationEnabled bool
	// InitStack seeds the entry block's incoming stack on the very first
	// transfer of the run, if non-nil (spec.md §4.6, "or the provided
	// initial stack on the very first call").
	InitStack *Stack
	// Jumpdests, if non-nil, is the precomputed whole-program set of
	// JUMPDEST PCs (spec.md §3's authorized_values). Callers analyzing
	// many functions over the same CFG should compute this once and
	// share it; if nil it is derived from cfg on construction.
	Jumpdests map[uint64]struct{}
}

// DefaultOptions returns the spec's defaults: optimization on, 100
// explorations per block.
func DefaultOptions() Options {
	return Options{MaxExploration: defaultMaxExploration, OptimizationEnabled: true}
}

// CollectJumpdests returns the PCs of every JUMPDEST instruction in cfg —
// the authorized_values set shared across all of a program's functions.
func CollectJumpdests(cfg *ir.CFG) map[uint64]struct{} {
	out := make(map[uint64]struct{})
	for _, ins := range cfg.Instructions() {
		if ins.Name() == "JUMPDEST" {
			out[ins.PC] = struct{}{}
		}
	}
	return out
}

// Analysis is the per-function VSA driver (spec.md §4.6): a worklist of
// basic blocks, a transfer function per instruction, stack merge on
// joins, and bounded re-exploration whenever a jump target widens the
// reachable set of blocks.
type Analysis struct {
	cfg   *ir.CFG
	entry *ir.BasicBlock
	key   ir.FunctionKey

	maxExploration int
	initStack      *Stack
	auth           *authorizedValues

	lastBranchTop map[uint64]AbsStackElem
	stacksOut     map[uint64]*Stack
	bbCounter     map[uint64]int

	explored    []uint64
	exploredSet map[uint64]struct{}

	toExplore    []*ir.BasicBlock
	toExploreSet map[*ir.BasicBlock]struct{}

	outgoingQueue []*ir.BasicBlock

	lastDiscovered map[uint64]map[uint64]struct{}
	allDiscovered  map[uint64]map[uint64]struct{}

	firstCall bool
}

// New builds a VSA driver for one function, identified by key, starting
// exploration from entry.
func New(cfg *ir.CFG, entry *ir.BasicBlock, key ir.FunctionKey, opts Options) *Analysis {
	maxExploration := opts.MaxExploration
	if maxExploration <= 0 {
		maxExploration = defaultMaxExploration
	}

	var auth *authorizedValues
	if opts.OptimizationEnabled {
		jumpdests := opts.Jumpdests
		if jumpdests == nil {
			jumpdests = CollectJumpdests(cfg)
		}
		auth = newAuthorizedValues(jumpdests)
	}

	return &Analysis{
		cfg:            cfg,
		entry:          entry,
		key:            key,
		maxExploration: maxExploration,
		initStack:      opts.InitStack,
		auth:           auth,
		lastBranchTop:  make(map[uint64]AbsStackElem),
		stacksOut:      make(map[uint64]*Stack),
		bbCounter:      make(map[uint64]int),
		exploredSet:    make(map[uint64]struct{}),
		toExplore:      []*ir.BasicBlock{entry},
		toExploreSet:   map[*ir.BasicBlock]struct{}{entry: {}},
		lastDiscovered: make(map[uint64]map[uint64]struct{}),
		allDiscovered:  make(map[uint64]map[uint64]struct{}),
		firstCall:      true,
	}
}

func (a *Analysis) isJumpDest(pc uint64) bool {
	ins := a.cfg.InstructionAt(pc)
	return ins != nil && ins.Name() == "JUMPDEST"
}

// transferIns is the per-instruction transfer function (spec.md §4.6).
func (a *Analysis) transferIns(ins *opcode.Instruction, stack *Stack) {
	op := ins.Op
	switch {
	case op.IsPush():
		if ins.Operand != nil {
			stack.Push(ins.Operand)
		} else {
			stack.Push(uint256.NewInt(0)) // PUSH0
		}
	case op.IsSwap():
		stack.Swap(op.SwapN())
	case op.IsDup():
		stack.Dup(op.DupN())
	case ins.Name() == "AND":
		v1 := stack.Pop()
		v2 := stack.Pop()
		stack.PushElem(v1.And(v2))
	default:
		for i := uint8(0); i < ins.Pops; i++ {
			stack.Pop()
		}
		for i := uint8(0); i < ins.Pushes; i++ {
			stack.Push(nil)
		}
	}
}

// exploreBlock runs the per-instruction transfer across bb's
// instructions, recording the pre-pop top-of-stack value of a trailing
// JUMP/JUMPI (the computed jump target) and the post-transfer stack at
// the block's last instruction.
func (a *Analysis) exploreBlock(bb *ir.BasicBlock, stack *Stack) {
	if _, ok := a.exploredSet[bb.Start().PC]; !ok {
		a.exploredSet[bb.Start().PC] = struct{}{}
		a.explored = append(a.explored, bb.Start().PC)
	}

	instructions := bb.Instructions()
	for idx, ins := range instructions {
		if idx == len(instructions)-1 && isJump(ins.Name()) {
			a.lastBranchTop[ins.PC] = stack.Top()
		}
		a.transferIns(ins, stack)
		if idx == len(instructions)-1 {
			a.stacksOut[ins.PC] = stack
		}
	}
}

func isJump(name string) bool { return name == "JUMP" || name == "JUMPI" }

// transferBlock is the block-level transfer function (spec.md §4.6).
func (a *Analysis) transferBlock(bb *ir.BasicBlock, isInit bool) {
	if a.key == ir.DispatcherKey && bb.Reached() {
		// The dispatcher is always analyzed last (evmcfg.CFG.Analyze runs
		// every selector function's VSA first). By the time the
		// dispatcher's own walk reaches a block some function has
		// already claimed as reachable, that block belongs to a function
		// body, not the dispatch prologue — stop descending into it so
		// the dispatcher's sub-CFG stays limited to the selector-compare
		// skeleton.
		return
	}

	addr := bb.Start().PC
	end := bb.End().PC

	if _, seen := a.bbCounter[addr]; !seen {
		a.bbCounter[addr] = 1
	} else {
		a.bbCounter[addr]++
		if a.bbCounter[addr] > a.maxExploration {
			return
		}
	}

	prevStack, hadPrev := a.stacksOut[end]

	var stack *Stack
	if isInit && a.initStack != nil {
		stack = a.initStack
	} else {
		stack = newStack(a.auth)
	}

	var analyzedIncoming []*Stack
	for _, father := range bb.Incoming(a.key) {
		if st, ok := a.stacksOut[father.End().PC]; ok {
			analyzedIncoming = append(analyzedIncoming, st)
		}
	}
	if len(analyzedIncoming) > 0 {
		stack = mergeStacks(analyzedIncoming, a.auth)
	}

	a.exploreBlock(bb, stack)

	if name := bb.End().Name(); isJump(name) {
		if top, ok := a.lastBranchTop[end]; ok && !top.IsTop() {
			vals, _ := top.Vals()
			dsts := make(map[uint64]struct{})
			for v := range vals {
				if v.IsUint64() && a.isJumpDest(v.Uint64()) {
					dsts[v.Uint64()] = struct{}{}
				}
			}
			if len(dsts) > 0 {
				a.addBranches(end, dsts)
			}
		}
	}

	converged := hadPrev && prevStack.Equal(a.stacksOut[end])

	if !converged {
		a.pushOutgoingFront(bb.Outgoing(a.key))
	}
}

func (a *Analysis) pushOutgoingFront(blocks []*ir.BasicBlock) {
	if len(blocks) == 0 {
		return
	}
	merged := make([]*ir.BasicBlock, 0, len(blocks)+len(a.outgoingQueue))
	merged = append(merged, blocks...)
	merged = append(merged, a.outgoingQueue...)
	a.outgoingQueue = merged
}

func (a *Analysis) addBranches(src uint64, dsts map[uint64]struct{}) {
	seen, ok := a.allDiscovered[src]
	if !ok {
		seen = make(map[uint64]struct{})
		a.allDiscovered[src] = seen
	}
	for d := range dsts {
		if _, already := seen[d]; already {
			continue
		}
		seen[d] = struct{}{}
		if a.lastDiscovered[src] == nil {
			a.lastDiscovered[src] = make(map[uint64]struct{})
		}
		a.lastDiscovered[src][d] = struct{}{}
	}
}

func (a *Analysis) popToExplore() *ir.BasicBlock {
	n := len(a.toExplore)
	bb := a.toExplore[n-1]
	a.toExplore = a.toExplore[:n-1]
	delete(a.toExploreSet, bb)
	return bb
}

func (a *Analysis) enqueueToExplore(bb *ir.BasicBlock) {
	if _, ok := a.toExploreSet[bb]; ok {
		return
	}
	a.toExploreSet[bb] = struct{}{}
	a.toExplore = append(a.toExplore, bb)
}

// explore drains the current block plus every block its transfer queued
// as a successor (LIFO), then installs any newly discovered indirect-jump
// edges and requeues their destinations (spec.md §4.6, "Worklist loop").
func (a *Analysis) explore() {
	bb := a.popToExplore()
	isInit := a.firstCall
	a.firstCall = false

	a.transferBlock(bb, isInit)
	for len(a.outgoingQueue) > 0 {
		next := a.outgoingQueue[0]
		a.outgoingQueue = a.outgoingQueue[1:]
		a.transferBlock(next, false)
	}

	discovered := a.lastDiscovered
	a.lastDiscovered = make(map[uint64]map[uint64]struct{})

	for src, dsts := range discovered {
		bbFrom := a.cfg.BasicBlockAt(src)
		if bbFrom == nil {
			continue
		}
		for dst := range dsts {
			bbTo := a.cfg.BasicBlockAt(dst)
			if bbTo == nil {
				continue
			}
			ir.AddEdge(bbFrom, bbTo, a.key)
			a.enqueueToExplore(bbTo)
		}
	}
}

// Analyze runs the fixed-point computation to convergence, then computes
// reachability under key and prunes unreached simple-edge residues
// (spec.md §4.6). It returns the PCs of every basic block explored.
func (a *Analysis) Analyze() []uint64 {
	a.cfg.ComputeSimpleEdges(a.key)

	for len(a.toExplore) > 0 {
		a.explore()
	}

	a.cfg.ComputeReachability(a.entry, a.key)
	a.logMissingBranches()

	return a.explored
}

// logMissingBranches surfaces, as non-fatal diagnostics, reachable blocks
// ending in JUMP/JUMPI that ended up with no outgoing edge under key —
// spec.md §7: "indicates an abstract target that widened to TOP", logged
// but not an error.
func (a *Analysis) logMissingBranches() {
	for _, bb := range a.cfg.BasicBlocks() {
		if !bb.ReachableFor(a.key) {
			continue
		}
		if !bb.EndsWithJumpOrJumpI() {
			continue
		}
		if len(bb.Outgoing(a.key)) > 0 {
			continue
		}
		log.Warn("missing branches", "key", int64(a.key), "pc", bb.End().PC)
	}
}
