package ir

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// Attribute is a Solidity-visible function mutability attribute.
type Attribute string

const (
	Payable Attribute = "payable"
	View    Attribute = "view"
	Pure    Attribute = "pure"
)

// changingStateOps and stateReadingOps back check_view/check_pure
// (spec.md §4.7), ported verbatim from
// evm_cfg_builder/cfg/function.py's check_view/check_pure.
var changingStateOps = map[string]struct{}{
	"CREATE": {}, "CREATE2": {}, "CALL": {}, "CALLCODE": {},
	"DELEGATECALL": {}, "SELFDESTRUCT": {}, "SSTORE": {},
}

var stateReadingOps = map[string]struct{}{
	"ADDRESS": {}, "BALANCE": {}, "ORIGIN": {}, "CALLER": {}, "CALLVALUE": {},
	"CALLDATALOAD": {}, "CALLDATASIZE": {}, "CALLDATACOPY": {}, "CODESIZE": {},
	"CODECOPY": {}, "EXTCODESIZE": {}, "EXTCODEHASH": {}, "EXTCODECOPY": {},
	"RETURNDATASIZE": {}, "RETURNDATACOPY": {}, "BLOCKHASH": {}, "COINBASE": {},
	"TIMESTAMP": {}, "NUMBER": {}, "DIFFICULTY": {}, "GASLIMIT": {},
	"LOG0": {}, "LOG1": {}, "LOG2": {}, "LOG3": {}, "LOG4": {},
	"STATICCALL": {}, "SLOAD": {},
}

// Function is a discovered dispatch target: a public function keyed by its
// 4-byte selector, the fallback (FallbackKey), or the synthetic dispatcher
// (DispatcherKey).
type Function struct {
	Selector FunctionKey
	StartPC  uint64
	Entry    *BasicBlock
	Name     string

	BasicBlocks []*BasicBlock

	attributes mapset.Set[Attribute]
}

// NewFunction constructs a Function, naming fallback/dispatcher specially
// and everything else by its hex selector (overridden later by a
// signatures.Table lookup if one matches).
func NewFunction(selector FunctionKey, startPC uint64, entry *BasicBlock) *Function {
	f := &Function{
		Selector:   selector,
		StartPC:    startPC,
		Entry:      entry,
		attributes: mapset.NewThreadUnsafeSet[Attribute](),
	}
	switch selector {
	case FallbackKey:
		f.Name = "_fallback"
	case DispatcherKey:
		f.Name = "_dispatcher"
	default:
		f.Name = fmt.Sprintf("0x%08x", uint32(selector))
	}
	return f
}

// Attributes returns f's classified attributes.
func (f *Function) Attributes() []Attribute {
	return f.attributes.ToSlice()
}

// HasAttribute reports whether f carries attr.
func (f *Function) HasAttribute(attr Attribute) bool {
	return f.attributes.Contains(attr)
}

func (f *Function) addAttribute(attr Attribute) {
	f.attributes.Add(attr)
}

// ClassifyPayable adds Payable unless the entry block rejects nonzero
// CALLVALUE (the compiler's non-payable prologue). spec.md §4.7.
func (f *Function) ClassifyPayable() {
	if f.Entry.ContainsOp("CALLVALUE") {
		return
	}
	f.addAttribute(Payable)
}

// ClassifyView adds View if no reachable instruction mutates state.
// spec.md §4.7.
func (f *Function) ClassifyView() {
	for _, bb := range f.BasicBlocks {
		for _, ins := range bb.Instructions() {
			if _, bad := changingStateOps[ins.Name()]; bad {
				return
			}
		}
	}
	f.addAttribute(View)
}

// ClassifyPure adds Pure if no reachable instruction mutates OR reads
// environment/chain state. spec.md §4.7.
func (f *Function) ClassifyPure() {
	for _, bb := range f.BasicBlocks {
		for _, ins := range bb.Instructions() {
			name := ins.Name()
			if _, bad := changingStateOps[name]; bad {
				return
			}
			if _, bad := stateReadingOps[name]; bad {
				return
			}
		}
	}
	f.addAttribute(Pure)
}

// Classify runs all three attribute checks. The dispatcher function is
// never classified (spec.md §4.6: "If function.hash_id != DISPATCHER_ID").
func (f *Function) Classify() {
	if f.Selector == DispatcherKey {
		return
	}
	f.ClassifyPayable()
	f.ClassifyView()
	f.ClassifyPure()
}
