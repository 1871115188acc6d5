// Package vsa implements the stack value-set analysis (VSA): the abstract
// stack element and stack lattice (spec.md §3), and the per-function
// fixed-point driver that resolves indirect JUMP/JUMPI targets (spec.md
// §4.6). This is the core of the system (spec.md §1).
package vsa

import "github.com/holiman/uint256"

// authorizedValues is the widening operator described in spec.md §9: when
// non-nil, every value appended to an AbsStackElem that is not a member of
// this set collapses to the single unknown sentinel ⊥, preventing
// arithmetic constants from inflating the tracked set. It is precomputed
// once per program as the set of all JUMPDEST PCs.
type authorizedValues struct {
	set map[uint256.Int]struct{}
	max int
}

// newAuthorizedValues builds the widening filter from a set of valid
// JUMPDEST PCs. The element capacity becomes exactly the number of
// distinct valid destinations, per spec.md §3 ("MAX = |authorized_values|
// when known, else 100").
func newAuthorizedValues(jumpdests map[uint64]struct{}) *authorizedValues {
	av := &authorizedValues{set: make(map[uint256.Int]struct{}, len(jumpdests)), max: len(jumpdests)}
	for pc := range jumpdests {
		av.set[*uint256.NewInt(pc)] = struct{}{}
	}
	return av
}

func (av *authorizedValues) contains(v uint256.Int) bool {
	_, ok := av.set[v]
	return ok
}

const defaultMaxElems = 100

// AbsStackElem is a single stack slot's abstract value: either TOP ("any
// value", spec.md §3) or a bounded set of concrete uint256 values plus an
// optional ⊥ marker standing for "unknown but tracked". AbsStackElem is a
// value type; callers that need to keep an independent copy (DUP, stack
// merge) must call Clone.
type AbsStackElem struct {
	top        bool
	vals       map[uint256.Int]struct{}
	hasUnknown bool
	auth       *authorizedValues // nil: optimization disabled, no widening
}

func newElem(auth *authorizedValues) AbsStackElem {
	return AbsStackElem{vals: make(map[uint256.Int]struct{}), auth: auth}
}

// topElem returns a fresh TOP element.
func topElem(auth *authorizedValues) AbsStackElem {
	return AbsStackElem{top: true, auth: auth}
}

func (e *AbsStackElem) maxElems() int {
	if e.auth != nil {
		return e.auth.max
	}
	return defaultMaxElems
}

// append adds a value to the element (spec.md §3). v == nil represents an
// unknown value (⊥ at the call site, before any widening filter is
// applied). When a widening filter is active, any non-nil value that is
// not a valid JUMPDEST PC is itself coerced to ⊥; the net effect is that
// at most one ⊥ marker is ever tracked per element, regardless of how many
// distinct non-jump-target constants are appended.
func (e *AbsStackElem) append(v *uint256.Int) {
	if e.top {
		return
	}
	if e.auth != nil {
		if v != nil && e.auth.contains(*v) {
			e.vals[*v] = struct{}{}
			return
		}
		e.hasUnknown = true
		return
	}
	if v == nil {
		e.hasUnknown = true
		return
	}
	e.vals[*v] = struct{}{}
}

// Vals returns the element's concrete values and whether ⊥ is present.
// IsTop must be checked first: a TOP element's vals/hasUnknown are
// meaningless.
func (e *AbsStackElem) Vals() (vals map[uint256.Int]struct{}, hasUnknown bool) {
	return e.vals, e.hasUnknown
}

// IsTop reports whether e is the TOP lattice element.
func (e *AbsStackElem) IsTop() bool { return e.top }

// count is the number of distinct tracked values, counting ⊥ as one slot,
// used against maxElems to decide whether a merge must widen to TOP.
func (e *AbsStackElem) count() int {
	n := len(e.vals)
	if e.hasUnknown {
		n++
	}
	return n
}

// Clone returns an independent copy of e (DUP and stack-merge need this:
// AbsStackElem.vals is a map and must not be aliased between slots).
func (e AbsStackElem) Clone() AbsStackElem {
	cp := AbsStackElem{top: e.top, hasUnknown: e.hasUnknown, auth: e.auth}
	if e.vals != nil {
		cp.vals = make(map[uint256.Int]struct{}, len(e.vals))
		for v := range e.vals {
			cp.vals[v] = struct{}{}
		}
	}
	return cp
}

// And computes the lattice AND of e and other: the set of pairwise
// bitwise-ANDs of every concrete value in each (spec.md §3). If either
// operand is TOP, or either paired value is unknown, the corresponding
// result element (or slot) is unknown/TOP. The result goes through the
// same widening filter as any other append.
func (e AbsStackElem) And(other AbsStackElem) AbsStackElem {
	if e.top || other.top {
		return topElem(e.auth)
	}

	result := newElem(e.auth)
	left := representatives(e)
	right := representatives(other)
	for _, a := range left {
		for _, b := range right {
			if a == nil || b == nil {
				result.append(nil)
				continue
			}
			result.append(new(uint256.Int).And(a, b))
		}
	}
	return result
}

// representatives returns e's concrete values plus, if e carries ⊥, a
// single nil entry standing for it — the set this element's AND/merge
// operands are drawn from.
func representatives(e AbsStackElem) []*uint256.Int {
	out := make([]*uint256.Int, 0, len(e.vals)+1)
	for v := range e.vals {
		v := v
		out = append(out, &v)
	}
	if e.hasUnknown {
		out = append(out, nil)
	}
	return out
}

// Merge computes the lattice join of e and other: the union of their
// value sets, widened to TOP if either operand is already TOP or the
// union would exceed the element's capacity (spec.md §3).
func (e AbsStackElem) Merge(other AbsStackElem) AbsStackElem {
	if e.top || other.top {
		return topElem(e.auth)
	}

	merged := newElem(e.auth)
	// Bypass the widening filter here: these values have already passed
	// it once (or are intentionally exempt, e.g. already-TOP members
	// don't exist at this point) — re-filtering would be a no-op for
	// valid members and is only a size check below.
	for v := range e.vals {
		merged.vals[v] = struct{}{}
	}
	for v := range other.vals {
		merged.vals[v] = struct{}{}
	}
	merged.hasUnknown = e.hasUnknown || other.hasUnknown

	if merged.count() > merged.maxElems() {
		return topElem(e.auth)
	}
	return merged
}

// Equal reports value equality: both TOP, or identical value sets and ⊥
// presence.
func (e AbsStackElem) Equal(other AbsStackElem) bool {
	if e.top != other.top {
		return false
	}
	if e.top {
		return true
	}
	if e.hasUnknown != other.hasUnknown {
		return false
	}
	if len(e.vals) != len(other.vals) {
		return false
	}
	for v := range e.vals {
		if _, ok := other.vals[v]; !ok {
			return false
		}
	}
	return true
}
