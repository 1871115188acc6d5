// Package dotgraph renders a recovered CFG (or one of its functions) to
// Graphviz DOT, for visual inspection. It is explicitly out of the core's
// scope (spec.md §6, "Artifacts produced... outside core scope but
// documented") and reads the CFG only through its public accessors.
package dotgraph

import (
	"fmt"
	"io"
	"strings"

	"github.com/crytic/evm-cfg-builder/ir"
)

// WriteFull renders the whole program's basic-block graph, ignoring
// per-function edge namespaces: every edge recorded under any key is
// drawn once (grounded on cfg.py's CFG.output_to_dot).
func WriteFull(w io.Writer, blocks []*ir.BasicBlock) error {
	bw := &errWriter{w: w}
	bw.printf("digraph{\n")
	for _, bb := range blocks {
		bw.printf("%d[label=%q]\n", bb.Start().PC, blockLabel(bb))
		for _, son := range bb.AllOutgoing() {
			bw.printf("%d -> %d\n", bb.Start().PC, son.Start().PC)
		}
	}
	bw.printf("\n}")
	return bw.err
}

// WriteFunction renders one function's sub-CFG under its own edge
// namespace (grounded on function.py's Function.output_to_dot). The
// synthetic dispatcher is special-cased: every other function's entry
// point is additionally drawn as a labeled call-target stub node, mirroring
// output_dispatcher_to_dot.
func WriteFunction(w io.Writer, fn *ir.Function, all []*ir.Function) error {
	bw := &errWriter{w: w}
	bw.printf("digraph{\n")

	for _, bb := range fn.BasicBlocks {
		bw.printf("%d[label=%q]\n", bb.Start().PC, blockLabel(bb))

		sons := bb.Outgoing(fn.Selector)
		if len(sons) > 0 {
			for _, son := range sons {
				bw.printf("%d -> %d\n", bb.Start().PC, son.Start().PC)
			}
		} else if bb.EndsWithJumpOrJumpI() {
			bw.printf("// missing branches at %#x\n", bb.End().PC)
		}
	}

	if fn.Selector == ir.DispatcherKey {
		for _, other := range all {
			if other == fn {
				continue
			}
			bw.printf("%d[label=\"Call %s\"]\n", other.StartPC, other.Name)
		}
	}

	bw.printf("\n}")
	return bw.err
}

func blockLabel(bb *ir.BasicBlock) string {
	var b strings.Builder
	for i, ins := range bb.Instructions() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%#x:%s", ins.PC, ins.Name())
	}
	return b.String()
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
