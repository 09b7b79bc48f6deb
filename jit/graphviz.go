package jit

import (
	"fmt"
	"strings"

	"github.com/jitgraph/jitgraph/internal/store"
)

// GraphViz renders the dependency subgraph reachable from roots as a
// DOT-language digraph, for the "dump the trace for inspection" debugging
// aid spec.md §7 calls for. Each node is labeled with its opcode, type, and
// element count; an attached SetLabel name is appended when present.
func GraphViz(roots ...VarId) string {
	st := current()
	if st == nil {
		return ""
	}
	st.lock()
	defer st.unlock()

	var b strings.Builder
	b.WriteString("digraph trace {\n")
	b.WriteString("  rankdir=BT;\n")

	visited := make(map[VarId]bool)
	var visit func(id VarId)
	visit = func(id VarId) {
		if id == store.NullVar || visited[id] {
			return
		}
		visited[id] = true
		v := st.store.Get(id)
		if v == nil {
			return
		}

		label := fmt.Sprintf("%s\\n%s x%d", v.Opcode, v.Type, v.Size)
		if v.Label != "" {
			label += "\\n" + v.Label
		}
		shape := "box"
		if v.IsLiteral {
			shape = "ellipse"
		}
		b.WriteString(fmt.Sprintf("  n%d [label=%q shape=%s];\n", id, label, shape))

		for i := 0; i < v.NumDeps(); i++ {
			dep := v.Deps[i]
			b.WriteString(fmt.Sprintf("  n%d -> n%d;\n", id, dep))
			visit(dep)
		}
	}
	for _, r := range roots {
		visit(r)
	}

	b.WriteString("}\n")
	return b.String()
}
