package codegen

import (
	"fmt"

	"github.com/jitgraph/jitgraph/internal/jiterr"
	"github.com/jitgraph/jitgraph/internal/schedule"
	"github.com/jitgraph/jitgraph/internal/store"
)

// GenerateHost renders g as one LLVM IR text module containing a single
// kernel function, ready for internal/llvmjit to parse, verify, optimize,
// and JIT-execute. Grounded on the teacher's compiler/compiler.go, which
// emits one LLVM function per Pluto function and threads an
// llvm.Value map across statements; generalized here to one function per
// scheduled Group, with the value map keyed by VarId instead of Pluto
// identifier.
//
// The function body is a single index-driven scalar loop over the group's
// (compile-time-constant, since Size is part of the kernel's Fingerprint)
// element count: entry branches straight into the loop, a phi carries the
// induction variable, and the loop latch increments and branches back until
// the count is reached. Every per-lane load/store inside the body addresses
// through that induction variable (loadInput, storeIndexed); broadcast
// (Size 1) dependencies always address index 0 instead. vectorWidth is
// only recorded in the header comment for diagnostics: the emitted loop
// handles one scalar element per iteration, and internal/llvmjit's O2 pass
// does not enable the loop vectorizer to widen it.
func GenerateHost(s *store.Store, g *schedule.Group, vectorWidth int) (string, error) {
	if g.Backend != store.BackendHost {
		return "", jiterr.Raise(jiterr.InvalidArgument, "codegen: group targets backend %s, not host", g.Backend)
	}

	e := newEmitter(s, targetLLVM)
	e.prepareInputs(g)

	kernelName := KernelName(g.Fingerprint)
	e.emitf("; vector_width=%d size=%d\n", vectorWidth, g.Size)
	e.emitf("define void @%s(", kernelName)
	writeHostParams(e, g)
	e.emitf(") {\nentry:\n")
	e.emitf("  br label %%loop\n\n")
	e.emitf("loop:\n")
	e.emitf("  %%i = phi i64 [ 0, %%entry ], [ %%i.next, %%loop ]\n")
	e.laneIndex = "%i"

	for _, id := range g.Nodes {
		v := s.Get(id)
		fn, ok := lookupOp(v.Opcode)
		if !ok {
			return "", jiterr.Raise(jiterr.InvalidArgument, "codegen: %s", unsupportedOp(v.Opcode))
		}
		e.values[id] = fn(e, v)
	}

	for i, id := range g.Outputs {
		v := s.Get(id)
		if v.Opcode == "scatter" {
			continue // already writes its result directly; nothing to re-store
		}
		reg, ok := e.values[id]
		if !ok {
			reg = e.operand(id, v.Type)
		}
		buf := e.paramPointer("out", i, v.Type)
		e.storeIndexed(buf, e.laneIndex, reg, v.Type)
	}

	e.emitf("  %%i.next = add i64 %%i, 1\n")
	e.emitf("  %%done = icmp eq i64 %%i.next, %d\n", g.Size)
	e.emitf("  br i1 %%done, label %%exit, label %%loop\n\n")
	e.emitf("exit:\n")
	e.emitf("  ret void\n}\n")

	return e.buf.String(), nil
}

// KernelName derives a kernel's symbol/entry-point name from its schedule
// fingerprint, shared by GenerateHost, GeneratePTX, and internal/llvmjit so
// a compiled module's entry point is always findable without threading an
// extra name around.
func KernelName(fp schedule.Fingerprint) string {
	return fmt.Sprintf("kernel_%x", fp[:8])
}

func writeHostParams(e *Emitter, g *schedule.Group) {
	n := 0
	for i, id := range g.Inputs {
		v := e.s.Get(id)
		if i > 0 {
			e.emitf(", ")
		}
		e.emitf("%s* %%in_%d", e.typeName(v.Type), i)
		n++
	}
	for i, id := range g.Outputs {
		v := e.s.Get(id)
		if n > 0 || i > 0 {
			e.emitf(", ")
		}
		e.emitf("%s* %%out_%d", e.typeName(v.Type), i)
	}
}
