package llvmjit

import (
	"github.com/jitgraph/jitgraph/internal/jiterr"
	"tinygo.org/x/go-llvm"
)

// Compiled is one successfully parsed, verified, optimized kernel: an
// in-process ExecutionEngine entry point for immediate launch, plus the raw
// relocatable object bytes internal/kernelcache persists as a Kernel's Code
// field.
type Compiled struct {
	Module llvm.Module
	Engine llvm.ExecutionEngine
	Entry  uintptr
	Object []byte
}

// Compile parses irText (as produced by internal/codegen.GenerateHost),
// verifies it, runs the O2 optimization pipeline, and JIT-compiles
// kernelName. Verification failure is fatal per spec.md §7's CompileFailure
// classification: a malformed kernel means the scheduler or code generator
// has a bug, not something a caller can recover from.
//
// Grounded on the teacher's compiler/compiler.go Context/Module/builder
// triad; extended with the parse/verify/optimize/JIT pipeline that
// teacher's incremental AST-driven IR construction never needed.
func Compile(irText, kernelName string) (*Compiled, error) {
	Init()

	ctx := llvm.NewContext()
	buf := llvm.NewMemoryBufferFromString(irText)
	mod, err := ctx.ParseIR(buf)
	if err != nil {
		return nil, jiterr.Wrap(jiterr.InvalidArgument, err, "llvmjit: parse IR")
	}

	if verr := llvm.VerifyModule(mod, llvm.ReturnStatusAction); verr != nil {
		jiterr.Fatal("llvmjit: module verification failed: %v", verr)
	}

	optimize(mod)

	object, err := emitObject(mod)
	if err != nil {
		return nil, err
	}

	// spec.md §4.7 step 5 prefers ORCv2 over MCJIT when both are available.
	// detectCapabilities().UsesORC is hardcoded false: this binding of
	// tinygo.org/x/go-llvm exports no orc.go/orcv2 API (see capabilities.go),
	// so the only execution-engine path it can offer is MCJIT's
	// NewExecutionEngine, used unconditionally below. The branch stays
	// explicit (rather than deleting the UsesORC field and this comment)
	// so swapping in an ORCv2-capable go-llvm revision later is a one-line
	// change here, not a rediscovery of the limitation.
	if detectCapabilities().UsesORC {
		jiterr.Fatal("llvmjit: ORCv2 reported available but no ORCv2 path is implemented")
	}
	engine, err := llvm.NewExecutionEngine(mod)
	if err != nil {
		return nil, jiterr.Wrap(jiterr.BackendUnavailable, err, "llvmjit: create execution engine")
	}

	fn := mod.NamedFunction(kernelName)
	entry := uintptr(engine.PointerToGlobal(fn))

	return &Compiled{Module: mod, Engine: engine, Entry: entry, Object: object}, nil
}

// optimize runs an O2 pipeline with loop unrolling explicitly disabled.
// Loop unrolling is the only one of the three transforms spec.md §4.7 step
// 4 names that this function turns off by call; the loop and SLP
// vectorizers are not enabled here and stay at the pass-manager builder's
// defaults.
func optimize(mod llvm.Module) {
	pmb := llvm.NewPassManagerBuilder()
	defer pmb.Dispose()
	pmb.SetOptLevel(2)
	pmb.SetSizeLevel(0)
	pmb.SetDisableUnrollLoops(true)
	pmb.SetDisableUnitAtATime(false)

	pm := llvm.NewPassManager()
	defer pm.Dispose()
	pmb.Populate(pm)
	pm.Run(mod)
}

// emitObject compiles mod to a relocatable object for the host's default
// target triple. The resulting bytes are what internal/kernelcache writes
// to L2 and what internal/llvmjit.LoadExecutable relocates into executable
// memory on a subsequent cache hit, so a cache restore never needs to
// re-invoke LLVM.
func emitObject(mod llvm.Module) ([]byte, error) {
	triple := llvm.DefaultTargetTriple()
	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return nil, jiterr.Wrap(jiterr.BackendUnavailable, err, "llvmjit: resolve target triple")
	}
	tm := target.CreateTargetMachine(triple, "generic", "",
		llvm.CodeGenLevelDefault, llvm.RelocPIC, llvm.CodeModelDefault)
	defer tm.Dispose()

	memBuf, err := tm.EmitToMemoryBuffer(mod, llvm.ObjectFile)
	if err != nil {
		return nil, jiterr.Wrap(jiterr.BackendUnavailable, err, "llvmjit: emit object code")
	}
	return append([]byte(nil), memBuf.Bytes()...), nil
}

// Dispose releases the ExecutionEngine and its owned module. Must be called
// exactly once per Compiled, under the caller's kernel-cache eviction path.
func (c *Compiled) Dispose() {
	c.Engine.Dispose()
}
