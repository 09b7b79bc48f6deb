package jit

import (
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/jitgraph/jitgraph/config"
	"github.com/jitgraph/jitgraph/internal/alloc"
	"github.com/jitgraph/jitgraph/internal/codegen"
	"github.com/jitgraph/jitgraph/internal/cudabackend"
	"github.com/jitgraph/jitgraph/internal/jiterr"
	"github.com/jitgraph/jitgraph/internal/kernelcache"
	"github.com/jitgraph/jitgraph/internal/llvmjit"
	"github.com/jitgraph/jitgraph/internal/schedule"
	"github.com/jitgraph/jitgraph/internal/store"
	"github.com/jitgraph/jitgraph/internal/threadstate"
)

// scheduleGroupView is the introspection-friendly projection of a
// schedule.Group the public Schedule function returns, so callers (jitctl,
// GraphViz) never need to import internal/schedule directly.
type scheduleGroupView struct {
	Backend Backend
	Device  int32
	Size    uint32
	Nodes   []VarId
	Inputs  []VarId
	Outputs []VarId
}

func (st *State) scheduleLocked(roots []VarId) ([]*scheduleGroupView, error) {
	groups, err := schedule.Schedule(st.store, roots)
	if err != nil {
		return nil, err
	}
	out := make([]*scheduleGroupView, len(groups))
	for i, g := range groups {
		out[i] = &scheduleGroupView{
			Backend: g.Backend, Device: g.Device, Size: g.Size,
			Nodes: g.Nodes, Inputs: g.Inputs, Outputs: g.Outputs,
		}
	}
	return out, nil
}

// Eval implements store.Evaluator: store.Read calls back into this method
// when a variable it needs is unevaluated. st.mu is already held on entry
// (store.Read is itself only reachable while holding it); the process-wide
// lock is released for the actual compile/launch work via unlockGuard,
// mirroring spec.md §5's suspension-point rule and the teacher's
// defer lock.Unlock() idiom in prepareRuntime, then reacquired before
// returning so the caller's own deferred unlock is balanced.
func (st *State) Eval(roots []store.VarId) error {
	groups, err := schedule.Schedule(st.store, roots)
	if err != nil {
		return err
	}

	defer unlockGuard(st)()
	for _, g := range groups {
		if err := st.evalGroup(g); err != nil {
			return err
		}
	}
	return nil
}

// unlockGuard releases st.mu and returns a function that reacquires it,
// the Go realization of spec.md §5's scoped suspension points.
func unlockGuard(st *State) func() {
	st.unlock()
	return st.lock
}

func (st *State) evalGroup(g *schedule.Group) error {
	ts := st.threadStateFor(g.Backend, g.Device)

	outAddrs, err := st.materializeOutputs(g)
	if err != nil {
		return err
	}

	k, err := st.buildOrFetch(g)
	if err != nil {
		return err
	}

	inAddrs, err := st.inputAddresses(g)
	if err != nil {
		return err
	}

	event, err := st.launch(g, ts, k, inAddrs, outAddrs)
	if err != nil {
		return err
	}

	for i, id := range g.Outputs {
		v := st.store.Get(id)
		if v == nil || v.Opcode == "scatter" {
			continue
		}
		v.Buffer = outAddrs[i]
		v.Evaluated = true
		v.ReleaseEvent = event
	}
	return nil
}

// materializeOutputs allocates a fresh buffer for every output node not
// already evaluated (a node can be both an Output and a pre-existing
// Input-turned-output across scheduling passes, in which case its buffer is
// reused).
func (st *State) materializeOutputs(g *schedule.Group) ([]uintptr, error) {
	allocType := alloc.Host
	if g.Backend == store.BackendGPU {
		allocType = alloc.Device
	}

	addrs := make([]uintptr, len(g.Outputs))
	for i, id := range g.Outputs {
		v := st.store.Get(id)
		if v == nil {
			return nil, jiterr.Raise(jiterr.InvalidArgument, "eval: output %d missing from store", id)
		}
		if v.Evaluated && v.Buffer != 0 {
			addrs[i] = v.Buffer
			continue
		}
		size := uintptr(v.Size) * uintptr(v.Type.ByteSize())
		ptr, err := st.alloc.Malloc(allocType, size)
		if err != nil {
			return nil, jiterr.Wrap(jiterr.OutOfMemory, err, "eval: allocate output buffer")
		}
		addrs[i] = ptr
	}
	return addrs, nil
}

// inputAddresses resolves each Input's bound buffer. It forces no
// evaluation: Schedule only lists evaluated variables and placeholders as
// Inputs, and an input with no bound buffer is reported as an error.
func (st *State) inputAddresses(g *schedule.Group) ([]uintptr, error) {
	addrs := make([]uintptr, len(g.Inputs))
	for i, id := range g.Inputs {
		v := st.store.Get(id)
		if v == nil {
			return nil, jiterr.Raise(jiterr.InvalidArgument, "eval: input %d missing from store", id)
		}
		if v.Buffer == 0 {
			return nil, jiterr.Raise(jiterr.InvalidArgument, "eval: input %d (opcode=%q) has no bound buffer", id, v.Opcode)
		}
		addrs[i] = v.Buffer
	}
	return addrs, nil
}

// buildOrFetch returns a compiled, ready-to-launch kernel for g, consulting
// the two-tier cache first and falling back to codegen+compile on a hard
// miss, serialized per-fingerprint by kernelcache's build gate so two
// goroutines racing to evaluate the same group compile it only once.
func (st *State) buildOrFetch(g *schedule.Group) (*kernelcache.Kernel, error) {
	if k, ok := st.cache.Lookup(g.Fingerprint); ok {
		return k, nil
	}

	gate, owner := st.cache.BeginBuild(g.Fingerprint)
	if !owner {
		return gate.Wait()
	}

	k, err := st.compileGroup(g)
	st.cache.FinishBuild(g.Fingerprint, k, err)
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (st *State) compileGroup(g *schedule.Group) (*kernelcache.Kernel, error) {
	switch g.Backend {
	case store.BackendHost:
		ir, err := codegen.GenerateHost(st.store, g, st.vectorWidth)
		if err != nil {
			return nil, err
		}
		compiled, err := llvmjit.Compile(ir, codegen.KernelName(g.Fingerprint))
		if err != nil {
			return nil, err
		}
		st.registerHostEntry(g.Fingerprint, compiled.Entry)
		return &kernelcache.Kernel{Fingerprint: g.Fingerprint, Backend: g.Backend, Code: compiled.Object}, nil

	case store.BackendGPU:
		if st.cuda == nil {
			return nil, jiterr.Raise(jiterr.BackendUnavailable, "eval: group targets gpu but no CUDA backend is open")
		}
		ptx, err := codegen.GeneratePTX(st.store, g)
		if err != nil {
			return nil, err
		}
		return &kernelcache.Kernel{Fingerprint: g.Fingerprint, Backend: g.Backend, Code: []byte(ptx)}, nil

	default:
		return nil, jiterr.Raise(jiterr.InvalidArgument, "eval: unknown backend %s", g.Backend)
	}
}

// hostEntries maps a fingerprint to its freshly JIT-compiled entry point,
// for the same-process launch path; a cache hit that restored Code from
// disk instead goes through llvmjit.LoadExecutable + ExtractText (the
// cache-restore path llvmjit documents), never back through this map.
var hostEntries = map[schedule.Fingerprint]uintptr{}

func (st *State) registerHostEntry(fp schedule.Fingerprint, entry uintptr) {
	hostEntries[fp] = entry
}

func (st *State) launch(g *schedule.Group, ts *threadstate.State, k *kernelcache.Kernel, inAddrs, outAddrs []uintptr) (uintptr, error) {
	switch g.Backend {
	case store.BackendHost:
		return st.launchHost(g, k, inAddrs, outAddrs)
	case store.BackendGPU:
		return st.launchGPU(g, ts, k, inAddrs, outAddrs)
	default:
		return 0, jiterr.Raise(jiterr.InvalidArgument, "eval: unknown backend %s", g.Backend)
	}
}

// launchHost calls the JIT-compiled kernel function directly via
// purego.SyscallN, the same "call a raw function pointer with the C ABI"
// primitive internal/cudabackend's purego.RegisterLibFunc ultimately
// compiles down to - the one difference being the address here comes from
// llvmjit's ExecutionEngine rather than dlsym.
func (st *State) launchHost(g *schedule.Group, k *kernelcache.Kernel, inAddrs, outAddrs []uintptr) (uintptr, error) {
	entry, ok := hostEntries[g.Fingerprint]
	if !ok {
		// Cache-restored kernel: relocate the cached object's .text into
		// fresh executable pages instead of re-invoking LLVM.
		text, err := llvmjit.ExtractText(k.Code)
		if err != nil {
			return 0, err
		}
		addr, _, err := llvmjit.LoadExecutable(text)
		if err != nil {
			return 0, err
		}
		entry = addr
		hostEntries[g.Fingerprint] = entry
	}

	args := make([]uintptr, 0, len(inAddrs)+len(outAddrs))
	args = append(args, inAddrs...)
	args = append(args, outAddrs...)
	_, _, errno := purego.SyscallN(entry, args...)
	if errno != 0 {
		return 0, jiterr.Raise(jiterr.BackendUnavailable, "eval: host kernel call failed: errno %d", errno)
	}
	return 0, nil
}

func (st *State) launchGPU(g *schedule.Group, ts *threadstate.State, k *kernelcache.Kernel, inAddrs, outAddrs []uintptr) (uintptr, error) {
	dev, err := st.cuda.Device(int(g.Device))
	if err != nil {
		return 0, err
	}

	entry := codegen.KernelName(g.Fingerprint)
	module, fn, err := dev.LoadPTX(string(k.Code), entry)
	if err != nil {
		return 0, err
	}
	defer dev.UnloadModule(module)

	params := make([]unsafe.Pointer, 0, len(inAddrs)+len(outAddrs))
	for i := range inAddrs {
		params = append(params, unsafe.Pointer(&inAddrs[i]))
	}
	for i := range outAddrs {
		params = append(params, unsafe.Pointer(&outAddrs[i]))
	}

	blockSize := config.DefaultBlockSize
	event, err := dev.Launch(fn, cudabackend.LaunchParams{
		GridX:  cudabackend.GridSize1D(int(g.Size), blockSize),
		GridY:  1,
		GridZ:  1,
		BlockX: uint32(blockSize),
		BlockY: 1,
		BlockZ: 1,
		Args:   params,
	})
	if err != nil {
		return 0, err
	}
	_ = ts
	return event, nil
}
