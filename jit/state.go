// Package jit is the public entry surface for the whole runtime (spec.md
// §6, component C13): it owns the single process-wide State, its mutex, and
// every package-level function client code calls. Grounded on the teacher's
// main.go, which is itself the single place that wires lexer, parser,
// compiler, and runtime together behind a small set of top-level functions;
// generalized here from a one-shot "compile this file" driver to a
// long-lived, lockable runtime singleton.
package jit

import (
	"sync"

	"github.com/jitgraph/jitgraph/config"
	"github.com/jitgraph/jitgraph/internal/alloc"
	"github.com/jitgraph/jitgraph/internal/cudabackend"
	"github.com/jitgraph/jitgraph/internal/jitlog"
	"github.com/jitgraph/jitgraph/internal/jitstats"
	"github.com/jitgraph/jitgraph/internal/kernelcache"
	"github.com/jitgraph/jitgraph/internal/llvmjit"
	"github.com/jitgraph/jitgraph/internal/registry"
	"github.com/jitgraph/jitgraph/internal/store"
	"github.com/jitgraph/jitgraph/internal/threadstate"
)

// InitOptions configures one Init call. A zero value is valid: every field
// falls back to config.Load's environment-driven defaults.
type InitOptions struct {
	LLVMPath   string
	CUDAPath   string
	CacheDir   string
	SubStreams int
	LogLevel   jitlog.Level
}

// State is the runtime's single process-wide instance (spec.md §5's "global
// state" design note: "a package-level singleton... protected by a mutex").
// mu is the Go realization of spec.md §5's single recursive mutex M: every
// exported package-level function in this package acquires it via
// lock()/unlock() before touching anything below, and the variable
// destruction cascade in internal/store is deliberately iterative so it
// never needs to re-enter lock() while already holding it.
type State struct {
	mu sync.Mutex

	cfg   config.Config
	stats *jitstats.Stats

	alloc    *alloc.Allocator
	store    *store.Store
	cache    *kernelcache.Cache
	registry *registry.Registry
	cuda     *cudabackend.Backend // nil on CPU-only hosts

	vectorWidth int
	llvmCPU     string
	llvmFeats   string

	// threadStates holds one ThreadState per backend rather than per
	// caller goroutine: spec.md §4.9 describes a context-carried handle
	// obtained via jit.Current(backend)/jit.WithThreadState, but the
	// public surface in spec.md §6 takes no context.Context parameter to
	// carry one through. Since every public entry already serializes
	// behind mu, one shared ThreadState per backend is observably
	// equivalent for this runtime's single-mutex concurrency model — see
	// DESIGN.md's Open Question resolution for C9.
	threadStates map[store.Backend]*threadstate.State
}

var (
	globalMu sync.Mutex
	global   *State
)

// Init constructs the runtime singleton: the allocator, variable store,
// kernel cache, registry, and (best-effort) CUDA backend. Calling Init
// twice without an intervening Shutdown returns an InvalidArgument error
// rather than silently discarding the first instance's state.
func Init(opts InitOptions) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		return errAlreadyInitialized()
	}

	cfg := config.Load()
	if opts.LLVMPath != "" {
		cfg.LLVMPath = opts.LLVMPath
	}
	if opts.CUDAPath != "" {
		cfg.CUDAPath = opts.CUDAPath
	}
	if opts.CacheDir != "" {
		cfg.CacheDir = opts.CacheDir
	}
	if opts.SubStreams > 0 {
		cfg.SubStreams = opts.SubStreams
	}
	jitlog.SetLevel(cfg.LogLevel)

	stats := jitstats.New()
	a := alloc.New(stats)
	s := store.New(a, stats)
	cache := kernelcache.New(cfg.CacheDir, stats)

	llvmjit.Init()

	st := &State{
		cfg:          cfg,
		stats:        stats,
		alloc:        a,
		store:        s,
		cache:        cache,
		registry:     registry.New(),
		vectorWidth:  llvmjit.VectorWidth(),
		threadStates: make(map[store.Backend]*threadstate.State),
	}

	cuda, err := cudabackend.Open(cfg.CUDAPath, cfg.SubStreams, a)
	if err != nil {
		jitlog.Infow("jit: CUDA backend unavailable, continuing CPU-only", "err", err)
	} else {
		st.cuda = cuda
	}

	s.SetEvaluator(st)
	s.SetReclaimer(st)
	global = st
	return nil
}

// Shutdown drains the allocator and tears down the CUDA backend. With
// light == true it skips the kernel-cache GC pass (spec.md's distinction
// between a full shutdown and a "light", fast-path teardown for
// short-lived processes). Any variable still holding a non-zero refcount
// is logged as a warning (at most 10 variables listed, then one line
// giving the total), then the store is dropped regardless - Shutdown never
// blocks indefinitely on a caller's forgotten DecRefExt.
func Shutdown(light bool) {
	globalMu.Lock()
	st := global
	global = nil
	globalMu.Unlock()
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	reportLeaksLocked(st)

	if !light {
		st.cache.GC(64, 0)
	}
	st.alloc.Shutdown()
	if st.cuda != nil {
		st.cuda.Close()
	}
}

func (st *State) lock()   { st.mu.Lock() }
func (st *State) unlock() { st.mu.Unlock() }

// current returns the active State, or nil if Init was never called.
func current() *State {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}

func reportLeaksLocked(st *State) {
	n := st.store.Len()
	if n == 0 {
		return
	}
	shown := 0
	for _, v := range st.store.Variables() {
		if shown >= 10 {
			jitlog.Warnw("jit: additional leaked variables omitted", "total", n, "shown", shown)
			break
		}
		jitlog.Warnw("jit: leaked variable at shutdown", "id", v.ID, "opcode", v.Opcode, "label", v.Label)
		shown++
	}
}
