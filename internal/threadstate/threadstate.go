// Package threadstate implements component C9: the per-thread record
// binding a calling goroutine to one backend's stream/task handle, its
// deferred release chain, and its active_mask stack (spec.md §3's
// ThreadState, §4.2's "free() enqueues onto the thread's release_chain").
//
// Go has no stable goroutine-local storage, so there is no way to realize
// spec.md §4.9's "stored in thread-local storage for each backend" literally
// (sync.Map keyed by goroutine ID is not a supported or safe pattern).
// Instead, a *State is an explicit value handed to its callers: the root jit
// package keeps one State per backend (jit.State's threadStates map, shared
// by every calling goroutine behind the process-wide mutex) and passes it
// where needed. This package owns the State type and its operations; the
// root jit package owns the lookup around it.
package threadstate

import (
	"github.com/jitgraph/jitgraph/internal/alloc"
	"github.com/jitgraph/jitgraph/internal/store"
)

// maskScope is an active_mask entry: the masked scope's guarding predicate
// variable plus, below it in the stack, whatever scope enclosed it. A
// direct adaptation of compiler/scopes.go's Scope[T]/PushScope/PopScope
// (kept self-contained here rather than imported, since that package still
// carries the teacher's AST-walking dependencies this package has no
// business pulling in).
type maskScope struct {
	mask store.VarId
}

// Handle is the backend-specific resource a State's operations are
// serialized behind: a CUDA stream+event pair for store.BackendGPU, or a
// host task/queue token for store.BackendHost. Kept as opaque uintptrs (the
// same representation internal/cudabackend already hands back from
// NextStream) so this package never needs to import internal/cudabackend
// directly.
type Handle struct {
	Stream uintptr
	Event  uintptr
}

// ReleaseRecord is one freed-but-not-yet-reclaimed buffer: spec.md §4.2's
// "free() enqueues the block onto the thread's release_chain together with
// the current stream's pending event". Reclaim happens once Event has
// completed, never before, enforcing "a pointer freed on stream A is not
// reusable on stream B until A's event has completed".
type ReleaseRecord struct {
	Type  alloc.AllocType
	Ptr   uintptr
	Size  uintptr
	Event uintptr
}

// State is one thread's binding to a backend: which device, which
// stream/task, its deferred release chain, and its active_mask stack.
// Grounded directly on spec.md §3's ThreadState fields.
type State struct {
	Backend store.Backend
	Device  int32
	Handle  Handle

	releaseChain []ReleaseRecord
	activeMasks  []maskScope
}

// New creates a State bound to backend/device with an empty release chain
// and no active mask scopes. Masked execution is opt-in per
// PushMask/PopMask call, unlike compiler/scopes.go's Scope[T] stack (which
// always keeps a mandatory global scope); there is no equivalent "global
// mask" concept here, so an empty stack is the valid, common case.
func New(backend store.Backend, device int32, handle Handle) *State {
	return &State{Backend: backend, Device: device, Handle: handle}
}

// PushMask enters a masked execution scope guarded by mask (spec.md §3's
// active_mask stack): subsequent ops in this scope should be predicated on
// mask, the same pattern compiler/scopes.go's PushScope established for
// lexical variable scopes, adapted here to a single guarding VarId instead
// of a name->value map.
func (s *State) PushMask(mask store.VarId) {
	s.activeMasks = append(s.activeMasks, maskScope{mask: mask})
}

// PopMask leaves the innermost masked scope. Popping an empty stack is a
// programming error in the caller (every PushMask must be matched), so it
// panics rather than silently no-op-ing, mirroring PopScope's "cannot pop
// global scope" discipline of failing loudly on misuse.
func (s *State) PopMask() {
	if len(s.activeMasks) == 0 {
		panic("threadstate: PopMask on empty active_mask stack")
	}
	s.activeMasks = s.activeMasks[:len(s.activeMasks)-1]
}

// CurrentMask returns the innermost active mask and true, or false if no
// masked scope is active (unmasked execution).
func (s *State) CurrentMask() (store.VarId, bool) {
	if len(s.activeMasks) == 0 {
		return 0, false
	}
	return s.activeMasks[len(s.activeMasks)-1].mask, true
}

// Defer appends a freed buffer to the release chain, to be reclaimed once
// its paired event completes. Called by the root jit package's Free and by
// its store.Reclaimer implementation (jit.State.Reclaim).
func (s *State) Defer(t alloc.AllocType, ptr uintptr, size uintptr, event uintptr) {
	s.releaseChain = append(s.releaseChain, ReleaseRecord{Type: t, Ptr: ptr, Size: size, Event: event})
}

// Reclaim walks the release chain, returning to a completed state every
// record whose isDone predicate now reports true, handing each one to the
// allocator's Reclaim and dropping it from the chain. isDone is injected
// (normally internal/cudabackend.EventQuery or an always-true host
// predicate) so this package never depends on a specific backend's event
// API.
func (s *State) Reclaim(a *alloc.Allocator, isDone func(event uintptr) (bool, error)) error {
	kept := s.releaseChain[:0]
	for _, rec := range s.releaseChain {
		done, err := isDone(rec.Event)
		if err != nil {
			return err
		}
		if !done {
			kept = append(kept, rec)
			continue
		}
		a.Reclaim(rec.Type, rec.Ptr, rec.Size)
	}
	s.releaseChain = kept
	return nil
}

// PendingCount reports how many buffers are still awaiting their event,
// exposed for Stats/diagnostics and for tests.
func (s *State) PendingCount() int { return len(s.releaseChain) }

// DrainAll blocks (via waitEvent, normally EventSynchronize) until every
// pending release record's event has completed, then reclaims all of them.
// Used by sync_thread and by shutdown, which must not leave any buffer
// permanently stranded in the chain.
func (s *State) DrainAll(a *alloc.Allocator, waitEvent func(event uintptr) error) error {
	for _, rec := range s.releaseChain {
		if err := waitEvent(rec.Event); err != nil {
			return err
		}
		a.Reclaim(rec.Type, rec.Ptr, rec.Size)
	}
	s.releaseChain = nil
	return nil
}
