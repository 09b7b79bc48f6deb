package jit

import (
	"github.com/jitgraph/jitgraph/internal/alloc"
	"github.com/jitgraph/jitgraph/internal/store"
)

// AllocType re-exports internal/alloc's pool selector.
type AllocType = alloc.AllocType

const (
	AllocHost       = alloc.Host
	AllocHostAsync  = alloc.HostAsync
	AllocHostPinned = alloc.HostPinned
	AllocDevice     = alloc.Device
	AllocManaged    = alloc.Managed
)

// liveAllocations tracks each outstanding pointer's pool and size so Free
// can look both up without requiring the caller to remember them - spec.md
// §6's Free(ptr) takes only a pointer, unlike internal/alloc.Reclaim which
// needs the allocation type and size it was requested with.
var liveAllocations = make(map[uintptr]struct {
	t    AllocType
	size uintptr
})

// Malloc returns a pooled buffer of at least size bytes from pool t
// (spec.md §4.2).
func Malloc(t AllocType, size uintptr) (uintptr, error) {
	st := current()
	if st == nil {
		return 0, errNotInitialized()
	}
	st.lock()
	defer st.unlock()

	ptr, err := st.alloc.Malloc(t, size)
	if err != nil {
		return 0, err
	}
	liveAllocations[ptr] = struct {
		t    AllocType
		size uintptr
	}{t, size}
	return ptr, nil
}

// Free enqueues ptr onto the current thread's release chain, to be
// reclaimed once its backend stream's pending event completes (spec.md's
// lazy-reclaim free()).
func Free(ptr uintptr) {
	st := current()
	if st == nil {
		return
	}
	st.lock()
	defer st.unlock()

	rec, ok := liveAllocations[ptr]
	if !ok {
		return // double-free or a pointer this package never handed out
	}
	delete(liveAllocations, ptr)

	backend := backendForAllocType(rec.t)
	ts := st.threadStateFor(backend, 0)
	ts.Defer(rec.t, ptr, rec.size, 0)
}

// Reclaim implements store.Reclaimer: destroy() calls this instead of
// reaching into the allocator directly, so a GPU buffer whose producing
// kernel launch may still be in flight goes through the same deferred
// release chain (threadstate.State.Defer) that the public Free path above
// uses, rather than being handed back to the pool synchronously while event
// is still pending. Host has no async launch (event is always 0 for
// BackendHost), so deferring there is a correctness no-op, kept uniform
// with GPU rather than special-cased.
func (st *State) Reclaim(t alloc.AllocType, ptr uintptr, size uintptr, backend store.Backend, device int32, event uintptr) {
	ts := st.threadStateFor(backend, device)
	ts.Defer(t, ptr, size, event)
}

// MallocTrim releases every pool's cached-but-unused blocks back to the
// platform allocator (spec.md §6's malloc_trim()).
func MallocTrim() {
	st := current()
	if st == nil {
		return
	}
	st.lock()
	defer st.unlock()
	st.alloc.Trim(16)
}

func backendForAllocType(t AllocType) store.Backend {
	if t == alloc.Device || t == alloc.Managed {
		return store.BackendGPU
	}
	return store.BackendHost
}
