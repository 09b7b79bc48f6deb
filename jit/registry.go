package jit

// RegistryPut records ptr under domain, returning a small dense ID GPU code
// can index by instead of dispatching through the raw host pointer
// (spec.md §4.3).
func RegistryPut(domain string, ptr uintptr) uint32 {
	st := current()
	if st == nil {
		return 0
	}
	st.lock()
	defer st.unlock()
	return st.registry.Put(domain, ptr)
}

// RegistryGet resolves domain/id back to its pointer, or 0 if id was never
// registered or has been removed.
func RegistryGet(domain string, id uint32) uintptr {
	st := current()
	if st == nil {
		return 0
	}
	st.lock()
	defer st.unlock()
	ptr, _ := st.registry.Get(domain, id)
	return ptr
}

// RegistryRemove releases id back to domain's free list for reuse. A
// remove of an unknown or already-removed id is a silent no-op, matching
// Free's own double-free tolerance.
func RegistryRemove(domain string, id uint32) {
	st := current()
	if st == nil {
		return
	}
	st.lock()
	defer st.unlock()
	_ = st.registry.Remove(domain, id)
}
