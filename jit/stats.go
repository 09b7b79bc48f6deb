package jit

import "github.com/jitgraph/jitgraph/internal/jitstats"

// Statistics is the public snapshot returned by Stats (spec.md §7's
// "counters queryable for diagnostics").
type Statistics = jitstats.Snapshot

// Stats returns a point-in-time snapshot of the kernel-cache and allocator
// counters. The zero Statistics is returned if the runtime is not
// initialized.
func Stats() Statistics {
	st := current()
	if st == nil {
		return Statistics{}
	}
	st.lock()
	defer st.unlock()
	return st.stats.Snapshot()
}
