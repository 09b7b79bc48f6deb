// Package jitstats holds the process-wide counters named but never given a
// home by spec.md (kernel_hits, kernel_soft_misses, kernel_hard_misses, plus
// allocator hit/miss counts), shaped after the PoolStats struct the pack's
// CUDA pool reference keeps for the same purpose.
package jitstats

import "sync/atomic"

// Stats is safe for concurrent use; every field is updated with atomic ops
// so readers never need the global mutex.
type Stats struct {
	KernelHits       atomic.Int64
	KernelSoftMisses atomic.Int64
	KernelHardMisses atomic.Int64

	AllocHits   atomic.Int64
	AllocMisses atomic.Int64
	AllocBytes  atomic.Int64
	FreeBytes   atomic.Int64

	VariablesLive   atomic.Int64
	VariablesCreated atomic.Int64
}

// Snapshot is the immutable view returned by the public Stats() call.
type Snapshot struct {
	KernelHits       int64
	KernelSoftMisses int64
	KernelHardMisses int64
	AllocHits        int64
	AllocMisses      int64
	AllocBytes       int64
	FreeBytes        int64
	VariablesLive    int64
	VariablesCreated int64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		KernelHits:       s.KernelHits.Load(),
		KernelSoftMisses: s.KernelSoftMisses.Load(),
		KernelHardMisses: s.KernelHardMisses.Load(),
		AllocHits:        s.AllocHits.Load(),
		AllocMisses:      s.AllocMisses.Load(),
		AllocBytes:       s.AllocBytes.Load(),
		FreeBytes:        s.FreeBytes.Load(),
		VariablesLive:    s.VariablesLive.Load(),
		VariablesCreated: s.VariablesCreated.Load(),
	}
}

// New returns a zeroed Stats block.
func New() *Stats { return &Stats{} }
