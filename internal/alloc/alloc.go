// Package alloc implements the pooled host/device allocator (spec.md §4.2,
// component C2): five pools keyed by AllocType, each a size-class -> free
// list. Grounded directly on other_examples/djeday123-goml__pool.go's Pool
// (256-byte size classes, Get/Put/FreeAll, Hits/Misses/AllocBytes/FreeBytes
// stats, a Trim(maxPerBucket) that spec.md's malloc_trim() is modeled on),
// generalized from one CUDA device pool to one pool per AllocType with a
// pluggable backing allocator (so Host can mmap and Device can defer to
// whatever GPU backend is active without this package importing it).
package alloc

import (
	"fmt"
	"sync"

	"github.com/jitgraph/jitgraph/internal/jitstats"
	"golang.org/x/sys/unix"
)

// AllocType selects which of the five pools a request is served from.
type AllocType int

const (
	Host AllocType = iota
	HostAsync
	HostPinned
	Device
	Managed
	numAllocTypes
)

func (t AllocType) String() string {
	switch t {
	case Host:
		return "Host"
	case HostAsync:
		return "HostAsync"
	case HostPinned:
		return "HostPinned"
	case Device:
		return "Device"
	case Managed:
		return "Managed"
	default:
		return "Unknown"
	}
}

// sizeClassAlign matches the pack reference's 256-byte bucket granularity:
// coarse enough that similar-but-not-identical requests still share a
// bucket, fine enough not to waste much memory on small arrays.
const sizeClassAlign = 256

func alignSize(n uintptr) uintptr {
	return (n + sizeClassAlign - 1) / sizeClassAlign * sizeClassAlign
}

// Backend is the pluggable platform allocator a pool calls on a cache miss.
// internal/cudabackend registers one for Device/Managed at init time; New
// wires the Host, HostAsync and HostPinned pools to the mmap implementation
// below.
type Backend struct {
	Alloc func(size uintptr) (uintptr, error)
	Free  func(ptr uintptr, size uintptr) error
}

type pool struct {
	mu      sync.Mutex
	backend Backend
	buckets map[uintptr][]uintptr // aligned size -> cached, ready-to-reuse blocks
	hits    int64
	misses  int64
}

// Allocator owns all five pools. It holds no global-mutex dependency of its
// own: the caller (internal/store, internal/threadstate) already serializes
// under the process-wide lock before calling in.
type Allocator struct {
	pools [numAllocTypes]*pool
	stats *jitstats.Stats
}

// New constructs an Allocator with the default Host backend wired to mmap
// and every other pool unconfigured (BackendUnavailable until a GPU backend
// registers itself via RegisterBackend).
func New(stats *jitstats.Stats) *Allocator {
	a := &Allocator{stats: stats}
	for t := range a.pools {
		a.pools[t] = &pool{buckets: make(map[uintptr][]uintptr)}
	}
	a.pools[Host].backend = Backend{Alloc: mmapAlloc, Free: mmapFree}
	a.pools[HostAsync].backend = Backend{Alloc: mmapAlloc, Free: mmapFree}
	a.pools[HostPinned].backend = Backend{Alloc: mmapAlloc, Free: mmapFree}
	return a
}

// RegisterBackend installs the platform allocator for a pool (used by
// internal/cudabackend to wire Device/Managed to cuMemAlloc/cuMemAllocManaged
// once a GPU context exists).
func (a *Allocator) RegisterBackend(t AllocType, b Backend) {
	a.pools[t].mu.Lock()
	defer a.pools[t].mu.Unlock()
	a.pools[t].backend = b
}

// Malloc returns an existing cached block of at least size bytes if one is
// available, otherwise calls the pool's backend allocator.
func (a *Allocator) Malloc(t AllocType, size uintptr) (uintptr, error) {
	p := a.pools[t]
	aligned := alignSize(size)

	p.mu.Lock()
	if bufs := p.buckets[aligned]; len(bufs) > 0 {
		ptr := bufs[len(bufs)-1]
		p.buckets[aligned] = bufs[:len(bufs)-1]
		p.hits++
		p.mu.Unlock()
		a.stats.AllocHits.Add(1)
		return ptr, nil
	}
	backend := p.backend
	p.mu.Unlock()

	if backend.Alloc == nil {
		return 0, fmt.Errorf("alloc: pool %s has no backend allocator configured", t)
	}
	ptr, err := backend.Alloc(aligned)
	if err != nil {
		return 0, fmt.Errorf("alloc: %s backend allocate %d bytes: %w", t, aligned, err)
	}

	p.mu.Lock()
	p.misses++
	p.mu.Unlock()
	a.stats.AllocMisses.Add(1)
	a.stats.AllocBytes.Add(int64(aligned))
	return ptr, nil
}

// Reclaim returns ptr to its pool's free list for reuse. Called only once
// the block's release event has completed (internal/threadstate's deferred
// release chain enforces this — see spec.md §4.2's "not reusable until A's
// event has completed" invariant); this function itself performs no
// waiting.
func (a *Allocator) Reclaim(t AllocType, ptr uintptr, size uintptr) {
	aligned := alignSize(size)
	p := a.pools[t]
	p.mu.Lock()
	p.buckets[aligned] = append(p.buckets[aligned], ptr)
	p.mu.Unlock()
	a.stats.FreeBytes.Add(int64(aligned))
}

// Trim releases cached-but-unused blocks back to the platform allocator,
// keeping at most maxPerBucket per size class. This is malloc_trim()'s
// implementation (spec.md §6), grounded on the pack reference's identically
// named Pool.Trim.
func (a *Allocator) Trim(maxPerBucket int) {
	for _, p := range a.pools {
		p.mu.Lock()
		backend := p.backend
		for size, bufs := range p.buckets {
			if len(bufs) <= maxPerBucket {
				continue
			}
			excess := bufs[maxPerBucket:]
			for _, ptr := range excess {
				if backend.Free != nil {
					_ = backend.Free(ptr, size)
				}
			}
			p.buckets[size] = bufs[:maxPerBucket]
		}
		p.mu.Unlock()
	}
}

// Shutdown drains every pool, returning all cached blocks to the platform
// allocator (spec.md §4.2: "On shutdown every pool is drained").
func (a *Allocator) Shutdown() {
	for _, p := range a.pools {
		p.mu.Lock()
		backend := p.backend
		for size, bufs := range p.buckets {
			for _, ptr := range bufs {
				if backend.Free != nil {
					_ = backend.Free(ptr, size)
				}
			}
		}
		p.buckets = make(map[uintptr][]uintptr)
		p.mu.Unlock()
	}
}

// mmapAlloc/mmapFree are the default Host-family backend: anonymous,
// read-write pages outside the Go heap, mirroring the runtime's need for
// buffers that survive independent of GC and that C7 can later mprotect to
// executable (relocated kernel pages use the same primitive — see
// internal/llvmjit).
func mmapAlloc(size uintptr) (uintptr, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, err
	}
	return uintptr(unsafePointer(b)), nil
}

func mmapFree(ptr uintptr, size uintptr) error {
	b := bytesFromPointer(ptr, int(size))
	return unix.Munmap(b)
}
