package kernelcache

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/jitgraph/jitgraph/internal/jiterr"
	"github.com/jitgraph/jitgraph/internal/jitlog"
	"github.com/jitgraph/jitgraph/internal/jitstats"
	"github.com/jitgraph/jitgraph/internal/schedule"
)

// Cache is the two-tier content-addressed kernel cache. Its own mutex is
// deliberately separate from the process-wide mutex (spec.md §5): disk I/O
// and LZ4 work must not hold the global lock, so callers release it around
// Build (the `unlock_guard` pattern in spec.md §5, mirrored on the teacher's
// flock.Lock/defer lock.Unlock() pairing in runtime.go's prepareRuntime).
// mu guards l1/gates specifically so a Lookup from one goroutine can run
// concurrently with another goroutine's FinishBuild without either racing
// on the maps, independent of whether the caller still holds the global
// lock.
type Cache struct {
	dir   string
	stats *jitstats.Stats

	mu    sync.Mutex
	l1    map[schedule.Fingerprint]*Kernel
	gates map[schedule.Fingerprint]*buildGate
}

// buildGate makes at-most-one build run per fingerprint at a time within
// this process; a second caller for the same fingerprint waits on done
// instead of recompiling, mirroring prepareRuntime's file lock but scoped
// per-fingerprint rather than process-wide.
type buildGate struct {
	done   chan struct{}
	kernel *Kernel
	err    error
}

// New creates a Cache rooted at dir (spec.md §6's cache directory root,
// resolved by config.Load). dir is created lazily on first Put.
func New(dir string, stats *jitstats.Stats) *Cache {
	return &Cache{
		dir:   dir,
		stats: stats,
		l1:    make(map[schedule.Fingerprint]*Kernel),
		gates: make(map[schedule.Fingerprint]*buildGate),
	}
}

// Lookup checks L1, then L2, returning (kernel, true) on a hit. A disk hit
// populates L1 before returning, per spec.md §4.6's two-tier promotion rule.
func (c *Cache) Lookup(fp schedule.Fingerprint) (*Kernel, bool) {
	c.mu.Lock()
	if k, ok := c.l1[fp]; ok {
		c.mu.Unlock()
		c.stats.KernelHits.Add(1)
		return k, true
	}
	c.mu.Unlock()

	k, ok := c.readDisk(fp)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	c.l1[fp] = k
	c.mu.Unlock()
	c.stats.KernelSoftMisses.Add(1)
	return k, true
}

// BeginBuild returns an existing in-flight gate for fp, or creates a new one
// and reports (gate, true) meaning the caller owns the build and must call
// Finish. A second concurrent caller for the same fingerprint gets
// (gate, false) and should call gate.Wait() instead of compiling.
func (c *Cache) BeginBuild(fp schedule.Fingerprint) (gate *buildGate, owner bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.gates[fp]; ok {
		return g, false
	}
	g := &buildGate{done: make(chan struct{})}
	c.gates[fp] = g
	return g, true
}

// Wait blocks until the owning caller's build finishes and returns its
// result.
func (g *buildGate) Wait() (*Kernel, error) {
	<-g.done
	return g.kernel, g.err
}

// FinishBuild records the build's outcome, wakes any waiters, stores a
// successful result in both tiers, and removes the gate.
func (c *Cache) FinishBuild(fp schedule.Fingerprint, k *Kernel, err error) {
	c.mu.Lock()
	g, ok := c.gates[fp]
	if !ok {
		c.mu.Unlock()
		return
	}
	g.kernel, g.err = k, err
	close(g.done)
	delete(c.gates, fp)
	if err == nil {
		c.l1[fp] = k
	}
	c.mu.Unlock()

	c.stats.KernelHardMisses.Add(1)
	if err != nil {
		return
	}
	if werr := c.writeDisk(k); werr != nil {
		jitlog.Warnw("kernelcache: disk write failed", "fingerprint", hex.EncodeToString(fp[:]), "err", werr)
	}
}

func (c *Cache) path(fp schedule.Fingerprint) string {
	return filepath.Join(c.dir, hex.EncodeToString(fp[:]))
}

func (c *Cache) readDisk(fp schedule.Fingerprint) (*Kernel, bool) {
	data, err := os.ReadFile(c.path(fp))
	if err != nil {
		return nil, false
	}
	k, err := decode(fp, data)
	if err != nil {
		jitlog.Warnw("kernelcache: corrupt cache entry, ignoring", "fingerprint", hex.EncodeToString(fp[:]), "err", err)
		return nil, false
	}
	return k, true
}

// writeDisk persists k via the atomic-rename-from-temp-file pattern spec.md
// §5 calls out as the cross-process concurrency guard, grounded on
// runtime.go's hash-file-as-completion-marker idiom.
func (c *Cache) writeDisk(k *Kernel) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return jiterr.Wrap(jiterr.BackendUnavailable, err, "kernelcache: create cache dir")
	}

	lock := flock.New(filepath.Join(c.dir, ".lock"))
	if err := lock.Lock(); err != nil {
		return jiterr.Wrap(jiterr.BackendUnavailable, err, "kernelcache: acquire cache lock")
	}
	defer lock.Unlock()

	body, err := encode(k)
	if err != nil {
		return err
	}

	final := c.path(k.Fingerprint)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return jiterr.Wrap(jiterr.BackendUnavailable, err, "kernelcache: write temp file")
	}
	if err := os.Rename(tmp, final); err != nil {
		return jiterr.Wrap(jiterr.BackendUnavailable, err, "kernelcache: rename into place")
	}
	return nil
}

// GC removes disk entries beyond keep most-recently-used ones that are
// older than minAge, mirroring runtime.go's cleanupOldRuntimes (sorted by
// mtime ascending, oldest first, bounded by both a count and an age floor
// so a cache still warming up is never pruned).
func (c *Cache) GC(keep int, minAge time.Duration) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}

	type fileInfo struct {
		path  string
		mtime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || !isFingerprintName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{filepath.Join(c.dir, e.Name()), info.ModTime()})
	}
	if len(files) <= keep {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mtime.Before(files[j].mtime) })
	cutoff := time.Now().Add(-minAge)
	for i := 0; i < len(files)-keep; i++ {
		if files[i].mtime.Before(cutoff) {
			if err := os.Remove(files[i].path); err != nil {
				jitlog.Warnw("kernelcache: gc remove failed", "path", files[i].path, "err", err)
			}
		}
	}
}

// isFingerprintName reports whether name is a 32-char hex fingerprint (the
// on-disk filename format), mirroring runtime.go's isHashDir.
func isFingerprintName(name string) bool {
	if len(name) != 32 {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil
}

// Len reports the L1 entry count, used by tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.l1)
}
