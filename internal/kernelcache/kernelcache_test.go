package kernelcache

import (
	"os"
	"testing"

	"github.com/jitgraph/jitgraph/internal/jitstats"
	"github.com/jitgraph/jitgraph/internal/schedule"
	"github.com/jitgraph/jitgraph/internal/store"
	"github.com/stretchr/testify/require"
)

func fp(b byte) schedule.Fingerprint {
	var f schedule.Fingerprint
	f[0] = b
	return f
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	k := &Kernel{
		Fingerprint: fp(1),
		Backend:     store.BackendHost,
		Code:        []byte("define void @kernel_deadbeef() {\nret void\n}\n"),
		Metadata:    []byte{0x01, 0x02, 0x03},
	}
	body, err := encode(k)
	require.NoError(t, err)

	got, err := decode(k.Fingerprint, body)
	require.NoError(t, err)
	require.Equal(t, k.Code, got.Code)
	require.Equal(t, k.Metadata, got.Metadata)
	require.Equal(t, k.Backend, got.Backend)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := decode(fp(1), []byte("not a kernel cache file at all, padded out long enough"))
	require.Error(t, err)
}

// Scenario 1 from spec.md §8: a disk hit after a fresh Cache (simulating a
// process restart) populates L1 and counts as a soft miss, not a hard miss.
func TestDiskHitAfterRestartIsSoftMiss(t *testing.T) {
	dir := t.TempDir()
	stats := jitstats.New()
	c1 := New(dir, stats)

	f := fp(7)
	k := &Kernel{Fingerprint: f, Backend: store.BackendHost, Code: []byte("ir text")}
	gate, owner := c1.BeginBuild(f)
	require.True(t, owner)
	c1.FinishBuild(f, k, nil)
	_ = gate

	require.Equal(t, int64(1), stats.KernelHardMisses.Load())

	c2 := New(dir, jitstats.New())
	got, ok := c2.Lookup(f)
	require.True(t, ok)
	require.Equal(t, k.Code, got.Code)
	require.Equal(t, int64(1), c2.stats.KernelSoftMisses.Load())
	require.Equal(t, 1, c2.Len())
}

func TestBuildGateSerializesConcurrentBuilders(t *testing.T) {
	c := New(t.TempDir(), jitstats.New())
	f := fp(3)

	gate1, owner1 := c.BeginBuild(f)
	require.True(t, owner1)

	gate2, owner2 := c.BeginBuild(f)
	require.False(t, owner2)
	require.Same(t, gate1, gate2)

	want := &Kernel{Fingerprint: f, Backend: store.BackendHost, Code: []byte("x")}
	go c.FinishBuild(f, want, nil)

	got, err := gate2.Wait()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestGCKeepsNewestAndRespectsMinAge(t *testing.T) {
	c := New(t.TempDir(), jitstats.New())
	for i := byte(0); i < 5; i++ {
		f := fp(i)
		k := &Kernel{Fingerprint: f, Backend: store.BackendHost, Code: []byte{i}}
		require.NoError(t, c.writeDisk(k))
	}

	c.GC(2, 0) // minAge 0: every entry is eligible for removal
	entries, err := os.ReadDir(c.dir)
	require.NoError(t, err)

	var kept int
	for _, e := range entries {
		if isFingerprintName(e.Name()) {
			kept++
		}
	}
	require.Equal(t, 2, kept)
}
