package alloc

import (
	"testing"

	"github.com/jitgraph/jitgraph/internal/jitstats"
	"github.com/stretchr/testify/require"
)

func TestMallocReclaimReuses(t *testing.T) {
	a := New(jitstats.New())

	ptr1, err := a.Malloc(Host, 100)
	require.NoError(t, err)
	require.NotZero(t, ptr1)

	a.Reclaim(Host, ptr1, 100)

	ptr2, err := a.Malloc(Host, 100)
	require.NoError(t, err)
	require.Equal(t, ptr1, ptr2, "a reclaimed block of the same size class must be reused")

	snap := a.stats.Snapshot()
	require.Equal(t, int64(1), snap.AllocHits)
	require.Equal(t, int64(1), snap.AllocMisses)
}

func TestMallocWithoutBackendFails(t *testing.T) {
	a := New(jitstats.New())
	_, err := a.Malloc(Device, 64)
	require.Error(t, err, "Device pool has no backend until a GPU backend registers one")
}

func TestTrimReleasesExcess(t *testing.T) {
	a := New(jitstats.New())

	var ptrs []uintptr
	for i := 0; i < 5; i++ {
		p, err := a.Malloc(Host, 64)
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}
	for _, p := range ptrs {
		a.Reclaim(Host, p, 64)
	}

	a.Trim(2)

	a.pools[Host].mu.Lock()
	remaining := len(a.pools[Host].buckets[alignSize(64)])
	a.pools[Host].mu.Unlock()
	require.Equal(t, 2, remaining)
}

func TestShutdownDrainsPools(t *testing.T) {
	a := New(jitstats.New())
	ptr, err := a.Malloc(Host, 64)
	require.NoError(t, err)
	a.Reclaim(Host, ptr, 64)

	a.Shutdown()

	a.pools[Host].mu.Lock()
	defer a.pools[Host].mu.Unlock()
	for _, bufs := range a.pools[Host].buckets {
		require.Empty(t, bufs)
	}
}
