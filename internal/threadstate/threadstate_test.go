package threadstate

import (
	"testing"

	"github.com/jitgraph/jitgraph/internal/alloc"
	"github.com/jitgraph/jitgraph/internal/jitstats"
	"github.com/jitgraph/jitgraph/internal/store"
	"github.com/stretchr/testify/require"
)

func TestMaskStackPushPopOrder(t *testing.T) {
	s := New(store.BackendHost, -1, Handle{})

	_, ok := s.CurrentMask()
	require.False(t, ok)

	s.PushMask(store.VarId(1))
	s.PushMask(store.VarId(2))

	m, ok := s.CurrentMask()
	require.True(t, ok)
	require.Equal(t, store.VarId(2), m)

	s.PopMask()
	m, ok = s.CurrentMask()
	require.True(t, ok)
	require.Equal(t, store.VarId(1), m)

	s.PopMask()
	_, ok = s.CurrentMask()
	require.False(t, ok)
}

func TestPopMaskOnEmptyStackPanics(t *testing.T) {
	s := New(store.BackendHost, -1, Handle{})
	require.Panics(t, func() { s.PopMask() })
}

func TestReclaimOnlyDrainsCompletedRecords(t *testing.T) {
	a := alloc.New(jitstats.New())
	a.RegisterBackend(alloc.Device, alloc.Backend{
		Alloc: func(size uintptr) (uintptr, error) { return 0x1000, nil },
		Free:  func(ptr uintptr, size uintptr) error { return nil },
	})

	s := New(store.BackendGPU, 0, Handle{})
	s.Defer(alloc.Device, 0x1000, 256, 1 /* event 1: not done */)
	s.Defer(alloc.Device, 0x2000, 256, 2 /* event 2: done */)
	require.Equal(t, 2, s.PendingCount())

	err := s.Reclaim(a, func(event uintptr) (bool, error) {
		return event == 2, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, s.PendingCount())
}

func TestDrainAllReclaimsEveryRecord(t *testing.T) {
	a := alloc.New(jitstats.New())
	a.RegisterBackend(alloc.Device, alloc.Backend{
		Alloc: func(size uintptr) (uintptr, error) { return 0x1000, nil },
		Free:  func(ptr uintptr, size uintptr) error { return nil },
	})

	s := New(store.BackendGPU, 0, Handle{})
	s.Defer(alloc.Device, 0x1000, 256, 1)
	s.Defer(alloc.Device, 0x2000, 256, 2)

	err := s.DrainAll(a, func(event uintptr) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 0, s.PendingCount())
}
