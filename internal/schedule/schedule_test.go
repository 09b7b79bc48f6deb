package schedule

import (
	"math"
	"testing"

	"github.com/jitgraph/jitgraph/internal/alloc"
	"github.com/jitgraph/jitgraph/internal/jitstats"
	"github.com/jitgraph/jitgraph/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestStore() *store.Store {
	return store.New(alloc.New(jitstats.New()), jitstats.New())
}

func f32(f float64) [8]byte {
	u := math.Float64bits(f)
	var out [8]byte
	for i := 0; i < 8; i++ {
		out[i] = byte(u)
		u >>= 8
	}
	return out
}

// P5: re-running the scheduler on the same inputs produces the same
// fingerprint (determinism).
func TestScheduleDeterministicFingerprint(t *testing.T) {
	s := newTestStore()
	a := s.NewLiteral(store.Float32, 4, f32(1))
	b := s.NewLiteral(store.Float32, 4, f32(2))
	sum, err := s.NewOp("add", store.Float32, 4, a, b)
	require.NoError(t, err)
	s.MarkSideEffect(sum)

	groups1, err := Schedule(s, nil)
	require.NoError(t, err)
	groups2, err := Schedule(s, nil)
	require.NoError(t, err)

	require.Len(t, groups1, 1)
	require.Len(t, groups2, 1)
	require.Equal(t, groups1[0].Fingerprint, groups2[0].Fingerprint)
}

// Rule 1/2: a backend or size mismatch forces a group boundary.
func TestScheduleSizeMismatchForcesBoundary(t *testing.T) {
	s := newTestStore()

	// Build two independent op chains of different sizes so the scheduler
	// must place them in separate groups.
	a := s.NewLiteral(store.Float32, 1, f32(1))
	small, err := s.NewOp("add", store.Float32, 4, a, a)
	require.NoError(t, err)

	big, err := s.NewOp("add", store.Float32, 16, a, a)
	require.NoError(t, err)

	groups, err := Schedule(s, []store.VarId{small, big})
	require.NoError(t, err)
	require.Len(t, groups, 2, "differing sizes must not share a group")
}

// The fingerprint must depend only on a group's structure, never on the raw
// VarId values its nodes and inputs happen to land on: two stores that
// create a different number of unrelated variables before building a
// structurally identical group (as two independent process runs, or two
// distinct programs sharing a subexpression, would) must still produce the
// same kernel-cache key.
func TestFingerprintStableAcrossTraceHistory(t *testing.T) {
	build := func(noise int) Fingerprint {
		s := newTestStore()
		for i := 0; i < noise; i++ {
			s.NewPlaceholder(store.Float32, 4, store.BackendHost, 0)
		}
		in0 := s.NewPlaceholder(store.Float32, 4, store.BackendHost, 0)
		in1 := s.NewPlaceholder(store.Float32, 4, store.BackendHost, 0)
		sum, err := s.NewOp("add", store.Float32, 4, in0, in1)
		require.NoError(t, err)
		s.MarkSideEffect(sum)

		groups, err := Schedule(s, nil)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		return groups[0].Fingerprint
	}

	fp0 := build(0)
	fp37 := build(37)
	require.Equal(t, fp0, fp37, "fingerprint must not depend on unrelated variables traced earlier in the process")
}
