package codegen

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/jitgraph/jitgraph/internal/alloc"
	"github.com/jitgraph/jitgraph/internal/jitstats"
	"github.com/jitgraph/jitgraph/internal/schedule"
	"github.com/jitgraph/jitgraph/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestStore() *store.Store {
	return store.New(alloc.New(jitstats.New()), jitstats.New())
}

// f32 encodes f the same way store's literal payloads are laid out:
// little-endian float64 bits in an 8-byte array (store.floatLiteral is
// unexported, but its wire format is just IEEE754, reproduced here).
func f32(f float64) (lit [8]byte) {
	binary.LittleEndian.PutUint64(lit[:], math.Float64bits(f))
	return
}

func TestGenerateHostEmitsArithmeticKernel(t *testing.T) {
	s := newTestStore()
	a := s.NewLiteral(store.Float32, 4, f32(1))
	b := s.NewLiteral(store.Float32, 4, f32(2))
	sum, err := s.NewOp("add", store.Float32, 4, a, b)
	require.NoError(t, err)
	s.MarkSideEffect(sum)

	groups, err := schedule.Schedule(s, nil)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	ir, err := GenerateHost(s, groups[0], 4)
	require.NoError(t, err)
	require.Contains(t, ir, "define void @kernel_")
	require.Contains(t, ir, "fadd")
	require.Contains(t, ir, "ret void")
	// Every element must be visited by a real induction-variable loop, not
	// just the kernel's first parameter slot.
	require.Contains(t, ir, "phi i64")
	require.Contains(t, ir, "br label %loop")
	require.Contains(t, ir, "icmp eq i64 %i.next, 4")
}

func TestGeneratePTXRejectsHostGroup(t *testing.T) {
	s := newTestStore()
	a := s.NewLiteral(store.Float32, 4, f32(1))
	b := s.NewLiteral(store.Float32, 4, f32(2))
	sum, err := s.NewOp("add", store.Float32, 4, a, b)
	require.NoError(t, err)
	s.MarkSideEffect(sum)

	groups, err := schedule.Schedule(s, nil)
	require.NoError(t, err)

	_, err = GeneratePTX(s, groups[0])
	require.Error(t, err)
}

func TestGeneratePTXEmitsKernel(t *testing.T) {
	s := newTestStore()
	xid := s.NewPlaceholder(store.Float32, 8, store.BackendGPU, 0)
	yid := s.NewPlaceholder(store.Float32, 8, store.BackendGPU, 0)

	prod, err := s.NewOp("mul", store.Float32, 8, xid, yid)
	require.NoError(t, err)
	s.MarkSideEffect(prod)

	groups, err := schedule.Schedule(s, nil)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, store.BackendGPU, groups[0].Backend)

	ptx, err := GeneratePTX(s, groups[0])
	require.NoError(t, err)
	require.Contains(t, ptx, ".visible .entry kernel_")
	require.Contains(t, ptx, "mul.")
	require.True(t, strings.HasSuffix(strings.TrimSpace(ptx), "}"))
	// Every thread computes its own global index and bails out once it runs
	// past the group's element count, instead of every thread touching lane 0.
	require.Contains(t, ptx, "mad.lo.s32")
	require.Contains(t, ptx, "setp.ge.s32")
	require.Contains(t, ptx, "bra DONE")
}
