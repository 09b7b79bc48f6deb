package llvmjit

import (
	"encoding/binary"
	"math"
	"runtime"
	"testing"

	"github.com/jitgraph/jitgraph/internal/alloc"
	"github.com/jitgraph/jitgraph/internal/codegen"
	"github.com/jitgraph/jitgraph/internal/jitstats"
	"github.com/jitgraph/jitgraph/internal/schedule"
	"github.com/jitgraph/jitgraph/internal/store"
	"github.com/stretchr/testify/require"
)

func runtimeIsARM() bool {
	return runtime.GOARCH == "arm64" || runtime.GOARCH == "arm"
}

func TestVectorWidthReturnsAPositivePowerOfTwo(t *testing.T) {
	w := VectorWidth()
	require.Greater(t, w, 0)
	require.Equal(t, 0, w&(w-1), "vector width must be a power of two")
}

func TestCompileVerifiesAndOptimizesGeneratedIR(t *testing.T) {
	s := store.New(alloc.New(jitstats.New()), jitstats.New())
	a := s.NewLiteral(store.Float32, 4, f32(1))
	b := s.NewLiteral(store.Float32, 4, f32(2))
	sum, err := s.NewOp("add", store.Float32, 4, a, b)
	require.NoError(t, err)
	s.MarkSideEffect(sum)

	groups, err := schedule.Schedule(s, nil)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	ir, err := codegen.GenerateHost(s, groups[0], VectorWidth())
	require.NoError(t, err)

	compiled, err := Compile(ir, codegen.KernelName(groups[0].Fingerprint))
	require.NoError(t, err)
	defer compiled.Dispose()

	require.NotZero(t, compiled.Entry)
	require.NotEmpty(t, compiled.Object)
}

func TestCapabilitiesReportsFMAAndExecutionSubsystems(t *testing.T) {
	c := Capabilities()
	require.True(t, c.HasPassManager)
	require.True(t, c.HasExecutionEngine)
	require.False(t, c.UsesORC, "tinygo.org/x/go-llvm exposes no ORCv2 bindings")
	// Init would have refused to start already if this were false on a
	// non-ARM host; Capabilities must agree with that decision.
	require.True(t, c.HasFMA || runtimeIsARM())
}

func TestLoadExecutableRoundTripsBytes(t *testing.T) {
	code := []byte{0xc3} // x86-64 `ret`; enough to prove the mmap/mprotect path works
	addr, mem, err := LoadExecutable(code)
	require.NoError(t, err)
	require.NotZero(t, addr)
	defer FreeExecutable(mem)
	require.Equal(t, code, mem[:len(code)])
}

func f32(f float64) (lit [8]byte) {
	binary.LittleEndian.PutUint64(lit[:], math.Float64bits(f))
	return
}
