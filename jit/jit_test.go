package jit

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/jitgraph/jitgraph/internal/alloc"
	"github.com/stretchr/testify/require"
)

// f32bytes encodes f as the 8-byte float64-bits immediate every literal
// payload uses regardless of its declared VarType width (store.fold reads
// Literal as Float64frombits unconditionally), matching the convention the
// lower-level package tests already establish.
func f32bytes(f float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
	return buf
}

func withRuntime(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, Init(InitOptions{CacheDir: t.TempDir()}))
	defer Shutdown(true)
	fn()
}

func TestInitTwiceWithoutShutdownFails(t *testing.T) {
	withRuntime(t, func() {
		require.Error(t, Init(InitOptions{CacheDir: t.TempDir()}))
	})
}

func TestFunctionsBeforeInitReturnNotInitialized(t *testing.T) {
	_, err := NewLiteral(Float32, 1, f32bytes(1))
	require.Error(t, err)
	_, err = Read(0)
	require.Error(t, err)
	require.Error(t, Eval())
}

func TestNewLiteralDedupesIdenticalConstants(t *testing.T) {
	withRuntime(t, func() {
		a, err := NewLiteral(Float32, 4, f32bytes(2))
		require.NoError(t, err)
		b, err := NewLiteral(Float32, 4, f32bytes(2))
		require.NoError(t, err)
		require.Equal(t, a, b)
	})
}

func TestNewOpRejectsBroadcastMismatch(t *testing.T) {
	withRuntime(t, func() {
		a, err := NewLiteral(Float32, 4, f32bytes(1))
		require.NoError(t, err)
		b, err := NewLiteral(Float32, 8, f32bytes(2))
		require.NoError(t, err)
		_, err = NewOp("add", Float32, 8, a, b)
		require.Error(t, err)
	})
}

func TestIncDecRefExtDestroysUnreachableVariable(t *testing.T) {
	withRuntime(t, func() {
		a, err := NewLiteral(Float32, 4, f32bytes(3))
		require.NoError(t, err)
		IncRefExt(a) // RefExt now 2 (NewLiteral itself starts a literal at 1)
		DecRefExt(a) // back to 1, still reachable
		// drops to 0 and destroys a - must not panic on its own destruction
		require.NotPanics(t, func() { DecRefExt(a) })
	})
}

func TestScheduleReturnsGroupsCoveringRoots(t *testing.T) {
	withRuntime(t, func() {
		a, err := NewLiteral(Float32, 4, f32bytes(1))
		require.NoError(t, err)
		b, err := NewLiteral(Float32, 4, f32bytes(2))
		require.NoError(t, err)
		sum, err := NewOp("add", Float32, 4, a, b)
		require.NoError(t, err)
		IncRefExt(sum)

		groups, err := Schedule(sum)
		require.NoError(t, err)
		require.NotEmpty(t, groups)
		require.Equal(t, HostBackend, groups[0].Backend)
	})
}

func TestMallocFreeRoundTrip(t *testing.T) {
	withRuntime(t, func() {
		ptr, err := Malloc(AllocHost, 256)
		require.NoError(t, err)
		require.NotZero(t, ptr)
		Free(ptr)
		// freeing an unknown pointer is a silent no-op, not a crash
		require.NotPanics(t, func() { Free(0xdeadbeef) })
		MallocTrim()
	})
}

func TestRegistryPutGetRemove(t *testing.T) {
	withRuntime(t, func() {
		id := RegistryPut("textures", 0x1000)
		require.Equal(t, uintptr(0x1000), RegistryGet("textures", id))
		RegistryRemove("textures", id)
		require.Zero(t, RegistryGet("textures", id))
	})
}

func TestStatsSnapshotReflectsActivity(t *testing.T) {
	withRuntime(t, func() {
		before := Stats()
		_, err := Malloc(AllocHost, 64)
		require.NoError(t, err)
		after := Stats()
		require.GreaterOrEqual(t, after.AllocHits+after.AllocMisses, before.AllocHits+before.AllocMisses)
	})
}

func TestGraphVizRendersDotForRoots(t *testing.T) {
	withRuntime(t, func() {
		a, err := NewLiteral(Float32, 4, f32bytes(1))
		require.NoError(t, err)
		b, err := NewLiteral(Float32, 4, f32bytes(2))
		require.NoError(t, err)
		sum, err := NewOp("add", Float32, 4, a, b)
		require.NoError(t, err)
		SetLabel(sum, "total")

		out := GraphViz(sum)
		require.Contains(t, out, "digraph trace {")
		require.Contains(t, out, "total")
	})
}

func TestGraphVizBeforeInitReturnsEmptyString(t *testing.T) {
	require.Equal(t, "", GraphViz(1))
}

func TestSyncThreadSyncDeviceSyncAllDevicesAreSafeWithoutCuda(t *testing.T) {
	withRuntime(t, func() {
		require.NoError(t, SyncThread())
		require.NoError(t, SyncDevice())
		require.NoError(t, SyncAllDevices())
	})
}

func TestCudaSetDeviceWithoutBackendReturnsBackendUnavailable(t *testing.T) {
	withRuntime(t, func() {
		err := CudaSetDevice(0)
		require.Error(t, err)
	})
}

func TestLlvmSetTargetRejectsNonPositiveWidth(t *testing.T) {
	withRuntime(t, func() {
		require.Error(t, LlvmSetTarget("native", "", 0))
		require.NoError(t, LlvmSetTarget("native", "+avx2", 8))
	})
}

func TestSetLogLevelAndCallbackAreValidBeforeInit(t *testing.T) {
	var seen []string
	SetLogCallback(func(level LogLevel, msg string) { seen = append(seen, msg) })
	defer SetLogCallback(nil)
	SetLogLevel(LogDebug)
	SetLogLevel(LogInfo)
}

func packFloat32s(vals []float32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func unpackFloat32s(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

// An add over two 8-element host buffers must compute every element, not
// just element 0: this is the end-to-end check for the codegen loop that
// addresses every lane through the group's size rather than only ever
// touching the kernel's first parameter slot.
func TestEvalComputesEveryElementOfAMultiElementGroup(t *testing.T) {
	withRuntime(t, func() {
		st := current()

		const n = 8
		aVals := make([]float32, n)
		bVals := make([]float32, n)
		for i := 0; i < n; i++ {
			aVals[i] = float32(i)
			bVals[i] = float32(100 * (i + 1))
		}

		aBytes, bBytes := packFloat32s(aVals), packFloat32s(bVals)
		aPtr, err := Malloc(AllocHost, uintptr(len(aBytes)))
		require.NoError(t, err)
		bPtr, err := Malloc(AllocHost, uintptr(len(bBytes)))
		require.NoError(t, err)
		alloc.CopyIn(aPtr, aBytes)
		alloc.CopyIn(bPtr, bBytes)

		aVar := st.store.NewPlaceholder(Float32, n, HostBackend, 0)
		bVar := st.store.NewPlaceholder(Float32, n, HostBackend, 0)
		st.store.Get(aVar).Buffer, st.store.Get(aVar).Evaluated = aPtr, true
		st.store.Get(bVar).Buffer, st.store.Get(bVar).Evaluated = bPtr, true

		sum, err := NewOp("add", Float32, n, aVar, bVar)
		require.NoError(t, err)

		out, err := Read(sum)
		require.NoError(t, err)
		require.Len(t, out, n*4)

		got := unpackFloat32s(out)
		for i := 0; i < n; i++ {
			require.InDelta(t, aVals[i]+bVals[i], got[i], 1e-4, "element %d", i)
		}
		// Guards specifically against a generator that only ever computes
		// element 0 and leaves the rest of the output buffer untouched.
		require.NotEqual(t, got[0], got[n-1])
	})
}
