package jit

import (
	"github.com/jitgraph/jitgraph/internal/cudabackend"
	"github.com/jitgraph/jitgraph/internal/jiterr"
	"github.com/jitgraph/jitgraph/internal/store"
	"github.com/jitgraph/jitgraph/internal/threadstate"
)

// cudaDevice tracks which GPU device index subsequent GPU-backend traces
// target, set by CudaSetDevice. Defaults to 0.
var cudaDeviceIndex int

// CudaSetDevice selects which CUDA device subsequent GPU-targeted variables
// are created against. Returns BackendUnavailable if no CUDA backend is
// open or index is out of range.
func CudaSetDevice(i int) error {
	st := current()
	if st == nil {
		return errNotInitialized()
	}
	st.lock()
	defer st.unlock()

	if st.cuda == nil {
		return jiterr.Raise(jiterr.BackendUnavailable, "jit: CudaSetDevice: no CUDA backend open")
	}
	if _, err := st.cuda.Device(i); err != nil {
		return err
	}
	cudaDeviceIndex = i
	return nil
}

// LlvmSetTarget records a CPU name, feature string, and vector width for
// host codegen. Only the vector width is used afterwards (passed to
// codegen.GenerateHost in place of internal/llvmjit's VectorWidth default);
// the CPU name and feature string are stored but not passed to
// llvmjit.Compile, which keeps compiling for the native host.
func LlvmSetTarget(cpu, features string, width int) error {
	st := current()
	if st == nil {
		return errNotInitialized()
	}
	st.lock()
	defer st.unlock()

	if width <= 0 {
		return jiterr.Raise(jiterr.InvalidArgument, "jit: LlvmSetTarget: width must be positive, got %d", width)
	}
	st.llvmCPU = cpu
	st.llvmFeats = features
	st.vectorWidth = width
	return nil
}

// SyncThread blocks until the calling thread's own pending releases have
// completed, reclaiming every buffer in its release chain (spec.md's
// sync_thread). Host thread-states have no hardware event to wait on, so
// Host's isDone/waitEvent predicates are both unconditionally satisfied.
func SyncThread() error {
	st := current()
	if st == nil {
		return errNotInitialized()
	}
	st.lock()
	defer st.unlock()
	states := make([]*threadstate.State, 0, len(st.threadStates))
	for _, ts := range st.threadStates {
		states = append(states, ts)
	}
	defer unlockGuard(st)()

	for _, ts := range states {
		if err := ts.DrainAll(st.alloc, eventWaiterFor(ts.Backend)); err != nil {
			return err
		}
	}
	return nil
}

// SyncDevice blocks until every sub-stream on the current CUDA device has
// drained (spec.md's sync_device). A no-op if no CUDA backend is open.
func SyncDevice() error {
	st := current()
	if st == nil {
		return errNotInitialized()
	}
	st.lock()
	defer st.unlock()
	defer unlockGuard(st)()

	if st.cuda == nil {
		return nil
	}
	dev, err := st.cuda.Device(cudaDeviceIndex)
	if err != nil {
		return err
	}
	return dev.Sync()
}

// SyncAllDevices blocks until every CUDA device has drained (spec.md's
// sync_all_devices).
func SyncAllDevices() error {
	st := current()
	if st == nil {
		return errNotInitialized()
	}
	st.lock()
	defer st.unlock()
	defer unlockGuard(st)()

	if st.cuda == nil {
		return nil
	}
	return st.cuda.SyncAll()
}

func eventWaiterFor(backend store.Backend) func(uintptr) error {
	if backend == store.BackendGPU {
		return cudabackend.EventSynchronize
	}
	return func(uintptr) error { return nil }
}
