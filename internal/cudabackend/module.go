package cudabackend

import (
	"unsafe"

	"github.com/jitgraph/jitgraph/internal/jiterr"
)

// LoadPTX loads a PTX assembly text module (as produced by
// internal/codegen.GeneratePTX) onto the device's current context and
// returns the function handle for entryName, mirroring the pack
// reference's cuModuleLoadData + cuModuleGetFunction pair.
func (d *Device) LoadPTX(ptx string, entryName string) (module uintptr, fn uintptr, err error) {
	if r := Result(drv.cuCtxSetCurrent(d.ctx)); !r.ok() {
		return 0, 0, wrapResult("cuCtxSetCurrent", r)
	}

	ptxBytes := append([]byte(ptx), 0) // cuModuleLoadData expects a NUL-terminated image
	if r := Result(drv.cuModuleLoadData(&module, unsafe.Pointer(&ptxBytes[0]))); !r.ok() {
		return 0, 0, jiterr.Wrap(jiterr.InvalidArgument, wrapResult("cuModuleLoadData", r), "cudabackend: load PTX module")
	}

	nameBytes := append([]byte(entryName), 0)
	if r := Result(drv.cuModuleGetFunction(&fn, module, unsafe.Pointer(&nameBytes[0]))); !r.ok() {
		_ = drv.cuModuleUnload(module)
		return 0, 0, jiterr.Wrap(jiterr.InvalidArgument, wrapResult("cuModuleGetFunction", r), "cudabackend: resolve entry %q", entryName)
	}
	return module, fn, nil
}

// UnloadModule releases a module returned by LoadPTX.
func (d *Device) UnloadModule(module uintptr) error {
	return wrapResult("cuModuleUnload", Result(drv.cuModuleUnload(module)))
}

// LaunchParams is the grid/block geometry and kernel argument list for one
// cuLaunchKernel call. Args holds, in declaration order, the pointers
// internal/codegen.GeneratePTX's writePTXParams laid out (device input
// buffers then device output buffers); each entry must already be a
// pointer to the actual argument value (a *uintptr for a buffer address),
// matching the driver API's own kernel-parameter convention.
type LaunchParams struct {
	GridX, GridY, GridZ    uint32
	BlockX, BlockY, BlockZ uint32
	SharedMemBytes         uint32
	Args                   []unsafe.Pointer
}

// GridSize1D computes the grid dimension needed to cover n elements at
// blockSize threads per block, the same ceil-divide the pack reference uses
// for its elementwise kernel launches.
func GridSize1D(n, blockSize int) uint32 {
	if blockSize <= 0 {
		blockSize = 1
	}
	return uint32((n + blockSize - 1) / blockSize)
}

// Launch queues fn for execution on one of the device's sub-streams
// (round-robined via NextStream) and records that stream's paired event
// immediately after, so internal/threadstate's deferred release chain has
// something to wait on before reclaiming any buffer the kernel wrote.
func (d *Device) Launch(fn uintptr, p LaunchParams) (event uintptr, err error) {
	stream, ev := d.NextStream()

	var argsPtr unsafe.Pointer
	if len(p.Args) > 0 {
		argsPtr = unsafe.Pointer(&p.Args[0])
	}

	r := Result(drv.cuLaunchKernel(
		fn,
		p.GridX, p.GridY, p.GridZ,
		p.BlockX, p.BlockY, p.BlockZ,
		p.SharedMemBytes,
		stream,
		argsPtr,
		nil,
	))
	if !r.ok() {
		return 0, jiterr.Wrap(jiterr.BackendUnavailable, wrapResult("cuLaunchKernel", r), "cudabackend: launch kernel")
	}

	if r := Result(drv.cuEventRecord(ev, stream)); !r.ok() {
		return 0, wrapResult("cuEventRecord", r)
	}
	return ev, nil
}

// EventQuery reports whether event has completed without blocking (used by
// internal/threadstate's deferred release chain to opportunistically
// reclaim buffers before resorting to a blocking EventSynchronize).
func EventQuery(event uintptr) (done bool, err error) {
	r := Result(drv.cuEventQuery(event))
	switch r {
	case Success:
		return true, nil
	case ErrorNotReady:
		return false, nil
	default:
		return false, wrapResult("cuEventQuery", r)
	}
}

// EventSynchronize blocks until event has completed.
func EventSynchronize(event uintptr) error {
	return wrapResult("cuEventSynchronize", Result(drv.cuEventSynchronize(event)))
}
