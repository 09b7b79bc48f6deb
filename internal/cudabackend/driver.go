// Package cudabackend implements component C8: a CUDA driver backend
// reached entirely through the CUDA driver API's C ABI via purego, with no
// cgo. Grounded on other_examples/djeday123-goml__cuda..go, which documents
// the same "Memory -> CUDA Driver API via purego (zero cgo)" architecture
// and names entry points this file binds
// (cuInit/cuDeviceGet/cuModuleLoadData/cuLaunchKernel/...; contexts come
// from cuDevicePrimaryCtxRetain rather than cuCtxCreate);
// that file only shows the high-level Backend struct, not the purego
// binding call sites themselves, so the RegisterLibFunc wiring below
// follows purego's own documented usage pattern rather than a pack
// precedent.
package cudabackend

import (
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/jitgraph/jitgraph/internal/jiterr"
)

// driverFuncs holds every CUDA driver entry point this package calls,
// resolved once by Load. A zero value (nil function pointers) means the
// driver was never loaded; every exported call in this package goes through
// Load first and returns jiterr.BackendUnavailable if it fails, matching
// the pack reference's "silently skip -- CPU backend will be used" stance
// but surfaced as a typed error instead of a silent no-op.
type driverFuncs struct {
	cuInit                   func(uint32) int32
	cuDeviceGetCount         func(*int32) int32
	cuDeviceGet              func(*int32, int32) int32
	cuDeviceGetName          func(unsafe.Pointer, int32, int32) int32
	cuDeviceTotalMem         func(*uint64, int32) int32
	cuDevicePrimaryCtxRetain func(*uintptr, int32) int32
	cuCtxSetCurrent          func(uintptr) int32
	cuStreamCreate           func(*uintptr, uint32) int32
	cuStreamDestroy          func(uintptr) int32
	cuStreamSynchronize      func(uintptr) int32
	cuEventCreate            func(*uintptr, uint32) int32
	cuEventRecord            func(uintptr, uintptr) int32
	cuEventSynchronize       func(uintptr) int32
	cuEventQuery             func(uintptr) int32
	cuEventDestroy           func(uintptr) int32
	cuModuleLoadData         func(*uintptr, unsafe.Pointer) int32
	cuModuleUnload           func(uintptr) int32
	cuModuleGetFunction      func(*uintptr, uintptr, unsafe.Pointer) int32
	cuLaunchKernel           func(fn uintptr, gx, gy, gz, bx, by, bz uint32, sharedMem uint32, stream uintptr, params unsafe.Pointer, extra unsafe.Pointer) int32
	cuMemAlloc               func(*uintptr, uint64) int32
	cuMemAllocManaged        func(*uintptr, uint64, uint32) int32
	cuMemFree                func(uintptr) int32
	cuMemcpyHtoD             func(uintptr, unsafe.Pointer, uint64) int32
	cuMemcpyDtoH             func(unsafe.Pointer, uintptr, uint64) int32
	cuMemcpyDtoD             func(uintptr, uintptr, uint64) int32
	cuGetErrorString         func(int32, *uintptr) int32
}

var drv driverFuncs

// CU_STREAM_NON_BLOCKING mirrors the driver header constant: streams opened
// with this flag never implicitly synchronize with the legacy default
// stream, matching the pack reference's own CU_STREAM_NON_BLOCKING use for
// its per-device default stream.
const CU_STREAM_NON_BLOCKING uint32 = 0x1

// Load dlopen(3)s the CUDA driver shared library (path empty means "search
// the default sonames") and resolves every symbol driverFuncs names. It is
// idempotent: calling it again after a prior success is a no-op.
func Load(path string) error {
	if drv.cuInit != nil {
		return nil
	}

	handle, err := openLibrary(path)
	if err != nil {
		return jiterr.Wrap(jiterr.BackendUnavailable, err, "cudabackend: load CUDA driver library")
	}

	bind := func(fptr any, name string) {
		purego.RegisterLibFunc(fptr, handle, name)
	}
	bind(&drv.cuInit, "cuInit")
	bind(&drv.cuDeviceGetCount, "cuDeviceGetCount")
	bind(&drv.cuDeviceGet, "cuDeviceGet")
	bind(&drv.cuDeviceGetName, "cuDeviceGetName")
	bind(&drv.cuDeviceTotalMem, "cuDeviceTotalMem_v2")
	bind(&drv.cuDevicePrimaryCtxRetain, "cuDevicePrimaryCtxRetain")
	bind(&drv.cuCtxSetCurrent, "cuCtxSetCurrent")
	bind(&drv.cuStreamCreate, "cuStreamCreate")
	bind(&drv.cuStreamDestroy, "cuStreamDestroy_v2")
	bind(&drv.cuStreamSynchronize, "cuStreamSynchronize")
	bind(&drv.cuEventCreate, "cuEventCreate")
	bind(&drv.cuEventRecord, "cuEventRecord")
	bind(&drv.cuEventSynchronize, "cuEventSynchronize")
	bind(&drv.cuEventQuery, "cuEventQuery")
	bind(&drv.cuEventDestroy, "cuEventDestroy_v2")
	bind(&drv.cuModuleLoadData, "cuModuleLoadData")
	bind(&drv.cuModuleUnload, "cuModuleUnload")
	bind(&drv.cuModuleGetFunction, "cuModuleGetFunction")
	bind(&drv.cuLaunchKernel, "cuLaunchKernel")
	bind(&drv.cuMemAlloc, "cuMemAlloc_v2")
	bind(&drv.cuMemAllocManaged, "cuMemAllocManaged")
	bind(&drv.cuMemFree, "cuMemFree_v2")
	bind(&drv.cuMemcpyHtoD, "cuMemcpyHtoD_v2")
	bind(&drv.cuMemcpyDtoH, "cuMemcpyDtoH_v2")
	bind(&drv.cuMemcpyDtoD, "cuMemcpyDtoD_v2")
	bind(&drv.cuGetErrorString, "cuGetErrorString")

	if r := Result(drv.cuInit(0)); !r.ok() {
		drv = driverFuncs{}
		return jiterr.Raise(jiterr.BackendUnavailable, "cudabackend: cuInit: %s", r.Error())
	}
	return nil
}

// Loaded reports whether Load has already resolved the driver successfully.
func Loaded() bool { return drv.cuInit != nil }

func goString(cstr uintptr) string {
	if cstr == 0 {
		return ""
	}
	var b []byte
	for i := 0; ; i++ {
		c := *(*byte)(unsafe.Pointer(cstr + uintptr(i)))
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return string(b)
}
