package cudabackend

import (
	"unsafe"

	"github.com/jitgraph/jitgraph/internal/alloc"
)

// allocBackend returns the alloc.Backend this device's context should be
// registered under for alloc.Device (cuMemAlloc) or alloc.Managed
// (cuMemAllocManaged), so internal/alloc's pool sees CUDA allocation as just
// another pluggable backend rather than importing this package directly.
func (d *Device) allocBackend(managed bool) alloc.Backend {
	return alloc.Backend{
		Alloc: func(size uintptr) (uintptr, error) {
			if r := Result(drv.cuCtxSetCurrent(d.ctx)); !r.ok() {
				return 0, wrapResult("cuCtxSetCurrent", r)
			}
			var ptr uintptr
			var r Result
			if managed {
				r = Result(drv.cuMemAllocManaged(&ptr, uint64(size), 1 /* CU_MEM_ATTACH_GLOBAL */))
			} else {
				r = Result(drv.cuMemAlloc(&ptr, uint64(size)))
			}
			if !r.ok() {
				return 0, wrapResult("cuMemAlloc", r)
			}
			return ptr, nil
		},
		Free: func(ptr uintptr, _ uintptr) error {
			return wrapResult("cuMemFree", Result(drv.cuMemFree(ptr)))
		},
	}
}

// CopyHtoD copies host-resident data into a device buffer previously
// returned by this device's allocBackend.
func CopyHtoD(dst uintptr, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	r := Result(drv.cuMemcpyHtoD(dst, unsafe.Pointer(&src[0]), uint64(len(src))))
	return wrapResult("cuMemcpyHtoD", r)
}

// CopyDtoH copies a device buffer's contents into a host-resident slice.
func CopyDtoH(dst []byte, src uintptr) error {
	if len(dst) == 0 {
		return nil
	}
	r := Result(drv.cuMemcpyDtoH(unsafe.Pointer(&dst[0]), src, uint64(len(dst))))
	return wrapResult("cuMemcpyDtoH", r)
}

// CopyDtoD copies n bytes device-to-device without a host round trip.
func CopyDtoD(dst, src uintptr, n uintptr) error {
	r := Result(drv.cuMemcpyDtoD(dst, src, uint64(n)))
	return wrapResult("cuMemcpyDtoD", r)
}
