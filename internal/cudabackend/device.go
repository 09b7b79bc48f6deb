package cudabackend

import (
	"unsafe"

	"github.com/jitgraph/jitgraph/internal/jiterr"
)

// Device is one CUDA-visible GPU: its primary context (retained once and
// shared across every caller, never a fresh cuCtxCreate per thread state,
// matching the driver's own recommended usage) plus the sub-stream/event
// pools component C9 pulls from for independent, overlapping launches.
type Device struct {
	Index     int32
	Name      string
	TotalMem  uint64
	ctx       uintptr
	streams   []uintptr
	events    []uintptr
	nextIndex uint32
}

// Devices enumerates every CUDA-visible device and retains each one's
// primary context. Returns BackendUnavailable if the driver was never
// loaded or reports zero devices — mirroring spec.md §4.8's "CPU-only
// builds run unmodified" requirement: a caller with no GPU simply gets
// an empty slice and a typed error to check once, rather than a panic
// deep inside a kernel launch.
func Devices(subStreams int) ([]*Device, error) {
	if !Loaded() {
		return nil, jiterr.Raise(jiterr.BackendUnavailable, "cudabackend: driver not loaded")
	}

	var count int32
	if r := Result(drv.cuDeviceGetCount(&count)); !r.ok() {
		return nil, jiterr.Wrap(jiterr.BackendUnavailable, wrapResult("cuDeviceGetCount", r), "cudabackend: enumerate devices")
	}
	if count == 0 {
		return nil, jiterr.Raise(jiterr.BackendUnavailable, "cudabackend: no CUDA devices present")
	}

	devices := make([]*Device, 0, count)
	for i := int32(0); i < count; i++ {
		d, err := openDevice(i, subStreams)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func openDevice(index int32, subStreams int) (*Device, error) {
	var handle int32
	if r := Result(drv.cuDeviceGet(&handle, index)); !r.ok() {
		return nil, jiterr.Wrap(jiterr.BackendUnavailable, wrapResult("cuDeviceGet", r), "cudabackend: device %d", index)
	}

	nameBuf := make([]byte, 256)
	_ = drv.cuDeviceGetName(unsafe.Pointer(&nameBuf[0]), int32(len(nameBuf)), handle)
	name := cString(nameBuf)

	var totalMem uint64
	_ = drv.cuDeviceTotalMem(&totalMem, handle)

	var ctx uintptr
	if r := Result(drv.cuDevicePrimaryCtxRetain(&ctx, handle)); !r.ok() {
		return nil, jiterr.Wrap(jiterr.BackendUnavailable, wrapResult("cuDevicePrimaryCtxRetain", r), "cudabackend: device %d", index)
	}
	if r := Result(drv.cuCtxSetCurrent(ctx)); !r.ok() {
		return nil, jiterr.Wrap(jiterr.BackendUnavailable, wrapResult("cuCtxSetCurrent", r), "cudabackend: device %d", index)
	}

	d := &Device{Index: handle, Name: name, TotalMem: totalMem, ctx: ctx}
	if err := d.openSubPools(subStreams); err != nil {
		return nil, err
	}
	return d, nil
}

// openSubPools creates n non-blocking stream/event pairs for the device
// (n is the configured sub-stream count, config.DefaultSubStreams unless
// overridden), mirroring the original source's ENOKI_SUB_STREAMS
// design: independent kernel launches on the same device round-robin
// across these streams so they can overlap instead of serializing behind
// one default stream.
func (d *Device) openSubPools(n int) error {
	d.streams = make([]uintptr, n)
	d.events = make([]uintptr, n)
	for i := 0; i < n; i++ {
		var stream uintptr
		if r := Result(drv.cuStreamCreate(&stream, CU_STREAM_NON_BLOCKING)); !r.ok() {
			return jiterr.Wrap(jiterr.BackendUnavailable, wrapResult("cuStreamCreate", r), "cudabackend: device %d substream %d", d.Index, i)
		}
		var event uintptr
		if r := Result(drv.cuEventCreate(&event, 0)); !r.ok() {
			return jiterr.Wrap(jiterr.BackendUnavailable, wrapResult("cuEventCreate", r), "cudabackend: device %d subevent %d", d.Index, i)
		}
		d.streams[i] = stream
		d.events[i] = event
	}
	return nil
}

// NextStream round-robins across the device's sub-stream pool, so
// independently-scheduled kernel groups launched back to back land on
// different hardware queues instead of contending for one.
func (d *Device) NextStream() (stream uintptr, event uintptr) {
	i := nextPoolIndex(&d.nextIndex, len(d.streams))
	return d.streams[i], d.events[i]
}

// nextPoolIndex implements the round-robin selection as a pure function of
// the current counter and pool size, split out from NextStream so it can be
// tested without a loaded driver.
func nextPoolIndex(counter *uint32, size int) int {
	if size == 0 {
		return 0
	}
	i := int(*counter) % size
	*counter++
	return i
}

// Sync blocks until every operation queued on the device's sub-streams has
// completed (spec.md's sync_device).
func (d *Device) Sync() error {
	for _, stream := range d.streams {
		if r := Result(drv.cuStreamSynchronize(stream)); !r.ok() {
			return wrapResult("cuStreamSynchronize", r)
		}
	}
	return nil
}

// Close releases the device's sub-stream/event pool. The primary context
// itself is intentionally never released here: cuDevicePrimaryCtxRelease is
// a process-wide refcount the driver itself tears down at process exit, and
// releasing it early would invalidate every other live context handle.
func (d *Device) Close() {
	for _, s := range d.streams {
		_ = drv.cuStreamDestroy(s)
	}
	for _, e := range d.events {
		_ = drv.cuEventDestroy(e)
	}
}

func cString(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}
