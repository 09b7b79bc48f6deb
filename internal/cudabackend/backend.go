package cudabackend

import (
	"github.com/jitgraph/jitgraph/internal/alloc"
	"github.com/jitgraph/jitgraph/internal/jiterr"
	"github.com/jitgraph/jitgraph/internal/jitlog"
)

// Backend owns every device this process drives and is the one value the
// root jit package holds a reference to; everything else in this package is
// reached through it. Mirrors the pack reference's single package-level
// Backend struct, generalized from the reference's one-GPU assumption to
// Devices []*Device, since spec.md's backend control surface is explicitly
// multi-device (jit_device_count, per-call device index).
type Backend struct {
	Devices []*Device
}

// Open loads the CUDA driver, enumerates every visible device, retains each
// one's primary context, and registers the Device/Managed allocator
// backends against alloc for device 0 (spec.md's default device); the
// allocator's Device and Managed pools always allocate on device 0.
// Returns BackendUnavailable - never fatal - so a CPU-only host starts up
// normally; the root package's Init call treats this as "no GPU support
// this run" rather than aborting.
func Open(libPath string, subStreams int, a *alloc.Allocator) (*Backend, error) {
	if err := Load(libPath); err != nil {
		return nil, err
	}

	devices, err := Devices(subStreams)
	if err != nil {
		return nil, err
	}

	b := &Backend{Devices: devices}
	if a != nil && len(devices) > 0 {
		a.RegisterBackend(alloc.Device, devices[0].allocBackend(false))
		a.RegisterBackend(alloc.Managed, devices[0].allocBackend(true))
	}

	jitlog.Infow("cudabackend: opened", "devices", len(devices))
	return b, nil
}

// Device returns the device at index, or a typed InvalidArgument error if
// index is out of range.
func (b *Backend) Device(index int) (*Device, error) {
	if index < 0 || index >= len(b.Devices) {
		return nil, jiterr.Raise(jiterr.InvalidArgument, "cudabackend: device index %d out of range (have %d)", index, len(b.Devices))
	}
	return b.Devices[index], nil
}

// SyncAll blocks until every device's sub-streams have drained, backing
// spec.md's sync_all_devices.
func (b *Backend) SyncAll() error {
	for _, d := range b.Devices {
		if err := d.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every device's sub-stream/event pool. Safe to call on a
// Backend that failed to Open (Devices is nil).
func (b *Backend) Close() {
	for _, d := range b.Devices {
		d.Close()
	}
}
