package cudabackend

import "fmt"

// Result mirrors CUresult: the CUDA driver's flat error-code enum. Grounded
// on other_examples/djeday123-goml__cuda..go's CUDA_SUCCESS sentinel and
// Result.Error() convention, generalized from the pack reference's one-off
// constant to the small subset this package's own call sites need.
type Result int32

const (
	Success                Result = 0
	ErrorInvalidValue      Result = 1
	ErrorOutOfMemory       Result = 2
	ErrorNotInitialized    Result = 3
	ErrorDeinitialized     Result = 4
	ErrorNoDevice          Result = 100
	ErrorInvalidDevice     Result = 101
	ErrorInvalidContext    Result = 201
	ErrorInvalidHandle     Result = 400
	ErrorNotFound          Result = 500
	ErrorNotReady          Result = 600
	ErrorLaunchFailed      Result = 719
	ErrorUnknown           Result = 999
)

func (r Result) ok() bool { return r == Success }

// Error renders a Result via the driver's own cuGetErrorString when the
// driver is loaded, falling back to the bare numeric code otherwise (a
// process with no CUDA driver present never gets far enough to call this
// with a real driver-origin code).
func (r Result) Error() string {
	if drv.cuGetErrorString != nil {
		var cstr uintptr
		if rr := Result(drv.cuGetErrorString(int32(r), &cstr)); rr == Success && cstr != 0 {
			return goString(cstr)
		}
	}
	return fmt.Sprintf("CUDA error %d", int32(r))
}

func wrapResult(name string, r Result) error {
	if r.ok() {
		return nil
	}
	return fmt.Errorf("cudabackend: %s: %s", name, r.Error())
}
