package jit

import (
	"github.com/jitgraph/jitgraph/internal/store"
	"github.com/jitgraph/jitgraph/internal/threadstate"
)

// threadStateFor returns the shared ThreadState for backend, creating one
// on first access - spec.md §4.9's "first access creates one, initializing
// a stream/event (GPU) or a task handle (Host)", simplified from
// per-calling-goroutine to per-backend as described in State's own
// threadStates field comment. The map is keyed by backend only: device is
// used when the State is created, and later calls for another device of
// the same backend get that same State.
func (st *State) threadStateFor(backend store.Backend, device int32) *threadstate.State {
	if ts, ok := st.threadStates[backend]; ok {
		return ts
	}

	var handle threadstate.Handle
	if backend == store.BackendGPU && st.cuda != nil {
		if dev, err := st.cuda.Device(int(device)); err == nil {
			handle.Stream, handle.Event = dev.NextStream()
		}
	}

	ts := threadstate.New(backend, device, handle)
	st.threadStates[backend] = ts
	return ts
}
