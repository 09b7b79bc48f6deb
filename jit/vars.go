package jit

import (
	"github.com/jitgraph/jitgraph/internal/store"
)

// VarId, VarType, and Backend are re-exported from internal/store so
// callers never need to import an internal package to hold a handle or
// describe a type.
type (
	VarId   = store.VarId
	VarType = store.VarType
	Backend = store.Backend
)

const (
	Bool    = store.Bool
	Int8    = store.Int8
	UInt8   = store.UInt8
	Int16   = store.Int16
	UInt16  = store.UInt16
	Int32   = store.Int32
	UInt32  = store.UInt32
	Int64   = store.Int64
	UInt64  = store.UInt64
	Pointer = store.Pointer
	Float16 = store.Float16
	Float32 = store.Float32
	Float64 = store.Float64

	HostBackend = store.BackendHost
	GPUBackend  = store.BackendGPU
)

// NewLiteral returns a refcount-1 variable representing a constant,
// deduplicated through CSE (spec.md §4.1). payload is copied into the
// node's fixed 8-byte immediate slot, which is read little-endian as
// float64 bits for every float type (math.Float64bits, even for a Float32
// literal) and as an int64 for every integer type.
func NewLiteral(t VarType, size uint32, payload []byte) (VarId, error) {
	st := current()
	if st == nil {
		return store.NullVar, errNotInitialized()
	}
	st.lock()
	defer st.unlock()

	var buf [8]byte
	copy(buf[:], payload)
	return st.store.NewLiteral(t, size, buf), nil
}

// NewOp validates the size-broadcast rule, consults the CSE index, and
// either folds or inserts a new operation node (spec.md §4.1). The
// signature returns an explicit error rather than the bare VarId spec.md's
// language-independent pseudocode shows, per this module's own Go-idiom
// conventions (see DESIGN.md's Open Question resolution for C13) - a
// size-broadcast violation is caller misuse, not a condition worth a fatal
// abort.
func NewOp(opcode string, t VarType, size uint32, deps ...VarId) (VarId, error) {
	st := current()
	if st == nil {
		return store.NullVar, errNotInitialized()
	}
	st.lock()
	defer st.unlock()
	return st.store.NewOp(opcode, t, size, deps...)
}

// IncRefExt increments v's external refcount (a new caller handle).
func IncRefExt(v VarId) {
	st := current()
	if st == nil {
		return
	}
	st.lock()
	defer st.unlock()
	st.store.IncRefExt(v)
}

// DecRefExt decrements v's external refcount, destroying it (and any
// dependency cascade it was the sole referent of) once it becomes
// unreachable.
func DecRefExt(v VarId) {
	st := current()
	if st == nil {
		return
	}
	st.lock()
	defer st.unlock()
	st.store.DecRefExt(v)
}

// Read forces evaluation of v and copies its value out as host-accessible
// bytes (spec.md §4.1). This is a suspension point: the process-wide lock
// is released for the duration of a backend compile/launch it triggers
// (store.Read reaches back into State.Eval, which releases st.mu around
// the scheduling/compile/launch pipeline - see eval.go).
func Read(v VarId) ([]byte, error) {
	st := current()
	if st == nil {
		return nil, errNotInitialized()
	}
	st.lock()
	defer st.unlock()
	return st.store.Read(v)
}

// Schedule computes (but does not execute) the kernel groups covering
// roots' unevaluated dependencies, for introspection (jitctl, GraphViz)
// without forcing a compile/launch.
func Schedule(roots ...VarId) ([]*scheduleGroupView, error) {
	st := current()
	if st == nil {
		return nil, errNotInitialized()
	}
	st.lock()
	defer st.unlock()
	return st.scheduleLocked(roots)
}

// Eval forces evaluation of roots (and every variable flagged side_effect),
// running the full schedule -> codegen -> compile -> launch pipeline for
// any group not already satisfied by the kernel cache.
func Eval(roots ...VarId) error {
	st := current()
	if st == nil {
		return errNotInitialized()
	}
	st.lock()
	defer st.unlock()
	return st.Eval(roots)
}

// SetLabel attaches a debug label to v, surfaced in leak reports and
// GraphViz node labels.
func SetLabel(v VarId, label string) {
	st := current()
	if st == nil {
		return
	}
	st.lock()
	defer st.unlock()
	st.store.SetLabel(v, label)
}
