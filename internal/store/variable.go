package store

// Variable is one IR node: a literal constant, an evaluated input buffer, or
// the result of an operation over up to four dependencies (spec.md §3).
type Variable struct {
	ID      VarId
	Type    VarType
	Deps    [4]VarId
	Opcode  string
	Literal [8]byte // immediate payload for literal/constant nodes
	Size    uint32  // logical element count; 1 means broadcastable
	Backend Backend
	Device  int32 // -1 for Host, device index for Gpu

	Buffer uintptr // non-zero only once Evaluated

	// ReleaseEvent is the backend stream event pending when this variable's
	// buffer was last written (the launch that produced it, or the launch
	// of a scatter that mutated it in place). destroy() hands this to the
	// Reclaimer so a GPU buffer is never handed back to the pool while its
	// producing kernel may still be in flight. Zero means no event is
	// outstanding (Host backend, or never evaluated).
	ReleaseEvent uintptr

	RefInt uint32 // references held by other Variables' Deps
	RefExt uint32 // references held by external caller handles

	Evaluated   bool
	Dirty       bool
	IsLiteral   bool
	Placeholder bool
	Scatter     bool
	SideEffect  bool
	Symbolic    bool

	Label string // set via SetLabel; surfaced in codegen comments and leak reports
}

// Reachable implements invariant I1: a variable is reachable iff
// ref_int + ref_ext > 0.
func (v *Variable) Reachable() bool {
	return v.RefInt > 0 || v.RefExt > 0
}

// NumDeps returns how many of the fixed four dependency slots are occupied.
func (v *Variable) NumDeps() int {
	n := 0
	for _, d := range v.Deps {
		if d == NullVar {
			break
		}
		n++
	}
	return n
}
