package store

import (
	"fmt"

	"github.com/jitgraph/jitgraph/internal/alloc"
	"github.com/jitgraph/jitgraph/internal/jiterr"
	"github.com/jitgraph/jitgraph/internal/jitstats"
)

// Evaluator forces evaluation of a set of roots, leaving them (and their
// transitive unevaluated dependencies) with a populated Buffer. Store calls
// through this interface rather than importing the scheduler/codegen/backend
// packages directly, so C1 stays free of a dependency on C4-C9; the root
// jitgraph package supplies the concrete implementation that wires them
// together.
type Evaluator interface {
	Eval(roots []VarId) error
}

// Reclaimer returns a destroyed variable's buffer to its owning backend,
// deferred behind the launch event (if any) still pending against it, so a
// GPU buffer is never reused while its producing kernel may still be in
// flight (spec.md §4.2's release-chain requirement). Store calls through
// this interface rather than importing internal/threadstate directly, for
// the same C1-stays-free-of-C4-C9 reason Evaluator exists. When no Reclaimer
// is wired (bare Store construction, as in this package's own tests),
// destroy falls back to an immediate, synchronous alloc.Allocator.Reclaim —
// correct for Host buffers and for tests that never launch an async kernel.
type Reclaimer interface {
	Reclaim(t alloc.AllocType, ptr uintptr, size uintptr, backend Backend, device int32, event uintptr)
}

type cseEntry struct {
	key VariableKey
	id  VarId
}

// Store owns every live Variable plus the CSE index. It performs no locking
// of its own: spec.md §5 makes the process-wide mutex the only
// synchronization primitive, so every exported method here assumes the
// caller already holds it.
type Store struct {
	vars   map[VarId]*Variable
	cse    map[uint64][]cseEntry
	nextID VarId

	alloc     *alloc.Allocator
	stats     *jitstats.Stats
	eval      Evaluator
	reclaimer Reclaimer
}

// New constructs an empty Store. SetEvaluator must be called before Read is
// used on an unevaluated variable.
func New(a *alloc.Allocator, stats *jitstats.Stats) *Store {
	return &Store{
		vars:   make(map[VarId]*Variable),
		cse:    make(map[uint64][]cseEntry),
		nextID: 1,
		alloc:  a,
		stats:  stats,
	}
}

// SetEvaluator wires the scheduler/codegen/backend pipeline in; split from
// New so the root package can construct the Store before the rest of the
// pipeline (which itself needs a *Store to read variable metadata) exists.
func (s *Store) SetEvaluator(e Evaluator) { s.eval = e }

// SetReclaimer wires the backend-aware deferred-release path in, the same
// way SetEvaluator wires in evaluation. Without it, destroy reclaims buffers
// synchronously through the bare allocator.
func (s *Store) SetReclaimer(r Reclaimer) { s.reclaimer = r }

// Len reports the number of live variables (used by shutdown's leak check
// and by tests asserting destruction cascades emptied the store).
func (s *Store) Len() int { return len(s.vars) }

// Get returns the variable for id, or nil if it does not exist (destroyed or
// never created). Callers must not retain the pointer across a mutation.
func (s *Store) Get(id VarId) *Variable { return s.vars[id] }

// Variables returns every live variable, for shutdown leak reporting and
// graphviz export. The returned slice is a snapshot; mutating the store
// afterward does not affect it.
func (s *Store) Variables() []*Variable {
	out := make([]*Variable, 0, len(s.vars))
	for _, v := range s.vars {
		out = append(out, v)
	}
	return out
}

func (s *Store) insert(v *Variable) VarId {
	id := s.nextID
	s.nextID++
	v.ID = id
	s.vars[id] = v
	s.stats.VariablesCreated.Add(1)
	s.stats.VariablesLive.Add(1)
	return id
}

func (s *Store) cseLookup(key VariableKey) (VarId, bool) {
	h := key.hash()
	for _, e := range s.cse[h] {
		if e.key == key {
			return e.id, true
		}
	}
	return 0, false
}

func (s *Store) cseInsert(key VariableKey, id VarId) {
	h := key.hash()
	s.cse[h] = append(s.cse[h], cseEntry{key: key, id: id})
}

func (s *Store) cseRemove(key VariableKey) {
	h := key.hash()
	entries := s.cse[h]
	for i, e := range entries {
		if e.key == key {
			s.cse[h] = append(entries[:i], entries[i+1:]...)
			if len(s.cse[h]) == 0 {
				delete(s.cse, h)
			}
			return
		}
	}
}

func literalKey(t VarType, size uint32, payload [8]byte, backend Backend) VariableKey {
	return VariableKey{Opcode: "lit", Type: t, Size: size, Backend: backend, Literal: payload}
}

// NewLiteral returns a refcount-1 variable representing a constant,
// deduplicated through CSE (spec.md §4.1).
func (s *Store) NewLiteral(t VarType, size uint32, payload [8]byte) VarId {
	return s.newLiteralBackend(t, size, payload, BackendHost)
}

func (s *Store) newLiteralBackend(t VarType, size uint32, payload [8]byte, backend Backend) VarId {
	key := literalKey(t, size, payload, backend)
	if id, ok := s.cseLookup(key); ok {
		s.vars[id].RefExt++
		return id
	}

	v := &Variable{
		Type:      t,
		Size:      size,
		Backend:   backend,
		Device:    -1,
		Literal:   payload,
		IsLiteral: true,
		RefExt:    1,
	}
	id := s.insert(v)
	s.cseInsert(key, id)
	return id
}

// NewPlaceholder registers an externally-bound input (an evaluated buffer
// the caller already holds, or a future kernel parameter) that scheduling
// treats as a leaf: it is never re-derived, only read (spec.md §4.1's
// placeholder kind). device is -1 for Host.
func (s *Store) NewPlaceholder(t VarType, size uint32, backend Backend, device int32) VarId {
	v := &Variable{
		Type:        t,
		Size:        size,
		Backend:     backend,
		Device:      device,
		RefExt:      1,
		Placeholder: true,
	}
	return s.insert(v)
}

// NewOp validates the size-broadcast rule (I5), consults the CSE index, and
// on miss either folds (all-literal, foldable opcode, size-1 result) or
// inserts a new operation node (spec.md §4.1).
func (s *Store) NewOp(opcode string, t VarType, size uint32, deps ...VarId) (VarId, error) {
	if len(deps) > 4 {
		return 0, jiterr.Raise(jiterr.InvalidArgument, "op %q: at most 4 dependencies, got %d", opcode, len(deps))
	}

	var depArr [4]VarId
	var backend Backend = BackendHost
	backendSet := false
	for i, d := range deps {
		depArr[i] = d
		dv := s.vars[d]
		if dv == nil {
			return 0, jiterr.Raise(jiterr.InvalidArgument, "op %q: dependency %d does not exist", opcode, d)
		}
		if !backendSet {
			backend = dv.Backend
			backendSet = true
		} else if dv.Backend != backend {
			return 0, jiterr.Raise(jiterr.InvalidArgument, "op %q: dependency backend mismatch (%s vs %s)", opcode, dv.Backend, backend)
		}
		// I5 size-broadcast rule: dep.size must be 1 or equal to the
		// resulting node's size.
		if dv.Size != 1 && dv.Size != size {
			return 0, jiterr.Raise(jiterr.InvalidArgument,
				"op %q: dependency %d has size %d, incompatible with result size %d (size broadcast rule)",
				opcode, d, dv.Size, size)
		}
	}

	key := VariableKey{Opcode: opcode, Type: t, Size: size, Deps: depArr, Backend: backend}
	if id, ok := s.cseLookup(key); ok {
		s.vars[id].RefExt++
		return id, nil
	}

	// Constant folding: all deps literal, opcode foldable, and a size-1
	// result (a literal stands for a single value).
	if size == 1 && allLiteral(s, depArr) {
		var a, b *Variable
		if depArr[0] != NullVar {
			a = s.vars[depArr[0]]
		}
		if depArr[1] != NullVar {
			b = s.vars[depArr[1]]
		}
		if a != nil {
			if lit, ok := foldConstant(opcode, t, a, b); ok {
				return s.newLiteralBackend(t, size, lit, backend), nil
			}
		}
	}

	v := &Variable{
		Opcode:  opcode,
		Type:    t,
		Size:    size,
		Deps:    depArr,
		Backend: backend,
		Device:  -1,
		RefExt:  1,
	}
	id := s.insert(v)
	s.cseInsert(key, id)

	for _, d := range depArr {
		if d != NullVar {
			s.vars[d].RefInt++
		}
	}
	return id, nil
}

func allLiteral(s *Store, deps [4]VarId) bool {
	any := false
	for _, d := range deps {
		if d == NullVar {
			continue
		}
		any = true
		if dv := s.vars[d]; dv == nil || !dv.IsLiteral {
			return false
		}
	}
	return any
}

// IncRefExt increments v's external refcount (a new caller handle).
func (s *Store) IncRefExt(v VarId) {
	if vv := s.vars[v]; vv != nil {
		vv.RefExt++
	}
}

// DecRefExt decrements v's external refcount; reaching zero total refs
// (together with RefInt) triggers destruction (spec.md §4.1, P3).
func (s *Store) DecRefExt(v VarId) {
	vv := s.vars[v]
	if vv == nil {
		return
	}
	if vv.RefExt == 0 {
		panic(fmt.Sprintf("store: DecRefExt: variable %d already has ref_ext == 0 (double-free)", v))
	}
	vv.RefExt--
	if !vv.Reachable() {
		s.destroy(v)
	}
}

// destroy implements P3: once a variable is unreachable it, and the cascade
// of dependencies it was the sole referent of, are torn down. This is
// iterative (an explicit worklist), per spec.md §4.1's "must be iterative or
// depth-limited to avoid unbounded recursion on long chains" requirement.
func (s *Store) destroy(root VarId) {
	worklist := []VarId{root}
	for len(worklist) > 0 {
		id := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		v := s.vars[id]
		if v == nil || v.Reachable() {
			continue // already gone, or re-referenced since being queued
		}

		key := s.keyOf(v)
		s.cseRemove(key)
		delete(s.vars, id)
		s.stats.VariablesLive.Add(-1)

		if v.Evaluated && v.Buffer != 0 {
			allocType := alloc.Host
			if v.Backend == BackendGPU {
				allocType = alloc.Device
			}
			size := uintptr(v.Size) * uintptr(v.Type.ByteSize())
			if s.reclaimer != nil {
				s.reclaimer.Reclaim(allocType, v.Buffer, size, v.Backend, v.Device, v.ReleaseEvent)
			} else {
				s.alloc.Reclaim(allocType, v.Buffer, size)
			}
		}

		for _, d := range v.Deps {
			if d == NullVar {
				continue
			}
			dv := s.vars[d]
			if dv == nil {
				continue
			}
			if dv.RefInt == 0 {
				panic(fmt.Sprintf("store: destroy: dependency %d ref_int underflow while destroying %d", d, id))
			}
			dv.RefInt--
			if !dv.Reachable() {
				worklist = append(worklist, d)
			}
		}
	}
}

func (s *Store) keyOf(v *Variable) VariableKey {
	if v.IsLiteral {
		return literalKey(v.Type, v.Size, v.Literal, v.Backend)
	}
	return VariableKey{Opcode: v.Opcode, Type: v.Type, Size: v.Size, Deps: v.Deps, Backend: v.Backend}
}

// MarkSideEffect pins v so scheduling cannot eliminate it even if no handle
// ever reads it (spec.md §4.1) — scatter nodes use this.
func (s *Store) MarkSideEffect(v VarId) {
	if vv := s.vars[v]; vv != nil {
		vv.SideEffect = true
	}
}

// SetLabel attaches a debug label, surfaced by leak reports and GraphViz
// output (supplemented from original_source/src/var.cpp's var_set_label).
func (s *Store) SetLabel(v VarId, label string) {
	if vv := s.vars[v]; vv != nil {
		vv.Label = label
	}
}

// Read forces evaluation of v (if not already evaluated) and copies its
// host-accessible value out of the buffer while the buffer is pinned by v's
// own reference (spec.md §4.1).
func (s *Store) Read(v VarId) ([]byte, error) {
	vv := s.vars[v]
	if vv == nil {
		return nil, jiterr.Raise(jiterr.InvalidArgument, "read: variable %d does not exist", v)
	}
	if !vv.Evaluated {
		if s.eval == nil {
			return nil, jiterr.Raise(jiterr.BackendUnavailable, "read: no evaluator configured")
		}
		if err := s.eval.Eval([]VarId{v}); err != nil {
			return nil, err
		}
	}
	vv = s.vars[v] // re-fetch: CSE/destruction cannot have touched it since we hold a ref
	if vv.IsLiteral {
		buf := make([]byte, vv.Type.ByteSize())
		copy(buf, vv.Literal[:])
		return buf, nil
	}
	if !vv.Evaluated || vv.Buffer == 0 {
		return nil, jiterr.Raise(jiterr.InvalidArgument, "read: variable %d failed to evaluate", v)
	}
	n := uintptr(vv.Size) * uintptr(vv.Type.ByteSize())
	return alloc.CopyOut(vv.Buffer, n), nil
}
