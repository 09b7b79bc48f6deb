// Package schedule implements the scheduler (spec.md §4.4, component C4):
// it topologically orders the live, unevaluated transitive dependencies of
// a set of roots and partitions them into kernel launch groups. Grounded on
// the teacher's compiler/cfg.go, which already walks a function body into a
// deterministic block order; generalized here from a statement-list walk to
// a dependency-DAG post-order walk.
package schedule

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/jitgraph/jitgraph/internal/jiterr"
	"github.com/jitgraph/jitgraph/internal/store"
)

// Fingerprint is the scheduler's 128-bit content hash of a group's
// serialized description (spec.md §4.4): the kernel-cache key.
type Fingerprint [16]byte

// Group is a maximal set of IR nodes destined for one kernel launch: all
// members share a backend and, after broadcasting literals, a common array
// size (partitioning rules 1-2 in spec.md §4.4).
type Group struct {
	Backend store.Backend
	Device  int32
	Size    uint32

	// Nodes is the deterministic emission order: depth-first post-order on
	// dependency edges, tie-broken by ascending VarId (rule 4). Literal
	// nodes are excluded — they are emitted inline as constants wherever
	// referenced, never as a materialized kernel node.
	Nodes []store.VarId

	// Inputs are leaves this group reads but does not compute: previously
	// evaluated variables and placeholders (rule 3 and rule 5). They become
	// kernel parameters.
	Inputs []store.VarId

	// Outputs are Nodes that must be materialized to a buffer: explicit
	// roots, any node with side_effect set, and any node that no other node
	// of this group consumes.
	Outputs []store.VarId

	Fingerprint Fingerprint
}

// Schedule computes one or more Groups covering every unevaluated
// transitive dependency of roots, plus every variable flagged side_effect
// (spec.md §4.4's definition of the root set).
func Schedule(s *store.Store, roots []store.VarId) ([]*Group, error) {
	allRoots := collectRoots(s, roots)

	order, err := topoOrder(s, allRoots)
	if err != nil {
		return nil, err
	}

	groups := partition(s, order)
	for _, g := range groups {
		markOutputs(s, g, allRoots)
		g.Fingerprint = fingerprint(s, g)
	}
	return groups, nil
}

func collectRoots(s *store.Store, explicit []store.VarId) []store.VarId {
	seen := make(map[store.VarId]bool, len(explicit))
	out := make([]store.VarId, 0, len(explicit))
	for _, r := range explicit {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for _, v := range s.Variables() {
		if v.SideEffect && !v.Evaluated && !seen[v.ID] {
			seen[v.ID] = true
			out = append(out, v.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// topoOrder performs a depth-first post-order walk over dependency edges.
// Evaluated variables and placeholders act as leaves (rule 3, rule 5):
// their dependencies are not walked further. Literal nodes are also leaves
// (nothing to schedule — they have no buffer).
func topoOrder(s *store.Store, roots []store.VarId) ([]store.VarId, error) {
	visited := make(map[store.VarId]bool)
	order := make([]store.VarId, 0, len(roots)*2)

	var visit func(id store.VarId) error
	visit = func(id store.VarId) error {
		if id == store.NullVar || visited[id] {
			return nil
		}
		visited[id] = true
		v := s.Get(id)
		if v == nil {
			return jiterr.Raise(jiterr.InvalidArgument, "schedule: variable %d does not exist", id)
		}
		if v.Evaluated || v.Placeholder || v.IsLiteral {
			order = append(order, id)
			return nil
		}
		for _, d := range v.Deps {
			if err := visit(d); err != nil {
				return err
			}
		}
		order = append(order, id)
		return nil
	}

	for _, r := range roots {
		if err := visit(r); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// partition applies rules 1-2: a group boundary is forced whenever backend
// changes or a node's size is incompatible (not 1, not equal) with the
// group's established size. Leaves (evaluated/placeholder/literal) never
// themselves force a boundary and are never added to Nodes — literals are
// inlined at codegen time, evaluated/placeholder leaves become Inputs once
// markOutputs/collectInputs runs.
func partition(s *store.Store, order []store.VarId) []*Group {
	var groups []*Group
	var cur *Group

	for _, id := range order {
		v := s.Get(id)
		if v.Evaluated || v.Placeholder || v.IsLiteral {
			continue // leaves are attached as Inputs below, not as Nodes
		}

		if cur == nil || v.Backend != cur.Backend || (v.Size != 1 && v.Size != cur.Size) {
			cur = &Group{Backend: v.Backend, Device: v.Device, Size: v.Size}
			groups = append(groups, cur)
		}
		if v.Size != 1 && cur.Size == 1 {
			cur.Size = v.Size // first non-broadcast size establishes the group's size
		}
		cur.Nodes = append(cur.Nodes, id)
	}

	for _, g := range groups {
		g.Inputs = collectInputs(s, g)
	}
	return groups
}

// collectInputs gathers, in ascending VarId order, every evaluated or
// placeholder dependency referenced by g's Nodes.
func collectInputs(s *store.Store, g *Group) []store.VarId {
	seen := make(map[store.VarId]bool)
	var ins []store.VarId
	for _, id := range g.Nodes {
		v := s.Get(id)
		for _, d := range v.Deps {
			if d == store.NullVar || seen[d] {
				continue
			}
			dv := s.Get(d)
			if dv.Evaluated || dv.Placeholder {
				seen[d] = true
				ins = append(ins, d)
			}
		}
	}
	sort.Slice(ins, func(i, j int) bool { return ins[i] < ins[j] })
	return ins
}

// markOutputs flags which Nodes in g must be materialized to a buffer:
// explicit/side-effect roots, plus every node that no other node of g
// consumes (the group's final values). A node consumed inside g is not an
// output unless it is a root or has side_effect set, whether or not other
// groups or external handles also refer to it.
func markOutputs(s *store.Store, g *Group, roots []store.VarId) {
	rootSet := make(map[store.VarId]bool, len(roots))
	for _, r := range roots {
		rootSet[r] = true
	}
	inGroup := make(map[store.VarId]bool, len(g.Nodes))
	for _, id := range g.Nodes {
		inGroup[id] = true
	}

	referenced := make(map[store.VarId]bool)
	for _, id := range g.Nodes {
		v := s.Get(id)
		for _, d := range v.Deps {
			if d != store.NullVar && inGroup[d] {
				referenced[d] = true
			}
		}
	}

	for _, id := range g.Nodes {
		v := s.Get(id)
		if rootSet[id] || v.SideEffect || !referenced[id] {
			g.Outputs = append(g.Outputs, id)
		}
	}
}

// fingerprint hashes the serialized group description: opcodes, types,
// broadcast sizes, input slot identities, literal payloads (spec.md §4.4).
// Node emission order is exactly g.Nodes (already deterministic), so equal
// fingerprints imply equal generated code without needing to separately
// canonicalize commutative reorderings.
func fingerprint(s *store.Store, g *Group) Fingerprint {
	buf := make([]byte, 0, 64*len(g.Nodes))
	var tmp [8]byte

	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(tmp[:4], v)
		buf = append(buf, tmp[:4]...)
	}
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		buf = append(buf, tmp[:]...)
	}

	putU32(uint32(g.Backend))
	putU32(uint32(g.Device))
	putU32(g.Size)

	for _, id := range g.Nodes {
		v := s.Get(id)
		buf = append(buf, v.Opcode...)
		buf = append(buf, 0)
		putU32(uint32(v.Type))
		putU32(v.Size)
		for _, d := range v.Deps {
			putU32(slotIdentity(s, g, d))
			if d != store.NullVar {
				if dv := s.Get(d); dv.IsLiteral {
					putU64(leUint64(dv.Literal[:]))
				}
			}
		}
	}

	lo := xxhash.Sum64(buf)
	hi := xxhash.Sum64(append(buf, 0xff))

	var fp Fingerprint
	binary.LittleEndian.PutUint64(fp[:8], lo)
	binary.LittleEndian.PutUint64(fp[8:], hi)
	return fp
}

// slotIdentity maps a dependency to a value stable across re-scheduling of
// structurally identical groups, never a raw VarId (VarId is a process-local
// trace-order counter, not a semantic property of the group). Intra-group
// deps hash to their position within this group's Nodes (a within-group
// back-reference); literal deps hash to a fixed tag shared by every literal,
// since their actual value is already appended separately by the caller;
// cross-group leaves (Inputs) hash to their position within g.Inputs, which
// collectInputs assigns deterministically from each input's relative
// creation order (ascending VarId), so two structurally identical groups
// traced in different processes or after different prior tracing still
// agree on every input's slot.
func slotIdentity(s *store.Store, g *Group, dep store.VarId) uint32 {
	if dep == store.NullVar {
		return 0
	}
	for i, id := range g.Nodes {
		if id == dep {
			return uint32(i) + 1
		}
	}
	if s.Get(dep).IsLiteral {
		return 0x40000000
	}
	for i, id := range g.Inputs {
		if id == dep {
			return uint32(i) | 0x80000000
		}
	}
	// Referenced by a node but absent from both Nodes and Inputs: can only
	// happen if collectInputs' criteria (Evaluated || Placeholder) and this
	// walk disagree on what counts as a leaf, which would be a scheduler
	// bug, not a runtime condition — panic rather than silently falling
	// back to a VarId-derived tag that would reintroduce nondeterminism.
	panic(fmt.Sprintf("schedule: dependency %d is neither a group node, a literal, nor a collected input", dep))
}

func leUint64(b []byte) uint64 {
	var u uint64
	for i := 7; i >= 0; i-- {
		u = u<<8 | uint64(b[i])
	}
	return u
}
