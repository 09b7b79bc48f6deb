package codegen

import (
	"fmt"
	"strings"

	"github.com/jitgraph/jitgraph/internal/schedule"
	"github.com/jitgraph/jitgraph/internal/store"
)

// target selects which of the two parallel naming/mnemonic conventions an
// Emitter uses: LLVM IR text (Host) or PTX assembly text (GPU).
type target int

const (
	targetLLVM target = iota
	targetPTX
)

// Emitter accumulates generated instruction text for one Group and tracks
// the SSA/register name each already-emitted node is bound to, so later
// nodes can reference earlier results by name instead of by VarId.
// Grounded on the teacher's compiler/compiler.go, which thread a similar
// "builder + value map" pair (llvm.Builder plus a locals map) through one
// function body; here the two are plain text-building primitives since this
// package never links against a real LLVM context.
type Emitter struct {
	target  target
	s       *store.Store
	buf     strings.Builder
	counter int

	values     map[store.VarId]string
	inputSlot  map[store.VarId]int
	inputsOnce map[store.VarId]bool

	// laneIndex is the current per-iteration index operand: the loop phi
	// (Host) or the bounds-checked thread index (GPU), set once by
	// GenerateHost/GeneratePTX before any node is emitted. Every addressed
	// load/store inside the loop/thread body indexes through it, except for
	// broadcast (Size == 1) dependencies, which always index at "0".
	laneIndex string

	// paramPtrs caches, per "in_N"/"out_N" parameter, the register already
	// converted to an addressable pointer: the parameter register itself on
	// Host (an LLVM typed-pointer parameter needs no conversion), or the
	// cvta.to.global-converted register on GPU (PTX parameters live in
	// .param space and are not directly dereferenceable). Keyed by kind+slot
	// rather than VarId, since kind ("in"/"out") disambiguates a node that
	// happens to be both a passthrough input and this group's only output.
	paramPtrs map[string]string
}

func newEmitter(s *store.Store, t target) *Emitter {
	return &Emitter{
		target:     t,
		s:          s,
		values:     make(map[store.VarId]string),
		inputSlot:  make(map[store.VarId]int),
		inputsOnce: make(map[store.VarId]bool),
		paramPtrs:  make(map[string]string),
	}
}

func (e *Emitter) emitf(format string, args ...any) {
	fmt.Fprintf(&e.buf, format, args...)
}

// typeName resolves t to this emitter's target type syntax.
func (e *Emitter) typeName(t store.VarType) string {
	if e.target == targetPTX {
		return ptxType(t)
	}
	return llvmType(t)
}

// fresh mints a new target-appropriate SSA name/register for a value of
// type t.
func (e *Emitter) fresh(t store.VarType) string {
	e.counter++
	if e.target == targetPTX {
		return fmt.Sprintf("%s%d", ptxRegPrefix[t], e.counter)
	}
	return fmt.Sprintf("%%t%d", e.counter)
}

// cmpMnemonic resolves a compare opcode (eq/lt/le/gt/ge) to the icmp/fcmp
// predicate (LLVM) or setp suffix (PTX) for type t.
func (e *Emitter) cmpMnemonic(opcode string, t store.VarType) string {
	pred := map[string]string{"eq": "eq", "lt": "lt", "le": "le", "gt": "gt", "ge": "ge"}[opcode]
	if e.target == targetPTX {
		return "setp." + pred + "." + ptxType(t)
	}
	if isFloatType(t) {
		return "fcmp o" + pred
	}
	if isSignedType(t) {
		return "icmp s" + pred
	}
	return "icmp u" + pred
}

// operand resolves dep to the text an instruction should reference: the
// register of an already-emitted node, an inline immediate for a literal,
// or the loaded register for a group input (evaluated/placeholder leaf).
func (e *Emitter) operand(dep store.VarId, t store.VarType) string {
	if dep == store.NullVar {
		return zerosStr(t)
	}
	if reg, ok := e.values[dep]; ok {
		return reg
	}
	v := e.s.Get(dep)
	if v != nil && v.IsLiteral {
		return e.literalOperand(v)
	}
	return e.loadInput(dep, t)
}

// literalOperand renders a literal node's payload as an inline immediate.
func (e *Emitter) literalOperand(v *store.Variable) string {
	if isFloatType(v.Type) {
		return fmt.Sprintf("%v", store.LiteralFloat(v))
	}
	return fmt.Sprintf("%d", store.LiteralInt(v))
}

// loadInput emits (once per dep) the addressed load that pulls a group
// input's current-lane element into a register, and caches the result so
// repeat references reuse it instead of reloading. A dependency with Size
// 1 is broadcast across every lane (always read at index 0); any other
// dependency (Size equal to the group's size, by the partitioning rule) is
// read at the current loop/thread index, e.laneIndex.
func (e *Emitter) loadInput(dep store.VarId, t store.VarType) string {
	if reg, ok := e.values[dep]; ok {
		return reg
	}
	slot, ok := e.inputSlot[dep]
	if !ok {
		slot = len(e.inputSlot)
		e.inputSlot[dep] = slot
	}
	buf := e.paramPointer("in", slot, t)
	idx := "0"
	if v := e.s.Get(dep); v == nil || v.Size != 1 {
		idx = e.laneIndex
	}
	dst := e.gatherInsn(buf, idx, t)
	e.values[dep] = dst
	return dst
}

// paramPointer returns an operand ready to address through: the parameter
// register itself on Host (an LLVM typed-pointer parameter is already a
// usable SSA pointer value), or, on GPU, the .param-space parameter loaded
// into a register and converted to the global address space via
// cvta.to.global.u64 (PTX parameters cannot be dereferenced directly).
// Cached per kind+slot so a parameter referenced by several nodes only pays
// the ld.param/cvta cost once.
func (e *Emitter) paramPointer(kind string, slot int, elemType store.VarType) string {
	key := fmt.Sprintf("%s%d", kind, slot)
	if reg, ok := e.paramPtrs[key]; ok {
		return reg
	}
	name := fmt.Sprintf("%s_%d", kind, slot)
	if e.target == targetLLVM {
		reg := "%" + name
		e.paramPtrs[key] = reg
		return reg
	}
	raw := e.fresh(store.Pointer)
	global := e.fresh(store.Pointer)
	e.emitf("\tld.param.u64 %s, [%s];\n", raw, name)
	e.emitf("\tcvta.to.global.u64 %s, %s;\n", global, raw)
	e.paramPtrs[key] = global
	return global
}

// prepareInputs pre-assigns stable parameter slots for every group input in
// schedule order, so kernel signatures are deterministic regardless of
// which node first references a given input.
func (e *Emitter) prepareInputs(g *schedule.Group) {
	for i, id := range g.Inputs {
		e.inputSlot[id] = i
	}
}

// binInsn emits a two-operand arithmetic instruction (add/sub/mul/div) in
// this emitter's target syntax and returns the destination register.
func (e *Emitter) binInsn(base string, t store.VarType, lhs, rhs string) string {
	dst := e.fresh(t)
	if e.target == targetPTX {
		e.emitf("\t%s %s, %s, %s;\n", ptxBinMnemonic(base, t), dst, lhs, rhs)
		return dst
	}
	ty := e.typeName(t)
	e.emitf("  %s = %s %s %s, %s\n", dst, llvmBinMnemonic(base, t), ty, lhs, rhs)
	return dst
}

// unaryInsn emits neg/abs/sqrt.
func (e *Emitter) unaryInsn(opcode string, t store.VarType, src string) string {
	dst := e.fresh(t)
	ty := e.typeName(t)
	if e.target == targetPTX {
		switch opcode {
		case "neg":
			e.emitf("\tneg.%s %s, %s;\n", ty, dst, src)
		case "abs":
			e.emitf("\tabs.%s %s, %s;\n", ty, dst, src)
		case "sqrt":
			e.emitf("\tsqrt.rn.%s %s, %s;\n", ty, dst, src)
		}
		return dst
	}
	switch opcode {
	case "neg":
		if isFloatType(t) {
			e.emitf("  %s = fneg %s %s\n", dst, ty, src)
		} else {
			e.emitf("  %s = sub %s 0, %s\n", dst, ty, src)
		}
	case "abs":
		e.emitf("  %s = call %s @llvm.fabs.%s(%s %s)\n", dst, ty, ty, ty, src)
	case "sqrt":
		e.emitf("  %s = call %s @llvm.sqrt.%s(%s %s)\n", dst, ty, ty, ty, src)
	}
	return dst
}

// cmpInsn emits eq/lt/le/gt/ge, producing a predicate/bool register.
func (e *Emitter) cmpInsn(opcode string, t store.VarType, lhs, rhs string) string {
	dst := e.fresh(store.Bool)
	if e.target == targetPTX {
		e.emitf("\t%s %s, %s, %s;\n", e.cmpMnemonic(opcode, t), dst, lhs, rhs)
		return dst
	}
	e.emitf("  %s = %s %s %s, %s\n", dst, e.cmpMnemonic(opcode, t), e.typeName(t), lhs, rhs)
	return dst
}

// selectInsn emits a predicated pick between a and b of type t.
func (e *Emitter) selectInsn(cond, a, b string, t store.VarType) string {
	dst := e.fresh(t)
	ty := e.typeName(t)
	if e.target == targetPTX {
		e.emitf("\tselp.%s %s, %s, %s, %s;\n", ty, dst, a, b, cond)
		return dst
	}
	e.emitf("  %s = select i1 %s, %s %s, %s %s\n", dst, cond, ty, a, ty, b)
	return dst
}

// gatherInsn computes buf[idx] and loads it into a fresh register of type t.
func (e *Emitter) gatherInsn(buf, idx string, t store.VarType) string {
	dst := e.fresh(t)
	ty := e.typeName(t)
	addr := e.fresh(store.Pointer)
	if e.target == targetPTX {
		e.emitf("\tmad.wide.s32 %s, %s, %d, %s;\n", addr, idx, t.ByteSize(), buf)
		e.emitf("\tld.global.%s %s, [%s];\n", ty, dst, addr)
		return dst
	}
	e.emitf("  %s = getelementptr %s, %s* %s, i64 %s\n", addr, ty, ty, buf, idx)
	e.emitf("  %s = load %s, %s* %s\n", dst, ty, ty, addr)
	return dst
}

// scatterInsn computes buf[idx] and stores val into it, once per loop
// iteration / thread — see the note on scatter ordering above
// emitGather/emitScatter in optable.go for why Host's strictly sequential iteration order gives a
// deterministic last-write-wins result while GPU's per-thread parallelism
// does not.
func (e *Emitter) scatterInsn(buf, idx, val string, t store.VarType) {
	e.storeIndexed(buf, idx, val, t)
}

// storeIndexed computes buf[idx] and stores val into it: the addressed
// counterpart to gatherInsn, shared by scatter and by ordinary per-lane
// output stores.
func (e *Emitter) storeIndexed(buf, idx, val string, t store.VarType) {
	ty := e.typeName(t)
	addr := e.fresh(store.Pointer)
	if e.target == targetPTX {
		e.emitf("\tmad.wide.s32 %s, %s, %d, %s;\n", addr, idx, t.ByteSize(), buf)
		e.emitf("\tst.global.%s [%s], %s;\n", ty, addr, val)
		return
	}
	e.emitf("  %s = getelementptr %s, %s* %s, i64 %s\n", addr, ty, ty, buf, idx)
	e.emitf("  store %s %s, %s* %s\n", ty, val, ty, addr)
}
