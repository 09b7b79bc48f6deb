package store

import "math"

// foldableOps is the small, real subset of opcodes this framework can fold
// at trace time without the full per-operation codegen table (spec.md §1
// explicitly keeps that table out of scope; constant folding only needs
// enough of it to prove the mechanism end-to-end, per the Laws in
// spec.md §8: "op(lit_a, lit_b) materializes a lit variable equal to
// evaluating the same op on the host").
var foldableOps = map[string]bool{
	"add": true, "sub": true, "mul": true, "div": true,
	"neg": true, "min": true, "max": true, "abs": true,
}

func isFloat(t VarType) bool {
	return t == Float16 || t == Float32 || t == Float64
}

func litFloat(v *Variable) float64 {
	return math.Float64frombits(leUint64(v.Literal[:]))
}

func litInt(v *Variable) int64 {
	return int64(leUint64(v.Literal[:]))
}

// LiteralFloat exposes a literal node's payload as a float64, for callers
// outside this package (codegen's inline constant emission) that need to
// render a literal's value without duplicating the byte layout.
func LiteralFloat(v *Variable) float64 { return litFloat(v) }

// LiteralInt exposes a literal node's payload as an int64. See LiteralFloat.
func LiteralInt(v *Variable) int64 { return litInt(v) }

func floatLiteral(f float64) (lit [8]byte) {
	leUint64Into(lit[:], math.Float64bits(f))
	return
}

func intLiteral(i int64) (lit [8]byte) {
	leUint64Into(lit[:], uint64(i))
	return
}

func leUint64(b []byte) uint64 {
	var u uint64
	for i := 7; i >= 0; i-- {
		u = u<<8 | uint64(b[i])
	}
	return u
}

func leUint64Into(b []byte, u uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(u)
		u >>= 8
	}
}

// foldConstant evaluates opcode over up to two literal operands on the host
// and returns the resulting literal payload. ok is false if opcode isn't
// foldable or has an unsupported arity for this framework subset.
func foldConstant(opcode string, t VarType, a, b *Variable) (lit [8]byte, ok bool) {
	if !foldableOps[opcode] {
		return lit, false
	}

	if isFloat(t) {
		av := litFloat(a)
		switch opcode {
		case "neg":
			return floatLiteral(-av), true
		case "abs":
			return floatLiteral(math.Abs(av)), true
		}
		if b == nil {
			return lit, false
		}
		bv := litFloat(b)
		switch opcode {
		case "add":
			return floatLiteral(av + bv), true
		case "sub":
			return floatLiteral(av - bv), true
		case "mul":
			return floatLiteral(av * bv), true
		case "div":
			return floatLiteral(av / bv), true
		case "min":
			return floatLiteral(math.Min(av, bv)), true
		case "max":
			return floatLiteral(math.Max(av, bv)), true
		}
		return lit, false
	}

	ai := litInt(a)
	switch opcode {
	case "neg":
		return intLiteral(-ai), true
	case "abs":
		if ai < 0 {
			return intLiteral(-ai), true
		}
		return intLiteral(ai), true
	}
	if b == nil {
		return lit, false
	}
	bi := litInt(b)
	switch opcode {
	case "add":
		return intLiteral(ai + bi), true
	case "sub":
		return intLiteral(ai - bi), true
	case "mul":
		return intLiteral(ai * bi), true
	case "div":
		if bi == 0 {
			return lit, false
		}
		return intLiteral(ai / bi), true
	case "min":
		if ai < bi {
			return intLiteral(ai), true
		}
		return intLiteral(bi), true
	case "max":
		if ai > bi {
			return intLiteral(ai), true
		}
		return intLiteral(bi), true
	}
	return lit, false
}
