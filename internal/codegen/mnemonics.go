package codegen

import "github.com/jitgraph/jitgraph/internal/store"

// llvmBinMnemonic maps a base arithmetic opcode to its LLVM IR instruction
// mnemonic for type t, mirroring original_source/src/var.cpp's
// type_name_llvm-keyed instruction tables.
func llvmBinMnemonic(base string, t store.VarType) string {
	f := isFloatType(t)
	switch base {
	case "add":
		if f {
			return "fadd"
		}
		return "add"
	case "sub":
		if f {
			return "fsub"
		}
		return "sub"
	case "mul":
		if f {
			return "fmul"
		}
		return "mul"
	case "div":
		if f {
			return "fdiv"
		}
		if isSignedType(t) {
			return "sdiv"
		}
		return "udiv"
	}
	return base
}

// ptxBinMnemonic is llvmBinMnemonic's PTX-side counterpart: PTX spells the
// type into the mnemonic itself (add.f32, mul.lo.s32, div.rn.f64) rather
// than carrying it as a separate operand, per original_source/src/var.cpp's
// type_name_ptx table.
func ptxBinMnemonic(base string, t store.VarType) string {
	ty := ptxType(t)
	f := isFloatType(t)
	switch base {
	case "add":
		return "add." + ty
	case "sub":
		return "sub." + ty
	case "mul":
		if f {
			return "mul." + ty
		}
		return "mul.lo." + ty
	case "div":
		if f {
			return "div.rn." + ty
		}
		return "div." + ty
	}
	return base + "." + ty
}
