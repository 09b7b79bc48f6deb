// Package codegen emits LLVM IR (Host) or PTX (GPU) source text from a
// scheduled group (spec.md §4.5, component C5). The opcode-specific emission
// table is explicitly out of scope per spec.md §1 ("the spec fixes the
// framework, not the opcode table"); this package ships the framework plus a
// small, real subset of opcodes (optable.go) sufficient to exercise it
// end-to-end, with RegisterOp as the documented extension point for the
// rest. Grounded on the teacher's compiler/compiler.go (mapToLLVMType,
// createGlobalString, createStore/createLoad) and on
// original_source/src/llvm_core.cpp's kernel-header string templates.
package codegen

import "github.com/jitgraph/jitgraph/internal/store"

// llvmTypeName mirrors original_source/src/var.cpp's type_name_llvm table.
var llvmTypeName = [...]string{
	store.Void: "void", store.Bool: "i1", store.Int8: "i8", store.UInt8: "i8",
	store.Int16: "i16", store.UInt16: "i16", store.Int32: "i32", store.UInt32: "i32",
	store.Int64: "i64", store.UInt64: "i64", store.Pointer: "i64",
	store.Float16: "half", store.Float32: "float", store.Float64: "double",
}

// ptxTypeName mirrors type_name_ptx.
var ptxTypeName = [...]string{
	store.Void: "???", store.Bool: "pred", store.Int8: "s8", store.UInt8: "u8",
	store.Int16: "s16", store.UInt16: "u16", store.Int32: "s32", store.UInt32: "u32",
	store.Int64: "s64", store.UInt64: "u64", store.Pointer: "u64",
	store.Float16: "f16", store.Float32: "f32", store.Float64: "f64",
}

// ptxRegPrefix mirrors type_prefix: LLVM/CUDA register name prefixes.
var ptxRegPrefix = [...]string{
	store.Void: "%r", store.Bool: "%p", store.Int8: "%rs", store.UInt8: "%rs",
	store.Int16: "%rs", store.UInt16: "%rs", store.Int32: "%r", store.UInt32: "%r",
	store.Int64: "%rd", store.UInt64: "%rd", store.Pointer: "%rd",
	store.Float16: "%h", store.Float32: "%f", store.Float64: "%fd",
}

func llvmType(t store.VarType) string { return llvmTypeName[t] }
func ptxType(t store.VarType) string   { return ptxTypeName[t] }

// isFloatType reports whether t needs the floating-point instruction
// mnemonics (fadd/fcmp/...) rather than the integer ones.
func isFloatType(t store.VarType) bool {
	return t == store.Float16 || t == store.Float32 || t == store.Float64
}

// isSignedType reports whether t's integer instructions should use the
// signed mnemonic variant (sdiv vs udiv, setp.lt.s32 vs setp.lt.u32).
func isSignedType(t store.VarType) bool {
	switch t {
	case store.Int8, store.Int16, store.Int32, store.Int64:
		return true
	default:
		return false
	}
}

// onesStr/zerosStr are the per-type scalar-immediate templates used to emit
// literal constants inline. Each scheduled group lowers to a scalar
// loop/per-thread body (one element per iteration, not a vector register),
// so the constant a given iteration operates on is always a plain scalar
// literal of the node's element type, not a packed vector constant.
func onesStr(t store.VarType) string {
	if isFloatType(t) {
		return "1.0"
	}
	if t == store.Bool {
		return "true"
	}
	return "1"
}

func zerosStr(t store.VarType) string {
	if isFloatType(t) {
		return "0.0"
	}
	if t == store.Bool {
		return "false"
	}
	return "0"
}
