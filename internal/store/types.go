// Package store implements the IR variable store (spec.md §4.1, component
// C1): a VarId -> Variable map with a companion CSE index, reference
// counting, literal folding, and iterative destruction. Grounded on the
// teacher's compiler/scopes.go generic Scope[T] (map-backed symbol table)
// and on compiler/compiler.go's ExprCache map[ExprKey]*ExprInfo, which is
// the direct ancestor of VariableKey -> VarId here: both exist to collapse
// structurally identical expressions to one node.
package store

import "fmt"

// VarId identifies a Variable. 0 is the null sentinel (spec.md §3).
type VarId uint32

// NullVar is never a live variable's ID.
const NullVar VarId = 0

// VarType is the node's scalar element type.
type VarType uint8

const (
	Void VarType = iota
	Bool
	Int8
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Int64
	UInt64
	Pointer
	Float16
	Float32
	Float64
	numVarTypes
)

// typeName mirrors original_source/src/var.cpp's type_name table.
var typeName = [numVarTypes]string{
	Void: "void", Bool: "bool", Int8: "int8", UInt8: "uint8",
	Int16: "int16", UInt16: "uint16", Int32: "int32", UInt32: "uint32",
	Int64: "int64", UInt64: "uint64", Pointer: "pointer",
	Float16: "float16", Float32: "float32", Float64: "float64",
}

// typeSize mirrors type_size in the same file: byte width per element.
var typeSize = [numVarTypes]uint32{
	Void: 0, Bool: 1, Int8: 1, UInt8: 1, Int16: 2, UInt16: 2,
	Int32: 4, UInt32: 4, Int64: 8, UInt64: 8, Pointer: 8,
	Float16: 2, Float32: 4, Float64: 8,
}

func (t VarType) String() string {
	if int(t) >= len(typeName) {
		return fmt.Sprintf("VarType(%d)", t)
	}
	return typeName[t]
}

// ByteSize returns the per-element size used for buffer allocation.
func (t VarType) ByteSize() uint32 { return typeSize[t] }

// Backend is the tagged variant from Design Notes ("Dynamic dispatch over
// backends... express as a tagged variant {Host, Gpu(device_id)}").
type Backend uint8

const (
	BackendHost Backend = iota
	BackendGPU
)

func (b Backend) String() string {
	if b == BackendGPU {
		return "gpu"
	}
	return "host"
}
