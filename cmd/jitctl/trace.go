package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/jitgraph/jitgraph/jit"
)

// instruction is one line of a minimal JSON trace script: either a literal
// ("lit", with a float Value) or an operation node naming an opcode and its
// dependencies by the id they were declared under earlier in the script.
// This format exists only to give jitctl run something to execute - the
// runtime itself is driven entirely through the jit package's Go API, it
// has no source-language front end of its own.
type instruction struct {
	ID    int     `json:"id"`
	Op    string  `json:"op"`
	Type  string  `json:"type"`
	Size  uint32  `json:"size"`
	Value float64 `json:"value,omitempty"`
	Deps  []int   `json:"deps,omitempty"`
}

var traceTypes = map[string]jit.VarType{
	"bool": jit.Bool, "int8": jit.Int8, "uint8": jit.UInt8,
	"int16": jit.Int16, "uint16": jit.UInt16,
	"int32": jit.Int32, "uint32": jit.UInt32,
	"int64": jit.Int64, "uint64": jit.UInt64,
	"float16": jit.Float16, "float32": jit.Float32, "float64": jit.Float64,
}

// RunTraceFile parses a JSON array of instructions from path, builds the
// corresponding variable graph, evaluates the last instruction's result,
// and returns its bytes.
func RunTraceFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var program []instruction
	if err := json.Unmarshal(data, &program); err != nil {
		return nil, fmt.Errorf("parse trace: %w", err)
	}
	if len(program) == 0 {
		return nil, fmt.Errorf("empty trace")
	}

	ids := make(map[int]jit.VarId, len(program))
	var last jit.VarId

	for _, instr := range program {
		t, ok := traceTypes[instr.Type]
		if !ok {
			return nil, fmt.Errorf("instruction %d: unknown type %q", instr.ID, instr.Type)
		}

		var id jit.VarId
		var err error
		if instr.Op == "lit" {
			id, err = jit.NewLiteral(t, instr.Size, literalBytes(instr.Value))
		} else {
			deps := make([]jit.VarId, len(instr.Deps))
			for i, d := range instr.Deps {
				dep, ok := ids[d]
				if !ok {
					return nil, fmt.Errorf("instruction %d: unknown dependency id %d", instr.ID, d)
				}
				deps[i] = dep
			}
			id, err = jit.NewOp(instr.Op, t, instr.Size, deps...)
		}
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", instr.ID, err)
		}

		ids[instr.ID] = id
		jit.IncRefExt(id)
		last = id
	}

	return jit.Read(last)
}

func literalBytes(f float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
	return buf
}
