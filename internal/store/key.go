package store

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// VariableKey is the CSE key (spec.md §3): the tuple
// (opcode, type, size, dep[0..3], backend, literal_payload). Two variables
// with equal keys are structurally identical and may be collapsed.
type VariableKey struct {
	Opcode  string
	Type    VarType
	Size    uint32
	Deps    [4]VarId
	Backend Backend
	Literal [8]byte
}

// packed serializes the key into the byte form hashed below, per Design
// Notes: "keep byte-level packing and use a byte-hash". The equality check
// on collision (cseLookup) compares VariableKey values with ==, field by
// field, which matches exactly when the packed forms match.
func (k VariableKey) packed() []byte {
	buf := make([]byte, 0, len(k.Opcode)+4+4+16+1+8)
	buf = append(buf, k.Opcode...)
	buf = append(buf, 0) // separator so e.g. "ab"+"c" != "a"+"bc"
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(k.Type))
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], k.Size)
	buf = append(buf, tmp[:]...)
	for _, d := range k.Deps {
		binary.LittleEndian.PutUint32(tmp[:], uint32(d))
		buf = append(buf, tmp[:]...)
	}
	buf = append(buf, byte(k.Backend))
	buf = append(buf, k.Literal[:]...)
	return buf
}

// hash is the CSE index's primary key; the full VariableKey is compared on
// collision (cseIndex below chains entries per hash bucket).
func (k VariableKey) hash() uint64 {
	return xxhash.Sum64(k.packed())
}
