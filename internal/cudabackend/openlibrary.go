package cudabackend

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// defaultSonames is tried in order when path is empty, covering the
// distro-versioned names libcuda.so ships under; mirrors
// config.Load's ENOKI_LIBCUDA_PATH override precedence (explicit path wins,
// otherwise fall back to well-known defaults).
var defaultSonames = []string{
	"libcuda.so.1",
	"libcuda.so",
}

// openLibrary is scoped to linux/amd64 and linux/arm64, the only platforms
// the CUDA driver ships a libcuda.so for; matches internal/llvmjit's own
// linux-only scope for the cache-restore relocation path.
func openLibrary(path string) (uintptr, error) {
	candidates := defaultSonames
	if path != "" {
		candidates = []string{path}
	}

	var lastErr error
	for _, name := range candidates {
		handle, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return handle, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("cudabackend: dlopen %v: %w", candidates, lastErr)
}
