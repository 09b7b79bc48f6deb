package jit

import "github.com/jitgraph/jitgraph/internal/jiterr"

func errAlreadyInitialized() error {
	return jiterr.Raise(jiterr.InvalidArgument, "jit: Init called while already initialized")
}

func errNotInitialized() error {
	return jiterr.Raise(jiterr.InvalidArgument, "jit: runtime not initialized; call jit.Init first")
}
