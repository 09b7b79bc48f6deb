package main

import (
	"fmt"
	"runtime"

	"nikand.dev/go/cli"
)

// Build-time variables injected via linker flags, adapted from the
// teacher's own version.go (same three-variable ldflags convention, same
// -X main.Version=... invocation, just rehomed under this binary's package).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func versionAct(c *cli.Command) error {
	fmt.Printf("jitctl %s (%s/%s)\n", Version, runtime.GOOS, runtime.GOARCH)
	if Commit != "unknown" {
		fmt.Printf("  commit: %s\n", Commit)
	}
	if BuildDate != "unknown" {
		fmt.Printf("  built:  %s\n", BuildDate)
	}
	return nil
}
