// Command jitctl is a small introspection and smoke-test CLI for the
// runtime: list and garbage-collect the on-disk kernel cache, print
// allocator/cache counters, and execute a minimal JSON trace script end to
// end. Grounded on slowlang-slow's src/cmd/slow/main.go, which builds the
// same subcommand-dispatch shape (cli.Command tree, cli.RunAndExit) over a
// compiler instead of a runtime.
package main

import (
	"fmt"
	"os"

	"github.com/jitgraph/jitgraph/config"
	"github.com/jitgraph/jitgraph/jit"
	"nikand.dev/go/cli"
)

func main() {
	cacheLsCmd := &cli.Command{
		Name:   "ls",
		Action: cacheLsAct,
	}
	cacheGCCmd := &cli.Command{
		Name:   "gc",
		Action: cacheGCAct,
	}
	cacheCmd := &cli.Command{
		Name:        "cache",
		Description: "inspect or garbage-collect the on-disk kernel cache",
		Commands:    []*cli.Command{cacheLsCmd, cacheGCCmd},
	}

	runCmd := &cli.Command{
		Name:        "run",
		Description: "execute a JSON trace script and print its result",
		Action:      runAct,
		Args:        cli.Args{},
	}

	statsCmd := &cli.Command{
		Name:        "stats",
		Description: "print allocator and kernel-cache counters",
		Action:      statsAct,
	}

	versionCmd := &cli.Command{
		Name:   "version",
		Action: versionAct,
	}

	app := &cli.Command{
		Name:        "jitctl",
		Description: "inspect and drive the jitgraph runtime",
		Commands:    []*cli.Command{cacheCmd, runCmd, statsCmd, versionCmd},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func cacheLsAct(c *cli.Command) error {
	cfg := config.Load()
	entries, err := os.ReadDir(cfg.CacheDir)
	if os.IsNotExist(err) {
		fmt.Println("(cache directory does not exist yet)")
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		fmt.Printf("%-40s %10d bytes\n", e.Name(), info.Size())
	}
	return nil
}

// cacheGCAct opens the runtime just long enough for Shutdown's full
// (non-light) teardown path to run its kernel-cache GC pass, rather than
// duplicating kernelcache.Cache.GC's keep-newest-N policy here.
func cacheGCAct(c *cli.Command) error {
	if err := jit.Init(jit.InitOptions{}); err != nil {
		return err
	}
	jit.Shutdown(false)
	fmt.Println("kernel cache garbage collection complete")
	return nil
}

func statsAct(c *cli.Command) error {
	if err := jit.Init(jit.InitOptions{}); err != nil {
		return err
	}
	defer jit.Shutdown(true)

	s := jit.Stats()
	fmt.Printf("kernel hits:        %d\n", s.KernelHits)
	fmt.Printf("kernel soft misses: %d\n", s.KernelSoftMisses)
	fmt.Printf("kernel hard misses: %d\n", s.KernelHardMisses)
	fmt.Printf("alloc hits:         %d\n", s.AllocHits)
	fmt.Printf("alloc misses:       %d\n", s.AllocMisses)
	fmt.Printf("bytes allocated:    %d\n", s.AllocBytes)
	fmt.Printf("bytes freed:        %d\n", s.FreeBytes)
	fmt.Printf("variables created:  %d\n", s.VariablesCreated)
	fmt.Printf("variables live:     %d\n", s.VariablesLive)
	return nil
}

func runAct(c *cli.Command) error {
	if err := jit.Init(jit.InitOptions{}); err != nil {
		return err
	}
	defer jit.Shutdown(true)

	for _, path := range c.Args {
		result, err := RunTraceFile(path)
		if err != nil {
			return fmt.Errorf("run %s: %w", path, err)
		}
		fmt.Printf("%s: % x\n", path, result)
	}
	return nil
}
