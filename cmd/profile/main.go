// Package main provides a profiling wrapper for the dataflow simulator to
// identify performance bottlenecks of the engine itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/loader"
	"github.com/sarchlab/dfsim/timing/cache"
	"github.com/sarchlab/dfsim/timing/engine"
	"github.com/sarchlab/dfsim/timing/mem"
)

var (
	cpuProfile  = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile  = flag.String("memprofile", "", "write memory profile to file")
	duration    = flag.Duration("duration", 30*time.Second, "max duration to run (for profiling)")
	maxCycles   = flag.Uint64("max-cycles", 0, "max cycles to simulate (0 = unlimited)")
	repeat      = flag.Int("repeat", 1, "number of invocations to run")
	entry       = flag.String("entry", "", "function to invoke (default: the program's entry)")
	argList     = flag.String("args", "", "comma-separated typed arguments")
	enableCache = flag.Bool("cache", false, "put the default cache in front of memory")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: profile [options] <graph.yaml>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Start CPU profiling if requested
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	programPath := flag.Arg(0)

	prog, err := loader.Load(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}
	if *entry == "" {
		*entry = prog.Entry
	}

	args, err := parseArgs(*argList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Loaded: %s\n", programPath)
	fmt.Printf("Entry: %s\n", *entry)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	cycles, committed, err := runProfile(ctx, prog, args)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Simulation stopped: %v\n", err)
	}

	// Write memory profile if requested
	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	fmt.Printf("\nProfiling Results:\n")
	fmt.Printf("Invocations: %d\n", *repeat)
	fmt.Printf("Cycles simulated: %d\n", cycles)
	fmt.Printf("Nodes committed: %d\n", committed)
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if elapsed > 0 {
		fmt.Printf("Cycles/second: %.0f\n", float64(cycles)/elapsed.Seconds())
		fmt.Printf("Nodes/second: %.0f\n", float64(committed)/elapsed.Seconds())
	}
}

func parseArgs(list string) ([]emu.Register, error) {
	if list == "" {
		return nil, nil
	}
	var args []emu.Register
	for _, lit := range strings.Split(list, ",") {
		r, err := loader.ParseValue(strings.TrimSpace(lit))
		if err != nil {
			return nil, fmt.Errorf("invalid argument %q: %w", lit, err)
		}
		args = append(args, r)
	}
	return args, nil
}

// runProfile invokes the entry function repeatedly on one engine, so that the
// graph, its wiring buffers and the memory image are reused across runs.
func runProfile(ctx context.Context, prog *loader.Program, args []emu.Register) (uint64, uint64, error) {
	memConfig := mem.DefaultConfig()
	if *enableCache {
		cacheConfig := cache.DefaultConfig()
		memConfig.Cache = &cacheConfig
	}
	controller, err := mem.NewController(memConfig)
	if err != nil {
		return 0, 0, err
	}
	for _, seg := range prog.Segments {
		if err := controller.Preload(seg.Addr, seg.Data); err != nil {
			return 0, 0, err
		}
	}

	opts := []engine.Option{engine.WithMemory(controller)}
	if *maxCycles > 0 {
		opts = append(opts, engine.WithMaxCycles(*maxCycles))
	}
	eng, err := engine.New(prog.Graph, opts...)
	if err != nil {
		return 0, 0, err
	}

	for i := 0; i < *repeat; i++ {
		if _, err := eng.Run(ctx, *entry, args...); err != nil {
			stats := eng.Stats()
			return stats.Cycles, stats.Committed, err
		}
	}

	stats := eng.Stats()
	return stats.Cycles, stats.Committed, nil
}
