// Command dfsim runs a dataflow graph on the cycle-level accelerator model.
//
// Usage:
//
//	dfsim [flags] <graph.yaml>
//
// Flags:
//
//	-entry       Function to invoke (default: the program's entry)
//	-args        Comma-separated typed arguments, e.g. "i32 10,ptr 0x1000"
//	-config      Path to timing configuration JSON file
//	-mem-config  Path to memory controller configuration JSON file
//	-cache       Put the default cache in front of memory
//	-max-cycles  Stop after this many cycles (0 = unlimited)
//	-json        Print statistics as JSON
//	-dump        Pretty-print the result and statistics
//	-v           Log verbosity (0-3) on stderr
//
// Example:
//
//	go run ./cmd/dfsim -args "i32 10" loader/testdata/sum.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/k0kubun/pp/v3"

	"github.com/sarchlab/dfsim/dataflow"
	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/loader"
	"github.com/sarchlab/dfsim/timing/cache"
	"github.com/sarchlab/dfsim/timing/engine"
	"github.com/sarchlab/dfsim/timing/latency"
	"github.com/sarchlab/dfsim/timing/mem"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	programPath   string
	entry         string
	args          []emu.Register
	configPath    string
	memConfigPath string
	enableCache   bool
	maxCycles     uint64
	jsonOutput    bool
	dump          bool
	verbosity     int
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("dfsim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: dfsim [options] <graph.yaml>\n")
		_, _ = fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
	}

	opts := &options{}
	var argList string
	fs.StringVar(&opts.entry, "entry", "", "Function to invoke (default: the program's entry)")
	fs.StringVar(&argList, "args", "", "Comma-separated typed arguments, e.g. \"i32 10,ptr 0x1000\"")
	fs.StringVar(&opts.configPath, "config", "", "Path to timing configuration JSON file")
	fs.StringVar(&opts.memConfigPath, "mem-config", "", "Path to memory controller configuration JSON file")
	fs.BoolVar(&opts.enableCache, "cache", false, "Put the default cache in front of memory")
	fs.Uint64Var(&opts.maxCycles, "max-cycles", 0, "Stop after this many cycles (0 = unlimited)")
	fs.BoolVar(&opts.jsonOutput, "json", false, "Print statistics as JSON")
	fs.BoolVar(&opts.dump, "dump", false, "Pretty-print the result and statistics")
	fs.IntVar(&opts.verbosity, "v", 0, "Log verbosity (0-3)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, flag.ErrHelp
	}
	opts.programPath = fs.Arg(0)

	if argList != "" {
		for _, lit := range strings.Split(argList, ",") {
			r, err := loader.ParseValue(strings.TrimSpace(lit))
			if err != nil {
				return nil, fmt.Errorf("invalid argument %q: %w", lit, err)
			}
			opts.args = append(opts.args, r)
		}
	}
	return opts, nil
}

// run executes the command and returns its exit status: 0 on success, 1 when
// the simulation fails and 2 on a usage error.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 2
	}

	log := funcr.New(func(prefix, args string) {
		_, _ = fmt.Fprintln(stderr, prefix, args)
	}, funcr.Options{Verbosity: opts.verbosity})

	if err := simulate(ctx, opts, stdout, log); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func simulate(ctx context.Context, opts *options, stdout io.Writer, log logr.Logger) error {
	var builderOpts []dataflow.BuilderOption
	if opts.configPath != "" {
		timingConfig, err := latency.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
		if err := timingConfig.Validate(); err != nil {
			return fmt.Errorf("invalid timing config: %w", err)
		}
		builderOpts = append(builderOpts, dataflow.WithLatencyTable(latency.NewTableWithConfig(timingConfig)))
	}

	prog, err := loader.Load(opts.programPath, builderOpts...)
	if err != nil {
		return fmt.Errorf("loading program: %w", err)
	}

	memConfig := mem.DefaultConfig()
	if opts.memConfigPath != "" {
		if memConfig, err = mem.LoadConfig(opts.memConfigPath); err != nil {
			return err
		}
	}
	if opts.enableCache && memConfig.Cache == nil {
		cacheConfig := cache.DefaultConfig()
		memConfig.Cache = &cacheConfig
	}
	controller, err := mem.NewController(memConfig)
	if err != nil {
		return err
	}
	for _, seg := range prog.Segments {
		if err := controller.Preload(seg.Addr, seg.Data); err != nil {
			return fmt.Errorf("preload 0x%x: %w", seg.Addr, err)
		}
	}

	engineOpts := []engine.Option{engine.WithMemory(controller), engine.WithLogger(log)}
	if opts.maxCycles > 0 {
		engineOpts = append(engineOpts, engine.WithMaxCycles(opts.maxCycles))
	}
	eng, err := engine.New(prog.Graph, engineOpts...)
	if err != nil {
		return err
	}

	entry := opts.entry
	if entry == "" {
		entry = prog.Entry
	}
	log.V(1).Info("running", "program", opts.programPath, "entry", entry, "args", len(opts.args))

	res, err := eng.Run(ctx, entry, opts.args...)
	if err != nil {
		return err
	}

	stats := eng.Stats()
	switch {
	case opts.jsonOutput:
		return printJSON(stdout, opts, entry, res, stats, controller)
	case opts.dump:
		return dump(stdout, res, stats, controller)
	default:
		printReport(stdout, opts, entry, res, stats, controller)
		return nil
	}
}

type report struct {
	Program string            `json:"program"`
	Entry   string            `json:"entry"`
	Return  string            `json:"return,omitempty"`
	Stats   engine.Statistics `json:"stats"`
	Memory  mem.Statistics    `json:"memory"`
	Cache   *cache.Statistics `json:"cache,omitempty"`
}

func printJSON(w io.Writer, opts *options, entry string, res engine.Result,
	stats engine.Statistics, controller *mem.Controller) error {
	r := report{
		Program: opts.programPath,
		Entry:   entry,
		Stats:   stats,
		Memory:  controller.Stats(),
	}
	if res.HasReturn {
		r.Return = res.Return.String()
	}
	if cs, ok := controller.CacheStats(); ok {
		r.Cache = &cs
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

func dump(w io.Writer, res engine.Result, stats engine.Statistics, controller *mem.Controller) error {
	printer := pp.New()
	printer.SetOutput(w)
	printer.SetColoringEnabled(false)

	values := []any{res, stats, controller.Stats()}
	if cs, ok := controller.CacheStats(); ok {
		values = append(values, cs)
	}
	for _, v := range values {
		if _, err := printer.Println(v); err != nil {
			return err
		}
	}
	return nil
}

func printReport(w io.Writer, opts *options, entry string, res engine.Result,
	stats engine.Statistics, controller *mem.Controller) {
	_, _ = fmt.Fprintf(w, "Program: %s\n", opts.programPath)
	_, _ = fmt.Fprintf(w, "Entry: %s\n", entry)
	if res.HasReturn {
		_, _ = fmt.Fprintf(w, "Return: %s\n", res.Return)
	}
	_, _ = fmt.Fprintf(w, "Total Cycles: %d\n", stats.Cycles)
	_, _ = fmt.Fprintf(w, "Nodes Committed: %d\n", stats.Committed)
	_, _ = fmt.Fprintf(w, "IPC: %.2f\n", stats.IPC())
	_, _ = fmt.Fprintf(w, "Simulated Time: %.3es\n", float64(stats.SimulatedTime))
	_, _ = fmt.Fprintf(w, "\n")

	totalCycles := stats.Cycles
	if totalCycles == 0 {
		totalCycles = 1
	}
	_, _ = fmt.Fprintf(w, "Stalls:\n")
	_, _ = fmt.Fprintf(w, "  Memory:     %4d cycles (%5.1f%%)\n",
		stats.MemStalls, 100.0*float64(stats.MemStalls)/float64(totalCycles))
	_, _ = fmt.Fprintf(w, "  Activation: %4d cycles (%5.1f%%)\n",
		stats.ActivationStalls, 100.0*float64(stats.ActivationStalls)/float64(totalCycles))
	_, _ = fmt.Fprintf(w, "  Call:       %4d cycles (%5.1f%%)\n",
		stats.CallStalls, 100.0*float64(stats.CallStalls)/float64(totalCycles))
	_, _ = fmt.Fprintf(w, "\n")

	_, _ = fmt.Fprintf(w, "Activity:\n")
	_, _ = fmt.Fprintf(w, "  Block activations: %d\n", stats.BlockActivations)
	_, _ = fmt.Fprintf(w, "  Calls:             %d\n", stats.Calls)
	_, _ = fmt.Fprintf(w, "  Loads:             %d (%d constant, %d bytes)\n",
		stats.Loads, stats.ConstantLoads, stats.BytesRead)
	_, _ = fmt.Fprintf(w, "  Stores:            %d (%d bytes)\n", stats.Stores, stats.BytesWritten)
	if cs, ok := controller.CacheStats(); ok {
		_, _ = fmt.Fprintf(w, "  Cache:             %d hits, %d misses\n", cs.Hits, cs.Misses)
	}

	if len(stats.OpCommits) > 0 {
		_, _ = fmt.Fprintf(w, "\nCommits by opcode:\n")
		for _, op := range slices.Sorted(maps.Keys(stats.OpCommits)) {
			_, _ = fmt.Fprintf(w, "  %-14s %d\n", op, stats.OpCommits[op])
		}
	}
}
