// Package benchmarks provides the kernel suite and the harness that runs it on
// the timing engine.
package benchmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/dfsim/dataflow"
	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/loader"
	"github.com/sarchlab/dfsim/timing/cache"
	"github.com/sarchlab/dfsim/timing/engine"
	"github.com/sarchlab/dfsim/timing/latency"
	"github.com/sarchlab/dfsim/timing/mem"
)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the total cycle count of the invocation
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// NodesCommitted is the number of node firings that committed
	NodesCommitted uint64 `json:"nodes_committed"`

	// IPC is committed nodes per cycle
	IPC float64 `json:"ipc"`

	// MemStalls counts cycles in which the memory system refused a request
	MemStalls uint64 `json:"mem_stalls"`

	// ActivationStalls counts cycles a block activation waited for a
	// previous firing of the same block
	ActivationStalls uint64 `json:"activation_stalls"`

	// CallStalls counts cycles a call waited for a busy callee
	CallStalls uint64 `json:"call_stalls"`

	BlockActivations uint64 `json:"block_activations"`
	Loads            uint64 `json:"loads"`
	Stores           uint64 `json:"stores"`

	// CacheHits/Misses (if cache enabled)
	CacheHits   uint64 `json:"cache_hits,omitempty"`
	CacheMisses uint64 `json:"cache_misses,omitempty"`

	// Return is the value returned by the entry function
	Return string `json:"return,omitempty"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single kernel.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Build creates a fresh graph of the kernel
	Build func(opts ...dataflow.BuilderOption) (*dataflow.Graph, error)

	// Entry is the function to invoke
	Entry string

	// Args are the arguments of the entry function
	Args []emu.Register

	// Image is loaded into memory before the run
	Image []loader.Segment

	// Check validates the outcome of the run
	Check func(res engine.Result, memory *mem.Controller) error
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// EnableCache puts a cache in front of the memory controller
	EnableCache bool

	// Timing overrides the default latency table
	Timing *latency.TimingConfig

	// Memory configures the memory controller
	Memory mem.Config

	// MaxCycles bounds each run (0 means unbounded)
	MaxCycles uint64

	// Parallel is the number of benchmarks run at once
	Parallel int

	// Logger receives engine traces
	Logger logr.Logger

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		EnableCache: true,
		Memory:      mem.DefaultConfig(),
		MaxCycles:   10_000_000,
		Parallel:    1,
		Logger:      logr.Discard(),
		Output:      os.Stdout,
		Verbose:     false,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Memory.Capacity == 0 {
		config.Memory = mem.DefaultConfig()
	}
	if config.Parallel < 1 {
		config.Parallel = 1
	}
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results in the order they were
// added. Every benchmark gets its own graph, engine and memory, so up to
// Parallel of them run concurrently. The first failure cancels the rest.
func (h *Harness) RunAll(ctx context.Context) ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, len(h.benchmarks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Parallel)
	for i, bench := range h.benchmarks {
		g.Go(func() error {
			result, err := h.runBenchmark(ctx, bench)
			if err != nil {
				return fmt.Errorf("benchmark %s: %w", bench.Name, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runBenchmark executes a single benchmark.
func (h *Harness) runBenchmark(ctx context.Context, bench Benchmark) (BenchmarkResult, error) {
	var opts []dataflow.BuilderOption
	if h.config.Timing != nil {
		opts = append(opts, dataflow.WithLatencyTable(latency.NewTableWithConfig(h.config.Timing)))
	}
	graph, err := bench.Build(opts...)
	if err != nil {
		return BenchmarkResult{}, err
	}

	memConfig := h.config.Memory
	if h.config.EnableCache && memConfig.Cache == nil {
		cacheConfig := cache.DefaultConfig()
		memConfig.Cache = &cacheConfig
	}
	controller, err := mem.NewController(memConfig)
	if err != nil {
		return BenchmarkResult{}, err
	}
	for _, seg := range bench.Image {
		if err := controller.Preload(seg.Addr, seg.Data); err != nil {
			return BenchmarkResult{}, fmt.Errorf("preload 0x%x: %w", seg.Addr, err)
		}
	}

	engineOpts := []engine.Option{
		engine.WithMemory(controller),
		engine.WithLogger(h.config.Logger.WithValues("benchmark", bench.Name)),
	}
	if h.config.MaxCycles > 0 {
		engineOpts = append(engineOpts, engine.WithMaxCycles(h.config.MaxCycles))
	}
	eng, err := engine.New(graph, engineOpts...)
	if err != nil {
		return BenchmarkResult{}, err
	}

	start := time.Now()
	res, err := eng.Run(ctx, bench.Entry, bench.Args...)
	wallTime := time.Since(start)
	if err != nil {
		return BenchmarkResult{}, err
	}

	if bench.Check != nil {
		if err := bench.Check(res, controller); err != nil {
			return BenchmarkResult{}, fmt.Errorf("wrong result: %w", err)
		}
	}

	stats := eng.Stats()
	result := BenchmarkResult{
		Name:             bench.Name,
		Description:      bench.Description,
		SimulatedCycles:  res.Cycles,
		NodesCommitted:   stats.Committed,
		IPC:              stats.IPC(),
		MemStalls:        stats.MemStalls,
		ActivationStalls: stats.ActivationStalls,
		CallStalls:       stats.CallStalls,
		BlockActivations: stats.BlockActivations,
		Loads:            stats.Loads,
		Stores:           stats.Stores,
		WallTime:         wallTime,
	}
	if res.HasReturn {
		result.Return = res.Return.String()
	}
	if cs, ok := controller.CacheStats(); ok {
		result.CacheHits = cs.Hits
		result.CacheMisses = cs.Misses
	}

	return result, nil
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== Dataflow Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		if r.Return != "" {
			_, _ = fmt.Fprintf(h.config.Output, "  Return: %s\n", r.Return)
		}
		_, _ = fmt.Fprintln(h.config.Output, "  --- Timing ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles:  %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Nodes Committed:   %d\n", r.NodesCommitted)
		_, _ = fmt.Fprintf(h.config.Output, "  IPC:               %.3f\n", r.IPC)
		_, _ = fmt.Fprintf(h.config.Output, "  Mem Stalls:        %d\n", r.MemStalls)
		_, _ = fmt.Fprintf(h.config.Output, "  Activation Stalls: %d\n", r.ActivationStalls)
		if r.CallStalls > 0 {
			_, _ = fmt.Fprintf(h.config.Output, "  Call Stalls:       %d\n", r.CallStalls)
		}

		if h.config.Verbose {
			_, _ = fmt.Fprintln(h.config.Output, "  --- Activity ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Block Activations: %d\n", r.BlockActivations)
			_, _ = fmt.Fprintf(h.config.Output, "  Loads:             %d\n", r.Loads)
			_, _ = fmt.Fprintf(h.config.Output, "  Stores:            %d\n", r.Stores)
		}

		if r.CacheHits > 0 || r.CacheMisses > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- Cache ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Hits:   %d\n", r.CacheHits)
			_, _ = fmt.Fprintf(h.config.Output, "  Misses: %d\n", r.CacheMisses)
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,committed,ipc,mem_stalls,activation_stalls,call_stalls,activations,loads,stores,cache_hits,cache_misses")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.SimulatedCycles,
			r.NodesCommitted,
			r.IPC,
			r.MemStalls,
			r.ActivationStalls,
			r.CallStalls,
			r.BlockActivations,
			r.Loads,
			r.Stores,
			r.CacheHits,
			r.CacheMisses,
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Version of the simulator
	Version string `json:"version"`

	// Config describes the benchmark configuration
	Config BenchmarkConfig `json:"config"`
}

// BenchmarkConfig describes the harness configuration used.
type BenchmarkConfig struct {
	CacheEnabled  bool                  `json:"cache_enabled"`
	MemoryLatency uint64                `json:"memory_latency"`
	Timing        *latency.TimingConfig `json:"timing,omitempty"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of benchmarks run
	TotalBenchmarks int `json:"total_benchmarks"`

	// TotalCycles is the sum of all simulated cycles
	TotalCycles uint64 `json:"total_cycles"`

	// TotalCommitted is the sum of all committed nodes
	TotalCommitted uint64 `json:"total_committed"`

	// AverageIPC is committed nodes per cycle over all benchmarks
	AverageIPC float64 `json:"average_ipc"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// Version is reported in JSON output.
const Version = "0.1.0"

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	var totalCycles, totalCommitted uint64
	var totalWallTime time.Duration
	for _, r := range results {
		totalCycles += r.SimulatedCycles
		totalCommitted += r.NodesCommitted
		totalWallTime += r.WallTime
	}

	avgIPC := float64(0)
	if totalCycles > 0 {
		avgIPC = float64(totalCommitted) / float64(totalCycles)
	}

	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			Config: BenchmarkConfig{
				CacheEnabled:  h.config.EnableCache,
				MemoryLatency: h.config.Memory.Latency,
				Timing:        h.config.Timing,
			},
		},
		Results: results,
		Summary: ReportSummary{
			TotalBenchmarks: len(results),
			TotalCycles:     totalCycles,
			TotalCommitted:  totalCommitted,
			AverageIPC:      avgIPC,
			TotalWallTime:   totalWallTime,
		},
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
