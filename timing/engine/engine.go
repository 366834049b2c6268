// Package engine provides the cycle-level scheduler of the accelerator. It
// owns the global clock, activates basic blocks, launches ready nodes,
// advances in-flight nodes, forwards memory requests to the memory boundary
// and runs function invocations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/go-logr/logr"
	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/dfsim/dataflow"
	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
	"github.com/sarchlab/dfsim/timing/mem"
)

const (
	// DefaultDeadlockThreshold is the number of consecutive cycles without
	// any event after which a run is declared deadlocked.
	DefaultDeadlockThreshold = 1 << 16
)

var (
	// ErrDeadlock is returned when no event happened for too many cycles.
	ErrDeadlock = errors.New("deadlock")
	// ErrCycleLimit is returned when a run exceeds the configured cycle
	// budget.
	ErrCycleLimit = errors.New("cycle limit reached")
	// ErrRunning is returned by Start while an invocation is in progress.
	ErrRunning = errors.New("an invocation is already running")
	// ErrUnknownFunction is returned by Start for names the graph lacks.
	ErrUnknownFunction = errors.New("unknown function")
)

// Statistics holds engine performance counters.
type Statistics struct {
	// Cycles is the number of cycles simulated.
	Cycles uint64 `json:"cycles"`
	// Launched is the number of node launches.
	Launched uint64 `json:"launched"`
	// Committed is the number of node commits.
	Committed uint64 `json:"committed"`
	// OpCommits counts commits per opcode name.
	OpCommits map[string]uint64 `json:"op_commits"`
	// Loads and Stores count requests accepted by the memory boundary.
	Loads  uint64 `json:"loads"`
	Stores uint64 `json:"stores"`
	// ConstantLoads counts loads served from constant globals.
	ConstantLoads uint64 `json:"constant_loads"`
	BytesRead     uint64 `json:"bytes_read"`
	BytesWritten  uint64 `json:"bytes_written"`
	// MemStalls is the number of cycles in which the memory port rejected a
	// request.
	MemStalls uint64 `json:"mem_stalls"`
	// BlockActivations is the number of basic block firings.
	BlockActivations uint64 `json:"block_activations"`
	// ActivationStalls counts cycles a block activation waited for the
	// previous firing of the block to drain.
	ActivationStalls uint64 `json:"activation_stalls"`
	// Calls is the number of callee invocations started.
	Calls uint64 `json:"calls"`
	// CallStalls counts cycles a call waited for a busy callee.
	CallStalls uint64 `json:"call_stalls"`
	// SimulatedTime is Cycles at the engine frequency.
	SimulatedTime sim.VTimeInSec `json:"simulated_time"`
}

// IPC returns the committed nodes per cycle.
func (s Statistics) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Committed) / float64(s.Cycles)
}

// Result is the outcome of a finished top-level invocation.
type Result struct {
	// Return is the returned value. It is meaningful only if HasReturn.
	Return    emu.Register
	HasReturn bool
	// Cycles is the number of cycles ticked from Start up to and including
	// the cycle in which the invocation returns. It matches the growth of
	// Statistics.Cycles over the invocation.
	Cycles uint64
}

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets the logger. Engine events are logged at V(1) for block
// activations and invocations, V(2) for node launches and commits and V(3)
// for memory traffic.
func WithLogger(log logr.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithMemory sets the memory boundary. The default is a memory controller
// with the default configuration.
func WithMemory(m mem.System) Option {
	return func(e *Engine) {
		e.memory = m
	}
}

// WithMaxCycles bounds the length of a run. Zero means unbounded.
func WithMaxCycles(n uint64) Option {
	return func(e *Engine) {
		e.maxCycles = n
	}
}

// WithDeadlockThreshold sets the number of idle cycles tolerated before a
// run fails with ErrDeadlock.
func WithDeadlockThreshold(n uint64) Option {
	return func(e *Engine) {
		e.deadlockThreshold = n
	}
}

// WithFreq sets the clock frequency used to report simulated time.
func WithFreq(f sim.Freq) Option {
	return func(e *Engine) {
		e.freq = f
	}
}

type activation struct {
	block dataflow.ID
	pred  dataflow.ID
	due   uint64
}

// frame is one live invocation of a function.
type frame struct {
	fn dataflow.ID
	// caller is the call node waiting for the frame, NoID at top level.
	caller   dataflow.ID
	live     int
	returned bool
	ret      emu.Register
	hasRet   bool
}

// Engine schedules a dataflow graph cycle by cycle. Within a cycle it
// delivers memory responses, retries rejected requests, advances and commits
// in-flight nodes, processes control transfers and finally launches ready
// nodes until none is left. A commit wakes its users in the same cycle.
type Engine struct {
	graph  *dataflow.Graph
	log    logr.Logger
	memory mem.System
	freq   sim.Freq

	maxCycles         uint64
	deadlockThreshold uint64

	cycle      uint64
	startCycle uint64
	idle       uint64
	progressed bool
	memStalled bool

	inflight    []dataflow.ID
	ready       []dataflow.ID
	activations []activation
	blockLive   map[dataflow.ID]int
	frames      []*frame
	active      map[dataflow.ID]*frame
	calls       []dataflow.ID
	requests    map[xid.ID]dataflow.ID
	retry       []dataflow.ID

	running bool
	result  Result
	err     error

	stats Statistics
}

// New creates an engine for a validated graph.
func New(g *dataflow.Graph, opts ...Option) (*Engine, error) {
	e := &Engine{
		graph:             g,
		log:               logr.Discard(),
		freq:              1 * sim.GHz,
		deadlockThreshold: DefaultDeadlockThreshold,
		blockLive:         make(map[dataflow.ID]int),
		active:            make(map[dataflow.ID]*frame),
		requests:          make(map[xid.ID]dataflow.ID),
		stats:             Statistics{OpCommits: make(map[string]uint64)},
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.memory == nil {
		ctrl, err := mem.NewController(mem.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("default memory: %w", err)
		}
		e.memory = ctrl
	}
	if e.deadlockThreshold == 0 {
		return nil, errors.New("deadlock threshold must be > 0")
	}
	return e, nil
}

// Graph returns the scheduled graph.
func (e *Engine) Graph() *dataflow.Graph {
	return e.graph
}

// Memory returns the memory boundary.
func (e *Engine) Memory() mem.System {
	return e.memory
}

// Cycle returns the current clock value.
func (e *Engine) Cycle() uint64 {
	return e.cycle
}

// Running reports whether a top-level invocation is in progress.
func (e *Engine) Running() bool {
	return e.running
}

// Result returns the outcome of the last finished invocation.
func (e *Engine) Result() Result {
	return e.result
}

// Stats returns a snapshot of the performance counters.
func (e *Engine) Stats() Statistics {
	s := e.stats
	s.OpCommits = maps.Clone(e.stats.OpCommits)
	s.SimulatedTime = e.freq.NCyclesLater(int(s.Cycles), 0)
	return s
}

// Start begins a top-level invocation of the named function. The entry
// block is activated in the next cycle.
func (e *Engine) Start(name string, args ...emu.Register) error {
	if e.running {
		return ErrRunning
	}
	fn, ok := e.graph.FunctionByName(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	if err := e.bindArguments(fn, args); err != nil {
		return err
	}

	e.running = true
	e.startCycle = e.cycle
	e.idle = 0
	e.result = Result{}
	e.pushFrame(fn, dataflow.NoID)
	e.log.V(1).Info("start", "cycle", e.cycle, "function", fn.Name)
	return nil
}

func (e *Engine) bindArguments(fn *dataflow.Function, args []emu.Register) error {
	if len(args) != len(fn.Args) {
		return fmt.Errorf("%s takes %d arguments, got %d", fn.Name, len(fn.Args), len(args))
	}
	for i, id := range fn.Args {
		if err := e.graph.SetArgument(id, args[i]); err != nil {
			return fmt.Errorf("argument %d of %s: %w", i, fn.Name, err)
		}
	}
	return nil
}

func (e *Engine) pushFrame(fn *dataflow.Function, caller dataflow.ID) {
	f := &frame{fn: fn.ID, caller: caller}
	e.frames = append(e.frames, f)
	e.active[fn.ID] = f
	e.activations = append(e.activations, activation{
		block: fn.Entry(),
		pred:  dataflow.NoID,
		due:   e.cycle + 1,
	})
}

// Run invokes the named function and ticks until it returns. It fails on
// the first node error, on deadlock, when the cycle budget is exhausted or
// when ctx is done.
func (e *Engine) Run(ctx context.Context, name string, args ...emu.Register) (Result, error) {
	if err := e.Start(name, args...); err != nil {
		return Result{}, err
	}

	for e.running {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if e.maxCycles > 0 && e.cycle-e.startCycle >= e.maxCycles {
			return Result{}, fmt.Errorf("%w: %d cycles", ErrCycleLimit, e.maxCycles)
		}
		if err := e.Tick(); err != nil {
			return Result{}, err
		}
	}
	return e.result, nil
}

// Tick simulates one cycle. After an error the engine is unusable and every
// later Tick returns the same error.
func (e *Engine) Tick() error {
	if e.err != nil {
		return e.err
	}
	if err := e.tick(); err != nil {
		e.err = err
		e.log.Error(err, "simulation failed", "cycle", e.cycle)
		return err
	}
	return nil
}

func (e *Engine) tick() error {
	e.progressed = false
	e.memStalled = false

	if err := e.deliverResponses(); err != nil {
		return err
	}
	if err := e.retryRequests(); err != nil {
		return err
	}
	if err := e.advance(); err != nil {
		return err
	}
	if err := e.transfer(); err != nil {
		return err
	}
	if err := e.launch(); err != nil {
		return err
	}

	if e.memStalled {
		e.stats.MemStalls++
	}
	e.cycle++
	e.stats.Cycles++

	if e.progressed || !e.running {
		e.idle = 0
		return nil
	}
	e.idle++
	if e.idle >= e.deadlockThreshold {
		return fmt.Errorf("%w: no progress for %d cycles at cycle %d, %d nodes in flight",
			ErrDeadlock, e.idle, e.cycle, len(e.inflight))
	}
	return nil
}

// advance counts one cycle for every in-flight node and commits those whose
// latency and outstanding completion have elapsed.
func (e *Engine) advance() error {
	list := e.inflight
	e.inflight = nil
	for _, id := range list {
		n := e.graph.Node(id)
		n.Advance()
		if !n.Elapsed() {
			e.inflight = append(e.inflight, id)
			continue
		}
		if err := e.commit(id); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) commit(id dataflow.ID) error {
	woken, err := e.graph.Commit(id)
	if err != nil {
		return err
	}
	e.onCommit(e.graph.Node(id))
	e.ready = append(e.ready, woken...)
	return nil
}

// onCommit does the bookkeeping of a commit: counters, block and frame
// occupancy, and the control effect of terminators.
func (e *Engine) onCommit(n *dataflow.Node) {
	e.progressed = true
	e.stats.Committed++
	e.stats.OpCommits[n.Op().String()]++
	e.blockLive[n.Block()]--

	f := e.active[e.graph.Block(n.Block()).Func]
	f.live--

	e.log.V(2).Info("commit", "cycle", e.cycle, "node", n.ID(), "op", n.Op().String(), "value", n.Result().String())

	if n.IsReturn() {
		v, ok, _ := n.ReturnValue()
		f.returned = true
		f.ret, f.hasRet = v, ok
		return
	}
	if next, ok := n.NextBlock(); ok {
		e.activations = append(e.activations, activation{
			block: next,
			pred:  n.Block(),
			due:   e.cycle + 1,
		})
	}
}

// transfer finishes drained frames, starts stalled calls and activates due
// blocks.
func (e *Engine) transfer() error {
	if err := e.finishFrames(); err != nil {
		return err
	}
	if err := e.startCalls(); err != nil {
		return err
	}
	return e.activateBlocks()
}

func (e *Engine) finishFrames() error {
	kept := e.frames[:0]
	for _, f := range e.frames {
		if !f.returned || f.live > 0 {
			kept = append(kept, f)
			continue
		}

		delete(e.active, f.fn)
		e.progressed = true
		e.log.V(1).Info("return", "cycle", e.cycle, "function", e.graph.Function(f.fn).Name)

		if f.caller == dataflow.NoID {
			e.running = false
			// The clock advances at the end of this tick.
			e.result = Result{Return: f.ret, HasReturn: f.hasRet, Cycles: e.cycle + 1 - e.startCycle}
			continue
		}
		if err := e.graph.Node(f.caller).CompleteCall(f.ret); err != nil {
			return err
		}
	}
	clear(e.frames[len(kept):])
	e.frames = kept
	return nil
}

func (e *Engine) startCalls() error {
	waiting := e.calls
	e.calls = nil
	for _, id := range waiting {
		started, err := e.startCall(id)
		if err != nil {
			return err
		}
		if !started {
			e.calls = append(e.calls, id)
		}
	}
	if len(e.calls) > 0 {
		e.stats.CallStalls++
	}
	return nil
}

// startCall opens a frame for the callee of a launched call node. It
// returns false while the callee already has a live invocation.
func (e *Engine) startCall(id dataflow.ID) (bool, error) {
	n := e.graph.Node(id)
	callee, err := n.Callee()
	if err != nil {
		return false, err
	}
	if _, busy := e.active[callee]; busy {
		return false, nil
	}

	fn := e.graph.Function(callee)
	if err := e.bindArguments(fn, n.Arguments()); err != nil {
		return false, fmt.Errorf("node %d: %w", id, err)
	}
	e.pushFrame(fn, id)
	e.stats.Calls++
	e.progressed = true
	e.log.V(1).Info("call", "cycle", e.cycle, "node", id, "function", fn.Name)
	return true, nil
}

func (e *Engine) activateBlocks() error {
	pending := e.activations
	e.activations = nil
	var kept []activation
	for _, a := range pending {
		if a.due > e.cycle {
			kept = append(kept, a)
			continue
		}
		if e.blockLive[a.block] > 0 {
			e.stats.ActivationStalls++
			kept = append(kept, a)
			continue
		}
		if err := e.activate(a); err != nil {
			return err
		}
	}
	e.activations = append(kept, e.activations...)
	return nil
}

func (e *Engine) activate(a activation) error {
	if err := e.graph.Activate(a.block, a.pred); err != nil {
		return err
	}

	blk := e.graph.Block(a.block)
	e.blockLive[a.block] = len(blk.Nodes)
	e.active[blk.Func].live += len(blk.Nodes)
	e.stats.BlockActivations++
	e.progressed = true
	e.ready = append(e.ready, blk.Nodes...)
	e.log.V(1).Info("activate", "cycle", e.cycle, "block", blk.Name, "pred", a.pred)
	return nil
}

// launch fires ready nodes until no node becomes ready in this cycle. Nodes
// are visited in id order; results do not depend on the order since operand
// values are latched.
func (e *Engine) launch() error {
	for len(e.ready) > 0 {
		batch := e.ready
		e.ready = nil
		slices.Sort(batch)
		batch = slices.Compact(batch)

		for _, id := range batch {
			if !e.graph.Node(id).Ready() {
				continue
			}
			if err := e.fire(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) fire(id dataflow.ID) error {
	n := e.graph.Node(id)
	committed, woken, err := e.graph.Fire(id)
	if err != nil {
		return err
	}

	e.progressed = true
	e.stats.Launched++
	e.log.V(2).Info("launch", "cycle", e.cycle, "node", id, "op", n.Op().String())
	if n.ShortCircuited() {
		e.stats.ConstantLoads++
	}

	if committed {
		e.onCommit(n)
		e.ready = append(e.ready, woken...)
		return nil
	}

	e.inflight = append(e.inflight, id)
	switch n.Kind() {
	case ir.KindMemory:
		return e.issue(id)
	case ir.KindCall:
		started, err := e.startCall(id)
		if err != nil {
			return err
		}
		if !started {
			e.calls = append(e.calls, id)
		}
	}
	return nil
}
