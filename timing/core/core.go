// Package core places the dataflow engine on an akita simulation engine.
// The Core is a ticking component, so an accelerator invocation shares the
// global clock and event queue with other akita components.
package core

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/dfsim/dataflow"
	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/timing/engine"
)

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Committed is the number of node firings that committed.
	Committed uint64
	// Stalls sums memory, block activation and call stall cycles.
	Stalls uint64
	// Invocations is the number of finished top-level invocations.
	Invocations uint64
}

// Core is a dataflow accelerator driven by akita ticks. Every tick of the
// component simulates one engine cycle.
type Core struct {
	*sim.TickingComponent

	engine      *engine.Engine
	result      engine.Result
	err         error
	invocations uint64
}

// Builder can create new cores.
type Builder struct {
	simEngine sim.Engine
	freq      sim.Freq
	opts      []engine.Option
}

// MakeBuilder returns a builder with a 1GHz clock.
func MakeBuilder() Builder {
	return Builder{freq: 1 * sim.GHz}
}

// WithEngine sets the akita engine that schedules the ticks.
func (b Builder) WithEngine(e sim.Engine) Builder {
	b.simEngine = e
	return b
}

// WithFreq sets the frequency of the core.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithEngineOptions passes options to the dataflow engine, such as its
// memory system or logger.
func (b Builder) WithEngineOptions(opts ...engine.Option) Builder {
	b.opts = append(b.opts[:len(b.opts):len(b.opts)], opts...)
	return b
}

// Build creates a core that schedules g.
func (b Builder) Build(name string, g *dataflow.Graph) (*Core, error) {
	if b.simEngine == nil {
		return nil, fmt.Errorf("core %s: no simulation engine", name)
	}

	opts := append(b.opts[:len(b.opts):len(b.opts)], engine.WithFreq(b.freq))
	eng, err := engine.New(g, opts...)
	if err != nil {
		return nil, fmt.Errorf("core %s: %w", name, err)
	}

	c := &Core{engine: eng}
	c.TickingComponent = sim.NewTickingComponent(name, b.simEngine, b.freq, c)
	return c, nil
}

// Engine returns the dataflow engine.
func (c *Core) Engine() *engine.Engine {
	return c.engine
}

// Start begins an invocation of the named function and schedules the first
// tick.
func (c *Core) Start(name string, args ...emu.Register) error {
	if c.err != nil {
		return c.err
	}
	if err := c.engine.Start(name, args...); err != nil {
		return err
	}
	c.result = engine.Result{}
	c.TickLater()
	return nil
}

// Tick simulates one engine cycle. It stops requesting ticks once the
// invocation returns or fails.
func (c *Core) Tick() bool {
	if !c.engine.Running() || c.err != nil {
		return false
	}

	if err := c.engine.Tick(); err != nil {
		c.err = err
		return false
	}

	if !c.engine.Running() {
		c.result = c.engine.Result()
		c.invocations++
	}
	return true
}

// Halted returns true if no invocation is in progress.
func (c *Core) Halted() bool {
	return !c.engine.Running()
}

// Result returns the outcome of the last invocation, or the error that
// stopped it.
func (c *Core) Result() (engine.Result, error) {
	return c.result, c.err
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	s := c.engine.Stats()
	return Stats{
		Cycles:      s.Cycles,
		Committed:   s.Committed,
		Stalls:      s.MemStalls + s.ActivationStalls + s.CallStalls,
		Invocations: c.invocations,
	}
}
