package dataflow

import (
	"slices"

	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
	"github.com/sarchlab/dfsim/timing/mem"
)

// Node is the runtime instance of one IR instruction mapped onto hardware.
//
// A node fires once per activation of its block:
//
//	Idle --(all dynamic dependencies satisfied)--> Ready
//	Ready --Launch--> Launched --(latency elapsed)--> Committed
//	Committed --Reset--> Idle
//
// A node with latency zero computes and becomes committable in the cycle it
// launches. Memory and call nodes additionally wait for their completion
// notification. Nodes are owned by the Graph arena and refer to each other by
// ID only.
type Node struct {
	id       ID
	name     string
	op       ir.Op
	typ      ir.Type
	block    ID
	latency  uint64
	behavior Behavior
	operands []Operand

	result  emu.Register
	pending emu.Register

	armed     bool
	ready     bool
	launched  bool
	committed bool
	cycle     uint64

	deps  []ID
	users []ID

	target   ID
	retValue *emu.Register

	constInit    *emu.Register
	request      *mem.Request
	awaiting     bool
	shortCircuit bool

	usage uint64
}

// ID returns the node id.
func (n *Node) ID() ID { return n.id }

// Name returns the IR name of the instruction, without sigil.
func (n *Node) Name() string { return n.name }

// Op returns the opcode.
func (n *Node) Op() ir.Op { return n.op }

// Kind returns the scheduling kind of the opcode.
func (n *Node) Kind() ir.Kind { return n.op.Kind() }

// Type returns the result type. Nodes without a result have type void.
func (n *Node) Type() ir.Type { return n.typ }

// Block returns the id of the enclosing basic block.
func (n *Node) Block() ID { return n.block }

// Latency returns the fixed latency in cycles.
func (n *Node) Latency() uint64 { return n.latency }

// Behavior returns the opcode metadata, or nil.
func (n *Node) Behavior() Behavior { return n.behavior }

// NumOperands returns the number of static operands.
func (n *Node) NumOperands() int { return len(n.operands) }

// Operand returns static operand i.
func (n *Node) Operand(i int) *Operand { return &n.operands[i] }

// Result returns the register written at the last commit.
func (n *Node) Result() emu.Register { return n.result }

// Cycle returns the number of cycles elapsed since launch.
func (n *Node) Cycle() uint64 { return n.cycle }

// Launched reports whether the node launched in this firing.
func (n *Node) Launched() bool { return n.launched }

// Committed reports whether the node committed in this firing.
func (n *Node) Committed() bool { return n.committed }

// InFlight reports whether the node was activated and has not committed yet.
func (n *Node) InFlight() bool { return n.armed && !n.committed }

// Usage returns the number of times the node has launched.
func (n *Node) Usage() uint64 { return n.usage }

// Dependencies returns the producers the node still waits for.
func (n *Node) Dependencies() []ID { return slices.Clone(n.deps) }

// Users returns the consumers waiting for this node's commit.
func (n *Node) Users() []ID { return slices.Clone(n.users) }

// Ready reports whether every active operand is satisfied and no dynamic
// dependency is outstanding. Calling it repeatedly without an intervening
// signal returns the same answer.
func (n *Node) Ready() bool {
	n.ready = n.armed && !n.launched && !n.committed &&
		len(n.deps) == 0 && n.operandsSatisfied()
	return n.ready
}

func (n *Node) operandsSatisfied() bool {
	for i := range n.operands {
		o := &n.operands[i]
		if o.active && !o.satisfied {
			return false
		}
	}
	return true
}

// Reset returns the node to Idle for a new firing. It clears the lifecycle
// flags and the cycle counter and marks every operand unsatisfied. The result
// register keeps its last value. Resetting a node that waits for a memory
// response or a callee is a protocol error.
func (n *Node) Reset() error {
	if n.awaiting {
		return n.protocol(ErrOutstandingRequest, "cannot reset")
	}

	n.armed = false
	n.ready = false
	n.launched = false
	n.committed = false
	n.cycle = 0
	n.deps = n.deps[:0]
	n.users = n.users[:0]
	n.target = NoID
	n.retValue = nil
	n.request = nil
	n.shortCircuit = false
	for i := range n.operands {
		n.operands[i].reset()
	}
	return nil
}

// Arm makes a wired node eligible to become ready.
func (n *Node) Arm() {
	n.armed = true
}

// Latch satisfies operand slot with a value known at activation time.
func (n *Node) Latch(slot int, v emu.Register) {
	n.operands[slot].latch(v)
}

// AddDynamicDependency records that the node waits for producer to commit.
func (n *Node) AddDynamicDependency(producer ID) {
	if !slices.Contains(n.deps, producer) {
		n.deps = append(n.deps, producer)
	}
}

// AddUser records a consumer to signal at commit.
func (n *Node) AddUser(consumer ID) {
	if !slices.Contains(n.users, consumer) {
		n.users = append(n.users, consumer)
	}
}

// Satisfy is the signal a producer sends at commit. Every active operand bound
// to producer latches v, and the dependency on producer is dropped. It
// returns whether the node became ready.
func (n *Node) Satisfy(producer ID, v emu.Register) bool {
	for i := range n.operands {
		o := &n.operands[i]
		if o.active && !o.satisfied && o.producer == producer {
			o.latch(v)
		}
	}
	if i := slices.Index(n.deps, producer); i >= 0 {
		n.deps = slices.Delete(n.deps, i, i+1)
	}
	return n.Ready()
}

// Launch fires a ready node. Data nodes compute their result, control
// transfers resolve their destination, memory nodes create their request and
// call nodes start waiting for the callee.
func (n *Node) Launch() error {
	if n.launched {
		return n.protocol(ErrAlreadyLaunched, "launch")
	}
	if !n.Ready() {
		return n.protocol(ErrNotReady, "launch with %d pending dependencies", len(n.deps))
	}

	n.launched = true
	n.ready = false
	n.cycle = 0
	n.usage++

	switch n.op.Kind() {
	case ir.KindDataOp, ir.KindPhi:
		return n.compute()
	case ir.KindControlTransfer:
		return n.resolveControl()
	case ir.KindMemory:
		return n.issueMemory()
	case ir.KindCall:
		n.awaiting = true
	}
	return nil
}

// Advance counts one elapsed cycle of a launched node.
func (n *Node) Advance() {
	if n.launched && !n.committed {
		n.cycle++
	}
}

// Elapsed reports whether a launched node may commit: its latency has passed
// and no completion is outstanding. A load of a constant global commits
// without waiting.
func (n *Node) Elapsed() bool {
	if !n.launched || n.committed || n.awaiting {
		return false
	}
	return n.shortCircuit || n.cycle >= n.latency
}

// commit writes the pending result and hands back the users to signal.
func (n *Node) commit() ([]ID, error) {
	switch {
	case !n.launched:
		return nil, n.protocol(ErrNotLaunched, "commit")
	case n.committed:
		return nil, n.protocol(ErrAlreadyCommitted, "commit")
	case n.awaiting:
		return nil, n.protocol(ErrOutstandingRequest, "commit")
	case !n.Elapsed():
		return nil, n.protocol(ErrLatencyNotElapsed, "commit after %d of %d cycles", n.cycle, n.latency)
	}

	if err := n.result.Assign(n.pending); err != nil {
		return nil, n.protocol(err, "commit")
	}
	n.committed = true

	users := slices.Clone(n.users)
	n.users = n.users[:0]
	return users, nil
}

func (n *Node) protocol(sentinel error, format string, args ...any) *Error {
	return newError(KindProtocol, n.id, n.op, "%w: "+format, append([]any{sentinel}, args...)...)
}

func (n *Node) numeric(err error) *Error {
	return &Error{Kind: KindNumeric, Node: n.id, Op: n.op, Err: err}
}

func (n *Node) arg(i int) emu.Register {
	return n.operands[i].value
}
