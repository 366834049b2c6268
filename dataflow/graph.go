// Package dataflow provides the compute-node graph of the accelerator: nodes
// mapped from IR instructions, their operand bindings, the producer/consumer
// signaling protocol, and a builder that validates graphs before simulation.
//
// All values (constants, arguments, globals, instructions, blocks and
// functions) share one id space. The Graph owns every node; nodes refer to
// each other by ID only.
package dataflow

import (
	"fmt"

	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
)

// ID identifies a value of the graph.
type ID int

// NoID marks an absent value, such as the false successor of an
// unconditional branch.
const NoID ID = -1

// ValueKind tells what a value id denotes.
type ValueKind uint8

// Value kinds.
const (
	ValueConstant ValueKind = iota
	ValueArgument
	ValueGlobal
	ValueGlobalConstant
	ValueInstruction
	ValueBlock
	ValueFunction
)

var valueKindNames = [...]string{
	ValueConstant:       "constant",
	ValueArgument:       "argument",
	ValueGlobal:         "global",
	ValueGlobalConstant: "global constant",
	ValueInstruction:    "instruction",
	ValueBlock:          "block",
	ValueFunction:       "function",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return fmt.Sprintf("ValueKind(%d)", k)
}

// Value is an entry of the graph's id space.
type Value struct {
	ID   ID
	Kind ValueKind
	Name string
	Type ir.Type
	// Func is the owning function of arguments, blocks and instructions,
	// NoID otherwise.
	Func ID

	index int
	reg   emu.Register
	init  emu.Register
}

// Operable reports whether the value can be bound to an operand.
func (v *Value) Operable() bool {
	return v.Kind != ValueBlock && v.Kind != ValueFunction && !v.Type.IsVoid()
}

// Initializer returns the pre-known content of a global constant.
func (v *Value) Initializer() (emu.Register, bool) {
	return v.init, v.Kind == ValueGlobalConstant
}

// Block is a basic block: a straight-line sequence of nodes ending in one
// control transfer.
type Block struct {
	ID    ID
	Name  string
	Func  ID
	Nodes []ID
	Preds []ID
	Succs []ID
}

// Terminator returns the id of the block's control transfer.
func (b *Block) Terminator() ID {
	return b.Nodes[len(b.Nodes)-1]
}

// Function is a callable region of blocks. The first block is the entry.
type Function struct {
	ID         ID
	Name       string
	ReturnType ir.Type
	Args       []ID
	Blocks     []ID
	Callees    []ID
}

// Entry returns the entry block.
func (f *Function) Entry() ID {
	return f.Blocks[0]
}

// Graph is the arena of a validated dataflow graph.
type Graph struct {
	values []Value
	nodes  []Node
	blocks []Block
	funcs  []Function
	names  map[string]ID
}

// NumValues returns the size of the id space.
func (g *Graph) NumValues() int {
	return len(g.values)
}

// Value returns the value with the given id, or nil.
func (g *Graph) Value(id ID) *Value {
	if id < 0 || int(id) >= len(g.values) {
		return nil
	}
	return &g.values[id]
}

// Node returns the node with the given id, or nil if id is not an
// instruction.
func (g *Graph) Node(id ID) *Node {
	v := g.Value(id)
	if v == nil || v.Kind != ValueInstruction {
		return nil
	}
	return &g.nodes[v.index]
}

// Block returns the block with the given id, or nil.
func (g *Graph) Block(id ID) *Block {
	v := g.Value(id)
	if v == nil || v.Kind != ValueBlock {
		return nil
	}
	return &g.blocks[v.index]
}

// Function returns the function with the given id, or nil.
func (g *Graph) Function(id ID) *Function {
	v := g.Value(id)
	if v == nil || v.Kind != ValueFunction {
		return nil
	}
	return &g.funcs[v.index]
}

// Lookup finds a function or global by name.
func (g *Graph) Lookup(name string) (ID, bool) {
	id, ok := g.names[name]
	return id, ok
}

// FunctionByName finds a function by name.
func (g *Graph) FunctionByName(name string) (*Function, bool) {
	id, ok := g.names[name]
	if !ok {
		return nil, false
	}
	f := g.Function(id)
	return f, f != nil
}

// Functions returns the ids of all functions in definition order.
func (g *Graph) Functions() []ID {
	ids := make([]ID, len(g.funcs))
	for i := range g.funcs {
		ids[i] = g.funcs[i].ID
	}
	return ids
}

// NodeIDs returns the ids of all nodes in definition order.
func (g *Graph) NodeIDs() []ID {
	ids := make([]ID, len(g.nodes))
	for i := range g.nodes {
		ids[i] = g.nodes[i].id
	}
	return ids
}

// Globals returns the ids of all globals and global constants.
func (g *Graph) Globals() []ID {
	var ids []ID
	for i := range g.values {
		if k := g.values[i].Kind; k == ValueGlobal || k == ValueGlobalConstant {
			ids = append(ids, g.values[i].ID)
		}
	}
	return ids
}

// Register returns the current register of an operable value: the last
// committed result for instructions, the bound value otherwise.
func (g *Graph) Register(id ID) (emu.Register, error) {
	v := g.Value(id)
	if v == nil || !v.Operable() {
		return emu.Register{}, fmt.Errorf("%w: value %d has no register", ErrMissingOperand, id)
	}
	if v.Kind == ValueInstruction {
		return g.nodes[v.index].result, nil
	}
	return v.reg, nil
}

// SetArgument binds a function argument for the next invocation.
func (g *Graph) SetArgument(id ID, r emu.Register) error {
	v := g.Value(id)
	if v == nil || v.Kind != ValueArgument {
		return fmt.Errorf("%w: value %d is not an argument", ErrMissingOperand, id)
	}
	if err := v.reg.Assign(r); err != nil {
		return &Error{Kind: KindProtocol, Node: id, Err: err}
	}
	return nil
}

// Connect creates a dynamic edge: consumer waits for producer's next commit.
func (g *Graph) Connect(producer, consumer ID) {
	g.Node(producer).AddUser(consumer)
	g.Node(consumer).AddDynamicDependency(producer)
}

// Activate prepares every node of a block for a new firing entered from
// pred (NoID for a function entry). Nodes are reset; phis select the
// incoming value of pred; each active operand is then either latched right
// away or connected to its producer:
//   - constants, arguments and globals are latched;
//   - a producer in the same block is connected, except for phis, which
//     read the value of the previous firing;
//   - a producer elsewhere that has not committed yet is connected;
//   - any other producer is latched with its last result.
//
// The caller must ensure no node of the block is still in flight.
func (g *Graph) Activate(block, pred ID) error {
	blk := g.Block(block)
	if blk == nil {
		return fmt.Errorf("%w: %d is not a block", ErrDanglingSuccessor, block)
	}

	for _, id := range blk.Nodes {
		if err := g.Node(id).Reset(); err != nil {
			return err
		}
	}

	for _, id := range blk.Nodes {
		n := g.Node(id)
		if n.op == ir.OpPhi {
			if err := n.SelectIncoming(pred); err != nil {
				return err
			}
		}
		g.wire(n, block)
	}

	for _, id := range blk.Nodes {
		g.Node(id).Arm()
	}
	return nil
}

func (g *Graph) wire(n *Node, block ID) {
	for i := range n.operands {
		o := &n.operands[i]
		if !o.active {
			continue
		}

		pv := &g.values[o.producer]
		if pv.Kind != ValueInstruction {
			o.latch(pv.reg)
			continue
		}

		p := &g.nodes[pv.index]
		sameBlock := p.block == block
		if (sameBlock && n.op != ir.OpPhi) || (!sameBlock && p.InFlight()) {
			g.Connect(p.id, n.id)
			continue
		}
		o.latch(p.result)
	}
}

// Fire launches a ready node. A node whose latency is zero and that waits
// for no completion commits in the same call; committed is then true and
// woken lists the users that became ready.
func (g *Graph) Fire(id ID) (committed bool, woken []ID, err error) {
	n := g.Node(id)
	if n == nil {
		return false, nil, fmt.Errorf("%w: %d is not a node", ErrMissingOperand, id)
	}
	if err := n.Launch(); err != nil {
		return false, nil, err
	}
	if !n.Elapsed() {
		return false, nil, nil
	}
	woken, err = g.Commit(id)
	return err == nil, woken, err
}

// Commit commits a node whose latency has elapsed and signals its users. It
// returns the users that became ready.
func (g *Graph) Commit(id ID) ([]ID, error) {
	n := g.Node(id)
	if n == nil {
		return nil, fmt.Errorf("%w: %d is not a node", ErrMissingOperand, id)
	}

	users, err := n.commit()
	if err != nil {
		return nil, err
	}

	var woken []ID
	for _, u := range users {
		if g.Node(u).Satisfy(id, n.result) {
			woken = append(woken, u)
		}
	}
	return woken, nil
}
