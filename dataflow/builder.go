package dataflow

import (
	"errors"

	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
	"github.com/sarchlab/dfsim/timing/latency"
)

// LatencyTable assigns the fixed latency of a node from its opcode.
type LatencyTable interface {
	Latency(op ir.Op) uint64
}

// BuilderOption is a functional option for configuring the Builder.
type BuilderOption func(*Builder)

// WithLatencyTable sets the table that provides default node latencies.
func WithLatencyTable(table LatencyTable) BuilderOption {
	return func(b *Builder) {
		b.latencies = table
	}
}

// Param declares a function parameter.
type Param struct {
	Name string
	Type ir.Type
}

// NodeSpec describes one instruction.
type NodeSpec struct {
	Name     string
	Op       ir.Op
	Type     ir.Type
	Operands []ID
	Behavior Behavior
	// Latency overrides the latency table when set.
	Latency *uint64
}

// Builder assembles and validates a Graph. Values may be referenced before
// their operands are known: SetOperands and SetBehavior complete a node
// added earlier, which is how loops and forward references are expressed.
type Builder struct {
	g         *Graph
	latencies LatencyTable
	specs     []NodeSpec
	errs      []error
	built     bool
}

// NewBuilder creates an empty builder. Without options, latencies come from
// the default timing configuration.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		g:         &Graph{names: make(map[string]ID)},
		latencies: latency.NewTable(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) addValue(v Value) ID {
	v.ID = ID(len(b.g.values))
	b.g.values = append(b.g.values, v)
	return v.ID
}

func (b *Builder) fail(kind ErrorKind, id ID, op ir.Op, sentinel error, format string, args ...any) {
	b.errs = append(b.errs, newError(kind, id, op, "%w: "+format, append([]any{sentinel}, args...)...))
}

func (b *Builder) register(name string, id ID) {
	if name == "" {
		return
	}
	if _, dup := b.g.names[name]; dup {
		b.fail(KindStructural, id, ir.OpUnknown, ErrMissingOperand, "duplicate global name %q", name)
		return
	}
	b.g.names[name] = id
}

// AddFunction declares a function and its arguments.
func (b *Builder) AddFunction(name string, ret ir.Type, params ...Param) ID {
	id := b.addValue(Value{Kind: ValueFunction, Name: name, Type: ret, Func: NoID, index: len(b.g.funcs)})
	b.register(name, id)

	fn := Function{ID: id, Name: name, ReturnType: ret}
	for _, p := range params {
		arg := b.addValue(Value{Kind: ValueArgument, Name: p.Name, Type: p.Type, Func: id})
		b.g.values[arg].reg = emu.NewRegister(uint64(arg), p.Type)
		fn.Args = append(fn.Args, arg)
		if err := p.Type.Validate(); err != nil {
			b.fail(KindStructural, arg, ir.OpUnknown, ErrUnsupportedWidth, "argument %s: %v", p.Name, err)
		}
	}
	b.g.funcs = append(b.g.funcs, fn)
	return id
}

// Arguments returns the argument ids of a function.
func (b *Builder) Arguments(fn ID) []ID {
	if f := b.g.Function(fn); f != nil {
		return f.Args
	}
	return nil
}

// AddBlock appends a basic block to a function. The first block added is
// the entry.
func (b *Builder) AddBlock(fn ID, name string) ID {
	f := b.g.Function(fn)
	if f == nil {
		b.fail(KindStructural, fn, ir.OpUnknown, ErrDanglingSuccessor, "block %s added to non-function %d", name, fn)
		return NoID
	}
	id := b.addValue(Value{Kind: ValueBlock, Name: name, Type: ir.Void(), Func: fn, index: len(b.g.blocks)})
	b.g.blocks = append(b.g.blocks, Block{ID: id, Name: name, Func: fn})
	f.Blocks = append(f.Blocks, id)
	return id
}

// AddConstant adds an immediate value.
func (b *Builder) AddConstant(r emu.Register) ID {
	id := b.addValue(Value{Kind: ValueConstant, Type: r.Type(), Func: NoID})
	b.g.values[id].reg = r.Unowned()
	return id
}

// AddGlobal adds a named memory object; its value is the object's address.
func (b *Builder) AddGlobal(name string, addr uint64) ID {
	id := b.addValue(Value{Kind: ValueGlobal, Name: name, Type: ir.Pointer(), Func: NoID})
	b.g.values[id].reg = emu.PointerValue(addr)
	b.register(name, id)
	return id
}

// AddGlobalConstant adds a read-only memory object whose content is known at
// build time. Loads of it bypass the memory boundary.
func (b *Builder) AddGlobalConstant(name string, addr uint64, init emu.Register) ID {
	id := b.addValue(Value{Kind: ValueGlobalConstant, Name: name, Type: ir.Pointer(), Func: NoID})
	b.g.values[id].reg = emu.PointerValue(addr)
	b.g.values[id].init = init
	b.register(name, id)
	return id
}

// AddNode appends an instruction to a block.
func (b *Builder) AddNode(block ID, spec NodeSpec) ID {
	blk := b.g.Block(block)
	if blk == nil {
		b.fail(KindStructural, block, spec.Op, ErrDanglingSuccessor, "node %s added to non-block %d", spec.Name, block)
		return NoID
	}
	id := b.addValue(Value{Kind: ValueInstruction, Name: spec.Name, Type: spec.Type, Func: blk.Func, index: len(b.g.nodes)})
	b.g.nodes = append(b.g.nodes, Node{id: id, name: spec.Name, op: spec.Op, typ: spec.Type, block: block, target: NoID})
	b.specs = append(b.specs, spec)
	blk.Nodes = append(blk.Nodes, id)
	return id
}

func (b *Builder) spec(node ID) *NodeSpec {
	v := b.g.Value(node)
	if v == nil || v.Kind != ValueInstruction {
		b.fail(KindStructural, node, ir.OpUnknown, ErrMissingOperand, "%d is not a node", node)
		return nil
	}
	return &b.specs[v.index]
}

// SetOperands replaces the operands of a node added earlier.
func (b *Builder) SetOperands(node ID, operands ...ID) {
	if s := b.spec(node); s != nil {
		s.Operands = operands
	}
}

// SetBehavior replaces the metadata of a node added earlier.
func (b *Builder) SetBehavior(node ID, behavior Behavior) {
	if s := b.spec(node); s != nil {
		s.Behavior = behavior
	}
}

// Build validates the graph and returns it. All structural problems are
// reported together; each is an *Error attributed to the offending value.
func (b *Builder) Build() (*Graph, error) {
	if b.built {
		return nil, errors.New("graph already built")
	}
	b.built = true

	for i := range b.g.funcs {
		b.validateFunction(&b.g.funcs[i])
	}
	for i := range b.g.nodes {
		b.validateNode(&b.g.nodes[i], &b.specs[i])
	}
	for i := range b.g.values {
		if v := &b.g.values[i]; v.Kind == ValueGlobalConstant {
			b.validateGlobalConstant(v)
		}
	}
	if len(b.errs) == 0 {
		b.checkStaticCycles()
		b.checkRecursion()
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	b.materialize()
	return b.g, nil
}

func (b *Builder) validateFunction(f *Function) {
	if len(f.Blocks) == 0 {
		b.fail(KindStructural, f.ID, ir.OpUnknown, ErrMissingTerminator, "function %s has no blocks", f.Name)
		return
	}
	if err := f.ReturnType.Validate(); err != nil {
		b.fail(KindStructural, f.ID, ir.OpUnknown, ErrUnsupportedWidth, "function %s: %v", f.Name, err)
	}

	for i, id := range f.Blocks {
		blk := b.g.Block(id)
		if len(blk.Nodes) == 0 {
			b.fail(KindStructural, id, ir.OpUnknown, ErrMissingTerminator, "block %s is empty", blk.Name)
			continue
		}
		for j, nid := range blk.Nodes {
			n := b.g.Node(nid)
			last := j == len(blk.Nodes)-1
			if n.op.IsControlTransfer() != last {
				b.fail(KindStructural, nid, n.op, ErrMissingTerminator, "block %s", blk.Name)
			}
			if i == 0 && n.op == ir.OpPhi {
				b.fail(KindStructural, nid, n.op, ErrNoIncoming, "phi in entry block %s", blk.Name)
			}
		}
	}
}

func (b *Builder) validateGlobalConstant(v *Value) {
	if err := v.init.Type().Validate(); err != nil || v.init.Type().IsVoid() {
		b.fail(KindStructural, v.ID, ir.OpUnknown, ErrTypeMismatch, "global constant %s has no initializer", v.Name)
	}
}

func (b *Builder) validateNode(n *Node, s *NodeSpec) {
	if !s.Op.Valid() {
		b.fail(KindUnsupported, n.id, s.Op, ErrUnsupportedOpcode, "node %s", s.Name)
		return
	}
	if err := s.Type.Validate(); err != nil {
		b.fail(KindStructural, n.id, s.Op, ErrUnsupportedWidth, "%v", err)
		return
	}

	lo, hi := s.Op.OperandRange()
	if len(s.Operands) < lo || (hi >= 0 && len(s.Operands) > hi) {
		b.fail(KindStructural, n.id, s.Op, ErrOperandCount, "%d operands", len(s.Operands))
		return
	}

	ok := true
	for i, pid := range s.Operands {
		pv := b.g.Value(pid)
		switch {
		case pv == nil || !pv.Operable():
			b.fail(KindStructural, n.id, s.Op, ErrMissingOperand, "operand %d refers to %d", i, pid)
			ok = false
		case (pv.Kind == ValueArgument || pv.Kind == ValueInstruction) && pv.Func != b.g.values[n.id].Func:
			b.fail(KindStructural, n.id, s.Op, ErrMissingOperand, "operand %d belongs to another function", i)
			ok = false
		}
	}
	if !behaviorFits(s.Op, s.Behavior) {
		b.fail(KindStructural, n.id, s.Op, ErrMissingBehavior, "metadata %T", s.Behavior)
		ok = false
	}
	if !ok {
		return
	}

	b.validateTypes(n, s)
}

func (b *Builder) typeOf(id ID) ir.Type {
	return b.g.values[id].Type
}

func (b *Builder) mismatch(n *Node, format string, args ...any) {
	b.fail(KindStructural, n.id, n.op, ErrTypeMismatch, format, args...)
}

func (b *Builder) checkSuccessor(n *Node, dest ID) {
	blk := b.g.Block(dest)
	if blk == nil || blk.Func != b.g.Block(n.block).Func {
		b.fail(KindStructural, n.id, n.op, ErrDanglingSuccessor, "successor %d", dest)
	}
}

func (b *Builder) validateTypes(n *Node, s *NodeSpec) {
	t := s.Type
	ops := make([]ir.Type, len(s.Operands))
	for i, id := range s.Operands {
		ops[i] = b.typeOf(id)
	}

	switch op := s.Op; {
	case op.IsIntBinary():
		if !t.IsInt() || ops[0] != t || ops[1] != t {
			b.mismatch(n, "%s %s, %s -> %s", op, ops[0], ops[1], t)
		}

	case op.IsFloatBinary():
		if !t.IsFloat() || ops[0] != t || ops[1] != t {
			b.mismatch(n, "%s %s, %s -> %s", op, ops[0], ops[1], t)
		}

	case op.IsConversion():
		if err := emu.CheckConversion(op, ops[0], t); err != nil {
			b.fail(KindStructural, n.id, op, err, "conversion")
		}

	case op == ir.OpICmp:
		pred := s.Behavior.(CompareInfo).Predicate
		if !pred.IsInt() || ops[0] != ops[1] || !(ops[0].IsInt() || ops[0].IsPointer()) || t != ir.Bool() {
			b.mismatch(n, "icmp %s %s, %s -> %s", pred, ops[0], ops[1], t)
		}

	case op == ir.OpFCmp:
		pred := s.Behavior.(CompareInfo).Predicate
		if !pred.IsFloat() || ops[0] != ops[1] || !ops[0].IsFloat() || t != ir.Bool() {
			b.mismatch(n, "fcmp %s %s, %s -> %s", pred, ops[0], ops[1], t)
		}

	case op == ir.OpSelect:
		if ops[0] != ir.Bool() || ops[1] != t || ops[2] != t {
			b.mismatch(n, "select %s, %s, %s -> %s", ops[0], ops[1], ops[2], t)
		}

	case op == ir.OpGetElementPtr:
		b.validateAddress(n, s, ops)

	case op == ir.OpLoad:
		if !ops[0].IsPointer() || t.IsVoid() {
			b.mismatch(n, "load %s from %s", t, ops[0])
		}
		if v := &b.g.values[s.Operands[0]]; v.Kind == ValueGlobalConstant && v.init.Type() != t {
			b.mismatch(n, "load %s from constant %s of %s", t, v.Name, v.init.Type())
		}

	case op == ir.OpStore:
		if !ops[1].IsPointer() || !t.IsVoid() {
			b.mismatch(n, "store %s to %s", ops[0], ops[1])
		}
		if b.g.values[s.Operands[1]].Kind == ValueGlobalConstant {
			b.mismatch(n, "store to constant %s", b.g.values[s.Operands[1]].Name)
		}

	case op == ir.OpPhi:
		info := s.Behavior.(PhiInfo)
		if len(info.Blocks) != len(s.Operands) {
			b.fail(KindStructural, n.id, op, ErrOperandCount, "%d incoming blocks for %d values", len(info.Blocks), len(s.Operands))
			return
		}
		for i, blk := range info.Blocks {
			b.checkSuccessor(n, blk)
			if ops[i] != t {
				b.mismatch(n, "phi incoming %s for %s", ops[i], t)
			}
		}

	case op == ir.OpBr:
		info := s.Behavior.(BranchInfo)
		b.checkSuccessor(n, info.True)
		if len(s.Operands) == 1 {
			b.checkSuccessor(n, info.False)
			if ops[0] != ir.Bool() {
				b.mismatch(n, "branch condition %s", ops[0])
			}
		} else if info.False != NoID {
			b.fail(KindStructural, n.id, op, ErrOperandCount, "conditional branch without condition")
		}
		if !t.IsVoid() {
			b.mismatch(n, "br produces %s", t)
		}

	case op == ir.OpSwitch:
		info := s.Behavior.(SwitchInfo)
		b.checkSuccessor(n, info.Default)
		for _, c := range info.Cases {
			b.checkSuccessor(n, c.Dest)
		}
		if !ops[0].IsInt() || !t.IsVoid() {
			b.mismatch(n, "switch on %s", ops[0])
		}

	case op == ir.OpRet:
		ret := b.g.Function(b.g.values[n.id].Func).ReturnType
		switch {
		case len(ops) == 0 && !ret.IsVoid():
			b.mismatch(n, "ret void from function returning %s", ret)
		case len(ops) == 1 && ops[0] != ret:
			b.mismatch(n, "ret %s from function returning %s", ops[0], ret)
		}

	case op == ir.OpCall:
		callee := b.g.Function(s.Behavior.(CallInfo).Callee)
		if callee == nil {
			b.fail(KindStructural, n.id, op, ErrMissingOperand, "callee %d is not a function", s.Behavior.(CallInfo).Callee)
			return
		}
		if len(ops) != len(callee.Args) {
			b.fail(KindStructural, n.id, op, ErrOperandCount, "%d arguments for %s", len(ops), callee.Name)
			return
		}
		for i, arg := range callee.Args {
			if ops[i] != b.typeOf(arg) {
				b.mismatch(n, "argument %d of %s: %s for %s", i, callee.Name, ops[i], b.typeOf(arg))
			}
		}
		if t != callee.ReturnType {
			b.mismatch(n, "call of %s returns %s, not %s", callee.Name, callee.ReturnType, t)
		}
	}
}

func (b *Builder) validateAddress(n *Node, s *NodeSpec, ops []ir.Type) {
	info := s.Behavior.(AddressInfo)
	if len(info.Steps) != len(s.Operands)-1 {
		b.fail(KindStructural, n.id, n.op, ErrOperandCount, "%d steps for %d indices", len(info.Steps), len(s.Operands)-1)
		return
	}
	if !ops[0].IsPointer() || !s.Type.IsPointer() {
		b.mismatch(n, "getelementptr on %s", ops[0])
	}
	for i, step := range info.Steps {
		idx := s.Operands[i+1]
		if !ops[i+1].IsInt() {
			b.mismatch(n, "index %d has type %s", i, ops[i+1])
			continue
		}
		if step.Kind != ir.IndexStruct {
			continue
		}
		v := &b.g.values[idx]
		if v.Kind != ValueConstant {
			b.mismatch(n, "struct index %d is not a constant", i)
			continue
		}
		if f := v.reg.Int(); f < 0 || f >= int64(len(step.FieldOffsets)) {
			b.fail(KindStructural, n.id, n.op, emu.ErrFieldIndex, "field %d of %d", f, len(step.FieldOffsets))
		}
	}
}

// checkStaticCycles rejects cycles among the nodes of one block. Edges into
// phis are not static: a phi reads the value of an earlier firing.
func (b *Builder) checkStaticCycles() {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[ID]int)

	var visit func(id ID) bool
	visit = func(id ID) bool {
		state[id] = visiting
		n := b.g.Node(id)
		for _, pid := range b.specs[b.g.values[id].index].Operands {
			p := b.g.Node(pid)
			if p == nil || p.block != n.block || n.op == ir.OpPhi {
				continue
			}
			switch state[pid] {
			case visiting:
				b.fail(KindStructural, id, n.op, ErrStaticCycle, "through node %d", pid)
				return false
			case unvisited:
				if !visit(pid) {
					return false
				}
			}
		}
		state[id] = done
		return true
	}

	for i := range b.g.nodes {
		if id := b.g.nodes[i].id; state[id] == unvisited {
			visit(id)
		}
	}
}

// checkRecursion rejects call graphs with cycles, since a function has at
// most one live invocation.
func (b *Builder) checkRecursion() {
	callees := make(map[ID][]ID)
	for i := range b.g.nodes {
		n := &b.g.nodes[i]
		if info, ok := b.specs[i].Behavior.(CallInfo); ok {
			caller := b.g.values[n.id].Func
			callees[caller] = append(callees[caller], info.Callee)
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[ID]int)

	var visit func(fn ID) bool
	visit = func(fn ID) bool {
		state[fn] = visiting
		for _, c := range callees[fn] {
			switch state[c] {
			case visiting:
				b.fail(KindStructural, fn, ir.OpCall, ErrRecursion, "%s calls %s", b.g.Function(fn).Name, b.g.Function(c).Name)
				return false
			case unvisited:
				if !visit(c) {
					return false
				}
			}
		}
		state[fn] = done
		return true
	}

	for i := range b.g.funcs {
		f := &b.g.funcs[i]
		f.Callees = uniq(callees[f.ID])
		if state[f.ID] == unvisited {
			visit(f.ID)
		}
	}
}

func uniq(ids []ID) []ID {
	var out []ID
	seen := make(map[ID]bool)
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// materialize turns validated specs into node state.
func (b *Builder) materialize() {
	for i := range b.g.nodes {
		n := &b.g.nodes[i]
		s := &b.specs[i]

		n.behavior = s.Behavior
		n.latency = b.latencies.Latency(s.Op)
		if s.Latency != nil {
			n.latency = *s.Latency
		}

		n.operands = make([]Operand, len(s.Operands))
		for j, pid := range s.Operands {
			n.operands[j] = Operand{producer: pid, slot: j, active: true}
		}

		n.result = emu.NewRegister(uint64(n.id), n.typ)
		n.pending = emu.NewRegister(uint64(n.id), n.typ)

		if n.op == ir.OpLoad {
			if v := &b.g.values[s.Operands[0]]; v.Kind == ValueGlobalConstant {
				init := v.init
				n.constInit = &init
			}
		}
	}

	for i := range b.g.blocks {
		blk := &b.g.blocks[i]
		blk.Succs = uniq(b.g.Node(blk.Terminator()).Successors())
		for _, s := range blk.Succs {
			succ := b.g.Block(s)
			succ.Preds = append(succ.Preds, blk.ID)
		}
	}
}
