package engine_test

import (
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dfsim/dataflow"
	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
)

var i32 = ir.Int(32)

func cycles(n uint64) *uint64 {
	return &n
}

func konst(b *dataflow.Builder, v int64) dataflow.ID {
	return b.AddConstant(emu.IntValue(i32, v))
}

func node(b *dataflow.Builder, block dataflow.ID, op ir.Op, t ir.Type, beh dataflow.Behavior, operands ...dataflow.ID) dataflow.ID {
	return b.AddNode(block, dataflow.NodeSpec{Op: op, Type: t, Operands: operands, Behavior: beh})
}

func build(b *dataflow.Builder) *dataflow.Graph {
	g, err := b.Build()
	Expect(err).ToNot(HaveOccurred())
	return g
}

// chainGraph is a(1) -> b(2) -> c(0) -> ret, computing (1+1)*(1+1)+1.
type chainGraph struct {
	g          *dataflow.Graph
	a, b, c, r dataflow.ID
}

func newChainGraph() chainGraph {
	b := dataflow.NewBuilder()
	fn := b.AddFunction("chain", i32)
	entry := b.AddBlock(fn, "entry")
	one := konst(b, 1)

	var cg chainGraph
	cg.a = b.AddNode(entry, dataflow.NodeSpec{Name: "a", Op: ir.OpAdd, Type: i32, Operands: []dataflow.ID{one, one}, Latency: cycles(1)})
	cg.b = b.AddNode(entry, dataflow.NodeSpec{Name: "b", Op: ir.OpMul, Type: i32, Operands: []dataflow.ID{cg.a, cg.a}, Latency: cycles(2)})
	cg.c = b.AddNode(entry, dataflow.NodeSpec{Name: "c", Op: ir.OpAdd, Type: i32, Operands: []dataflow.ID{cg.b, one}, Latency: cycles(0)})
	cg.r = node(b, entry, ir.OpRet, ir.Void(), nil, cg.c)
	cg.g = build(b)
	return cg
}

// maxGraph returns the larger of two signed integers.
func maxGraph() *dataflow.Graph {
	b := dataflow.NewBuilder()
	fn := b.AddFunction("max", i32, dataflow.Param{Name: "x", Type: i32}, dataflow.Param{Name: "y", Type: i32})
	x, y := b.Arguments(fn)[0], b.Arguments(fn)[1]
	entry := b.AddBlock(fn, "entry")
	then := b.AddBlock(fn, "then")
	els := b.AddBlock(fn, "else")

	cmp := node(b, entry, ir.OpICmp, ir.Bool(), dataflow.CompareInfo{Predicate: ir.ICmpSGT}, x, y)
	node(b, entry, ir.OpBr, ir.Void(), dataflow.Conditional(then, els), cmp)
	node(b, then, ir.OpRet, ir.Void(), nil, x)
	node(b, els, ir.OpRet, ir.Void(), nil, y)
	return build(b)
}

// classifyGraph maps 0 to 10, 1 to 11 and everything else to 99.
func classifyGraph() *dataflow.Graph {
	b := dataflow.NewBuilder()
	fn := b.AddFunction("classify", i32, dataflow.Param{Name: "x", Type: i32})
	entry := b.AddBlock(fn, "entry")
	zero := b.AddBlock(fn, "zero")
	one := b.AddBlock(fn, "one")
	other := b.AddBlock(fn, "other")

	node(b, entry, ir.OpSwitch, ir.Void(), dataflow.SwitchInfo{
		Cases:   []dataflow.SwitchCase{{Value: 0, Dest: zero}, {Value: 1, Dest: one}},
		Default: other,
	}, b.Arguments(fn)[0])
	node(b, zero, ir.OpRet, ir.Void(), nil, konst(b, 10))
	node(b, one, ir.OpRet, ir.Void(), nil, konst(b, 11))
	node(b, other, ir.OpRet, ir.Void(), nil, konst(b, 99))
	return build(b)
}

// sumGraph returns 0 + 1 + ... + (n-1) for n >= 1.
func sumGraph() *dataflow.Graph {
	b := dataflow.NewBuilder()
	fn := b.AddFunction("sum", i32, dataflow.Param{Name: "n", Type: i32})
	n := b.Arguments(fn)[0]
	entry := b.AddBlock(fn, "entry")
	loop := b.AddBlock(fn, "loop")
	exit := b.AddBlock(fn, "exit")

	node(b, entry, ir.OpBr, ir.Void(), dataflow.Unconditional(loop))
	i := node(b, loop, ir.OpPhi, i32, nil)
	acc := node(b, loop, ir.OpPhi, i32, nil)
	accNext := node(b, loop, ir.OpAdd, i32, nil, acc, i)
	iNext := node(b, loop, ir.OpAdd, i32, nil, i, konst(b, 1))
	cmp := node(b, loop, ir.OpICmp, ir.Bool(), dataflow.CompareInfo{Predicate: ir.ICmpSLT}, iNext, n)
	node(b, loop, ir.OpBr, ir.Void(), dataflow.Conditional(loop, exit), cmp)
	node(b, exit, ir.OpRet, ir.Void(), nil, accNext)

	preds := dataflow.PhiInfo{Blocks: []dataflow.ID{entry, loop}}
	b.SetOperands(i, konst(b, 0), iNext)
	b.SetBehavior(i, preds)
	b.SetOperands(acc, konst(b, 0), accNext)
	b.SetBehavior(acc, preds)
	return build(b)
}

// incrementGraph stores *src + 1 to dst.
func incrementGraph() *dataflow.Graph {
	b := dataflow.NewBuilder()
	fn := b.AddFunction("increment", ir.Void(),
		dataflow.Param{Name: "src", Type: ir.Pointer()},
		dataflow.Param{Name: "dst", Type: ir.Pointer()})
	src, dst := b.Arguments(fn)[0], b.Arguments(fn)[1]
	entry := b.AddBlock(fn, "entry")

	v := node(b, entry, ir.OpLoad, i32, nil, src)
	w := node(b, entry, ir.OpAdd, i32, nil, v, konst(b, 1))
	node(b, entry, ir.OpStore, ir.Void(), nil, w, dst)
	node(b, entry, ir.OpRet, ir.Void(), nil)
	return build(b)
}

// fillGraph stores i to *p for i in [0, n).
func fillGraph() *dataflow.Graph {
	b := dataflow.NewBuilder()
	fn := b.AddFunction("fill", ir.Void(),
		dataflow.Param{Name: "p", Type: ir.Pointer()},
		dataflow.Param{Name: "n", Type: i32})
	p, n := b.Arguments(fn)[0], b.Arguments(fn)[1]
	entry := b.AddBlock(fn, "entry")
	loop := b.AddBlock(fn, "loop")
	exit := b.AddBlock(fn, "exit")

	node(b, entry, ir.OpBr, ir.Void(), dataflow.Unconditional(loop))
	i := node(b, loop, ir.OpPhi, i32, nil)
	node(b, loop, ir.OpStore, ir.Void(), nil, i, p)
	iNext := node(b, loop, ir.OpAdd, i32, nil, i, konst(b, 1))
	cmp := node(b, loop, ir.OpICmp, ir.Bool(), dataflow.CompareInfo{Predicate: ir.ICmpSLT}, iNext, n)
	node(b, loop, ir.OpBr, ir.Void(), dataflow.Conditional(loop, exit), cmp)
	node(b, exit, ir.OpRet, ir.Void(), nil)

	b.SetOperands(i, konst(b, 0), iNext)
	b.SetBehavior(i, dataflow.PhiInfo{Blocks: []dataflow.ID{entry, loop}})
	return build(b)
}

// callGraph computes add3(a) + add3(1) with two independent calls.
func callGraph() *dataflow.Graph {
	b := dataflow.NewBuilder()
	add3 := b.AddFunction("add3", i32, dataflow.Param{Name: "x", Type: i32})
	body := b.AddBlock(add3, "entry")
	r := node(b, body, ir.OpAdd, i32, nil, b.Arguments(add3)[0], konst(b, 3))
	node(b, body, ir.OpRet, ir.Void(), nil, r)

	main := b.AddFunction("main", i32, dataflow.Param{Name: "a", Type: i32})
	entry := b.AddBlock(main, "entry")
	c1 := node(b, entry, ir.OpCall, i32, dataflow.CallInfo{Callee: add3}, b.Arguments(main)[0])
	c2 := node(b, entry, ir.OpCall, i32, dataflow.CallInfo{Callee: add3}, konst(b, 1))
	sum := node(b, entry, ir.OpAdd, i32, nil, c1, c2)
	node(b, entry, ir.OpRet, ir.Void(), nil, sum)
	return build(b)
}

// spinGraph never returns.
func spinGraph() *dataflow.Graph {
	b := dataflow.NewBuilder()
	fn := b.AddFunction("spin", ir.Void())
	entry := b.AddBlock(fn, "entry")
	loop := b.AddBlock(fn, "loop")
	node(b, entry, ir.OpBr, ir.Void(), dataflow.Unconditional(loop))
	node(b, loop, ir.OpBr, ir.Void(), dataflow.Unconditional(loop))
	return build(b)
}

// divGraph returns 100 / x.
func divGraph() *dataflow.Graph {
	b := dataflow.NewBuilder()
	fn := b.AddFunction("div", i32, dataflow.Param{Name: "x", Type: i32})
	entry := b.AddBlock(fn, "entry")
	q := node(b, entry, ir.OpSDiv, i32, nil, konst(b, 100), b.Arguments(fn)[0])
	node(b, entry, ir.OpRet, ir.Void(), nil, q)
	return build(b)
}
