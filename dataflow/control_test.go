package dataflow_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dfsim/dataflow"
	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
)

// drain fires and commits a node, advancing it as many cycles as it needs.
func drain(g *dataflow.Graph, id dataflow.ID) []dataflow.ID {
	committed, woken, err := g.Fire(id)
	Expect(err).ToNot(HaveOccurred())
	if committed {
		return woken
	}
	for !g.Node(id).Elapsed() {
		g.Node(id).Advance()
	}
	woken, err = g.Commit(id)
	Expect(err).ToNot(HaveOccurred())
	return woken
}

var _ = Describe("Control transfers", func() {
	Context("conditional branch", func() {
		var (
			f                 *fixture
			g                 *dataflow.Graph
			br, ifTrue, ifNot dataflow.ID
		)

		BeforeEach(func() {
			f = newFixture(ir.Void(), dataflow.Param{Name: "cond", Type: ir.Bool()})
			ifTrue = f.b.AddBlock(f.fn, "then")
			ifNot = f.b.AddBlock(f.fn, "else")
			br = f.node(f.entry, ir.OpBr, ir.Void(), dataflow.Conditional(ifTrue, ifNot), nil, f.arg(0))
			f.ret(ifTrue)
			f.ret(ifNot)
			g = f.build()
		})

		DescribeTable("should take the successor selected by the condition",
			func(cond int64, want func() dataflow.ID) {
				Expect(g.SetArgument(f.arg(0), emu.IntValue(ir.Bool(), cond))).To(Succeed())
				Expect(g.Activate(f.entry, dataflow.NoID)).To(Succeed())

				committed, _, err := g.Fire(br)
				Expect(err).ToNot(HaveOccurred())
				Expect(committed).To(BeTrue())

				target, err := g.Node(br).BranchTarget()
				Expect(err).ToNot(HaveOccurred())
				Expect(target).To(Equal(want()))
				next, ok := g.Node(br).NextBlock()
				Expect(ok).To(BeTrue())
				Expect(next).To(Equal(want()))
			},
			Entry("true", int64(1), func() dataflow.ID { return ifTrue }),
			Entry("false", int64(0), func() dataflow.ID { return ifNot }),
		)

		It("should record predecessors and successors", func() {
			Expect(g.Block(f.entry).Succs).To(Equal([]dataflow.ID{ifTrue, ifNot}))
			Expect(g.Block(ifTrue).Preds).To(Equal([]dataflow.ID{f.entry}))
			Expect(g.Block(ifNot).Preds).To(Equal([]dataflow.ID{f.entry}))
		})

		It("should refuse to report a target before launch", func() {
			Expect(g.Activate(f.entry, dataflow.NoID)).To(Succeed())
			_, err := g.Node(br).BranchTarget()
			Expect(err).To(MatchError(dataflow.ErrNotLaunched))
		})
	})

	Context("switch", func() {
		var (
			f                  *fixture
			g                  *dataflow.Graph
			sw, one, neg, dflt dataflow.ID
		)

		BeforeEach(func() {
			f = newFixture(ir.Void(), dataflow.Param{Name: "x", Type: ir.Int(32)})
			one = f.b.AddBlock(f.fn, "one")
			neg = f.b.AddBlock(f.fn, "neg")
			dflt = f.b.AddBlock(f.fn, "default")
			sw = f.node(f.entry, ir.OpSwitch, ir.Void(), dataflow.SwitchInfo{
				Cases: []dataflow.SwitchCase{
					{Value: 1, Dest: one},
					{Value: -1, Dest: neg},
				},
				Default: dflt,
			}, nil, f.arg(0))
			f.ret(one)
			f.ret(neg)
			f.ret(dflt)
			g = f.build()
		})

		DescribeTable("should match cases in order and fall back to the default",
			func(x int64, want func() dataflow.ID) {
				Expect(g.SetArgument(f.arg(0), emu.IntValue(ir.Int(32), x))).To(Succeed())
				Expect(g.Activate(f.entry, dataflow.NoID)).To(Succeed())
				drain(g, sw)

				dest, err := g.Node(sw).SwitchDestination()
				Expect(err).ToNot(HaveOccurred())
				Expect(dest).To(Equal(want()))
			},
			Entry("first case", int64(1), func() dataflow.ID { return one }),
			Entry("negative case at the scrutinee width", int64(0xFFFFFFFF), func() dataflow.ID { return neg }),
			Entry("no match", int64(7), func() dataflow.ID { return dflt }),
		)
	})

	Context("return", func() {
		It("should expose the returned value", func() {
			f := newFixture(ir.Int(32))
			ret := f.node(f.entry, ir.OpRet, ir.Void(), nil, nil, f.i32(42))
			g := f.build()
			Expect(g.Activate(f.entry, dataflow.NoID)).To(Succeed())
			drain(g, ret)

			n := g.Node(ret)
			Expect(n.IsReturn()).To(BeTrue())
			v, ok, err := n.ReturnValue()
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(v.Int()).To(Equal(int64(42)))
			_, ok = n.NextBlock()
			Expect(ok).To(BeFalse())
		})
	})
})

var _ = Describe("Phi", func() {
	var (
		f                         *fixture
		g                         *dataflow.Graph
		loop, exit                dataflow.ID
		entryBr, phi, next, cmp   dataflow.ID
		loopBr                    dataflow.ID
	)

	BeforeEach(func() {
		f = newFixture(ir.Void())
		loop = f.b.AddBlock(f.fn, "loop")
		exit = f.b.AddBlock(f.fn, "exit")

		entryBr = f.node(f.entry, ir.OpBr, ir.Void(), dataflow.Unconditional(loop), nil)
		phi = f.node(loop, ir.OpPhi, ir.Int(32), nil, nil)
		next = f.node(loop, ir.OpAdd, ir.Int(32), nil, nil, phi, f.i32(1))
		cmp = f.node(loop, ir.OpICmp, ir.Bool(), dataflow.CompareInfo{Predicate: ir.ICmpSLT}, nil, next, f.i32(10))
		loopBr = f.node(loop, ir.OpBr, ir.Void(), dataflow.Conditional(loop, exit), nil, cmp)
		f.b.SetOperands(phi, f.i32(0), next)
		f.b.SetBehavior(phi, dataflow.PhiInfo{Blocks: []dataflow.ID{f.entry, loop}})
		f.ret(exit)
		g = f.build()
	})

	It("should select the value flowing from the predecessor", func() {
		Expect(g.Activate(f.entry, dataflow.NoID)).To(Succeed())
		drain(g, entryBr)

		Expect(g.Activate(loop, f.entry)).To(Succeed())
		Expect(g.Node(phi).Operand(0).Active()).To(BeTrue())
		Expect(g.Node(phi).Operand(1).Active()).To(BeFalse())
		Expect(g.Node(phi).Ready()).To(BeTrue())

		Expect(drain(g, phi)).To(Equal([]dataflow.ID{next}))
		Expect(drain(g, next)).To(Equal([]dataflow.ID{cmp}))
		Expect(drain(g, cmp)).To(Equal([]dataflow.ID{loopBr}))
		drain(g, loopBr)
		target, err := g.Node(loopBr).BranchTarget()
		Expect(err).ToNot(HaveOccurred())
		Expect(target).To(Equal(loop))

		Expect(g.Activate(loop, loop)).To(Succeed())
		Expect(g.Node(phi).Operand(1).Active()).To(BeTrue())
		Expect(g.Node(phi).Ready()).To(BeTrue())
		drain(g, phi)
		Expect(g.Node(phi).Result().Int()).To(Equal(int64(1)))
	})

	It("should fail for a block that is not a predecessor", func() {
		err := g.Activate(loop, exit)
		Expect(err).To(MatchError(dataflow.ErrNoIncoming))
	})
})
