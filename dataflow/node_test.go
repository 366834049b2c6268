package dataflow_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dfsim/dataflow"
	"github.com/sarchlab/dfsim/ir"
)

var _ = Describe("Node lifecycle", func() {
	var (
		f    *fixture
		g    *dataflow.Graph
		a, b dataflow.ID
	)

	BeforeEach(func() {
		f = newFixture(ir.Void())
		a = f.node(f.entry, ir.OpAdd, ir.Int(32), nil, cycles(3), f.i32(1), f.i32(2))
		b = f.node(f.entry, ir.OpMul, ir.Int(32), nil, cycles(1), a, a)
		f.ret(f.entry)
		g = f.build()
		Expect(g.Activate(f.entry, dataflow.NoID)).To(Succeed())
	})

	It("should answer Ready consistently until a dependency changes", func() {
		Expect(g.Node(a).Ready()).To(BeTrue())
		Expect(g.Node(a).Ready()).To(BeTrue())
		Expect(g.Node(b).Ready()).To(BeFalse())
		Expect(g.Node(b).Ready()).To(BeFalse())
		Expect(g.Node(b).Dependencies()).To(Equal([]dataflow.ID{a}))
	})

	It("should commit exactly latency cycles after launch", func() {
		committed, _, err := g.Fire(a)
		Expect(err).ToNot(HaveOccurred())
		Expect(committed).To(BeFalse())

		for i := 0; i < 2; i++ {
			g.Node(a).Advance()
			Expect(g.Node(a).Elapsed()).To(BeFalse())
		}
		_, err = g.Commit(a)
		Expect(err).To(MatchError(dataflow.ErrLatencyNotElapsed))

		g.Node(a).Advance()
		Expect(g.Node(a).Elapsed()).To(BeTrue())
		woken, err := g.Commit(a)
		Expect(err).ToNot(HaveOccurred())
		Expect(woken).To(Equal([]dataflow.ID{b}))
		Expect(g.Node(a).Result().Int()).To(Equal(int64(3)))
	})

	It("should satisfy every slot bound to the same producer with one signal", func() {
		_, _, err := g.Fire(a)
		Expect(err).ToNot(HaveOccurred())
		for i := 0; i < 3; i++ {
			g.Node(a).Advance()
		}
		_, err = g.Commit(a)
		Expect(err).ToNot(HaveOccurred())

		n := g.Node(b)
		Expect(n.Operand(0).Satisfied()).To(BeTrue())
		Expect(n.Operand(1).Satisfied()).To(BeTrue())
		Expect(n.Ready()).To(BeTrue())
	})

	It("should reject protocol violations", func() {
		_, _, err := g.Fire(b)
		Expect(err).To(MatchError(dataflow.ErrNotReady))
		Expect(dataflow.IsKind(err, dataflow.KindProtocol)).To(BeTrue())

		_, err = g.Commit(a)
		Expect(err).To(MatchError(dataflow.ErrNotLaunched))

		_, _, err = g.Fire(a)
		Expect(err).ToNot(HaveOccurred())
		Expect(g.Node(a).Launch()).To(MatchError(dataflow.ErrAlreadyLaunched))
	})

	It("should attribute errors to the offending node", func() {
		_, _, err := g.Fire(b)
		var dfErr *dataflow.Error
		Expect(errors.As(err, &dfErr)).To(BeTrue())
		Expect(dfErr.Node).To(Equal(b))
		Expect(dfErr.Op).To(Equal(ir.OpMul))
	})

	It("should clear flags, cycle counter and operands on reset", func() {
		_, _, err := g.Fire(a)
		Expect(err).ToNot(HaveOccurred())
		for i := 0; i < 3; i++ {
			g.Node(a).Advance()
		}
		_, err = g.Commit(a)
		Expect(err).ToNot(HaveOccurred())

		n := g.Node(a)
		Expect(n.Reset()).To(Succeed())
		Expect(n.Ready()).To(BeFalse())
		Expect(n.Launched()).To(BeFalse())
		Expect(n.Committed()).To(BeFalse())
		Expect(n.Cycle()).To(BeZero())
		Expect(n.Operand(0).Satisfied()).To(BeFalse())
		Expect(n.Operand(1).Satisfied()).To(BeFalse())
		Expect(n.Usage()).To(Equal(uint64(1)))
		Expect(n.Result().Int()).To(Equal(int64(3)))
	})

	It("should re-fire after the block is activated again", func() {
		for _, id := range []dataflow.ID{a, b} {
			_, _, err := g.Fire(id)
			Expect(err).ToNot(HaveOccurred())
			for !g.Node(id).Elapsed() {
				g.Node(id).Advance()
			}
			_, err = g.Commit(id)
			Expect(err).ToNot(HaveOccurred())
		}
		Expect(g.Node(b).Result().Int()).To(Equal(int64(9)))

		Expect(g.Activate(f.entry, dataflow.NoID)).To(Succeed())
		Expect(g.Node(a).Ready()).To(BeTrue())
		Expect(g.Node(b).Ready()).To(BeFalse())
	})
})

var _ = Describe("Numeric faults", func() {
	It("should fail a division by zero with a numeric error", func() {
		f := newFixture(ir.Void())
		div := f.node(f.entry, ir.OpSDiv, ir.Int(32), nil, nil, f.i32(7), f.i32(0))
		f.ret(f.entry)
		g := f.build()
		Expect(g.Activate(f.entry, dataflow.NoID)).To(Succeed())

		_, _, err := g.Fire(div)
		Expect(err).To(MatchError(dataflow.ErrDivisionByZero))
		Expect(dataflow.IsKind(err, dataflow.KindNumeric)).To(BeTrue())
	})
})
