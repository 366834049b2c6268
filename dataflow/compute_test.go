package dataflow_test

import (
	"math/big"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dfsim/dataflow"
	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
)

// fireAll fires the given nodes in order with zero latency and returns the
// last result.
func fireAll(f *fixture, ids ...dataflow.ID) emu.Register {
	g := f.build()
	Expect(g.Activate(f.entry, dataflow.NoID)).To(Succeed())
	for _, id := range ids {
		committed, _, err := g.Fire(id)
		Expect(err).ToNot(HaveOccurred())
		Expect(committed).To(BeTrue())
	}
	return g.Node(ids[len(ids)-1]).Result()
}

var _ = Describe("Data operations", func() {
	DescribeTable("select",
		func(cond bool, want float64) {
			f := newFixture(ir.Void())
			c := f.b.AddConstant(emu.IntValue(ir.Bool(), map[bool]int64{true: 1, false: 0}[cond]))
			x := f.b.AddConstant(emu.DoubleValue(1.5))
			y := f.b.AddConstant(emu.DoubleValue(-2.25))
			sel := f.node(f.entry, ir.OpSelect, ir.Double(), nil, cycles(0), c, x, y)
			f.ret(f.entry)

			r := fireAll(f, sel)
			Expect(r.Type()).To(Equal(ir.Double()))
			Expect(r.Float()).To(Equal(want))
			Expect(r.ID()).To(Equal(uint64(sel)))
		},
		Entry("picks the first value on true", true, 1.5),
		Entry("picks the second value on false", false, -2.25),
	)

	It("should select on a computed condition", func() {
		f := newFixture(ir.Void())
		cmp := f.node(f.entry, ir.OpICmp, ir.Bool(),
			dataflow.CompareInfo{Predicate: ir.ICmpSLT}, cycles(0), f.i32(-3), f.i32(2))
		sel := f.node(f.entry, ir.OpSelect, ir.Int(32), nil, cycles(0), cmp, f.i32(10), f.i32(20))
		f.ret(f.entry)

		r := fireAll(f, cmp, sel)
		Expect(r.Type()).To(Equal(ir.Int(32)))
		Expect(r.Int()).To(Equal(int64(10)))
	})

	Describe("integers wider than 64 bits", func() {
		i128 := ir.Int(128)
		wide := func(f *fixture, v *big.Int) dataflow.ID {
			return f.b.AddConstant(emu.BigValue(i128, v))
		}

		It("should keep the high half of a product", func() {
			f := newFixture(ir.Void())
			x := wide(f, new(big.Int).SetUint64(1<<63))
			mul := f.node(f.entry, ir.OpMul, i128, nil, cycles(0), x, wide(f, big.NewInt(6)))
			f.ret(f.entry)

			r := fireAll(f, mul)
			want := new(big.Int).Lsh(big.NewInt(3), 64)
			Expect(r.Big().Cmp(want)).To(BeZero())
			Expect(r.String()).To(Equal("i128 " + want.String()))
		})

		It("should sign-extend, compare and truncate through nodes", func() {
			f := newFixture(ir.Void())
			ext := f.node(f.entry, ir.OpSExt, i128, nil, cycles(0), f.i32(-7))
			cmp := f.node(f.entry, ir.OpICmp, ir.Bool(),
				dataflow.CompareInfo{Predicate: ir.ICmpUGT}, cycles(0), ext, wide(f, big.NewInt(1)))
			shr := f.node(f.entry, ir.OpAShr, i128, nil, cycles(0), ext, wide(f, big.NewInt(100)))
			trunc := f.node(f.entry, ir.OpTrunc, ir.Int(32), nil, cycles(0), shr)
			f.ret(f.entry)

			g := f.build()
			Expect(g.Activate(f.entry, dataflow.NoID)).To(Succeed())
			for _, id := range []dataflow.ID{ext, cmp, shr, trunc} {
				_, _, err := g.Fire(id)
				Expect(err).ToNot(HaveOccurred())
			}

			Expect(g.Node(ext).Result().SignedBig().Int64()).To(Equal(int64(-7)))
			Expect(g.Node(cmp).Result().Bool()).To(BeTrue())
			Expect(g.Node(trunc).Result().Int()).To(Equal(int64(-1)))
		})

		It("should fail a wide division by zero", func() {
			f := newFixture(ir.Void())
			div := f.node(f.entry, ir.OpUDiv, i128, nil, cycles(0), wide(f, big.NewInt(9)), wide(f, big.NewInt(0)))
			f.ret(f.entry)

			g := f.build()
			Expect(g.Activate(f.entry, dataflow.NoID)).To(Succeed())
			_, _, err := g.Fire(div)
			Expect(err).To(MatchError(dataflow.ErrDivisionByZero))
			Expect(dataflow.IsKind(err, dataflow.KindNumeric)).To(BeTrue())
		})
	})
})
