package emu_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
)

var _ = Describe("ALU", func() {
	var alu8 emu.ALU

	BeforeEach(func() {
		alu8 = emu.NewALU(8)
	})

	It("should wrap at the operand width", func() {
		Expect(alu8.Add(200, 100)).To(Equal(uint64(44)))
		Expect(alu8.Sub(0, 1)).To(Equal(uint64(0xFF)))
		Expect(alu8.Mul(16, 16)).To(Equal(uint64(0)))
	})

	It("should divide signed values toward zero", func() {
		q, err := alu8.SDiv(0xF9, 2) // -7 / 2
		Expect(err).ToNot(HaveOccurred())
		Expect(q).To(Equal(uint64(0xFD)))

		r, err := alu8.SRem(0xF9, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(r).To(Equal(uint64(0xFF)))

		u, err := alu8.URem(0xF9, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(u).To(Equal(uint64(1)))
	})

	It("should wrap the most negative value divided by -1", func() {
		q, err := alu8.SDiv(0x80, 0xFF)
		Expect(err).ToNot(HaveOccurred())
		Expect(q).To(Equal(uint64(0x80)))

		q, err = emu.NewALU(64).SDiv(1<<63, math.MaxUint64)
		Expect(err).ToNot(HaveOccurred())
		Expect(q).To(Equal(uint64(1 << 63)))
	})

	It("should fault on division by zero", func() {
		for _, op := range []ir.Op{ir.OpUDiv, ir.OpSDiv, ir.OpURem, ir.OpSRem} {
			_, err := alu8.Exec(op, 5, 0)
			Expect(err).To(MatchError(emu.ErrDivisionByZero), op.String())
		}
	})

	It("should distinguish logical and arithmetic shifts", func() {
		Expect(alu8.Shl(1, 7)).To(Equal(uint64(0x80)))
		Expect(alu8.Shl(1, 8)).To(Equal(uint64(0)))
		Expect(alu8.LShr(0x80, 7)).To(Equal(uint64(1)))
		Expect(alu8.AShr(0x80, 7)).To(Equal(uint64(0xFF)))
		Expect(alu8.AShr(0x80, 20)).To(Equal(uint64(0xFF)))
		Expect(alu8.AShr(0x40, 20)).To(Equal(uint64(0)))
	})

	It("should compare signed and unsigned", func() {
		lt, err := alu8.Compare(ir.ICmpULT, 0xFF, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(lt).To(BeFalse())

		lt, err = alu8.Compare(ir.ICmpSLT, 0xFF, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(lt).To(BeTrue())

		_, err = alu8.Compare(ir.FCmpOEQ, 1, 1)
		Expect(err).To(MatchError(emu.ErrPredicate))
	})

	It("should make every icmp predicate the complement of its inverse", func() {
		values := []uint64{0, 1, 0x7F, 0x80, 0xFF}
		for p := ir.ICmpEQ; p <= ir.ICmpSLE; p++ {
			for _, x := range values {
				for _, y := range values {
					a, _ := alu8.Compare(p, x, y)
					b, _ := alu8.Compare(p.Inverse(), x, y)
					Expect(a).ToNot(Equal(b), "%s %d %d", p, x, y)
				}
			}
		}
	})
})
