package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
)

var _ = Describe("Register", func() {
	It("should keep its type across assignment", func() {
		r := emu.NewRegister(7, ir.Int(32))
		Expect(r.Assign(emu.IntValue(ir.Int(32), 42))).To(Succeed())
		Expect(r.ID()).To(Equal(uint64(7)))
		Expect(r.Type()).To(Equal(ir.Int(32)))
		Expect(r.Int()).To(Equal(int64(42)))
	})

	It("should reject a payload of a different type", func() {
		r := emu.NewRegister(1, ir.Int(32))
		err := r.Assign(emu.IntValue(ir.Int(64), 1))
		Expect(err).To(MatchError(emu.ErrTypeMismatch))
		Expect(r.Uint()).To(BeZero())
	})

	It("should mask integers to their width", func() {
		r := emu.IntValue(ir.Int(8), -1)
		Expect(r.Uint()).To(Equal(uint64(0xFF)))
		Expect(r.Int()).To(Equal(int64(-1)))
	})

	It("should encode payloads little-endian", func() {
		Expect(emu.IntValue(ir.Int(32), 0x01020304).Bytes()).To(Equal([]byte{4, 3, 2, 1}))
		Expect(emu.IntValue(ir.Int(17), 0x1FFFF).Bytes()).To(HaveLen(3))
		Expect(emu.FloatValue(1.0).Bytes()).To(Equal([]byte{0, 0, 0x80, 0x3F}))
	})

	It("should decode bytes of the exact size", func() {
		r := emu.NewRegister(1, ir.Int(16))
		Expect(r.SetBytes([]byte{0x34, 0x12})).To(Succeed())
		Expect(r.Uint()).To(Equal(uint64(0x1234)))
		Expect(r.SetBytes([]byte{1})).To(MatchError(emu.ErrTypeMismatch))
	})

	It("should format by type", func() {
		Expect(emu.IntValue(ir.Int(32), -5).String()).To(Equal("i32 -5"))
		Expect(emu.IntValue(ir.Bool(), 1).String()).To(Equal("i1 true"))
		Expect(emu.DoubleValue(1.5).String()).To(Equal("double 1.5"))
		Expect(emu.PointerValue(0x1000).String()).To(Equal("ptr 0x1000"))
	})
})
