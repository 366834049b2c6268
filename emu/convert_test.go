package emu_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
)

var _ = Describe("Convert", func() {
	convert := func(op ir.Op, src emu.Register, to ir.Type) emu.Register {
		r, err := emu.Convert(op, src, to)
		Expect(err).ToNot(HaveOccurred())
		return r
	}

	It("should resize integers", func() {
		b := emu.IntValue(ir.Int(8), -128)
		Expect(convert(ir.OpSExt, b, ir.Int(32)).Uint()).To(Equal(uint64(0xFFFFFF80)))
		Expect(convert(ir.OpZExt, b, ir.Int(32)).Uint()).To(Equal(uint64(0x80)))
		Expect(convert(ir.OpTrunc, emu.IntValue(ir.Int(32), 0x1234), ir.Int(8)).Uint()).To(Equal(uint64(0x34)))
	})

	It("should round float to integer ties to even", func() {
		Expect(convert(ir.OpFPToSI, emu.DoubleValue(2.5), ir.Int(32)).Int()).To(Equal(int64(2)))
		Expect(convert(ir.OpFPToSI, emu.DoubleValue(3.5), ir.Int(32)).Int()).To(Equal(int64(4)))
		Expect(convert(ir.OpFPToSI, emu.DoubleValue(-2.5), ir.Int(32)).Int()).To(Equal(int64(-2)))
		Expect(convert(ir.OpFPToUI, emu.FloatValue(255.4), ir.Int(8)).Uint()).To(Equal(uint64(255)))
	})

	It("should reject unrepresentable float to integer conversions", func() {
		cases := []struct {
			op  ir.Op
			src emu.Register
			to  ir.Type
		}{
			{ir.OpFPToUI, emu.DoubleValue(-1), ir.Int(32)},
			{ir.OpFPToUI, emu.DoubleValue(256), ir.Int(8)},
			{ir.OpFPToSI, emu.DoubleValue(128), ir.Int(8)},
			{ir.OpFPToSI, emu.DoubleValue(math.NaN()), ir.Int(32)},
			{ir.OpFPToUI, emu.DoubleValue(math.Inf(1)), ir.Int(64)},
		}
		for _, c := range cases {
			_, err := emu.Convert(c.op, c.src, c.to)
			Expect(err).To(MatchError(emu.ErrInvalidConversion), c.src.String())
		}
	})

	It("should convert integers to floating point", func() {
		Expect(convert(ir.OpSIToFP, emu.IntValue(ir.Int(32), -3), ir.Double()).Float()).To(Equal(-3.0))
		Expect(convert(ir.OpUIToFP, emu.IntValue(ir.Int(8), -1), ir.Float()).Float()).To(Equal(255.0))
	})

	It("should resize floating point", func() {
		Expect(convert(ir.OpFPTrunc, emu.DoubleValue(1.5), ir.Float()).Raw()).To(Equal(uint64(math.Float32bits(1.5))))
		Expect(convert(ir.OpFPExt, emu.FloatValue(0.25), ir.Double()).Float()).To(Equal(0.25))
	})

	It("should move between pointers and integers", func() {
		Expect(convert(ir.OpPtrToInt, emu.PointerValue(0x100000001), ir.Int(32)).Uint()).To(Equal(uint64(1)))
		Expect(convert(ir.OpIntToPtr, emu.IntValue(ir.Int(32), -1), ir.Pointer()).Pointer()).To(Equal(uint64(0xFFFFFFFF)))
	})

	It("should reject mismatched source and target types", func() {
		_, err := emu.Convert(ir.OpTrunc, emu.IntValue(ir.Int(8), 1), ir.Int(32))
		Expect(err).To(MatchError(emu.ErrTypeMismatch))
		Expect(emu.CheckConversion(ir.OpFPExt, ir.Double(), ir.Float())).To(MatchError(emu.ErrTypeMismatch))
	})
})
