package emu

import (
	"fmt"
	"math"
	"math/big"

	"github.com/sarchlab/dfsim/ir"
)

// Convert applies a cast opcode to src producing a register of type to.
// Float-to-integer conversions round to nearest, ties to even, and fail with
// ErrInvalidConversion when the rounded value does not fit.
func Convert(op ir.Op, src Register, to ir.Type) (Register, error) {
	if err := CheckConversion(op, src.Type(), to); err != nil {
		return Register{}, err
	}
	if src.IsWide() || (to.IsInt() && to.Bits > 64) {
		return convertWide(op, src, to)
	}
	dst := Register{typ: to}

	switch op {
	case ir.OpTrunc, ir.OpZExt, ir.OpPtrToInt, ir.OpIntToPtr:
		dst.SetRaw(src.Uint())
	case ir.OpSExt:
		dst.SetRaw(uint64(src.Int()))
	case ir.OpFPToUI:
		v, err := floatToUint(src.Float(), to.SizeInBits())
		if err != nil {
			return Register{}, err
		}
		dst.SetRaw(v)
	case ir.OpFPToSI:
		v, err := floatToInt(src.Float(), to.SizeInBits())
		if err != nil {
			return Register{}, err
		}
		dst.SetRaw(uint64(v))
	case ir.OpUIToFP:
		if to.Kind == ir.TypeFloat {
			dst.raw = uint64(math.Float32bits(float32(src.Uint())))
		} else {
			dst.raw = math.Float64bits(float64(src.Uint()))
		}
	case ir.OpSIToFP:
		if to.Kind == ir.TypeFloat {
			dst.raw = uint64(math.Float32bits(float32(src.Int())))
		} else {
			dst.raw = math.Float64bits(float64(src.Int()))
		}
	case ir.OpFPTrunc, ir.OpFPExt:
		dst.SetFloat(src.Float())
	}
	return dst, nil
}

func convertWide(op ir.Op, src Register, to ir.Type) (Register, error) {
	dst := Register{typ: to}

	switch op {
	case ir.OpTrunc, ir.OpZExt, ir.OpPtrToInt, ir.OpIntToPtr:
		dst.SetBig(src.Big())
	case ir.OpSExt:
		dst.SetBig(src.SignedBig())
	case ir.OpFPToUI, ir.OpFPToSI:
		v, err := floatToBig(src.Float(), to.Bits, op == ir.OpFPToSI)
		if err != nil {
			return Register{}, err
		}
		dst.SetBig(v)
	case ir.OpUIToFP:
		dst.raw = bigToFloat(src.Big(), to)
	case ir.OpSIToFP:
		dst.raw = bigToFloat(src.SignedBig(), to)
	}
	return dst, nil
}

// CheckConversion validates the source and target types of a cast.
func CheckConversion(op ir.Op, from, to ir.Type) error {
	var ok bool
	switch op {
	case ir.OpTrunc:
		ok = from.IsInt() && to.IsInt() && to.Bits < from.Bits
	case ir.OpZExt, ir.OpSExt:
		ok = from.IsInt() && to.IsInt() && to.Bits > from.Bits
	case ir.OpFPToUI, ir.OpFPToSI:
		ok = from.IsFloat() && to.IsInt()
	case ir.OpUIToFP, ir.OpSIToFP:
		ok = from.IsInt() && to.IsFloat()
	case ir.OpFPTrunc:
		ok = from.Kind == ir.TypeDouble && to.Kind == ir.TypeFloat
	case ir.OpFPExt:
		ok = from.Kind == ir.TypeFloat && to.Kind == ir.TypeDouble
	case ir.OpPtrToInt:
		ok = from.IsPointer() && to.IsInt()
	case ir.OpIntToPtr:
		ok = from.IsInt() && to.IsPointer()
	}
	if !ok {
		return fmt.Errorf("%w: %s from %s to %s", ErrTypeMismatch, op, from, to)
	}
	return nil
}

func floatToUint(f float64, bits uint) (uint64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %g", ErrInvalidConversion, f)
	}
	r := math.RoundToEven(f)
	if r < 0 || r >= math.Ldexp(1, int(bits)) {
		return 0, fmt.Errorf("%w: %g out of range for u%d", ErrInvalidConversion, f, bits)
	}
	return uint64(r), nil
}

func floatToInt(f float64, bits uint) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %g", ErrInvalidConversion, f)
	}
	r := math.RoundToEven(f)
	limit := math.Ldexp(1, int(bits)-1)
	if r < -limit || r >= limit {
		return 0, fmt.Errorf("%w: %g out of range for i%d", ErrInvalidConversion, f, bits)
	}
	return int64(r), nil
}

func floatToBig(f float64, bits uint, signed bool) (*big.Int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidConversion, f)
	}
	v, _ := new(big.Float).SetFloat64(math.RoundToEven(f)).Int(nil)

	lo, hi := big.NewInt(0), new(big.Int).Lsh(big.NewInt(1), bits)
	if signed {
		hi.Rsh(hi, 1)
		lo.Neg(hi)
	}
	if v.Cmp(lo) < 0 || v.Cmp(hi) >= 0 {
		return nil, fmt.Errorf("%w: %g out of range for %s", ErrInvalidConversion, f, ir.Int(bits))
	}
	return v, nil
}

// bigToFloat rounds v once, to nearest even, in the precision of to.
func bigToFloat(v *big.Int, to ir.Type) uint64 {
	f := new(big.Float).SetInt(v)
	if to.Kind == ir.TypeFloat {
		f32, _ := f.Float32()
		return uint64(math.Float32bits(f32))
	}
	f64, _ := f.Float64()
	return math.Float64bits(f64)
}
