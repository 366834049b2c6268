package emu

import (
	"fmt"
	"math"

	"github.com/sarchlab/dfsim/ir"
)

// FPU implements IEEE-754 arithmetic on raw register payloads. Results are
// rounded to nearest, ties to even, in the precision of the operand type.
type FPU struct {
	double bool
}

// NewFPU creates a floating-point unit for float or double operands.
func NewFPU(t ir.Type) FPU {
	return FPU{double: t.Kind == ir.TypeDouble}
}

func (f FPU) decode(raw uint64) float64 {
	if f.double {
		return math.Float64frombits(raw)
	}
	return float64(math.Float32frombits(uint32(raw)))
}

func (f FPU) encode(v float64) uint64 {
	if f.double {
		return math.Float64bits(v)
	}
	return uint64(math.Float32bits(float32(v)))
}

// Add returns x + y.
func (f FPU) Add(x, y uint64) uint64 {
	if f.double {
		return f.encode(f.decode(x) + f.decode(y))
	}
	return f.encode(float64(float32(f.decode(x)) + float32(f.decode(y))))
}

// Sub returns x - y.
func (f FPU) Sub(x, y uint64) uint64 {
	if f.double {
		return f.encode(f.decode(x) - f.decode(y))
	}
	return f.encode(float64(float32(f.decode(x)) - float32(f.decode(y))))
}

// Mul returns x * y.
func (f FPU) Mul(x, y uint64) uint64 {
	if f.double {
		return f.encode(f.decode(x) * f.decode(y))
	}
	return f.encode(float64(float32(f.decode(x)) * float32(f.decode(y))))
}

// Div returns x / y. Division by zero follows IEEE rules (infinity or NaN).
func (f FPU) Div(x, y uint64) uint64 {
	if f.double {
		return f.encode(f.decode(x) / f.decode(y))
	}
	return f.encode(float64(float32(f.decode(x)) / float32(f.decode(y))))
}

// Rem returns the IEEE remainder x - n*y, where n is x / y rounded to the
// nearest integer, ties to even. A zero result keeps the sign of x. The result
// is exact, so single-precision operands re-encode without double rounding.
func (f FPU) Rem(x, y uint64) uint64 {
	return f.encode(math.Remainder(f.decode(x), f.decode(y)))
}

// Exec dispatches a floating-point binary opcode.
func (f FPU) Exec(op ir.Op, x, y uint64) (uint64, error) {
	switch op {
	case ir.OpFAdd:
		return f.Add(x, y), nil
	case ir.OpFSub:
		return f.Sub(x, y), nil
	case ir.OpFMul:
		return f.Mul(x, y), nil
	case ir.OpFDiv:
		return f.Div(x, y), nil
	case ir.OpFRem:
		return f.Rem(x, y), nil
	}
	return 0, fmt.Errorf("%s is not a floating-point binary opcode", op)
}

// Compare evaluates an fcmp predicate. Ordered predicates are false when
// either operand is NaN, unordered predicates are true.
func (f FPU) Compare(p ir.Predicate, x, y uint64) (bool, error) {
	a, b := f.decode(x), f.decode(y)
	uno := math.IsNaN(a) || math.IsNaN(b)

	switch p {
	case ir.FCmpFalse:
		return false, nil
	case ir.FCmpTrue:
		return true, nil
	case ir.FCmpORD:
		return !uno, nil
	case ir.FCmpUNO:
		return uno, nil
	case ir.FCmpOEQ:
		return !uno && a == b, nil
	case ir.FCmpOGT:
		return !uno && a > b, nil
	case ir.FCmpOGE:
		return !uno && a >= b, nil
	case ir.FCmpOLT:
		return !uno && a < b, nil
	case ir.FCmpOLE:
		return !uno && a <= b, nil
	case ir.FCmpONE:
		return !uno && a != b, nil
	case ir.FCmpUEQ:
		return uno || a == b, nil
	case ir.FCmpUGT:
		return uno || a > b, nil
	case ir.FCmpUGE:
		return uno || a >= b, nil
	case ir.FCmpULT:
		return uno || a < b, nil
	case ir.FCmpULE:
		return uno || a <= b, nil
	case ir.FCmpUNE:
		return uno || a != b, nil
	}
	return false, fmt.Errorf("%w: %s for fcmp", ErrPredicate, p)
}
