package emu

import (
	"fmt"

	"github.com/sarchlab/dfsim/ir"
)

// ALU implements two's-complement integer arithmetic and logic at a fixed
// operand width. All results are truncated to that width.
type ALU struct {
	bits uint
	mask uint64
}

// NewALU creates an ALU operating on bits-wide integers.
func NewALU(bits uint) ALU {
	return ALU{bits: bits, mask: Mask(bits)}
}

// Bits returns the operand width.
func (a ALU) Bits() uint { return a.bits }

func (a ALU) signed(v uint64) int64 { return SignExtend(v, a.bits) }

// Add performs x + y with wraparound.
func (a ALU) Add(x, y uint64) uint64 { return (x + y) & a.mask }

// Sub performs x - y with wraparound.
func (a ALU) Sub(x, y uint64) uint64 { return (x - y) & a.mask }

// Mul performs x * y keeping the low bits.
func (a ALU) Mul(x, y uint64) uint64 { return (x * y) & a.mask }

// UDiv performs unsigned division.
func (a ALU) UDiv(x, y uint64) (uint64, error) {
	x, y = x&a.mask, y&a.mask
	if y == 0 {
		return 0, ErrDivisionByZero
	}
	return x / y, nil
}

// SDiv performs signed division truncating toward zero. The most negative
// value divided by -1 wraps to itself.
func (a ALU) SDiv(x, y uint64) (uint64, error) {
	sx, sy := a.signed(x), a.signed(y)
	if sy == 0 {
		return 0, ErrDivisionByZero
	}
	return uint64(sx/sy) & a.mask, nil
}

// URem performs unsigned remainder.
func (a ALU) URem(x, y uint64) (uint64, error) {
	x, y = x&a.mask, y&a.mask
	if y == 0 {
		return 0, ErrDivisionByZero
	}
	return x % y, nil
}

// SRem performs signed remainder; the result takes the sign of the dividend.
func (a ALU) SRem(x, y uint64) (uint64, error) {
	sx, sy := a.signed(x), a.signed(y)
	if sy == 0 {
		return 0, ErrDivisionByZero
	}
	return uint64(sx%sy) & a.mask, nil
}

// Shl shifts left. Shift amounts of at least the width produce zero.
func (a ALU) Shl(x, amount uint64) uint64 {
	if amount >= uint64(a.bits) {
		return 0
	}
	return (x << amount) & a.mask
}

// LShr shifts right filling with zeros.
func (a ALU) LShr(x, amount uint64) uint64 {
	if amount >= uint64(a.bits) {
		return 0
	}
	return (x & a.mask) >> amount
}

// AShr shifts right replicating the sign bit. Shift amounts of at least the
// width fill the result with the sign.
func (a ALU) AShr(x, amount uint64) uint64 {
	if amount >= uint64(a.bits) {
		amount = uint64(a.bits) - 1
	}
	return uint64(a.signed(x)>>amount) & a.mask
}

// And performs bitwise AND.
func (a ALU) And(x, y uint64) uint64 { return x & y & a.mask }

// Or performs bitwise OR.
func (a ALU) Or(x, y uint64) uint64 { return (x | y) & a.mask }

// Xor performs bitwise exclusive OR.
func (a ALU) Xor(x, y uint64) uint64 { return (x ^ y) & a.mask }

// Exec dispatches an integer binary opcode.
func (a ALU) Exec(op ir.Op, x, y uint64) (uint64, error) {
	switch op {
	case ir.OpAdd:
		return a.Add(x, y), nil
	case ir.OpSub:
		return a.Sub(x, y), nil
	case ir.OpMul:
		return a.Mul(x, y), nil
	case ir.OpUDiv:
		return a.UDiv(x, y)
	case ir.OpSDiv:
		return a.SDiv(x, y)
	case ir.OpURem:
		return a.URem(x, y)
	case ir.OpSRem:
		return a.SRem(x, y)
	case ir.OpShl:
		return a.Shl(x, y), nil
	case ir.OpLShr:
		return a.LShr(x, y), nil
	case ir.OpAShr:
		return a.AShr(x, y), nil
	case ir.OpAnd:
		return a.And(x, y), nil
	case ir.OpOr:
		return a.Or(x, y), nil
	case ir.OpXor:
		return a.Xor(x, y), nil
	}
	return 0, fmt.Errorf("%s is not an integer binary opcode", op)
}

// Compare evaluates an icmp predicate.
func (a ALU) Compare(p ir.Predicate, x, y uint64) (bool, error) {
	ux, uy := x&a.mask, y&a.mask
	sx, sy := a.signed(x), a.signed(y)

	switch p {
	case ir.ICmpEQ:
		return ux == uy, nil
	case ir.ICmpNE:
		return ux != uy, nil
	case ir.ICmpUGT:
		return ux > uy, nil
	case ir.ICmpUGE:
		return ux >= uy, nil
	case ir.ICmpULT:
		return ux < uy, nil
	case ir.ICmpULE:
		return ux <= uy, nil
	case ir.ICmpSGT:
		return sx > sy, nil
	case ir.ICmpSGE:
		return sx >= sy, nil
	case ir.ICmpSLT:
		return sx < sy, nil
	case ir.ICmpSLE:
		return sx <= sy, nil
	}
	return false, fmt.Errorf("%w: %s for icmp", ErrPredicate, p)
}
