package emu

import (
	"fmt"
	"math/big"

	"github.com/sarchlab/dfsim/ir"
)

// WideALU implements the ALU operations for integers wider than 64 bits.
// Operands are non-negative big.Ints below 2^bits; results are reduced to
// the same range.
type WideALU struct {
	bits uint
}

// NewWideALU creates an ALU operating on bits-wide integers.
func NewWideALU(bits uint) WideALU {
	return WideALU{bits: bits}
}

// Bits returns the operand width.
func (a WideALU) Bits() uint { return a.bits }

func (a WideALU) wrap(v *big.Int) *big.Int { return Truncate(v, a.bits) }

func (a WideALU) signed(v *big.Int) *big.Int { return ToSigned(a.wrap(v), a.bits) }

// shiftAmount returns the shift count, or false if it reaches the width.
func (a WideALU) shiftAmount(v *big.Int) (uint, bool) {
	if !v.IsUint64() || v.Uint64() >= uint64(a.bits) {
		return 0, false
	}
	return uint(v.Uint64()), true
}

// Exec dispatches an integer binary opcode.
func (a WideALU) Exec(op ir.Op, x, y *big.Int) (*big.Int, error) {
	x, y = a.wrap(x), a.wrap(y)
	z := new(big.Int)

	switch op {
	case ir.OpAdd:
		return a.wrap(z.Add(x, y)), nil
	case ir.OpSub:
		return a.wrap(z.Sub(x, y)), nil
	case ir.OpMul:
		return a.wrap(z.Mul(x, y)), nil
	case ir.OpUDiv, ir.OpURem:
		if y.Sign() == 0 {
			return nil, ErrDivisionByZero
		}
		if op == ir.OpUDiv {
			return z.Quo(x, y), nil
		}
		return z.Rem(x, y), nil
	case ir.OpSDiv, ir.OpSRem:
		if y.Sign() == 0 {
			return nil, ErrDivisionByZero
		}
		// Quo and Rem truncate toward zero; the remainder keeps the
		// dividend's sign.
		if op == ir.OpSDiv {
			return a.wrap(z.Quo(a.signed(x), a.signed(y))), nil
		}
		return a.wrap(z.Rem(a.signed(x), a.signed(y))), nil
	case ir.OpShl:
		n, ok := a.shiftAmount(y)
		if !ok {
			return z, nil
		}
		return a.wrap(z.Lsh(x, n)), nil
	case ir.OpLShr:
		n, ok := a.shiftAmount(y)
		if !ok {
			return z, nil
		}
		return z.Rsh(x, n), nil
	case ir.OpAShr:
		n, ok := a.shiftAmount(y)
		if !ok {
			n = a.bits - 1
		}
		return a.wrap(z.Rsh(a.signed(x), n)), nil
	case ir.OpAnd:
		return z.And(x, y), nil
	case ir.OpOr:
		return z.Or(x, y), nil
	case ir.OpXor:
		return z.Xor(x, y), nil
	}
	return nil, fmt.Errorf("%s is not an integer binary opcode", op)
}

// Compare evaluates an icmp predicate.
func (a WideALU) Compare(p ir.Predicate, x, y *big.Int) (bool, error) {
	u := a.wrap(x).Cmp(a.wrap(y))
	s := a.signed(x).Cmp(a.signed(y))

	switch p {
	case ir.ICmpEQ:
		return u == 0, nil
	case ir.ICmpNE:
		return u != 0, nil
	case ir.ICmpUGT:
		return u > 0, nil
	case ir.ICmpUGE:
		return u >= 0, nil
	case ir.ICmpULT:
		return u < 0, nil
	case ir.ICmpULE:
		return u <= 0, nil
	case ir.ICmpSGT:
		return s > 0, nil
	case ir.ICmpSGE:
		return s >= 0, nil
	case ir.ICmpSLT:
		return s < 0, nil
	case ir.ICmpSLE:
		return s <= 0, nil
	}
	return false, fmt.Errorf("%w: %s for icmp", ErrPredicate, p)
}
