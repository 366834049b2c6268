package dataflow

import (
	"fmt"

	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
)

// compute evaluates a data or phi node into its pending result.
func (n *Node) compute() error {
	out, err := n.evaluate()
	if err != nil {
		return n.numeric(err)
	}
	return n.pending.Assign(out)
}

func (n *Node) evaluate() (emu.Register, error) {
	switch op := n.op; {
	case op.IsIntBinary() && n.typ.Bits > 64:
		v, err := emu.NewWideALU(n.typ.Bits).Exec(op, n.arg(0).Big(), n.arg(1).Big())
		if err != nil {
			return emu.Register{}, err
		}
		return emu.BigValue(n.typ, v), nil

	case op.IsIntBinary():
		v, err := emu.NewALU(n.typ.Bits).Exec(op, n.arg(0).Uint(), n.arg(1).Uint())
		return emu.RawValue(n.typ, v), err

	case op.IsFloatBinary():
		v, err := emu.NewFPU(n.typ).Exec(op, n.arg(0).Raw(), n.arg(1).Raw())
		return emu.RawValue(n.typ, v), err

	case op.IsConversion():
		return emu.Convert(op, n.arg(0), n.typ)

	case op == ir.OpICmp && n.arg(0).IsWide():
		x, y := n.arg(0), n.arg(1)
		ok, err := emu.NewWideALU(x.Type().Bits).Compare(n.predicate(), x.Big(), y.Big())
		return boolValue(ok), err

	case op == ir.OpICmp:
		x, y := n.arg(0), n.arg(1)
		ok, err := emu.NewALU(x.Type().SizeInBits()).Compare(n.predicate(), x.Uint(), y.Uint())
		return boolValue(ok), err

	case op == ir.OpFCmp:
		x, y := n.arg(0), n.arg(1)
		ok, err := emu.NewFPU(x.Type()).Compare(n.predicate(), x.Raw(), y.Raw())
		return boolValue(ok), err

	case op == ir.OpSelect:
		if n.arg(0).Bool() {
			return n.arg(1), nil
		}
		return n.arg(2), nil

	case op == ir.OpGetElementPtr:
		info := n.behavior.(AddressInfo)
		indices := make([]int64, len(n.operands)-1)
		for i := range indices {
			indices[i] = n.arg(i + 1).Int()
		}
		addr, err := emu.ComputeAddress(n.arg(0).Pointer(), info.Steps, indices)
		return emu.PointerValue(addr), err

	case op == ir.OpPhi:
		for i := range n.operands {
			if o := &n.operands[i]; o.active {
				return o.value, nil
			}
		}
		return emu.Register{}, fmt.Errorf("%w: phi has no active operand", ErrNoIncoming)
	}

	return emu.Register{}, fmt.Errorf("%w: %s has no functional semantics", ErrUnsupportedOpcode, n.op)
}

func (n *Node) predicate() ir.Predicate {
	return n.behavior.(CompareInfo).Predicate
}

func boolValue(b bool) emu.Register {
	if b {
		return emu.IntValue(ir.Bool(), 1)
	}
	return emu.IntValue(ir.Bool(), 0)
}
