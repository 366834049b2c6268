package dataflow

import (
	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
)

// resolveControl decides the destination of br and switch, or records the
// return value of ret. Control transfers never produce a register value.
func (n *Node) resolveControl() error {
	switch n.op {
	case ir.OpBr:
		info := n.behavior.(BranchInfo)
		n.target = info.True
		if len(n.operands) == 1 && !n.arg(0).Bool() {
			n.target = info.False
		}
	case ir.OpSwitch:
		n.target = n.matchSwitch()
	case ir.OpRet:
		if len(n.operands) == 1 {
			v := n.arg(0)
			n.retValue = &v
		}
	}
	return nil
}

func (n *Node) matchSwitch() ID {
	info := n.behavior.(SwitchInfo)
	scrutinee := n.arg(0)
	for _, c := range info.Cases {
		if emu.IntValue(scrutinee.Type(), c.Value).Equal(scrutinee) {
			return c.Dest
		}
	}
	return info.Default
}

// BranchTarget returns the successor chosen by a launched br.
func (n *Node) BranchTarget() (ID, error) {
	if n.op != ir.OpBr {
		return NoID, n.protocol(ErrNotControlTransfer, "branch target of %s", n.op)
	}
	if !n.launched {
		return NoID, n.protocol(ErrNotLaunched, "branch target")
	}
	return n.target, nil
}

// SwitchDestination returns the successor chosen by a launched switch.
func (n *Node) SwitchDestination() (ID, error) {
	if n.op != ir.OpSwitch {
		return NoID, n.protocol(ErrNotControlTransfer, "switch destination of %s", n.op)
	}
	if !n.launched {
		return NoID, n.protocol(ErrNotLaunched, "switch destination")
	}
	return n.target, nil
}

// NextBlock returns the block a launched br or switch transfers to. It
// returns false for ret and for every other opcode.
func (n *Node) NextBlock() (ID, bool) {
	if !n.launched || (n.op != ir.OpBr && n.op != ir.OpSwitch) {
		return NoID, false
	}
	return n.target, true
}

// IsReturn reports whether the node ends the invocation of its function.
func (n *Node) IsReturn() bool {
	return n.op == ir.OpRet
}

// ReturnValue returns the value returned by a launched ret. The boolean is
// false for a void return.
func (n *Node) ReturnValue() (emu.Register, bool, error) {
	if n.op != ir.OpRet {
		return emu.Register{}, false, n.protocol(ErrNotControlTransfer, "return value of %s", n.op)
	}
	if !n.launched {
		return emu.Register{}, false, n.protocol(ErrNotLaunched, "return value")
	}
	if n.retValue == nil {
		return emu.Register{}, false, nil
	}
	return *n.retValue, true, nil
}

// Successors returns the static successor blocks of a br or switch.
func (n *Node) Successors() []ID {
	switch info := n.behavior.(type) {
	case BranchInfo:
		if info.False == NoID {
			return []ID{info.True}
		}
		return []ID{info.True, info.False}
	case SwitchInfo:
		succs := make([]ID, 0, len(info.Cases)+1)
		for _, c := range info.Cases {
			succs = append(succs, c.Dest)
		}
		return append(succs, info.Default)
	}
	return nil
}

// SelectIncoming activates only the phi operands whose predecessor block is
// pred, the block that ran just before the phi's block.
func (n *Node) SelectIncoming(pred ID) error {
	if n.op != ir.OpPhi {
		return n.protocol(ErrNotControlTransfer, "select incoming of %s", n.op)
	}

	info := n.behavior.(PhiInfo)
	found := false
	for i := range n.operands {
		n.operands[i].active = info.Blocks[i] == pred
		found = found || n.operands[i].active
	}
	if !found {
		return n.protocol(ErrNoIncoming, "predecessor %d", pred)
	}
	return nil
}

// Callee returns the function invoked by a call node.
func (n *Node) Callee() (ID, error) {
	if n.op != ir.OpCall {
		return NoID, n.protocol(ErrNotControlTransfer, "callee of %s", n.op)
	}
	return n.behavior.(CallInfo).Callee, nil
}

// Arguments returns the latched argument values of a call node.
func (n *Node) Arguments() []emu.Register {
	args := make([]emu.Register, len(n.operands))
	for i := range n.operands {
		args[i] = n.operands[i].value
	}
	return args
}

// AwaitingCallee reports whether a launched call waits for its callee.
func (n *Node) AwaitingCallee() bool {
	return n.op == ir.OpCall && n.awaiting
}

// CompleteCall delivers the callee's return value to a launched call. The
// value is ignored for void calls.
func (n *Node) CompleteCall(ret emu.Register) error {
	if n.op != ir.OpCall {
		return n.protocol(ErrNotControlTransfer, "complete call on %s", n.op)
	}
	if !n.awaiting {
		return n.protocol(ErrUnexpectedResponse, "call is not waiting for a callee")
	}
	if !n.typ.IsVoid() {
		if err := n.pending.Assign(ret); err != nil {
			return n.protocol(err, "call return value")
		}
	}
	n.awaiting = false
	return nil
}
