package dataflow

import "github.com/sarchlab/dfsim/ir"

// Behavior carries the opcode-specific metadata of a node. It is a closed set
// of variants; each opcode accepts at most one of them.
type Behavior interface {
	isBehavior()
}

// CompareInfo is the metadata of icmp and fcmp.
type CompareInfo struct {
	Predicate ir.Predicate
}

// AddressInfo is the metadata of getelementptr: one step per index operand.
type AddressInfo struct {
	Steps []ir.Step
}

// BranchInfo is the metadata of br. An unconditional branch sets only True.
type BranchInfo struct {
	True  ID
	False ID
}

// SwitchCase maps a scrutinee value to a destination block.
type SwitchCase struct {
	Value int64
	Dest  ID
}

// SwitchInfo is the metadata of switch. Cases are matched in order.
type SwitchInfo struct {
	Cases   []SwitchCase
	Default ID
}

// PhiInfo is the metadata of phi: the predecessor block of each operand.
type PhiInfo struct {
	Blocks []ID
}

// CallInfo is the metadata of call. The callee is not an operand.
type CallInfo struct {
	Callee ID
}

func (CompareInfo) isBehavior() {}
func (AddressInfo) isBehavior() {}
func (BranchInfo) isBehavior()  {}
func (SwitchInfo) isBehavior()  {}
func (PhiInfo) isBehavior()     {}
func (CallInfo) isBehavior()    {}

// Unconditional returns the metadata of an unconditional branch.
func Unconditional(dest ID) BranchInfo {
	return BranchInfo{True: dest, False: NoID}
}

// Conditional returns the metadata of a conditional branch.
func Conditional(ifTrue, ifFalse ID) BranchInfo {
	return BranchInfo{True: ifTrue, False: ifFalse}
}

func needsBehavior(op ir.Op) bool {
	switch op {
	case ir.OpICmp, ir.OpFCmp, ir.OpGetElementPtr, ir.OpBr, ir.OpSwitch, ir.OpPhi, ir.OpCall:
		return true
	default:
		return false
	}
}

// behaviorFits reports whether b is the metadata variant op expects.
func behaviorFits(op ir.Op, b Behavior) bool {
	switch b.(type) {
	case nil:
		return !needsBehavior(op)
	case CompareInfo:
		return op == ir.OpICmp || op == ir.OpFCmp
	case AddressInfo:
		return op == ir.OpGetElementPtr
	case BranchInfo:
		return op == ir.OpBr
	case SwitchInfo:
		return op == ir.OpSwitch
	case PhiInfo:
		return op == ir.OpPhi
	case CallInfo:
		return op == ir.OpCall
	default:
		return false
	}
}
