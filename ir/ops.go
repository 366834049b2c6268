// Package ir provides the opcode, type, and predicate definitions for nodes of
// a dataflow graph derived from LLVM-style IR.
//
// Every opcode belongs to a closed set and carries a Kind tag that tells the
// scheduler how the node behaves:
//   - KindDataOp: produces a register value through functional computation
//   - KindMemory: produces a memory request (load, store)
//   - KindControlTransfer: selects the next basic block or ends an invocation
//   - KindCall: starts a callee invocation and waits for its return value
//   - KindPhi: selects one incoming value based on the predecessor block
//
// Usage:
//
//	op, err := ir.ParseOp("fadd")
//	if err != nil { ... }
//	fmt.Println(op.Kind(), op.Class())
package ir

import (
	"errors"
	"fmt"
)

// Op represents an IR opcode.
type Op uint16

// IR opcodes.
const (
	OpUnknown Op = iota

	// Terminators
	OpRet
	OpBr
	OpSwitch

	// Integer arithmetic
	OpAdd
	OpSub
	OpMul
	OpUDiv
	OpSDiv
	OpURem
	OpSRem

	// Floating-point arithmetic
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFRem

	// Bitwise and shifts
	OpShl
	OpLShr
	OpAShr
	OpAnd
	OpOr
	OpXor

	// Memory and addressing
	OpLoad
	OpStore
	OpGetElementPtr

	// Conversions
	OpTrunc
	OpZExt
	OpSExt
	OpFPToUI
	OpFPToSI
	OpUIToFP
	OpSIToFP
	OpFPTrunc
	OpFPExt
	OpPtrToInt
	OpIntToPtr

	// Other
	OpICmp
	OpFCmp
	OpPhi
	OpCall
	OpSelect

	numOps
)

// Kind tags how the scheduler treats an opcode.
type Kind uint8

// Opcode kinds.
const (
	KindDataOp Kind = iota
	KindMemory
	KindControlTransfer
	KindCall
	KindPhi
)

var kindNames = [...]string{
	KindDataOp:          "data",
	KindMemory:          "memory",
	KindControlTransfer: "control",
	KindCall:            "call",
	KindPhi:             "phi",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Class groups opcodes that share a hardware functional unit and therefore a
// default latency.
type Class uint8

// Functional unit classes.
const (
	ClassIntALU Class = iota
	ClassIntMul
	ClassIntDiv
	ClassFPAdd
	ClassFPMul
	ClassFPDiv
	ClassCompare
	ClassConversion
	ClassAddress
	ClassLoad
	ClassStore
	ClassBranch
	ClassPhi
	ClassSelect
	ClassCall
)

type opInfo struct {
	name  string
	kind  Kind
	class Class
	// minOperands and maxOperands bound the static operand count;
	// maxOperands < 0 means unbounded.
	minOperands int
	maxOperands int
}

var opTable = [numOps]opInfo{
	OpUnknown: {name: "unknown"},

	OpRet:    {"ret", KindControlTransfer, ClassBranch, 0, 1},
	OpBr:     {"br", KindControlTransfer, ClassBranch, 0, 1},
	OpSwitch: {"switch", KindControlTransfer, ClassBranch, 1, 1},

	OpAdd:  {"add", KindDataOp, ClassIntALU, 2, 2},
	OpSub:  {"sub", KindDataOp, ClassIntALU, 2, 2},
	OpMul:  {"mul", KindDataOp, ClassIntMul, 2, 2},
	OpUDiv: {"udiv", KindDataOp, ClassIntDiv, 2, 2},
	OpSDiv: {"sdiv", KindDataOp, ClassIntDiv, 2, 2},
	OpURem: {"urem", KindDataOp, ClassIntDiv, 2, 2},
	OpSRem: {"srem", KindDataOp, ClassIntDiv, 2, 2},

	OpFAdd: {"fadd", KindDataOp, ClassFPAdd, 2, 2},
	OpFSub: {"fsub", KindDataOp, ClassFPAdd, 2, 2},
	OpFMul: {"fmul", KindDataOp, ClassFPMul, 2, 2},
	OpFDiv: {"fdiv", KindDataOp, ClassFPDiv, 2, 2},
	OpFRem: {"frem", KindDataOp, ClassFPDiv, 2, 2},

	OpShl:  {"shl", KindDataOp, ClassIntALU, 2, 2},
	OpLShr: {"lshr", KindDataOp, ClassIntALU, 2, 2},
	OpAShr: {"ashr", KindDataOp, ClassIntALU, 2, 2},
	OpAnd:  {"and", KindDataOp, ClassIntALU, 2, 2},
	OpOr:   {"or", KindDataOp, ClassIntALU, 2, 2},
	OpXor:  {"xor", KindDataOp, ClassIntALU, 2, 2},

	OpLoad:          {"load", KindMemory, ClassLoad, 1, 1},
	OpStore:         {"store", KindMemory, ClassStore, 2, 2},
	OpGetElementPtr: {"getelementptr", KindDataOp, ClassAddress, 1, -1},

	OpTrunc:    {"trunc", KindDataOp, ClassConversion, 1, 1},
	OpZExt:     {"zext", KindDataOp, ClassConversion, 1, 1},
	OpSExt:     {"sext", KindDataOp, ClassConversion, 1, 1},
	OpFPToUI:   {"fptoui", KindDataOp, ClassConversion, 1, 1},
	OpFPToSI:   {"fptosi", KindDataOp, ClassConversion, 1, 1},
	OpUIToFP:   {"uitofp", KindDataOp, ClassConversion, 1, 1},
	OpSIToFP:   {"sitofp", KindDataOp, ClassConversion, 1, 1},
	OpFPTrunc:  {"fptrunc", KindDataOp, ClassConversion, 1, 1},
	OpFPExt:    {"fpext", KindDataOp, ClassConversion, 1, 1},
	OpPtrToInt: {"ptrtoint", KindDataOp, ClassConversion, 1, 1},
	OpIntToPtr: {"inttoptr", KindDataOp, ClassConversion, 1, 1},

	OpICmp:   {"icmp", KindDataOp, ClassCompare, 2, 2},
	OpFCmp:   {"fcmp", KindDataOp, ClassCompare, 2, 2},
	OpPhi:    {"phi", KindPhi, ClassPhi, 1, -1},
	OpCall:   {"call", KindCall, ClassCall, 0, -1},
	OpSelect: {"select", KindDataOp, ClassSelect, 3, 3},
}

var opByName map[string]Op

func init() {
	opByName = make(map[string]Op, numOps)
	for op := OpUnknown + 1; op < numOps; op++ {
		opByName[opTable[op].name] = op
	}
}

// unsupportedOps lists IR opcodes that exist but cannot be mapped onto
// hardware nodes: vector, aggregate, atomic and exception-handling
// instructions.
var unsupportedOps = map[string]struct{}{
	"extractelement": {},
	"insertelement":  {},
	"shufflevector":  {},
	"extractvalue":   {},
	"insertvalue":    {},
	"indirectbr":     {},
	"invoke":         {},
	"callbr":         {},
	"resume":         {},
	"unreachable":    {},
	"landingpad":     {},
	"catchswitch":    {},
	"catchret":       {},
	"catchpad":       {},
	"cleanupret":     {},
	"cleanuppad":     {},
	"alloca":         {},
	"fence":          {},
	"atomicrmw":      {},
	"cmpxchg":        {},
	"va_arg":         {},
	"fneg":           {},
	"freeze":         {},
	"addrspacecast":  {},
	"bitcast":        {},
}

var (
	// ErrUnknownOpcode is returned for names that are not IR opcodes at all.
	ErrUnknownOpcode = errors.New("unknown opcode")
	// ErrUnsupportedOpcode is returned for IR opcodes that have no hardware
	// mapping.
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
)

// ParseOp looks up an opcode by its IR mnemonic.
func ParseOp(name string) (Op, error) {
	if op, ok := opByName[name]; ok {
		return op, nil
	}
	if _, ok := unsupportedOps[name]; ok {
		return OpUnknown, fmt.Errorf("%w: %s", ErrUnsupportedOpcode, name)
	}
	return OpUnknown, fmt.Errorf("%w: %q", ErrUnknownOpcode, name)
}

// Valid reports whether op is a member of the supported opcode set.
func (op Op) Valid() bool {
	return op > OpUnknown && op < numOps
}

func (op Op) String() string {
	if op < numOps {
		return opTable[op].name
	}
	return fmt.Sprintf("Op(%d)", op)
}

// Kind returns the scheduling kind of the opcode.
func (op Op) Kind() Kind {
	if !op.Valid() {
		return KindDataOp
	}
	return opTable[op].kind
}

// Class returns the functional unit class of the opcode.
func (op Op) Class() Class {
	if !op.Valid() {
		return ClassIntALU
	}
	return opTable[op].class
}

// OperandRange returns the allowed number of static operands. A negative max
// means the opcode is variadic.
func (op Op) OperandRange() (min, max int) {
	if !op.Valid() {
		return 0, 0
	}
	info := opTable[op]
	return info.minOperands, info.maxOperands
}

// IsControlTransfer returns true for ret, br and switch.
func (op Op) IsControlTransfer() bool {
	return op.Kind() == KindControlTransfer
}

// IsMemory returns true for load and store.
func (op Op) IsMemory() bool {
	return op.Kind() == KindMemory
}

// IsIntBinary returns true for two-operand integer arithmetic and bitwise ops.
func (op Op) IsIntBinary() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpUDiv, OpSDiv, OpURem, OpSRem,
		OpShl, OpLShr, OpAShr, OpAnd, OpOr, OpXor:
		return true
	default:
		return false
	}
}

// IsFloatBinary returns true for two-operand floating-point arithmetic.
func (op Op) IsFloatBinary() bool {
	switch op {
	case OpFAdd, OpFSub, OpFMul, OpFDiv, OpFRem:
		return true
	default:
		return false
	}
}

// IsConversion returns true for the cast opcodes.
func (op Op) IsConversion() bool {
	return op.Class() == ClassConversion && op.Valid()
}
