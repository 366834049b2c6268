package dataflow

import (
	"errors"
	"fmt"

	"github.com/sarchlab/dfsim/emu"
	"github.com/sarchlab/dfsim/ir"
)

// ErrorKind classifies failures so that callers can tell a malformed graph
// from a scheduler bug or a numeric fault.
type ErrorKind uint8

// Error kinds.
const (
	// KindStructural marks a malformed graph detected at build time.
	KindStructural ErrorKind = iota
	// KindUnsupported marks opcodes with no hardware mapping.
	KindUnsupported
	// KindNumeric marks faults of the functional computation.
	KindNumeric
	// KindProtocol marks violations of the node lifecycle by the scheduler.
	KindProtocol
)

func (k ErrorKind) String() string {
	switch k {
	case KindStructural:
		return "structural"
	case KindUnsupported:
		return "unsupported"
	case KindNumeric:
		return "numeric"
	case KindProtocol:
		return "protocol"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Structural errors.
var (
	ErrMissingOperand    = errors.New("missing operand")
	ErrDanglingSuccessor = errors.New("dangling successor")
	ErrTypeMismatch      = emu.ErrTypeMismatch
	ErrStaticCycle       = errors.New("static dependency cycle")
	ErrRecursion         = errors.New("recursive call")
	ErrOperandCount      = errors.New("wrong operand count")
	ErrUnsupportedWidth  = errors.New("unsupported integer width")
	ErrMissingTerminator = errors.New("block does not end in a terminator")
	ErrMissingBehavior   = errors.New("missing opcode metadata")
)

// ErrUnsupportedOpcode rejects opcodes outside the supported set.
var ErrUnsupportedOpcode = ir.ErrUnsupportedOpcode

// Numeric errors.
var (
	ErrDivisionByZero    = emu.ErrDivisionByZero
	ErrInvalidConversion = emu.ErrInvalidConversion
)

// Protocol errors.
var (
	ErrNotReady           = errors.New("node is not ready")
	ErrAlreadyLaunched    = errors.New("node already launched")
	ErrNotLaunched        = errors.New("node not launched")
	ErrAlreadyCommitted   = errors.New("node already committed")
	ErrLatencyNotElapsed  = errors.New("latency has not elapsed")
	ErrOutstandingRequest = errors.New("memory request outstanding")
	ErrUnexpectedResponse = errors.New("unexpected memory response")
	ErrNotControlTransfer = errors.New("node is not a control transfer")
	ErrNotMemory          = errors.New("node is not a memory access")
	ErrNoIncoming         = errors.New("no incoming value for predecessor")
)

// Error attributes a failure to the node or value it concerns.
type Error struct {
	Kind ErrorKind
	Node ID
	Op   ir.Op
	Err  error
}

func (e *Error) Error() string {
	if e.Op.Valid() {
		return fmt.Sprintf("%s error at node %d (%s): %v", e.Kind, e.Node, e.Op, e.Err)
	}
	return fmt.Sprintf("%s error at value %d: %v", e.Kind, e.Node, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, id ID, op ir.Op, format string, args ...any) *Error {
	return &Error{Kind: kind, Node: id, Op: op, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether err carries a dataflow Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
