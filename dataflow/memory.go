package dataflow

import (
	"github.com/sarchlab/dfsim/ir"
	"github.com/sarchlab/dfsim/timing/mem"
)

// issueMemory builds the request of a launched load or store. A load of a
// constant global copies the initializer instead and skips the memory
// boundary.
func (n *Node) issueMemory() error {
	switch n.op {
	case ir.OpLoad:
		if n.constInit != nil {
			n.shortCircuit = true
			return n.pending.Assign(*n.constInit)
		}
		n.request = mem.NewReadRequest(n.arg(0).Pointer(), n.typ.SizeInBytes())
	case ir.OpStore:
		value := n.arg(0)
		n.request = mem.NewWriteRequest(n.arg(1).Pointer(), value.Bytes())
	}
	n.awaiting = true
	return nil
}

// MemoryRequest returns the outstanding request of a memory node, or nil
// when none is outstanding. At most one request exists per firing.
func (n *Node) MemoryRequest() (*mem.Request, error) {
	if !n.op.IsMemory() {
		return nil, n.protocol(ErrNotMemory, "memory request of %s", n.op)
	}
	if !n.awaiting {
		return nil, nil
	}
	return n.request, nil
}

// ShortCircuited reports whether a load was served from a constant global.
func (n *Node) ShortCircuited() bool {
	return n.shortCircuit
}

// CompleteMemoryRequest consumes the response to the node's request. Loads
// take their result from the response payload.
func (n *Node) CompleteMemoryRequest(rsp *mem.Response) error {
	if !n.op.IsMemory() {
		return n.protocol(ErrNotMemory, "complete memory request on %s", n.op)
	}
	if !n.awaiting || n.request == nil || rsp.RequestID != n.request.ID {
		return n.protocol(ErrUnexpectedResponse, "response %s", rsp.RequestID)
	}
	if n.op == ir.OpLoad {
		if err := n.pending.SetBytes(rsp.Data); err != nil {
			return n.protocol(err, "load payload")
		}
	}
	n.awaiting = false
	n.request = nil
	return nil
}
