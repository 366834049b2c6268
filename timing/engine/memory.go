package engine

import (
	"errors"
	"fmt"

	"github.com/sarchlab/dfsim/dataflow"
	"github.com/sarchlab/dfsim/timing/mem"
)

// issue forwards the request of a freshly launched memory node. Requests
// leave in issue order, so a node queues behind earlier rejected requests.
func (e *Engine) issue(id dataflow.ID) error {
	if len(e.retry) > 0 {
		e.retry = append(e.retry, id)
		e.memStalled = true
		return nil
	}

	sent, err := e.send(id)
	if err != nil {
		return err
	}
	if !sent {
		e.retry = append(e.retry, id)
	}
	return nil
}

// retryRequests resends rejected requests in order until the port refuses
// one again.
func (e *Engine) retryRequests() error {
	pending := e.retry
	e.retry = nil
	for i, id := range pending {
		sent, err := e.send(id)
		if err != nil {
			return err
		}
		if !sent {
			e.retry = append(e.retry, pending[i:]...)
			return nil
		}
	}
	return nil
}

// send offers the node's request to the memory boundary. It returns false
// when the port is busy.
func (e *Engine) send(id dataflow.ID) (bool, error) {
	n := e.graph.Node(id)
	req, err := n.MemoryRequest()
	if err != nil {
		return false, err
	}
	if req == nil {
		return true, nil
	}

	err = e.memory.Send(req, e.cycle)
	switch {
	case errors.Is(err, mem.ErrBusy):
		e.memStalled = true
		return false, nil
	case err != nil:
		return false, fmt.Errorf("node %d (%s): %w", id, n.Op(), err)
	}

	e.requests[req.ID] = id
	if req.Write {
		e.stats.Stores++
		e.stats.BytesWritten += req.Length
	} else {
		e.stats.Loads++
		e.stats.BytesRead += req.Length
	}
	e.progressed = true
	e.log.V(3).Info("memory request", "cycle", e.cycle, "node", id, "request", req.String())
	return true, nil
}

// deliverResponses hands completed requests back to their nodes.
func (e *Engine) deliverResponses() error {
	for _, rsp := range e.memory.Tick(e.cycle) {
		id, ok := e.requests[rsp.RequestID]
		if !ok {
			return fmt.Errorf("%w: %s", dataflow.ErrUnexpectedResponse, rsp.RequestID)
		}
		delete(e.requests, rsp.RequestID)

		if err := e.graph.Node(id).CompleteMemoryRequest(rsp); err != nil {
			return err
		}
		e.progressed = true
		e.log.V(3).Info("memory response", "cycle", e.cycle, "node", id, "request", rsp.RequestID.String())
	}
	return nil
}
