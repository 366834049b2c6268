// Package mem provides the memory boundary of the accelerator: request and
// response descriptors exchanged with compute nodes, the System interface the
// engine talks to, and a reference controller backed by Akita storage.
package mem

import (
	"errors"
	"fmt"

	"github.com/rs/xid"
)

var (
	// ErrBusy is returned by Send when the port cannot accept the request in
	// this cycle. The caller retries in a later cycle.
	ErrBusy = errors.New("memory port busy")
	// ErrOutOfRange is returned for accesses beyond the memory capacity.
	ErrOutOfRange = errors.New("address out of range")
)

// Request describes one memory access. Loads carry an address and length,
// stores additionally carry the payload.
type Request struct {
	ID     xid.ID
	Addr   uint64
	Length uint64
	Write  bool
	Data   []byte
}

// NewReadRequest creates a load request.
func NewReadRequest(addr, length uint64) *Request {
	return &Request{ID: xid.New(), Addr: addr, Length: length}
}

// NewWriteRequest creates a store request carrying data.
func NewWriteRequest(addr uint64, data []byte) *Request {
	return &Request{
		ID:     xid.New(),
		Addr:   addr,
		Length: uint64(len(data)),
		Write:  true,
		Data:   data,
	}
}

func (r *Request) String() string {
	kind := "read"
	if r.Write {
		kind = "write"
	}
	return fmt.Sprintf("%s %s 0x%x+%d", r.ID, kind, r.Addr, r.Length)
}

// Response notifies completion of a request. Data holds the loaded bytes and
// is nil for writes.
type Response struct {
	RequestID xid.ID
	Write     bool
	Data      []byte
}

// System is the memory boundary as seen by the engine. Time is the engine
// clock; a response is delivered by the first Tick at or after its
// completion cycle.
type System interface {
	// Send issues a request at cycle now. It returns ErrBusy when the port
	// is saturated.
	Send(req *Request, now uint64) error
	// Tick returns the responses that complete at or before now, in the
	// order their requests were sent.
	Tick(now uint64) []*Response
	// Pending returns the number of requests in flight.
	Pending() int
}
