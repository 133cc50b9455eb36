package apt

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// replyResult is the value written into a pending request's result slot.
type replyResult struct {
	msg *Message
	err error
}

// pendingRequest is one caller waiting for a reply.
//
// result has capacity one and is written exactly once, by whoever removes
// the request from the registry: the reader loop on a matching reply, or
// connection teardown. A waiter whose deadline fires removes the entry
// itself and never reads result.
type pendingRequest struct {
	key      Key
	msgID    MessageID
	dst      Address
	deadline time.Time
	result   chan replyResult
}

// pendingRegistry maps correlation keys to waiting callers. It is owned by a
// single Connection.
type pendingRegistry struct {
	reqs *xsync.MapOf[Key, *pendingRequest]
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{reqs: xsync.NewMapOf[Key, *pendingRequest]()}
}

// add registers the request msg waiting on key. It fails with
// ErrRequestInFlight when a request with the same key is already registered.
func (r *pendingRegistry) add(key Key, msg *Message, timeout time.Duration) (*pendingRequest, error) {
	req := &pendingRequest{
		key:      key,
		deadline: time.Now().Add(timeout),
		result:   make(chan replyResult, 1),
	}

	if msg != nil {
		req.msgID = msg.ID
		req.dst = msg.Destination
	}

	if _, loaded := r.reqs.LoadOrStore(key, req); loaded {
		return nil, fmt.Errorf("%w: %s", ErrRequestInFlight, key)
	}

	return req, nil
}

// resolve hands msg to the request registered for key, if any, and reports
// whether one was found.
func (r *pendingRegistry) resolve(key Key, msg *Message) bool {
	req, ok := r.reqs.LoadAndDelete(key)
	if !ok {
		return false
	}

	req.result <- replyResult{msg: msg}

	return true
}

// resolveFault hands a device fault frame to the request it answers and
// reports whether one took it.
//
// HW_RICHRESPONSE names the failing message id, so it goes to the request
// with that id sent to the faulting address. HW_RESPONSE names nothing and
// goes to the only request outstanding at that address. An ambiguous or
// unmatched fault resolves nothing.
func (r *pendingRegistry) resolveFault(fault *Message) bool {
	failedID, named := faultSubject(fault)

	var match *pendingRequest
	candidates := 0

	r.reqs.Range(func(_ Key, req *pendingRequest) bool {
		if req.dst != fault.Source || (named && req.msgID != failedID) {
			return true
		}

		match = req
		candidates++

		return candidates < 2
	})

	if candidates != 1 || !r.remove(match) {
		return false
	}

	match.result <- replyResult{msg: fault}

	return true
}

// faultSubject returns the message id a HW_RICHRESPONSE reports on.
func faultSubject(fault *Message) (MessageID, bool) {
	if fault.ID != HwRichResponse || len(fault.Payload) < 2 {
		return 0, false
	}

	return MessageID(binary.LittleEndian.Uint16(fault.Payload[:2])), true
}

// remove deletes req if it is still registered and reports whether it did.
// A false return means a resolver already owns req and has written, or is
// about to write, its result.
func (r *pendingRegistry) remove(req *pendingRequest) bool {
	removed := false

	r.reqs.Compute(req.key, func(cur *pendingRequest, loaded bool) (*pendingRequest, bool) {
		if !loaded {
			return cur, true
		}

		if cur == req {
			removed = true
			return nil, true
		}

		return cur, false
	})

	return removed
}

// cancelAll resolves every registered request with err.
func (r *pendingRegistry) cancelAll(err error) int {
	count := 0

	r.reqs.Range(func(key Key, _ *pendingRequest) bool {
		if req, ok := r.reqs.LoadAndDelete(key); ok {
			req.result <- replyResult{err: err}
			count++
		}

		return true
	})

	return count
}

// has reports whether a request for key is registered.
func (r *pendingRegistry) has(key Key) bool {
	_, ok := r.reqs.Load(key)
	return ok
}

func (r *pendingRegistry) len() int {
	return r.reqs.Size()
}
