package transport

import (
	"sync"
	"time"

	"github.com/cardlink/cardlink/internal/wire"
)

// callResult is delivered to a waiting caller: a response or a transport
// error, never both.
type callResult struct {
	rsp *wire.Response
	err error
}

// pendingCall tracks one outstanding request on a connection.
type pendingCall struct {
	id        string
	done      chan callResult // buffered; resolved exactly once
	submitted time.Time
}

// pendingCalls is the caller-side table of outstanding requests, keyed by
// request ID. At most one pending call per ID.
type pendingCalls struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{calls: make(map[string]*pendingCall)}
}

// add registers a pending call for the given ID. Fails with ErrDuplicateID
// if the ID is already in flight.
func (p *pendingCalls) add(id string) (*pendingCall, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.calls[id]; exists {
		return nil, ErrDuplicateID
	}
	pc := &pendingCall{
		id:        id,
		done:      make(chan callResult, 1),
		submitted: time.Now(),
	}
	p.calls[id] = pc
	return pc, nil
}

// resolve delivers a response to the pending call for rsp.ID and removes it.
// Returns false if no call is pending for that ID (orphaned response).
func (p *pendingCalls) resolve(rsp *wire.Response) bool {
	p.mu.Lock()
	pc, ok := p.calls[rsp.ID]
	if ok {
		delete(p.calls, rsp.ID)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	pc.done <- callResult{rsp: rsp}
	return true
}

// remove drops a pending call without resolving it. Used when the caller
// gives up (timeout, context cancellation).
func (p *pendingCalls) remove(id string) {
	p.mu.Lock()
	delete(p.calls, id)
	p.mu.Unlock()
}

// failAll rejects every outstanding call with the given error and clears the
// table. Called on connection loss and on Close.
func (p *pendingCalls) failAll(err error) {
	p.mu.Lock()
	calls := p.calls
	p.calls = make(map[string]*pendingCall)
	p.mu.Unlock()
	for _, pc := range calls {
		pc.done <- callResult{err: err}
	}
}

// count returns the number of outstanding calls.
func (p *pendingCalls) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
