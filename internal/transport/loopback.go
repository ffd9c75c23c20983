package transport

import (
	"context"
	"sync"

	"github.com/cardlink/cardlink/internal/wire"
)

// Loopback is an in-process transport implementing both roles. Call invokes
// the registered handler synchronously; EmitEvent invokes the event callback
// synchronously. It exercises the proxy/adapter contract without a network.
type Loopback struct {
	mu      sync.RWMutex
	handler Handler
	eventFn func(ev *wire.Event)
	closed  bool
}

var _ Caller = (*Loopback)(nil)
var _ Callee = (*Loopback)(nil)

// NewLoopback creates a loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Call dispatches the request to the registered handler in-process.
func (l *Loopback) Call(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	l.mu.RLock()
	handler := l.handler
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if handler == nil {
		return nil, ErrTransport.Msg("no handler registered")
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrClosed.MsgErr("context done", err)
	}
	return handler(ctx, req), nil
}

// OnEvent registers the inbound event callback.
func (l *Loopback) OnEvent(fn func(ev *wire.Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.eventFn = fn
}

// OnRequest registers the inbound request handler.
func (l *Loopback) OnRequest(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

// EmitEvent delivers the event to the registered callback, if any.
func (l *Loopback) EmitEvent(ev *wire.Event) error {
	l.mu.RLock()
	fn := l.eventFn
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if fn != nil {
		fn(ev)
	}
	return nil
}

// Close marks the transport closed. Subsequent calls fail with ErrClosed.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
