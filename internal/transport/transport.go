// Package transport provides the pluggable duplex-channel abstraction the
// remote proxy and local adapter sit on. A Caller turns an outgoing Request
// into an awaited Response and delivers inbound Events; a Callee delivers
// inbound Requests to a handler and can emit outbound Events.
//
// Three implementations are provided: Loopback (in-process, for tests),
// Oneshot (HTTP, caller-only, one exchange per call, no events), and WSConn
// (persistent duplex websocket against the router, both roles).
package transport

import (
	"context"

	"github.com/cardlink/cardlink/internal/wire"
)

// Handler is the single inbound-request dispatch function a Callee delivers
// requests to. It must always return a response for the request's ID.
type Handler func(ctx context.Context, req *wire.Request) *wire.Response

// Caller is the caller-side transport role.
type Caller interface {
	// Call sends a request and waits for its matching response. It always
	// returns a response or an error; it never hangs beyond the call
	// timeout or context deadline. A returned response may still carry a
	// business error in its Error field.
	Call(ctx context.Context, req *wire.Request) (*wire.Response, error)

	// OnEvent registers the callback invoked for each inbound event.
	// Transports without event delivery ignore the registration.
	OnEvent(fn func(ev *wire.Event))

	// Close tears the transport down. Outstanding calls fail with a
	// transport error.
	Close() error
}

// Callee is the callee-side transport role.
type Callee interface {
	// OnRequest registers the single dispatch function for inbound
	// requests. Must be called before traffic flows.
	OnRequest(h Handler)

	// EmitEvent sends an unsolicited event to the remote side.
	EmitEvent(ev *wire.Event) error

	// Close tears the transport down.
	Close() error
}
