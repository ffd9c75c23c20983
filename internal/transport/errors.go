package transport

import (
	"github.com/cardlink/cardlink/internal/common/apperrors"
	"github.com/cardlink/cardlink/internal/wire"
)

var (
	// ErrTransport is the base error for connectivity failures. Callers use
	// errors.Is against it to separate connectivity failures from business
	// errors riding inside responses.
	ErrTransport apperrors.Error = apperrors.New("transport error").SetWireCode(string(wire.CodeTransportError))

	// ErrTimeout is returned when a call's response did not arrive in time.
	ErrTimeout apperrors.Error = ErrTransport.New("call timed out").SetWireCode(string(wire.CodeTimeout))

	// ErrClosed is returned for calls on a closed transport and for pending
	// calls rejected by connection loss.
	ErrClosed apperrors.Error = ErrTransport.New("transport closed")

	// ErrDuplicateID is returned when a request reuses the ID of a call
	// that is still outstanding.
	ErrDuplicateID apperrors.Error = ErrTransport.New("request id already in flight")

	// ErrAuthRejected is returned when the router refuses the connection
	// handshake.
	ErrAuthRejected apperrors.Error = ErrTransport.New("authentication rejected").SetWireCode(string(wire.CodeAuthFailed))

	// ErrNoEvents is returned by EmitEvent on transports without event
	// delivery.
	ErrNoEvents apperrors.Error = apperrors.New("transport does not support events")
)
