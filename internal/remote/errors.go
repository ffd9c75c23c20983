package remote

import (
	"fmt"

	"github.com/cardlink/cardlink/internal/common/apperrors"
	"github.com/cardlink/cardlink/internal/wire"
)

var (
	// ErrProxy is the base error for local pre-flight failures raised by
	// the proxy without a wire round-trip.
	ErrProxy apperrors.Error = apperrors.New("proxy error")

	// ErrAlreadyReleased is returned for any call on a released proxy.
	ErrAlreadyReleased apperrors.Error = ErrProxy.New("object already released").SetWireCode(string(wire.CodeAlreadyReleased))

	// ErrNotInitialized is returned when a device is acquired before the
	// platform has been initialized.
	ErrNotInitialized apperrors.Error = ErrProxy.New("platform not initialized").SetWireCode(string(wire.CodeNotInitialized))

	// ErrSessionAlreadyActive is returned when a second concurrent session
	// is started on a device proxy.
	ErrSessionAlreadyActive apperrors.Error = ErrProxy.New("session already active").SetWireCode(string(wire.CodeSessionAlreadyActive))
)

// RemoteError is a business error returned by the remote side inside a
// response. The connection remains usable after a RemoteError; connectivity
// failures surface as transport errors instead.
type RemoteError struct {
	Code    wire.ErrorCode
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %s: %s", e.Code, e.Message)
}

// remoteErr converts a response error object into a RemoteError.
func remoteErr(obj *wire.ErrorObject) error {
	return &RemoteError{Code: obj.Code, Message: obj.Message}
}
