package cardbus

import "errors"

// Sentinel errors platform implementations return for lifecycle misuse.
// The adapter maps these onto wire error codes.
var (
	// ErrNotInitialized is returned when an operation is attempted before
	// Init succeeded.
	ErrNotInitialized = errors.New("platform not initialized")

	// ErrReleased is returned when an operation is attempted on a released
	// object.
	ErrReleased = errors.New("object already released")

	// ErrDeviceNotFound is returned when the requested reader does not exist.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrSessionActive is returned when a session is started on a device
	// that already has one.
	ErrSessionActive = errors.New("session already active")

	// ErrNoCard is returned when a session is started on a reader with no
	// card present.
	ErrNoCard = errors.New("no card present")
)
