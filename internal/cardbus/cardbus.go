// Package cardbus defines the local smart-card platform capability interface
// consumed by cardlink. The physical reader driver implements these
// interfaces; cardlink only calls them. The adapter serializes per-object
// access, so implementations need not be safe for concurrent calls on the
// same Device or Card.
package cardbus

import "context"

// Platform is the entry point to a local smart-card stack.
type Platform interface {
	// Init prepares the platform for use. Must be called before any other
	// operation.
	Init(ctx context.Context) error

	// Release tears the platform down, releasing all outstanding devices and
	// cards.
	Release(ctx context.Context) error

	// DeviceInfo lists the readers currently known to the platform.
	DeviceInfo(ctx context.Context) ([]DeviceInfo, error)

	// AcquireDevice opens the reader with the given ID for exclusive use.
	AcquireDevice(ctx context.Context, deviceID string) (Device, error)
}

// DeviceInfo describes one reader.
type DeviceInfo struct {
	ID   string
	Name string
}

// Device is an acquired reader.
type Device interface {
	// ID returns the reader's identifier.
	ID() string

	// StartSession powers up the card in the reader and returns a Card.
	StartSession(ctx context.Context) (Card, error)

	// SessionActive reports whether a card session is currently open.
	SessionActive() bool

	// Release closes the reader, ending any active session.
	Release(ctx context.Context) error
}

// Card is an open card session.
type Card interface {
	// Transmit sends a command unit to the card and returns its reply.
	Transmit(ctx context.Context, cmd Command) (Response, error)

	// TransmitRaw sends pre-serialized command bytes to the card.
	TransmitRaw(ctx context.Context, raw []byte) (Response, error)

	// ATR returns the card's answer-to-reset bytes.
	ATR(ctx context.Context) ([]byte, error)

	// Reset warm-resets the card, keeping the session open.
	Reset(ctx context.Context) error

	// Release ends the card session.
	Release(ctx context.Context) error
}

// Notice reports a card insertion or removal on a reader.
type Notice struct {
	DeviceID string
	Inserted bool // true on insert, false on removal
}

// Notifier is implemented by platforms that can report card presence
// changes. Platforms without polling support simply don't implement it.
type Notifier interface {
	// Notices returns the channel on which presence changes are delivered.
	// The channel is closed when the platform is released.
	Notices() <-chan Notice
}
