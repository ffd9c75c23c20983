package remote

import (
	"context"
	"sync"

	"github.com/cardlink/cardlink/internal/transport"
	"github.com/cardlink/cardlink/internal/wire"
)

// Device is the caller-side proxy for an acquired remote reader. It holds
// only the opaque handle minted by the local adapter, never the underlying
// object.
type Device struct {
	handle   string
	deviceID string
	caller   transport.Caller
	platform *Platform

	mu       sync.Mutex
	released bool
	card     *Card
}

// Handle returns the opaque handle identifying the remote device.
func (d *Device) Handle() string { return d.handle }

// DeviceID returns the reader ID this proxy was acquired for.
func (d *Device) DeviceID() string { return d.deviceID }

// StartSession opens a card session on the remote reader and wraps the
// returned handle in a card proxy. A second concurrent session fails locally
// with ErrSessionAlreadyActive.
func (d *Device) StartSession(ctx context.Context) (*Card, error) {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return nil, ErrAlreadyReleased
	}
	if d.card != nil {
		d.mu.Unlock()
		return nil, ErrSessionAlreadyActive
	}
	d.mu.Unlock()

	var result wire.StartSessionResult
	err := call(ctx, d.caller, wire.MethodDeviceStartSession,
		wire.HandleParams{Handle: d.handle}, &result)
	if err != nil {
		return nil, err
	}

	c := &Card{handle: result.Handle, caller: d.caller, device: d}
	d.mu.Lock()
	// Lost a race with Release: the remote side has already torn the
	// session down with the device.
	if d.released {
		d.mu.Unlock()
		return nil, ErrAlreadyReleased
	}
	d.card = c
	d.mu.Unlock()
	return c, nil
}

// SessionActive asks the remote reader whether a card session is open.
func (d *Device) SessionActive(ctx context.Context) (bool, error) {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return false, ErrAlreadyReleased
	}
	d.mu.Unlock()

	var result wire.SessionActiveResult
	err := call(ctx, d.caller, wire.MethodDeviceSessionActive,
		wire.HandleParams{Handle: d.handle}, &result)
	if err != nil {
		return false, err
	}
	return result.Active, nil
}

// Release releases the remote reader. The card proxy for any active session
// is marked released locally; releasing twice fails with ErrAlreadyReleased
// without contacting the transport.
func (d *Device) Release(ctx context.Context) error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return ErrAlreadyReleased
	}
	d.released = true
	card := d.card
	d.card = nil
	d.mu.Unlock()

	if card != nil {
		card.markReleased()
	}
	d.platform.forget(d.handle)
	return call(ctx, d.caller, wire.MethodDeviceRelease,
		wire.HandleParams{Handle: d.handle}, nil)
}

// markReleased marks the proxy and its card released locally without wire
// traffic. Used when the platform release cascades.
func (d *Device) markReleased() {
	d.mu.Lock()
	d.released = true
	card := d.card
	d.card = nil
	d.mu.Unlock()
	if card != nil {
		card.markReleased()
	}
}

// forgetCard clears session tracking after the card's own release.
func (d *Device) forgetCard(c *Card) {
	d.mu.Lock()
	if d.card == c {
		d.card = nil
	}
	d.mu.Unlock()
}
