// Package mockbus provides an in-memory cardbus.Platform for tests and
// demos. Readers and cards are simulated: the scripted card answers SELECT
// with 90 00 and echoes other commands back with a success status word. The
// mock records per-card call order so tests can assert serialization.
package mockbus

import (
	"context"
	"sync"

	"github.com/cardlink/cardlink/internal/cardbus"
)

// DefaultATR is the answer-to-reset the mock card reports.
var DefaultATR = []byte{0x3B, 0x8F, 0x80, 0x01, 0x80, 0x4F}

// Platform is an in-memory cardbus.Platform. Construct with New.
type Platform struct {
	mu          sync.Mutex
	initialized bool
	released    bool
	devices     []cardbus.DeviceInfo
	acquired    map[string]*Device
	notices     chan cardbus.Notice
	noticesOnce sync.Once
}

var _ cardbus.Platform = (*Platform)(nil)
var _ cardbus.Notifier = (*Platform)(nil)

// New creates a mock platform with the given readers. With no arguments a
// single reader "mock-reader-0" is present.
func New(devices ...cardbus.DeviceInfo) *Platform {
	if len(devices) == 0 {
		devices = []cardbus.DeviceInfo{{ID: "mock-reader-0", Name: "Mock Reader 0"}}
	}
	return &Platform{
		devices:  devices,
		acquired: make(map[string]*Device),
		notices:  make(chan cardbus.Notice, 16),
	}
}

// Init marks the platform ready.
func (p *Platform) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = true
	p.released = false
	return nil
}

// Release tears down the platform and every outstanding device and card.
func (p *Platform) Release(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return cardbus.ErrReleased
	}
	for _, d := range p.acquired {
		d.releaseLocked()
	}
	p.acquired = make(map[string]*Device)
	p.initialized = false
	p.released = true
	p.noticesOnce.Do(func() { close(p.notices) })
	return nil
}

// DeviceInfo lists the configured readers.
func (p *Platform) DeviceInfo(ctx context.Context) ([]cardbus.DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return nil, cardbus.ErrNotInitialized
	}
	out := make([]cardbus.DeviceInfo, len(p.devices))
	copy(out, p.devices)
	return out, nil
}

// AcquireDevice opens the reader with the given ID.
func (p *Platform) AcquireDevice(ctx context.Context, deviceID string) (cardbus.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return nil, cardbus.ErrNotInitialized
	}
	for _, info := range p.devices {
		if info.ID == deviceID {
			d := &Device{id: deviceID, platform: p}
			p.acquired[deviceID] = d
			return d, nil
		}
	}
	return nil, cardbus.ErrDeviceNotFound
}

// Notices returns the card-presence notification channel.
func (p *Platform) Notices() <-chan cardbus.Notice {
	return p.notices
}

// InjectNotice simulates a card insertion or removal. No-op after Release.
func (p *Platform) InjectNotice(n cardbus.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return
	}
	select {
	case p.notices <- n:
	default:
	}
}

// Device is a mock reader.
type Device struct {
	id       string
	platform *Platform

	mu       sync.Mutex
	released bool
	card     *Card
}

// ID returns the reader's identifier.
func (d *Device) ID() string { return d.id }

// StartSession powers up the mock card.
func (d *Device) StartSession(ctx context.Context) (cardbus.Card, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, cardbus.ErrReleased
	}
	if d.card != nil {
		return nil, cardbus.ErrSessionActive
	}
	c := &Card{device: d, atr: append([]byte(nil), DefaultATR...)}
	d.card = c
	return c, nil
}

// SessionActive reports whether a card session is open.
func (d *Device) SessionActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.card != nil
}

// Release closes the reader, ending any active session.
func (d *Device) Release(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releaseLocked()
}

func (d *Device) releaseLocked() error {
	if d.released {
		return cardbus.ErrReleased
	}
	if d.card != nil {
		d.card.markReleased()
		d.card = nil
	}
	d.released = true
	return nil
}

// Card is a mock card session. Transmitted commands are recorded in order.
type Card struct {
	device *Device
	atr    []byte

	mu       sync.Mutex
	released bool
	log      [][]byte // raw command bytes in arrival order
	script   map[string][]byte
}

// Script registers a canned reply (including status bytes) for the exact raw
// command bytes given.
func (c *Card) Script(cmd, reply []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.script == nil {
		c.script = make(map[string][]byte)
	}
	c.script[string(cmd)] = append([]byte(nil), reply...)
}

// TransmitLog returns the raw commands received so far, in arrival order.
func (c *Card) TransmitLog() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.log))
	copy(out, c.log)
	return out
}

// Transmit executes a structured command against the mock card.
func (c *Card) Transmit(ctx context.Context, cmd cardbus.Command) (cardbus.Response, error) {
	return c.TransmitRaw(ctx, cmd.Bytes())
}

// TransmitRaw executes raw command bytes. SELECT (INS A4) answers 90 00;
// scripted commands answer their canned reply; anything else echoes the
// command payload with a success status.
func (c *Card) TransmitRaw(ctx context.Context, raw []byte) (cardbus.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return cardbus.Response{}, cardbus.ErrReleased
	}
	c.log = append(c.log, append([]byte(nil), raw...))

	if reply, ok := c.script[string(raw)]; ok {
		return cardbus.ParseResponse(reply)
	}
	if len(raw) >= 2 && raw[1] == 0xA4 {
		return cardbus.Response{SW1: 0x90, SW2: 0x00}, nil
	}
	var data []byte
	if len(raw) > 5 {
		data = append([]byte(nil), raw[5:]...)
	}
	return cardbus.Response{Data: data, SW1: 0x90, SW2: 0x00}, nil
}

// ATR returns the mock card's answer-to-reset bytes.
func (c *Card) ATR(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, cardbus.ErrReleased
	}
	return append([]byte(nil), c.atr...), nil
}

// Reset warm-resets the mock card, clearing the transmit log.
func (c *Card) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return cardbus.ErrReleased
	}
	c.log = nil
	return nil
}

// Release ends the card session.
func (c *Card) Release(ctx context.Context) error {
	c.mu.Lock()
	released := c.released
	c.released = true
	c.mu.Unlock()
	if released {
		return cardbus.ErrReleased
	}
	c.device.mu.Lock()
	if c.device.card == c {
		c.device.card = nil
	}
	c.device.mu.Unlock()
	return nil
}

func (c *Card) markReleased() {
	c.mu.Lock()
	c.released = true
	c.mu.Unlock()
}
