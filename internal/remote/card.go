package remote

import (
	"context"
	"sync"

	"github.com/cardlink/cardlink/internal/cardbus"
	"github.com/cardlink/cardlink/internal/transport"
	"github.com/cardlink/cardlink/internal/wire"
)

// Card is the caller-side proxy for an open remote card session.
type Card struct {
	handle string
	caller transport.Caller
	device *Device

	mu       sync.Mutex
	released bool
}

// Handle returns the opaque handle identifying the remote card session.
func (c *Card) Handle() string { return c.handle }

func (c *Card) checkReleased() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrAlreadyReleased
	}
	return nil
}

// Transmit sends a structured command unit to the remote card.
func (c *Card) Transmit(ctx context.Context, cmd cardbus.Command) (cardbus.Response, error) {
	if err := c.checkReleased(); err != nil {
		return cardbus.Response{}, err
	}
	params := wire.TransmitParams{
		Handle: c.handle,
		Command: &wire.CommandBody{
			Cla:  cmd.Cla,
			Ins:  cmd.Ins,
			P1:   cmd.P1,
			P2:   cmd.P2,
			Data: wire.ByteSeq(cmd.Data),
			Le:   cmd.Le,
		},
	}
	return c.transmit(ctx, params)
}

// TransmitRaw sends pre-serialized command bytes to the remote card.
func (c *Card) TransmitRaw(ctx context.Context, raw []byte) (cardbus.Response, error) {
	if err := c.checkReleased(); err != nil {
		return cardbus.Response{}, err
	}
	return c.transmit(ctx, wire.TransmitParams{Handle: c.handle, Raw: wire.ByteSeq(raw)})
}

func (c *Card) transmit(ctx context.Context, params wire.TransmitParams) (cardbus.Response, error) {
	var result wire.TransmitResult
	if err := call(ctx, c.caller, wire.MethodCardTransmit, params, &result); err != nil {
		return cardbus.Response{}, err
	}
	return cardbus.Response{
		Data: []byte(result.Data),
		SW1:  result.SW1,
		SW2:  result.SW2,
	}, nil
}

// ATR returns the remote card's answer-to-reset bytes.
func (c *Card) ATR(ctx context.Context) ([]byte, error) {
	if err := c.checkReleased(); err != nil {
		return nil, err
	}
	var result wire.ATRResult
	if err := call(ctx, c.caller, wire.MethodCardATR, wire.HandleParams{Handle: c.handle}, &result); err != nil {
		return nil, err
	}
	return []byte(result.ATR), nil
}

// Reset warm-resets the remote card, keeping the session open.
func (c *Card) Reset(ctx context.Context) error {
	if err := c.checkReleased(); err != nil {
		return err
	}
	return call(ctx, c.caller, wire.MethodCardReset, wire.HandleParams{Handle: c.handle}, nil)
}

// Release ends the remote card session. Releasing twice fails with
// ErrAlreadyReleased without contacting the transport.
func (c *Card) Release(ctx context.Context) error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return ErrAlreadyReleased
	}
	c.released = true
	c.mu.Unlock()

	c.device.forgetCard(c)
	return call(ctx, c.caller, wire.MethodCardRelease, wire.HandleParams{Handle: c.handle}, nil)
}

func (c *Card) markReleased() {
	c.mu.Lock()
	c.released = true
	c.mu.Unlock()
}
