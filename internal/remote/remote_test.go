package remote

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlink/cardlink/internal/adapter"
	"github.com/cardlink/cardlink/internal/cardbus"
	"github.com/cardlink/cardlink/internal/cardbus/mockbus"
	"github.com/cardlink/cardlink/internal/transport"
	"github.com/cardlink/cardlink/internal/wire"
)

// countingCaller wraps a transport.Caller and counts wire round-trips so
// tests can assert local pre-flight failures never touch the transport.
type countingCaller struct {
	transport.Caller
	calls atomic.Int64
}

func (c *countingCaller) Call(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	c.calls.Add(1)
	return c.Caller.Call(ctx, req)
}

func newTestProxy(t *testing.T) (*Platform, *countingCaller, *mockbus.Platform) {
	t.Helper()
	mock := mockbus.New()
	lb := transport.NewLoopback()
	a := adapter.New(mock, lb)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { a.Stop(context.Background()) })

	cc := &countingCaller{Caller: lb}
	return NewPlatform(cc), cc, mock
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	platform, _, _ := newTestProxy(t)

	require.NoError(t, platform.Init(ctx))

	devices, err := platform.DeviceInfo(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	device, err := platform.AcquireDevice(ctx, devices[0].ID)
	require.NoError(t, err)

	card, err := device.StartSession(ctx)
	require.NoError(t, err)

	// SELECT answered 90 00 by the mock card, byte-for-byte
	rsp, err := card.TransmitRaw(ctx, []byte{0x00, 0xA4, 0x04, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x9000), rsp.SW())
	assert.Nil(t, rsp.Data)

	// structured command with payload echoes back
	rsp, err = card.Transmit(ctx, cardbus.Command{
		Cla: 0x00, Ins: 0xD6, Data: []byte{0xCA, 0xFE},
	})
	require.NoError(t, err)
	assert.True(t, rsp.OK())
	assert.Equal(t, []byte{0xCA, 0xFE}, rsp.Data)

	atr, err := card.ATR(ctx)
	require.NoError(t, err)
	assert.Equal(t, mockbus.DefaultATR, atr)

	require.NoError(t, card.Reset(ctx))
	require.NoError(t, card.Release(ctx))
	require.NoError(t, device.Release(ctx))
	require.NoError(t, platform.Release(ctx))
}

func TestAcquireBeforeInit(t *testing.T) {
	platform, cc, _ := newTestProxy(t)

	_, err := platform.AcquireDevice(context.Background(), "mock-reader-0")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, int64(0), cc.calls.Load(), "pre-flight failure must not touch the transport")
}

func TestReleasedProxyFailsFast(t *testing.T) {
	ctx := context.Background()
	platform, cc, _ := newTestProxy(t)

	require.NoError(t, platform.Init(ctx))
	device, err := platform.AcquireDevice(ctx, "mock-reader-0")
	require.NoError(t, err)
	card, err := device.StartSession(ctx)
	require.NoError(t, err)

	require.NoError(t, card.Release(ctx))
	before := cc.calls.Load()

	// every card operation fails locally after release
	err = card.Release(ctx)
	assert.ErrorIs(t, err, ErrAlreadyReleased)
	_, err = card.ATR(ctx)
	assert.ErrorIs(t, err, ErrAlreadyReleased)
	_, err = card.TransmitRaw(ctx, []byte{0x00, 0xA4, 0x04, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrAlreadyReleased)
	assert.Equal(t, before, cc.calls.Load())

	require.NoError(t, device.Release(ctx))
	err = device.Release(ctx)
	assert.ErrorIs(t, err, ErrAlreadyReleased)
}

func TestSecondSessionRejectedLocally(t *testing.T) {
	ctx := context.Background()
	platform, cc, _ := newTestProxy(t)

	require.NoError(t, platform.Init(ctx))
	device, err := platform.AcquireDevice(ctx, "mock-reader-0")
	require.NoError(t, err)
	_, err = device.StartSession(ctx)
	require.NoError(t, err)

	before := cc.calls.Load()
	_, err = device.StartSession(ctx)
	assert.ErrorIs(t, err, ErrSessionAlreadyActive)
	assert.Equal(t, before, cc.calls.Load())
}

func TestPlatformReleaseCascades(t *testing.T) {
	ctx := context.Background()
	platform, _, _ := newTestProxy(t)

	require.NoError(t, platform.Init(ctx))
	device, err := platform.AcquireDevice(ctx, "mock-reader-0")
	require.NoError(t, err)
	card, err := device.StartSession(ctx)
	require.NoError(t, err)

	require.NoError(t, platform.Release(ctx))

	_, err = device.StartSession(ctx)
	assert.ErrorIs(t, err, ErrAlreadyReleased)
	_, err = card.ATR(ctx)
	assert.ErrorIs(t, err, ErrAlreadyReleased)
	err = platform.Init(ctx)
	assert.ErrorIs(t, err, ErrAlreadyReleased)
}

func TestRemoteErrorConversion(t *testing.T) {
	ctx := context.Background()
	platform, _, mock := newTestProxy(t)

	require.NoError(t, platform.Init(ctx))
	device, err := platform.AcquireDevice(ctx, "mock-reader-0")
	require.NoError(t, err)
	card, err := device.StartSession(ctx)
	require.NoError(t, err)

	// Pull the rug out remotely: release the platform behind the proxy's
	// back, then use a still-live-looking card proxy.
	require.NoError(t, mock.Release(ctx))
	_ = card

	_, err = platform.AcquireDevice(ctx, "mock-reader-0")
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, wire.CodeNotInitialized, remoteErr.Code)
	assert.False(t, errors.Is(err, transport.ErrTransport), "business errors are not transport errors")
}

func TestTransportErrorDistinct(t *testing.T) {
	ctx := context.Background()
	mock := mockbus.New()
	lb := transport.NewLoopback()
	a := adapter.New(mock, lb)
	require.NoError(t, a.Start(ctx))

	platform := NewPlatform(lb)
	require.NoError(t, platform.Init(ctx))

	// closing the transport makes further calls fail with a transport error
	require.NoError(t, lb.Close())
	_, err := platform.DeviceInfo(ctx)
	assert.ErrorIs(t, err, transport.ErrTransport)
	var remoteErr *RemoteError
	assert.False(t, errors.As(err, &remoteErr))
}
