package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlink/cardlink/internal/cardbus"
	"github.com/cardlink/cardlink/internal/cardbus/mockbus"
	"github.com/cardlink/cardlink/internal/transport"
	"github.com/cardlink/cardlink/internal/wire"
)

func startAdapter(t *testing.T) (*Adapter, *transport.Loopback, *mockbus.Platform) {
	t.Helper()
	platform := mockbus.New()
	lb := transport.NewLoopback()
	a := New(platform, lb)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { a.Stop(context.Background()) })
	return a, lb, platform
}

func doCall(t *testing.T, lb *transport.Loopback, id string, method wire.Method, params any) *wire.Response {
	t.Helper()
	req, err := wire.NewRequest(id, method, params)
	require.NoError(t, err)
	rsp, err := lb.Call(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, id, rsp.ID)
	return rsp
}

func TestDispatchLifecycle(t *testing.T) {
	_, lb, _ := startAdapter(t)

	rsp := doCall(t, lb, "r1", wire.MethodPlatformInit, nil)
	require.Nil(t, rsp.Error)

	rsp = doCall(t, lb, "r2", wire.MethodPlatformDeviceInfo, nil)
	require.Nil(t, rsp.Error)
	var infos wire.DeviceInfoResult
	require.NoError(t, wire.DecodeResult(rsp, &infos))
	require.Len(t, infos.Devices, 1)

	rsp = doCall(t, lb, "r3", wire.MethodPlatformAcquireDevice,
		wire.AcquireDeviceParams{DeviceID: infos.Devices[0].ID})
	require.Nil(t, rsp.Error)
	var acquired wire.AcquireDeviceResult
	require.NoError(t, wire.DecodeResult(rsp, &acquired))
	require.NotEmpty(t, acquired.Handle)

	rsp = doCall(t, lb, "r4", wire.MethodDeviceStartSession,
		wire.HandleParams{Handle: acquired.Handle})
	require.Nil(t, rsp.Error)
	var session wire.StartSessionResult
	require.NoError(t, wire.DecodeResult(rsp, &session))

	rsp = doCall(t, lb, "r5", wire.MethodCardTransmit, wire.TransmitParams{
		Handle: session.Handle,
		Raw:    wire.ByteSeq{0x00, 0xA4, 0x04, 0x00, 0x00},
	})
	require.Nil(t, rsp.Error)
	var result wire.TransmitResult
	require.NoError(t, wire.DecodeResult(rsp, &result))
	assert.Equal(t, uint8(0x90), result.SW1)
	assert.Equal(t, uint8(0x00), result.SW2)
}

func TestDispatchErrors(t *testing.T) {
	_, lb, _ := startAdapter(t)

	// acquire before init
	rsp := doCall(t, lb, "r1", wire.MethodPlatformAcquireDevice,
		wire.AcquireDeviceParams{DeviceID: "mock-reader-0"})
	require.NotNil(t, rsp.Error)
	assert.Equal(t, wire.CodeNotInitialized, rsp.Error.Code)

	doCall(t, lb, "r2", wire.MethodPlatformInit, nil)

	// unknown device
	rsp = doCall(t, lb, "r3", wire.MethodPlatformAcquireDevice,
		wire.AcquireDeviceParams{DeviceID: "nope"})
	require.NotNil(t, rsp.Error)
	assert.Equal(t, wire.CodeDeviceNotFound, rsp.Error.Code)

	// unknown handle
	rsp = doCall(t, lb, "r4", wire.MethodDeviceStartSession,
		wire.HandleParams{Handle: "stale"})
	require.NotNil(t, rsp.Error)
	assert.Equal(t, wire.CodeHandleNotFound, rsp.Error.Code)

	// transmit with both command and raw
	rsp = doCall(t, lb, "r5", wire.MethodCardTransmit, wire.TransmitParams{
		Handle:  "h",
		Command: &wire.CommandBody{},
		Raw:     wire.ByteSeq{0x00},
	})
	require.NotNil(t, rsp.Error)
	assert.Equal(t, wire.CodeInvalidParams, rsp.Error.Code)
}

func TestDispatchUnknownMethod(t *testing.T) {
	a, _, _ := startAdapter(t)
	rsp := a.HandleRequest(context.Background(), &wire.Request{ID: "r1", Method: "platform.format"})
	require.NotNil(t, rsp.Error)
	assert.Equal(t, wire.CodeMethodNotFound, rsp.Error.Code)
}

func TestDeviceReleaseCascadesToCard(t *testing.T) {
	_, lb, _ := startAdapter(t)
	doCall(t, lb, "r1", wire.MethodPlatformInit, nil)

	rsp := doCall(t, lb, "r2", wire.MethodPlatformAcquireDevice,
		wire.AcquireDeviceParams{DeviceID: "mock-reader-0"})
	var acquired wire.AcquireDeviceResult
	require.NoError(t, wire.DecodeResult(rsp, &acquired))

	rsp = doCall(t, lb, "r3", wire.MethodDeviceStartSession,
		wire.HandleParams{Handle: acquired.Handle})
	var session wire.StartSessionResult
	require.NoError(t, wire.DecodeResult(rsp, &session))

	rsp = doCall(t, lb, "r4", wire.MethodDeviceRelease,
		wire.HandleParams{Handle: acquired.Handle})
	require.Nil(t, rsp.Error)

	// the card handle died with the device
	rsp = doCall(t, lb, "r5", wire.MethodCardATR,
		wire.HandleParams{Handle: session.Handle})
	require.NotNil(t, rsp.Error)
	assert.Equal(t, wire.CodeHandleNotFound, rsp.Error.Code)
}

func TestNoticeForwarding(t *testing.T) {
	_, lb, platform := startAdapter(t)

	var mu sync.Mutex
	var events []*wire.Event
	lb.OnEvent(func(ev *wire.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	doCall(t, lb, "r1", wire.MethodPlatformInit, nil)
	rsp := doCall(t, lb, "r2", wire.MethodPlatformAcquireDevice,
		wire.AcquireDeviceParams{DeviceID: "mock-reader-0"})
	var acquired wire.AcquireDeviceResult
	require.NoError(t, wire.DecodeResult(rsp, &acquired))

	platform.InjectNotice(cardbus.Notice{DeviceID: "mock-reader-0", Inserted: true})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, wire.EventCardInserted, events[0].Name)
	assert.Equal(t, wire.TargetDevice, events[0].TargetKind)
	assert.Equal(t, acquired.Handle, events[0].TargetID)
}

func TestConcurrentTransmitsSameHandle(t *testing.T) {
	_, lb, _ := startAdapter(t)
	doCall(t, lb, "r1", wire.MethodPlatformInit, nil)

	rsp := doCall(t, lb, "r2", wire.MethodPlatformAcquireDevice,
		wire.AcquireDeviceParams{DeviceID: "mock-reader-0"})
	var acquired wire.AcquireDeviceResult
	require.NoError(t, wire.DecodeResult(rsp, &acquired))

	rsp = doCall(t, lb, "r3", wire.MethodDeviceStartSession,
		wire.HandleParams{Handle: acquired.Handle})
	var session wire.StartSessionResult
	require.NoError(t, wire.DecodeResult(rsp, &session))

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := wire.NewRequest("t"+string(rune('a'+i)), wire.MethodCardTransmit, wire.TransmitParams{
				Handle: session.Handle,
				Raw:    wire.ByteSeq{0x00, 0xB0, 0x00, byte(i), 0x00},
			})
			if err != nil {
				errs[i] = err
				return
			}
			r, err := lb.Call(context.Background(), req)
			if err != nil {
				errs[i] = err
				return
			}
			if r.Error != nil {
				errs[i] = assert.AnError
			}
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		assert.NoError(t, err, "transmit %d", i)
	}
}
