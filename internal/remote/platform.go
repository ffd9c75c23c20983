// Package remote implements the caller-side proxy object graph: platform,
// device, and card proxies mirroring the local cardbus interface, with every
// operation implemented as a request/response exchange over a
// transport.Caller. Lifecycle rules (released objects, uninitialized
// platform, double sessions) are enforced locally before any wire traffic.
package remote

import (
	"context"
	"sync"

	"github.com/cardlink/cardlink/internal/common/uuid"
	"github.com/cardlink/cardlink/internal/transport"
	"github.com/cardlink/cardlink/internal/wire"
)

// call performs one request/response exchange. Transport errors come back
// as-is; response errors convert to *RemoteError; a non-nil result pointer
// is filled from the response result.
func call(ctx context.Context, c transport.Caller, method wire.Method, params, result any) error {
	req, err := wire.NewRequest(uuid.NewString(), method, params)
	if err != nil {
		return transport.ErrTransport.MsgErr("unable to encode params", err)
	}
	rsp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	if rsp.Error != nil {
		return remoteErr(rsp.Error)
	}
	if result != nil {
		if err := wire.DecodeResult(rsp, result); err != nil {
			return transport.ErrTransport.MsgErr("unable to decode result", err)
		}
	}
	return nil
}

// Platform is the caller-side proxy for a remote card platform.
type Platform struct {
	caller transport.Caller

	mu          sync.Mutex
	initialized bool
	released    bool
	devices     map[string]*Device // handle -> live device proxy
}

// NewPlatform creates a platform proxy over the given caller transport.
func NewPlatform(caller transport.Caller) *Platform {
	return &Platform{
		caller:  caller,
		devices: make(map[string]*Device),
	}
}

// OnEvent registers a callback for events pushed by the remote card host,
// such as card insertion and removal.
func (p *Platform) OnEvent(fn func(ev *wire.Event)) {
	p.caller.OnEvent(fn)
}

// Init initializes the remote platform.
func (p *Platform) Init(ctx context.Context) error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return ErrAlreadyReleased
	}
	p.mu.Unlock()

	if err := call(ctx, p.caller, wire.MethodPlatformInit, nil, nil); err != nil {
		return err
	}
	p.mu.Lock()
	p.initialized = true
	p.mu.Unlock()
	return nil
}

// DeviceInfo lists the readers known to the remote platform.
func (p *Platform) DeviceInfo(ctx context.Context) ([]wire.DeviceInfo, error) {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return nil, ErrAlreadyReleased
	}
	p.mu.Unlock()

	var result wire.DeviceInfoResult
	if err := call(ctx, p.caller, wire.MethodPlatformDeviceInfo, nil, &result); err != nil {
		return nil, err
	}
	return result.Devices, nil
}

// AcquireDevice acquires the remote reader with the given ID and wraps its
// handle in a device proxy. Fails locally with ErrNotInitialized if Init has
// not succeeded.
func (p *Platform) AcquireDevice(ctx context.Context, deviceID string) (*Device, error) {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return nil, ErrAlreadyReleased
	}
	if !p.initialized {
		p.mu.Unlock()
		return nil, ErrNotInitialized
	}
	p.mu.Unlock()

	var result wire.AcquireDeviceResult
	err := call(ctx, p.caller, wire.MethodPlatformAcquireDevice,
		wire.AcquireDeviceParams{DeviceID: deviceID}, &result)
	if err != nil {
		return nil, err
	}

	d := &Device{
		handle:   result.Handle,
		deviceID: deviceID,
		caller:   p.caller,
		platform: p,
	}
	p.mu.Lock()
	p.devices[result.Handle] = d
	p.mu.Unlock()
	return d, nil
}

// Release releases the remote platform. Outstanding device and card proxies
// are marked released locally; the remote platform releases the underlying
// objects itself.
func (p *Platform) Release(ctx context.Context) error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return ErrAlreadyReleased
	}
	p.released = true
	p.initialized = false
	devices := p.devices
	p.devices = make(map[string]*Device)
	p.mu.Unlock()

	for _, d := range devices {
		d.markReleased()
	}
	return call(ctx, p.caller, wire.MethodPlatformRelease, nil, nil)
}

// forget drops a device proxy from lifetime tracking after its own release.
func (p *Platform) forget(handle string) {
	p.mu.Lock()
	delete(p.devices, handle)
	p.mu.Unlock()
}
