package adapter

import (
	"context"
	"encoding/json"

	"github.com/cardlink/cardlink/internal/cardbus"
	"github.com/cardlink/cardlink/internal/wire"
)

func marshalEventData(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

// platform.* handlers operate directly on the wrapped platform.

func (a *Adapter) handlePlatformInit(ctx context.Context, req *wire.Request) *wire.Response {
	if err := a.platform.Init(ctx); err != nil {
		return errorResponse(req.ID, err)
	}
	return resultResponse(req.ID, struct{}{})
}

func (a *Adapter) handlePlatformRelease(ctx context.Context, req *wire.Request) *wire.Response {
	// The platform releases all outstanding objects; drop their handles
	// first so nothing resolves mid-teardown.
	a.handles.clear()
	a.mu.Lock()
	a.deviceHandles = make(map[string]string)
	a.mu.Unlock()

	if err := a.platform.Release(ctx); err != nil {
		return errorResponse(req.ID, err)
	}
	return resultResponse(req.ID, struct{}{})
}

func (a *Adapter) handleDeviceInfo(ctx context.Context, req *wire.Request) *wire.Response {
	infos, err := a.platform.DeviceInfo(ctx)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	out := make([]wire.DeviceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, wire.DeviceInfo{ID: info.ID, Name: info.Name})
	}
	return resultResponse(req.ID, wire.DeviceInfoResult{Devices: out})
}

func (a *Adapter) handleAcquireDevice(ctx context.Context, req *wire.Request) *wire.Response {
	var params wire.AcquireDeviceParams
	if err := wire.DecodeParams(req, &params); err != nil {
		return wire.NewErrorResponse(req.ID, wire.CodeInvalidParams, "invalid params: "+err.Error())
	}
	device, err := a.platform.AcquireDevice(ctx, params.DeviceID)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	// The handle is registered before the response referencing it is sent.
	handle := a.handles.mint(device, "")
	a.mu.Lock()
	a.deviceHandles[params.DeviceID] = handle
	a.mu.Unlock()
	return resultResponse(req.ID, wire.AcquireDeviceResult{Handle: handle})
}

// device.* and card.* handlers resolve their target handle first, failing
// with HandleNotFound if absent (stale release, or malformed request).

func (a *Adapter) resolveDevice(req *wire.Request) (*handleEntry, string, cardbus.Device, *wire.Response) {
	var params wire.HandleParams
	if err := wire.DecodeParams(req, &params); err != nil {
		return nil, "", nil, wire.NewErrorResponse(req.ID, wire.CodeInvalidParams, "invalid params: "+err.Error())
	}
	entry, ok := a.handles.get(params.Handle)
	if !ok {
		return nil, "", nil, wire.NewErrorResponse(req.ID, wire.CodeHandleNotFound, "no such handle")
	}
	device, ok := entry.obj.(cardbus.Device)
	if !ok {
		return nil, "", nil, wire.NewErrorResponse(req.ID, wire.CodeHandleNotFound, "handle is not a device")
	}
	return entry, params.Handle, device, nil
}

func (a *Adapter) resolveCard(req *wire.Request, handle string) (*handleEntry, cardbus.Card, *wire.Response) {
	entry, ok := a.handles.get(handle)
	if !ok {
		return nil, nil, wire.NewErrorResponse(req.ID, wire.CodeHandleNotFound, "no such handle")
	}
	card, ok := entry.obj.(cardbus.Card)
	if !ok {
		return nil, nil, wire.NewErrorResponse(req.ID, wire.CodeHandleNotFound, "handle is not a card")
	}
	return entry, card, nil
}

func (a *Adapter) handleStartSession(ctx context.Context, req *wire.Request) *wire.Response {
	entry, handle, device, errRsp := a.resolveDevice(req)
	if errRsp != nil {
		return errRsp
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	card, err := device.StartSession(ctx)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	cardHandle := a.handles.mint(card, handle)
	return resultResponse(req.ID, wire.StartSessionResult{Handle: cardHandle})
}

func (a *Adapter) handleSessionActive(ctx context.Context, req *wire.Request) *wire.Response {
	entry, _, device, errRsp := a.resolveDevice(req)
	if errRsp != nil {
		return errRsp
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return resultResponse(req.ID, wire.SessionActiveResult{Active: device.SessionActive()})
}

func (a *Adapter) handleDeviceRelease(ctx context.Context, req *wire.Request) *wire.Response {
	entry, handle, device, errRsp := a.resolveDevice(req)
	if errRsp != nil {
		return errRsp
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	// Releasing a device tears down its card sessions with it.
	a.handles.remove(handle)
	a.handles.removeChildren(handle)
	a.mu.Lock()
	delete(a.deviceHandles, device.ID())
	a.mu.Unlock()

	if err := device.Release(ctx); err != nil {
		return errorResponse(req.ID, err)
	}
	return resultResponse(req.ID, struct{}{})
}

func (a *Adapter) transmitParams(req *wire.Request) (wire.TransmitParams, *wire.Response) {
	var params wire.TransmitParams
	if err := wire.DecodeParams(req, &params); err != nil {
		return params, wire.NewErrorResponse(req.ID, wire.CodeInvalidParams, "invalid params: "+err.Error())
	}
	if (params.Command == nil) == (len(params.Raw) == 0) {
		return params, wire.NewErrorResponse(req.ID, wire.CodeInvalidParams, "exactly one of command or raw required")
	}
	return params, nil
}

func (a *Adapter) handleTransmit(ctx context.Context, req *wire.Request) *wire.Response {
	params, errRsp := a.transmitParams(req)
	if errRsp != nil {
		return errRsp
	}
	entry, card, errRsp := a.resolveCard(req, params.Handle)
	if errRsp != nil {
		return errRsp
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	var rsp cardbus.Response
	var err error
	if params.Command != nil {
		cmd := cardbus.Command{
			Cla:  params.Command.Cla,
			Ins:  params.Command.Ins,
			P1:   params.Command.P1,
			P2:   params.Command.P2,
			Data: []byte(params.Command.Data),
			Le:   params.Command.Le,
		}
		rsp, err = card.Transmit(ctx, cmd)
	} else {
		rsp, err = card.TransmitRaw(ctx, []byte(params.Raw))
	}
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return resultResponse(req.ID, wire.TransmitResult{
		Data: wire.ByteSeq(rsp.Data),
		SW1:  rsp.SW1,
		SW2:  rsp.SW2,
	})
}

func (a *Adapter) cardHandleParams(req *wire.Request) (string, *wire.Response) {
	var params wire.HandleParams
	if err := wire.DecodeParams(req, &params); err != nil {
		return "", wire.NewErrorResponse(req.ID, wire.CodeInvalidParams, "invalid params: "+err.Error())
	}
	return params.Handle, nil
}

func (a *Adapter) handleATR(ctx context.Context, req *wire.Request) *wire.Response {
	handle, errRsp := a.cardHandleParams(req)
	if errRsp != nil {
		return errRsp
	}
	entry, card, errRsp := a.resolveCard(req, handle)
	if errRsp != nil {
		return errRsp
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	atr, err := card.ATR(ctx)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return resultResponse(req.ID, wire.ATRResult{ATR: wire.ByteSeq(atr)})
}

func (a *Adapter) handleReset(ctx context.Context, req *wire.Request) *wire.Response {
	handle, errRsp := a.cardHandleParams(req)
	if errRsp != nil {
		return errRsp
	}
	entry, card, errRsp := a.resolveCard(req, handle)
	if errRsp != nil {
		return errRsp
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := card.Reset(ctx); err != nil {
		return errorResponse(req.ID, err)
	}
	return resultResponse(req.ID, struct{}{})
}

func (a *Adapter) handleCardRelease(ctx context.Context, req *wire.Request) *wire.Response {
	handle, errRsp := a.cardHandleParams(req)
	if errRsp != nil {
		return errRsp
	}
	entry, card, errRsp := a.resolveCard(req, handle)
	if errRsp != nil {
		return errRsp
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	a.handles.remove(handle)
	if err := card.Release(ctx); err != nil {
		return errorResponse(req.ID, err)
	}
	return resultResponse(req.ID, struct{}{})
}
