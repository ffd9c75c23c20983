// Package adapter implements the callee side: it wraps a genuine local
// cardbus.Platform plus a callee-role transport, dispatches inbound requests
// through a closed dispatch table, mints opaque handles for returned
// device/card objects, and forwards native card-presence notices as events.
package adapter

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cardlink/cardlink/internal/cardbus"
	"github.com/cardlink/cardlink/internal/transport"
	"github.com/cardlink/cardlink/internal/wire"
)

// Adapter bridges a local platform to a callee transport.
type Adapter struct {
	platform cardbus.Platform
	callee   transport.Callee
	handles  *handleTable
	dispatch map[wire.Method]transport.Handler
	logger   zerolog.Logger

	mu            sync.Mutex
	started       bool
	deviceHandles map[string]string // deviceID -> device handle

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an adapter around the given platform and callee transport.
// The platform instance is passed in explicitly; the adapter holds no global
// state, so independent instances can run concurrently.
func New(platform cardbus.Platform, callee transport.Callee) *Adapter {
	a := &Adapter{
		platform:      platform,
		callee:        callee,
		handles:       newHandleTable(),
		logger:        log.With().Str("component", "adapter").Logger(),
		deviceHandles: make(map[string]string),
		stopCh:        make(chan struct{}),
	}
	a.dispatch = map[wire.Method]transport.Handler{
		wire.MethodPlatformInit:          a.handlePlatformInit,
		wire.MethodPlatformRelease:       a.handlePlatformRelease,
		wire.MethodPlatformDeviceInfo:    a.handleDeviceInfo,
		wire.MethodPlatformAcquireDevice: a.handleAcquireDevice,
		wire.MethodDeviceStartSession:    a.handleStartSession,
		wire.MethodDeviceSessionActive:   a.handleSessionActive,
		wire.MethodDeviceRelease:         a.handleDeviceRelease,
		wire.MethodCardTransmit:          a.handleTransmit,
		wire.MethodCardATR:               a.handleATR,
		wire.MethodCardReset:             a.handleReset,
		wire.MethodCardRelease:           a.handleCardRelease,
	}
	return a
}

// Start registers the inbound-request handler and, if the platform reports
// card-presence notices, begins forwarding them as events.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("adapter already started")
	}
	a.started = true
	a.mu.Unlock()

	a.callee.OnRequest(a.HandleRequest)

	if notifier, ok := a.platform.(cardbus.Notifier); ok {
		a.wg.Add(1)
		go a.forwardNotices(notifier)
	}
	return nil
}

// Stop releases the wrapped platform and closes the transport. The transport
// closes regardless of whether platform release succeeded, so no call can
// dispatch against a half-torn-down adapter.
func (a *Adapter) Stop(ctx context.Context) error {
	var releaseErr error
	a.stopOnce.Do(func() {
		close(a.stopCh)
		a.handles.clear()
		if err := a.platform.Release(ctx); err != nil && !errors.Is(err, cardbus.ErrReleased) {
			a.logger.Error().Err(err).Msg("platform release failed")
			releaseErr = err
		}
		if err := a.callee.Close(); err != nil {
			a.logger.Error().Err(err).Msg("transport close failed")
		}
	})
	a.wg.Wait()
	return releaseErr
}

// HandleRequest is the single dispatch function registered with the
// transport. Unknown methods answer a business error; they never crash the
// connection.
func (a *Adapter) HandleRequest(ctx context.Context, req *wire.Request) *wire.Response {
	fn, ok := a.dispatch[req.Method]
	if !ok {
		a.logger.Warn().Str("method", string(req.Method)).Msg("unknown method")
		return wire.NewErrorResponse(req.ID, wire.CodeMethodNotFound, "unknown method: "+string(req.Method))
	}
	return fn(ctx, req)
}

// forwardNotices turns native card-presence notices into handle-scoped
// events. Notices for readers that have not been acquired carry no handle.
func (a *Adapter) forwardNotices(notifier cardbus.Notifier) {
	defer a.wg.Done()
	for {
		select {
		case <-a.stopCh:
			return
		case n, ok := <-notifier.Notices():
			if !ok {
				return
			}
			name := wire.EventCardRemoved
			if n.Inserted {
				name = wire.EventCardInserted
			}
			a.mu.Lock()
			handle := a.deviceHandles[n.DeviceID]
			a.mu.Unlock()

			data, err := marshalEventData(wire.CardNoticeData{DeviceID: n.DeviceID})
			if err != nil {
				continue
			}
			ev := &wire.Event{
				Name:       name,
				TargetKind: wire.TargetDevice,
				TargetID:   handle,
				Data:       data,
			}
			if err := a.callee.EmitEvent(ev); err != nil {
				a.logger.Warn().Err(err).Str("event", name).Msg("unable to emit event")
			}
		}
	}
}

// errorResponse maps a platform error onto a wire error response.
func errorResponse(id string, err error) *wire.Response {
	code := wire.CodeInternalError
	switch {
	case errors.Is(err, cardbus.ErrNotInitialized):
		code = wire.CodeNotInitialized
	case errors.Is(err, cardbus.ErrReleased):
		code = wire.CodeAlreadyReleased
	case errors.Is(err, cardbus.ErrDeviceNotFound):
		code = wire.CodeDeviceNotFound
	case errors.Is(err, cardbus.ErrSessionActive):
		code = wire.CodeSessionAlreadyActive
	}
	return wire.NewErrorResponse(id, code, err.Error())
}

func resultResponse(id string, result any) *wire.Response {
	rsp, err := wire.NewResultResponse(id, result)
	if err != nil {
		return wire.NewErrorResponse(id, wire.CodeInternalError, "unable to encode result")
	}
	return rsp
}
