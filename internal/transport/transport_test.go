package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlink/cardlink/internal/wire"
)

func TestLoopbackCall(t *testing.T) {
	lb := NewLoopback()
	lb.OnRequest(func(ctx context.Context, req *wire.Request) *wire.Response {
		rsp, err := wire.NewResultResponse(req.ID, map[string]bool{"ok": true})
		require.NoError(t, err)
		return rsp
	})

	req, err := wire.NewRequest("r1", wire.MethodPlatformInit, nil)
	require.NoError(t, err)

	rsp, err := lb.Call(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "r1", rsp.ID)
	assert.Nil(t, rsp.Error)
}

func TestLoopbackNoHandler(t *testing.T) {
	lb := NewLoopback()
	req, _ := wire.NewRequest("r1", wire.MethodPlatformInit, nil)
	_, err := lb.Call(context.Background(), req)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestLoopbackEvents(t *testing.T) {
	lb := NewLoopback()
	var got *wire.Event
	lb.OnEvent(func(ev *wire.Event) { got = ev })

	err := lb.EmitEvent(&wire.Event{Name: wire.EventCardInserted, TargetKind: wire.TargetDevice, TargetID: "h1"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, wire.EventCardInserted, got.Name)
}

func TestLoopbackClosed(t *testing.T) {
	lb := NewLoopback()
	lb.OnRequest(func(ctx context.Context, req *wire.Request) *wire.Response { return nil })
	require.NoError(t, lb.Close())

	req, _ := wire.NewRequest("r1", wire.MethodPlatformInit, nil)
	_, err := lb.Call(context.Background(), req)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, lb.EmitEvent(&wire.Event{Name: "x"}), ErrClosed)
}

func TestPendingCallsDuplicateID(t *testing.T) {
	p := newPendingCalls()
	_, err := p.add("r1")
	require.NoError(t, err)
	_, err = p.add("r1")
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestPendingCallsResolveOnce(t *testing.T) {
	p := newPendingCalls()
	pc, err := p.add("r1")
	require.NoError(t, err)

	ok := p.resolve(&wire.Response{ID: "r1"})
	assert.True(t, ok)
	// second resolution for the same id is an orphan
	ok = p.resolve(&wire.Response{ID: "r1"})
	assert.False(t, ok)

	res := <-pc.done
	assert.NoError(t, res.err)
	assert.Equal(t, "r1", res.rsp.ID)
	assert.Equal(t, 0, p.count())
}

func TestPendingCallsFailAll(t *testing.T) {
	p := newPendingCalls()
	var pcs []*pendingCall
	for _, id := range []string{"a", "b", "c"} {
		pc, err := p.add(id)
		require.NoError(t, err)
		pcs = append(pcs, pc)
	}
	p.failAll(ErrClosed)
	for _, pc := range pcs {
		res := <-pc.done
		assert.ErrorIs(t, res.err, ErrClosed)
		assert.ErrorIs(t, res.err, ErrTransport)
	}
	assert.Equal(t, 0, p.count())
}

func TestPendingCallsConcurrent(t *testing.T) {
	p := newPendingCalls()
	const n = 64

	var wg sync.WaitGroup
	results := make([]*wire.Response, n)
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "req-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
	}

	for i, id := range ids {
		pc, err := p.add(id)
		require.NoError(t, err)
		wg.Add(1)
		go func(i int, pc *pendingCall) {
			defer wg.Done()
			res := <-pc.done
			results[i] = res.rsp
		}(i, pc)
	}

	for _, id := range ids {
		assert.True(t, p.resolve(&wire.Response{ID: id}))
	}
	wg.Wait()

	// every response resolved exactly the pending call with its id
	for i, id := range ids {
		require.NotNil(t, results[i])
		assert.Equal(t, id, results[i].ID)
	}
}

func TestOneshotCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wire.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		rsp, err := wire.NewResultResponse(req.ID, wire.SessionActiveResult{Active: true})
		require.NoError(t, err)
		json.NewEncoder(w).Encode(rsp)
	}))
	defer srv.Close()

	o := NewOneshot(srv.URL, srv.Client())
	req, err := wire.NewRequest("r1", wire.MethodDeviceSessionActive, wire.HandleParams{Handle: "h1"})
	require.NoError(t, err)

	rsp, err := o.Call(context.Background(), req)
	require.NoError(t, err)

	var result wire.SessionActiveResult
	require.NoError(t, wire.DecodeResult(rsp, &result))
	assert.True(t, result.Active)
}

func TestOneshotMismatchedID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rsp, _ := wire.NewResultResponse("different-id", nil)
		rsp.Result = json.RawMessage(`{}`)
		json.NewEncoder(w).Encode(rsp)
	}))
	defer srv.Close()

	o := NewOneshot(srv.URL, srv.Client())
	req, _ := wire.NewRequest("r1", wire.MethodPlatformInit, nil)
	_, err := o.Call(context.Background(), req)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestOneshotServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	o := NewOneshot(srv.URL, srv.Client())
	req, _ := wire.NewRequest("r1", wire.MethodPlatformInit, nil)
	_, err := o.Call(context.Background(), req)
	assert.ErrorIs(t, err, ErrTransport)
}
