package router

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlink/cardlink/internal/wire"
)

func testKey(t *testing.T) ed25519.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}

func TestRegistryReplaceSameKey(t *testing.T) {
	r := newRegistry()
	key := testKey(t)

	first := &cardhostSession{ID: "HABC12345", PublicKey: key}
	replaced, err := r.registerCardhost(first)
	require.Nil(t, err)
	assert.Nil(t, replaced)

	second := &cardhostSession{ID: "HABC12345", PublicKey: key}
	replaced, err = r.registerCardhost(second)
	require.Nil(t, err)
	assert.Same(t, first, replaced)

	// the stale session's teardown must not evict its replacement
	assert.False(t, r.unregisterCardhost(first))
	got, ok := r.cardhost("HABC12345")
	require.True(t, ok)
	assert.Same(t, second, got)

	assert.True(t, r.unregisterCardhost(second))
	_, ok = r.cardhost("HABC12345")
	assert.False(t, ok)
}

func TestRegistryRejectsDifferentKey(t *testing.T) {
	r := newRegistry()

	first := &cardhostSession{ID: "HABC12345", PublicKey: testKey(t)}
	_, err := r.registerCardhost(first)
	require.Nil(t, err)

	imposter := &cardhostSession{ID: "HABC12345", PublicKey: testKey(t)}
	_, err = r.registerCardhost(imposter)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrCardhostConflict)
}

func TestRouteTableTake(t *testing.T) {
	rt := newRouteTable()
	rt.add("router-1", pendingRoute{ControllerSessionID: "c1", OriginalID: "r1", CardhostID: "HAAA11111"})

	route, ok := rt.take("router-1")
	require.True(t, ok)
	assert.Equal(t, "r1", route.OriginalID)

	_, ok = rt.take("router-1")
	assert.False(t, ok, "a route resolves at most once")
}

func TestRouteTableTakeForCardhost(t *testing.T) {
	rt := newRouteTable()
	rt.add("a", pendingRoute{ControllerSessionID: "c1", OriginalID: "r1", CardhostID: "HGONE1234", Method: wire.MethodCardTransmit})
	rt.add("b", pendingRoute{ControllerSessionID: "c2", OriginalID: "r1", CardhostID: "HGONE1234", Method: wire.MethodCardATR})
	rt.add("c", pendingRoute{ControllerSessionID: "c1", OriginalID: "r2", CardhostID: "HSTAY5678"})

	failed := rt.takeForCardhost("HGONE1234")
	assert.Len(t, failed, 2)
	assert.Equal(t, 1, rt.count(), "routes for other cardhosts survive")
}

func TestRouteTableDropForController(t *testing.T) {
	rt := newRouteTable()
	rt.add("a", pendingRoute{ControllerSessionID: "c1", OriginalID: "r1", CardhostID: "HAAA11111"})
	rt.add("b", pendingRoute{ControllerSessionID: "c2", OriginalID: "r1", CardhostID: "HAAA11111"})

	rt.dropForController("c1")
	assert.Equal(t, 1, rt.count())

	_, ok := rt.take("b")
	assert.True(t, ok)
}

func TestSessionHeartbeatTracking(t *testing.T) {
	s := &cardhostSession{lastHeartbeat: time.Now().Add(-time.Hour)}
	assert.Greater(t, s.sinceHeartbeat(), 30*time.Minute)
	s.touch()
	assert.Less(t, s.sinceHeartbeat(), time.Minute)
}
