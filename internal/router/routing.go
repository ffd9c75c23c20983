package router

import (
	"sync"

	"github.com/cardlink/cardlink/internal/wire"
)

// pendingRoute records where a forwarded request came from so its response
// finds the way back. The router stamps each forwarded request with a fresh
// ID; OriginalID is restored on the response, which keeps request IDs chosen
// independently by different controllers from colliding at the card host.
type pendingRoute struct {
	ControllerSessionID string
	OriginalID          string
	CardhostID          string
	Method              wire.Method
}

// routeTable maps router-stamped request IDs to their pending routes.
type routeTable struct {
	mu     sync.Mutex
	routes map[string]pendingRoute
}

func newRouteTable() *routeTable {
	return &routeTable{routes: make(map[string]pendingRoute)}
}

func (t *routeTable) add(routerID string, route pendingRoute) {
	t.mu.Lock()
	t.routes[routerID] = route
	t.mu.Unlock()
}

// take removes and returns the route for a router-stamped ID. A miss means
// the response is orphaned: its controller left, or the route was already
// failed when the card host dropped.
func (t *routeTable) take(routerID string) (pendingRoute, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	route, ok := t.routes[routerID]
	if ok {
		delete(t.routes, routerID)
	}
	return route, ok
}

// takeForCardhost removes and returns all routes destined for a card host.
// Called when the host drops so each route can be failed back to its
// controller.
func (t *routeTable) takeForCardhost(cardhostID string) map[string]pendingRoute {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]pendingRoute)
	for id, route := range t.routes {
		if route.CardhostID == cardhostID {
			out[id] = route
			delete(t.routes, id)
		}
	}
	return out
}

// dropForController discards routes owned by a departed controller. Their
// responses, if any arrive, become orphans and are dropped.
func (t *routeTable) dropForController(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, route := range t.routes {
		if route.ControllerSessionID == sessionID {
			delete(t.routes, id)
		}
	}
}

func (t *routeTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.routes)
}
