// Package cardhost implements the host agent that exposes a local card
// platform to remote controllers through a cardlink router. The agent dials
// the router, proves its identity with a challenge-response handshake, and
// serves forwarded platform, device, and card requests.
package cardhost

import (
	"context"
	"crypto/ed25519"
	"strings"

	"github.com/cardlink/cardlink/internal/adapter"
	"github.com/cardlink/cardlink/internal/cardbus"
	"github.com/cardlink/cardlink/internal/transport"
)

// Options configures an Agent.
type Options struct {
	RouterURL  string // router base URL, ws:// or wss://
	CardhostID string
	Key        ed25519.PrivateKey
	Transport  transport.Options
}

// Agent connects one local card platform to a router. It owns the websocket
// connection, including reconnects, and the adapter serving requests on it.
type Agent struct {
	conn    *transport.WSConn
	adapter *adapter.Adapter
}

// New builds an agent for the given platform. Start must be called before
// any traffic flows.
func New(platform cardbus.Platform, opts Options) *Agent {
	url := strings.TrimSuffix(opts.RouterURL, "/") + "/ws/cardhost"
	conn := transport.NewWSConn(url, transport.CardhostAuth{
		CardhostID: opts.CardhostID,
		Key:        opts.Key,
	}, opts.Transport)
	return &Agent{
		conn:    conn,
		adapter: adapter.New(platform, conn),
	}
}

// Start registers the request handler and launches the connection loop.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.adapter.Start(ctx); err != nil {
		return err
	}
	a.conn.Start(ctx)
	return nil
}

// Stop tears the agent down: the platform is released and the connection
// closed, rejecting any in-flight calls.
func (a *Agent) Stop(ctx context.Context) error {
	return a.adapter.Stop(ctx)
}
