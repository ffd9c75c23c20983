package transport

import (
	"context"
	"crypto/ed25519"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cardlink/cardlink/internal/wire"
)

// wsLink wraps a websocket connection with a write mutex.
// gorilla/websocket does not support concurrent writes.
type wsLink struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (l *wsLink) writeFrame(f *wire.Frame) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	return l.conn.WriteJSON(f)
}

// readFrame reads and parses the next frame, enforcing an optional deadline.
func (l *wsLink) readFrame(deadline time.Time) (*wire.Frame, error) {
	if err := l.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, data, err := l.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return wire.ParseFrame(data)
}

func (l *wsLink) close() {
	l.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	l.conn.Close()
}

// Authenticator performs the connection-establishment handshake for one of
// the two peer populations.
type Authenticator interface {
	// DialHeader returns headers to present at socket upgrade.
	DialHeader() http.Header

	// Handshake runs any post-upgrade authentication exchange. A nil error
	// means the connection is authenticated and open.
	Handshake(ctx context.Context, link *wsLink, timeout time.Duration) error
}

// ControllerAuth authenticates a controller connection by presenting its
// single-use session token at socket upgrade. The router either accepts the
// upgrade (bound) or refuses it; no further frames are exchanged.
type ControllerAuth struct {
	Token string
}

// DialHeader carries the session token as a bearer credential.
func (a ControllerAuth) DialHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.Token)
	return h
}

// Handshake is a no-op: token redemption happens at upgrade time.
func (a ControllerAuth) Handshake(ctx context.Context, link *wsLink, timeout time.Duration) error {
	return nil
}

// CardhostAuth authenticates a card-host connection via challenge–response:
// the router sends a random challenge, the card host replies with its
// identifier, public key, and an Ed25519 signature over the challenge.
type CardhostAuth struct {
	CardhostID string
	Key        ed25519.PrivateKey
}

// DialHeader returns no extra headers; card hosts authenticate in-band.
func (a CardhostAuth) DialHeader() http.Header {
	return http.Header{}
}

// Handshake answers the router's challenge and waits for registration
// confirmation.
func (a CardhostAuth) Handshake(ctx context.Context, link *wsLink, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	f, err := link.readFrame(deadline)
	if err != nil {
		return ErrTransport.MsgErr("reading auth challenge", err)
	}
	if f.Type != wire.FrameAuthChallenge {
		return ErrAuthRejected.Msg("expected auth challenge, got " + string(f.Type))
	}
	var ch wire.AuthChallenge
	if err := wire.DecodePayload(f, &ch); err != nil {
		return ErrAuthRejected.MsgErr("invalid auth challenge", err)
	}

	rsp := wire.MustFrame(wire.FrameAuthResponse, wire.AuthResponse{
		CardhostID: a.CardhostID,
		PublicKey:  wire.ByteSeq(a.Key.Public().(ed25519.PublicKey)),
		Signature:  wire.ByteSeq(ed25519.Sign(a.Key, ch.Challenge)),
	})
	if err := link.writeFrame(rsp); err != nil {
		return ErrTransport.MsgErr("sending auth response", err)
	}

	f, err = link.readFrame(deadline)
	if err != nil {
		return ErrTransport.MsgErr("reading registration confirmation", err)
	}
	switch f.Type {
	case wire.FrameRegistered:
		return nil
	case wire.FrameError:
		var body wire.FrameErrorBody
		_ = wire.DecodePayload(f, &body)
		return ErrAuthRejected.Msg(body.Message)
	default:
		return ErrAuthRejected.Msg("unexpected frame during handshake: " + string(f.Type))
	}
}

// Options configures a WSConn.
type Options struct {
	CallTimeout       time.Duration // per-call response wait; default 30s
	HeartbeatInterval time.Duration // outbound heartbeat period; default 15s
	HandshakeTimeout  time.Duration // auth exchange window; default 10s
	MaxReconnectDelay time.Duration // backoff cap; default 30s
	Logger            *zerolog.Logger
}

func (o *Options) applyDefaults() {
	if o.CallTimeout == 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 15 * time.Second
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.MaxReconnectDelay == 0 {
		o.MaxReconnectDelay = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = &log.Logger
	}
}

// WSConn is a persistent duplex websocket transport multiplexing many
// concurrent calls over one physical connection by request ID. Outbound
// frames queue until the connection is authenticated-and-open; on connection
// loss every outstanding pending call is rejected with a transport error
// before reconnecting with capped exponential backoff.
type WSConn struct {
	url  string
	auth Authenticator
	opts Options

	pending *pendingCalls

	mu      sync.Mutex
	link    *wsLink
	open    bool
	queue   []*wire.Frame
	handler Handler
	eventFn func(ev *wire.Event)

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	hbSeq     atomic.Int64
}

var _ Caller = (*WSConn)(nil)
var _ Callee = (*WSConn)(nil)

// NewWSConn creates a websocket transport for the given router URL. Start
// must be called before traffic flows.
func NewWSConn(url string, auth Authenticator, opts Options) *WSConn {
	opts.applyDefaults()
	return &WSConn{
		url:     url,
		auth:    auth,
		opts:    opts,
		pending: newPendingCalls(),
		closed:  make(chan struct{}),
	}
}

// Start launches the connect/reconnect loop. It returns once the first
// connection attempt cycle has been scheduled; callers that need an open
// connection rely on outbound queueing.
func (c *WSConn) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

func (c *WSConn) run(ctx context.Context) {
	defer c.wg.Done()
	slog := c.opts.Logger.With().Str("component", "wsconn").Str("url", c.url).Logger()

	for {
		select {
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		default:
		}

		// Capped exponential backoff until a dial+handshake succeeds.
		err := retry.Do(
			func() error { return c.connect(ctx) },
			retry.Context(ctx),
			retry.Attempts(0),
			retry.DelayType(retry.BackOffDelay),
			retry.MaxDelay(c.opts.MaxReconnectDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				select {
				case <-c.closed:
					return false
				default:
					return true
				}
			}),
			retry.OnRetry(func(n uint, err error) {
				slog.Warn().Uint("attempt", n).Err(err).Msg("connect failed, retrying")
			}),
		)
		if err != nil {
			return
		}

		slog.Info().Msg("connected")
		c.serve(ctx)
		slog.Warn().Msg("connection lost")

		// Reject everything in flight before attempting to reconnect.
		c.pending.failAll(ErrClosed.Msg("connection lost"))
	}
}

// connect dials, authenticates, and flushes the outbound queue.
func (c *WSConn) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, rsp, err := dialer.DialContext(ctx, c.url, c.auth.DialHeader())
	if err != nil {
		if rsp != nil && (rsp.StatusCode == http.StatusUnauthorized || rsp.StatusCode == http.StatusForbidden || rsp.StatusCode == http.StatusConflict) {
			return retry.Unrecoverable(ErrAuthRejected.Msg("upgrade refused: " + rsp.Status))
		}
		return ErrTransport.MsgErr("dial failed", err)
	}
	link := &wsLink{conn: conn}

	if err := c.auth.Handshake(ctx, link, c.opts.HandshakeTimeout); err != nil {
		link.close()
		if errors.Is(err, ErrAuthRejected) {
			return retry.Unrecoverable(err)
		}
		return err
	}
	conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.link = link
	c.open = true
	queued := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, f := range queued {
		if err := link.writeFrame(f); err != nil {
			break
		}
	}
	return nil
}

// serve runs the read pump and heartbeat ticker until the connection drops
// or the transport closes.
func (c *WSConn) serve(ctx context.Context) {
	c.mu.Lock()
	link := c.link
	c.mu.Unlock()
	if link == nil {
		return
	}

	hbDone := make(chan struct{})
	go c.heartbeatLoop(link, hbDone)
	defer close(hbDone)

	defer func() {
		c.mu.Lock()
		c.open = false
		c.link = nil
		c.mu.Unlock()
		link.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := link.conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := wire.ParseFrame(data)
		if err != nil {
			// Unparsable envelope is a protocol violation.
			c.opts.Logger.Error().Err(err).Msg("protocol violation, closing connection")
			return
		}
		c.dispatchFrame(ctx, link, f)
	}
}

func (c *WSConn) dispatchFrame(ctx context.Context, link *wsLink, f *wire.Frame) {
	switch f.Type {
	case wire.FrameResponse:
		var rsp wire.Response
		if err := wire.DecodePayload(f, &rsp); err != nil {
			c.opts.Logger.Warn().Err(err).Msg("invalid response payload")
			return
		}
		if !c.pending.resolve(&rsp) {
			c.opts.Logger.Warn().Str("id", rsp.ID).Msg("orphaned response dropped")
		}

	case wire.FrameEvent:
		var ev wire.Event
		if err := wire.DecodePayload(f, &ev); err != nil {
			c.opts.Logger.Warn().Err(err).Msg("invalid event payload")
			return
		}
		c.mu.Lock()
		fn := c.eventFn
		c.mu.Unlock()
		if fn != nil {
			fn(&ev)
		}

	case wire.FrameRequest:
		var req wire.Request
		if err := wire.DecodePayload(f, &req); err != nil {
			c.opts.Logger.Warn().Err(err).Msg("invalid request payload")
			return
		}
		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		if handler == nil {
			c.opts.Logger.Warn().Str("id", req.ID).Msg("request received with no handler")
			return
		}
		// Each inbound request dispatches independently.
		go func() {
			rsp := handler(ctx, &req)
			if rsp == nil {
				rsp = wire.NewErrorResponse(req.ID, wire.CodeInternalError, "handler returned no response")
			}
			if err := link.writeFrame(wire.MustFrame(wire.FrameResponse, rsp)); err != nil {
				c.opts.Logger.Warn().Err(err).Str("id", req.ID).Msg("unable to send response")
			}
		}()

	case wire.FrameHeartbeat:
		// Peer liveness; nothing to do on this side.

	case wire.FrameError:
		var body wire.FrameErrorBody
		_ = wire.DecodePayload(f, &body)
		c.opts.Logger.Warn().Str("code", string(body.Code)).Str("message", body.Message).Msg("error frame from router")
	}
}

func (c *WSConn) heartbeatLoop(link *wsLink, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.closed:
			return
		case <-ticker.C:
			f := wire.MustFrame(wire.FrameHeartbeat, wire.Heartbeat{Seq: c.hbSeq.Add(1)})
			if err := link.writeFrame(f); err != nil {
				return
			}
		}
	}
}

// send writes the frame if the connection is open, otherwise queues it for
// delivery after the next successful handshake.
func (c *WSConn) send(f *wire.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if c.open && c.link != nil {
		return c.link.writeFrame(f)
	}
	c.queue = append(c.queue, f)
	return nil
}

// Call sends a request and waits for its matching response, a timeout, or
// transport closure. At most one pending call per request ID.
func (c *WSConn) Call(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	pc, err := c.pending.add(req.ID)
	if err != nil {
		return nil, err
	}

	if err := c.send(wire.MustFrame(wire.FrameRequest, req)); err != nil {
		c.pending.remove(req.ID)
		return nil, err
	}

	timer := time.NewTimer(c.opts.CallTimeout)
	defer timer.Stop()

	select {
	case res := <-pc.done:
		return res.rsp, res.err
	case <-timer.C:
		c.pending.remove(req.ID)
		return nil, ErrTimeout.Msg("no response for " + string(req.Method))
	case <-ctx.Done():
		c.pending.remove(req.ID)
		return nil, ErrClosed.MsgErr("context done", ctx.Err())
	case <-c.closed:
		c.pending.remove(req.ID)
		return nil, ErrClosed
	}
}

// OnEvent registers the inbound event callback.
func (c *WSConn) OnEvent(fn func(ev *wire.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventFn = fn
}

// OnRequest registers the inbound request handler.
func (c *WSConn) OnRequest(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// EmitEvent sends an event frame, queueing it if the connection is not open.
func (c *WSConn) EmitEvent(ev *wire.Event) error {
	return c.send(wire.MustFrame(wire.FrameEvent, ev))
}

// Close tears the transport down deterministically: the reconnect loop
// stops, the socket closes, and all pending calls are rejected.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		link := c.link
		c.link = nil
		c.open = false
		c.mu.Unlock()
		if link != nil {
			link.close()
		}
		c.pending.failAll(ErrClosed)
	})
	c.wg.Wait()
	return nil
}
