package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cardlink/cardlink/internal/common/httpx"
	"github.com/cardlink/cardlink/internal/common/uuid"
	"github.com/cardlink/cardlink/internal/router/config"
	"github.com/cardlink/cardlink/internal/router/eventbus"
	"github.com/cardlink/cardlink/internal/wire"
)

// handleControllerWS redeems the session token and, on success, upgrades the
// connection and binds it to the session's card host. Redemption happens
// before the upgrade: a refused token answers with a plain HTTP error the
// dialer can read.
func (s *Server) handleControllerWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		httpx.SendError(w, ErrAuthFailed.Msg("missing session token"))
		return
	}
	claims, aerr := s.tokens.Redeem(token)
	if aerr != nil {
		log.Ctx(r.Context()).Warn().Err(aerr).Msg("session token refused")
		httpx.SendError(w, aerr)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("controller upgrade failed")
		return
	}
	peer := &wsPeer{conn: conn}

	now := time.Now()
	sess := &controllerSession{
		SessionID:     claims.SessionID,
		CardhostID:    claims.CardhostID,
		ConnectedAt:   now,
		peer:          peer,
		lastHeartbeat: now,
	}
	s.registry.registerController(sess)
	slog := log.With().
		Str("session_id", sess.SessionID).
		Str("cardhost_id", sess.CardhostID).
		Logger()
	slog.Info().Msg("controller connected")

	events, unsubscribe := s.bus.Subscribe(eventTopic(sess.CardhostID), config.Config().Events.BufferSize)
	done := make(chan struct{})
	go pumpEvents(peer, events, done, &slog)

	s.runController(sess, &slog)

	close(done)
	unsubscribe()
	s.registry.unregisterController(sess)
	s.routes.dropForController(sess.SessionID)
	peer.close()
	slog.Info().Msg("controller disconnected")
}

// pumpEvents forwards bus events for the bound card host to the controller
// socket until the subscription closes or the controller leaves.
func pumpEvents(peer *wsPeer, events <-chan eventbus.Event, done <-chan struct{}, slog *zerolog.Logger) {
	for {
		select {
		case <-done:
			return
		case item, ok := <-events:
			if !ok {
				return
			}
			ev, ok := item.Data.(*wire.Event)
			if !ok {
				continue
			}
			if err := peer.sendFrame(wire.MustFrame(wire.FrameEvent, ev)); err != nil {
				slog.Warn().Err(err).Msg("unable to deliver event")
				return
			}
		}
	}
}

// runController is the read loop for a bound controller.
func (s *Server) runController(sess *controllerSession, slog *zerolog.Logger) {
	for {
		_, data, err := sess.peer.conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := wire.ParseFrame(data)
		if err != nil {
			slog.Error().Err(err).Msg("protocol violation, closing connection")
			return
		}

		switch f.Type {
		case wire.FrameHeartbeat:
			sess.touch()

		case wire.FrameRequest:
			var req wire.Request
			if err := wire.DecodePayload(f, &req); err != nil {
				slog.Warn().Err(err).Msg("invalid request payload")
				continue
			}
			s.forwardRequest(sess, &req, slog)

		default:
			slog.Warn().Str("type", string(f.Type)).Msg("unexpected frame from controller")
		}
	}
}

// forwardRequest stamps the request with a router-unique ID and sends it to
// the bound card host. The original ID goes into the route table and is
// restored on the response.
func (s *Server) forwardRequest(sess *controllerSession, req *wire.Request, slog *zerolog.Logger) {
	respond := func(rsp *wire.Response) {
		if err := sess.peer.sendFrame(wire.MustFrame(wire.FrameResponse, rsp)); err != nil {
			slog.Warn().Err(err).Str("id", req.ID).Msg("unable to deliver response")
		}
	}

	if !req.Method.Valid() {
		respond(wire.NewErrorResponse(req.ID, wire.CodeMethodNotFound, "unknown method: "+string(req.Method)))
		return
	}
	host, ok := s.registry.cardhost(sess.CardhostID)
	if !ok {
		respond(wire.NewErrorResponse(req.ID, wire.CodeCardhostNotConnected, "cardhost disconnected"))
		return
	}

	routerID := uuid.NewString()
	s.routes.add(routerID, pendingRoute{
		ControllerSessionID: sess.SessionID,
		OriginalID:          req.ID,
		CardhostID:          sess.CardhostID,
		Method:              req.Method,
	})

	stamped := *req
	stamped.ID = routerID
	if err := host.peer.sendFrame(wire.MustFrame(wire.FrameRequest, &stamped)); err != nil {
		s.routes.take(routerID)
		respond(wire.NewErrorResponse(req.ID, wire.CodeCardhostNotConnected, "cardhost write failed"))
	}
}

// bearerToken extracts the session token from the Authorization header or,
// for clients that cannot set headers on a websocket dial, the token query
// parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
