package router

import (
	"crypto/ed25519"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cardlink/cardlink/internal/common"
	"github.com/cardlink/cardlink/internal/router/config"
	"github.com/cardlink/cardlink/internal/wire"
)

// eventTopic is the bus topic carrying a card host's events.
func eventTopic(cardhostID string) string {
	return "events." + cardhostID
}

// handleCardhostWS upgrades a card-host connection and runs it until the
// socket drops. Registration requires a challenge-response proof of the
// host's Ed25519 key before any traffic is routed.
func (s *Server) handleCardhostWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("cardhost upgrade failed")
		return
	}
	peer := &wsPeer{conn: conn}

	sess, ok := s.authenticateCardhost(peer, log.Ctx(r.Context()))
	if !ok {
		peer.close()
		return
	}
	slog := log.With().Str("cardhost_id", sess.ID).Logger()
	slog.Info().Msg("cardhost registered")

	s.runCardhost(sess, &slog)

	// Teardown. Guarded unregister: if this session was replaced by a
	// reconnect under the same key, the replacement owns the ID now and
	// this teardown must not disturb it.
	if s.registry.unregisterCardhost(sess) {
		s.bus.CloseTopic(eventTopic(sess.ID))
		s.failRoutesForCardhost(sess.ID)
		slog.Info().Msg("cardhost disconnected")
	}
	peer.close()
}

// authenticateCardhost runs the challenge-response handshake and registers
// the session. The whole exchange must complete inside the handshake window.
func (s *Server) authenticateCardhost(peer *wsPeer, slog *zerolog.Logger) (*cardhostSession, bool) {
	window := config.Config().Auth.GetHandshakeWindowOrDefault()
	deadline := time.Now().Add(window)

	challenge, err := common.NewChallenge()
	if err != nil {
		slog.Error().Err(err).Msg("unable to generate challenge")
		return nil, false
	}
	if err := peer.sendFrame(wire.MustFrame(wire.FrameAuthChallenge, wire.AuthChallenge{
		Challenge: wire.ByteSeq(challenge),
	})); err != nil {
		return nil, false
	}

	if err := peer.conn.SetReadDeadline(deadline); err != nil {
		return nil, false
	}
	_, data, err := peer.conn.ReadMessage()
	if err != nil {
		slog.Warn().Err(err).Msg("no auth response within handshake window")
		return nil, false
	}
	f, err := wire.ParseFrame(data)
	if err != nil || f.Type != wire.FrameAuthResponse {
		peer.sendError(wire.CodeAuthFailed, "expected auth response")
		return nil, false
	}
	var rsp wire.AuthResponse
	if err := wire.DecodePayload(f, &rsp); err != nil {
		peer.sendError(wire.CodeAuthFailed, "invalid auth response")
		return nil, false
	}
	if rsp.CardhostID == "" || len(rsp.PublicKey) != ed25519.PublicKeySize {
		peer.sendError(wire.CodeAuthFailed, "missing cardhost id or malformed public key")
		return nil, false
	}
	if !ed25519.Verify(ed25519.PublicKey(rsp.PublicKey), challenge, rsp.Signature) {
		slog.Warn().Str("cardhost_id", rsp.CardhostID).Msg("bad challenge signature")
		peer.sendError(wire.CodeAuthFailed, "challenge signature verification failed")
		return nil, false
	}

	now := time.Now()
	sess := &cardhostSession{
		ID:            rsp.CardhostID,
		PublicKey:     ed25519.PublicKey(rsp.PublicKey),
		ConnectedAt:   now,
		peer:          peer,
		lastHeartbeat: now,
	}
	replaced, aerr := s.registry.registerCardhost(sess)
	if aerr != nil {
		peer.sendError(wire.CodeAuthFailed, aerr.Error())
		return nil, false
	}
	if replaced != nil {
		// Same key reconnecting; the old socket is stale.
		replaced.peer.close()
	}

	if err := peer.sendFrame(wire.MustFrame(wire.FrameRegistered, wire.Registered{
		CardhostID: sess.ID,
	})); err != nil {
		s.registry.unregisterCardhost(sess)
		return nil, false
	}
	peer.conn.SetReadDeadline(time.Time{})
	return sess, true
}

// runCardhost is the read loop for a registered card host.
func (s *Server) runCardhost(sess *cardhostSession, slog *zerolog.Logger) {
	sendTimeout := config.Config().Events.GetSendTimeoutOrDefault()

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

		case wire.FrameResponse:
			var rsp wire.Response
			if err := wire.DecodePayload(f, &rsp); err != nil {
				slog.Warn().Err(err).Msg("invalid response payload")
				continue
			}
			s.routeResponse(&rsp, slog)

		case wire.FrameEvent:
			var ev wire.Event
			if err := wire.DecodePayload(f, &ev); err != nil {
				slog.Warn().Err(err).Msg("invalid event payload")
				continue
			}
			s.bus.Publish(eventTopic(sess.ID), &ev, sendTimeout)

		default:
			slog.Warn().Str("type", string(f.Type)).Msg("unexpected frame from cardhost")
		}
	}
}

// routeResponse restores the original request ID and forwards the response
// to the controller that issued the request. Responses with no live route
// are dropped.
func (s *Server) routeResponse(rsp *wire.Response, slog *zerolog.Logger) {
	route, ok := s.routes.take(rsp.ID)
	if !ok {
		slog.Warn().Str("id", rsp.ID).Msg("orphaned response dropped")
		return
	}
	ctrl, ok := s.registry.controller(route.ControllerSessionID)
	if !ok {
		slog.Warn().Str("session_id", route.ControllerSessionID).Msg("controller gone, response dropped")
		return
	}
	rsp.ID = route.OriginalID
	if err := ctrl.peer.sendFrame(wire.MustFrame(wire.FrameResponse, rsp)); err != nil {
		slog.Warn().Err(err).Str("session_id", route.ControllerSessionID).Msg("unable to deliver response")
	}
}

// failRoutesForCardhost rejects every request still in flight toward a
// departed card host so its controllers see an error instead of a timeout.
func (s *Server) failRoutesForCardhost(cardhostID string) {
	for _, route := range s.routes.takeForCardhost(cardhostID) {
		ctrl, ok := s.registry.controller(route.ControllerSessionID)
		if !ok {
			continue
		}
		rsp := wire.NewErrorResponse(route.OriginalID, wire.CodeCardhostNotConnected,
			"cardhost disconnected before "+string(route.Method)+" completed")
		if err := ctrl.peer.sendFrame(wire.MustFrame(wire.FrameResponse, rsp)); err != nil {
			log.Warn().Err(err).Str("session_id", route.ControllerSessionID).Msg("unable to deliver failure response")
		}
	}
}
