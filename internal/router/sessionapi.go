package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/cardlink/cardlink/internal/common/httpx"
	"github.com/cardlink/cardlink/internal/common/uuid"
	"github.com/cardlink/cardlink/internal/router/config"
	"github.com/cardlink/cardlink/internal/wire"
)

var validate = validator.New()

// SessionCreateRequest asks for a controller session bound to one card host.
// PublicKey optionally pins the expected host key; a mismatch with the
// registered key refuses the session.
type SessionCreateRequest struct {
	CardhostID string       `json:"cardhostId" validate:"required"`
	PublicKey  wire.ByteSeq `json:"publicKey,omitempty"`
}

// SessionCreateRsp carries the credentials for the new session. The token is
// single-use and short-lived; it is redeemed at the controller socket
// upgrade.
type SessionCreateRsp struct {
	SessionID    string    `json:"sessionId"`
	SessionToken string    `json:"sessionToken"`
	SocketURL    string    `json:"socketUrl"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// createSession handles POST /v1/sessions. The named card host must be
// connected; sessions against absent hosts are refused rather than parked.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Body == nil {
		httpx.ErrInvalidRequest("request body is required").Send(w)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpx.ErrUnableToParseReqData().Send(w)
		return
	}

	req := &SessionCreateRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		httpx.ErrInvalidRequest("failed to parse request body: " + err.Error()).Send(w)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.SendError(w, ErrBadRequest.Msg("cardhostId is required"))
		return
	}

	host, ok := s.registry.cardhost(req.CardhostID)
	if !ok {
		httpx.SendError(w, ErrCardhostNotConnected.Msg("no cardhost with id "+req.CardhostID))
		return
	}
	if len(req.PublicKey) > 0 && !bytes.Equal(host.PublicKey, req.PublicKey) {
		httpx.SendError(w, ErrCardhostConflict.Msg("cardhost key does not match pinned key"))
		return
	}

	sessionID := uuid.NewString()
	token, expiresAt, err := s.tokens.Issue(sessionID, req.CardhostID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to issue session token")
		httpx.SendError(w, ErrRouterError.Msg("unable to issue session token"))
		return
	}

	log.Ctx(ctx).Info().
		Str("session_id", sessionID).
		Str("cardhost_id", req.CardhostID).
		Msg("session created")

	httpx.SendJsonRsp(ctx, w, http.StatusCreated, &SessionCreateRsp{
		SessionID:    sessionID,
		SessionToken: token,
		SocketURL:    controllerSocketURL(),
		ExpiresAt:    expiresAt,
	})
}

// CardhostInfo describes one connected card host.
type CardhostInfo struct {
	CardhostID  string    `json:"cardhostId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// ListCardhostsRsp is the response for GET /v1/cardhosts.
type ListCardhostsRsp struct {
	Cardhosts []CardhostInfo `json:"cardhosts"`
}

func (s *Server) listCardhosts(w http.ResponseWriter, r *http.Request) {
	hosts := s.registry.allCardhosts()
	rsp := &ListCardhostsRsp{Cardhosts: make([]CardhostInfo, 0, len(hosts))}
	for _, h := range hosts {
		rsp.Cardhosts = append(rsp.Cardhosts, CardhostInfo{
			CardhostID:  h.ID,
			ConnectedAt: h.ConnectedAt,
		})
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, rsp)
}

// controllerSocketURL derives the websocket URL advertised to controllers
// from the configured external base URL.
func controllerSocketURL() string {
	base := config.Config().ExternalURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/controller"
}
