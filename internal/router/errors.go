package router

import (
	"net/http"

	"github.com/cardlink/cardlink/internal/common/apperrors"
	"github.com/cardlink/cardlink/internal/wire"
)

var (
	// ErrRouterError is the base error for all router errors.
	ErrRouterError apperrors.Error = apperrors.New("router error").
				SetStatusCode(http.StatusInternalServerError).
				SetWireCode(string(wire.CodeInternalError))

	// ErrBadRequest is returned for malformed or invalid requests.
	ErrBadRequest apperrors.Error = ErrRouterError.New("bad request").
			SetStatusCode(http.StatusBadRequest).
			SetWireCode(string(wire.CodeInvalidParams))

	// ErrAuthFailed is returned when a peer fails authentication: a bad
	// challenge signature, an unparsable token, or a missing credential.
	ErrAuthFailed apperrors.Error = ErrRouterError.New("authentication failed").
			SetStatusCode(http.StatusUnauthorized).
			SetWireCode(string(wire.CodeAuthFailed))

	// ErrTokenExpired is returned when a session token is redeemed after
	// its expiry.
	ErrTokenExpired apperrors.Error = ErrAuthFailed.New("session token expired").
			SetStatusCode(http.StatusUnauthorized).
			SetWireCode(string(wire.CodeTokenExpired))

	// ErrTokenAlreadyUsed is returned on the second and later redemptions
	// of a single-use session token.
	ErrTokenAlreadyUsed apperrors.Error = ErrAuthFailed.New("session token already used").
				SetStatusCode(http.StatusConflict).
				SetWireCode(string(wire.CodeTokenAlreadyUsed))

	// ErrCardhostNotConnected is returned when an operation names a card
	// host with no live registration.
	ErrCardhostNotConnected apperrors.Error = ErrRouterError.New("cardhost not connected").
				SetStatusCode(http.StatusNotFound).
				SetWireCode(string(wire.CodeCardhostNotConnected))

	// ErrCardhostConflict is returned when a connecting card host claims an
	// identifier that is registered under a different public key.
	ErrCardhostConflict apperrors.Error = ErrAuthFailed.New("cardhost id registered to a different key").
				SetStatusCode(http.StatusConflict).
				SetWireCode(string(wire.CodeAuthFailed))
)
