package router

import (
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cardlink/cardlink/internal/common/apperrors"
	"github.com/cardlink/cardlink/internal/common/uuid"
)

// sessionClaims are the claims carried by a session token: the session it
// opens and the card host the session is bound to.
type sessionClaims struct {
	SessionID  string `json:"sid"`
	CardhostID string `json:"chid"`
	jwt.RegisteredClaims
}

type tokenRecord struct {
	used      bool
	expiresAt time.Time
}

// tokenIssuer mints and redeems single-use session tokens. Tokens are EdDSA
// signed JWTs; redemption is keyed by the jti claim and consumes the token
// regardless of whether the redemption ultimately succeeds, so a stolen
// replay cannot ride on a failed first attempt.
type tokenIssuer struct {
	key    ed25519.PrivateKey
	expiry time.Duration

	mu      sync.Mutex
	records map[string]*tokenRecord // jti -> record
}

func newTokenIssuer(key ed25519.PrivateKey, expiry time.Duration) *tokenIssuer {
	return &tokenIssuer{
		key:     key,
		expiry:  expiry,
		records: make(map[string]*tokenRecord),
	}
}

// Issue signs a token for the given session, bound to the given card host.
func (t *tokenIssuer) Issue(sessionID, cardhostID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(t.expiry)
	jti := uuid.NewString()

	claims := &sessionClaims{
		SessionID:  sessionID,
		CardhostID: cardhostID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, ErrRouterError.MsgErr("unable to sign session token", err)
	}

	t.mu.Lock()
	t.records[jti] = &tokenRecord{expiresAt: expiresAt}
	t.mu.Unlock()

	return signed, expiresAt, nil
}

// Redeem validates a token and consumes it. Expiry is checked only after the
// token has been consumed, so an expired redemption still burns the token.
func (t *tokenIssuer) Redeem(tokenString string) (*sessionClaims, apperrors.Error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			return t.key.Public(), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrAuthFailed.Msg("invalid session token")
	}
	if claims.ID == "" || claims.SessionID == "" || claims.CardhostID == "" {
		return nil, ErrAuthFailed.Msg("session token missing claims")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[claims.ID]
	if !ok {
		return nil, ErrAuthFailed.Msg("unknown session token")
	}
	if rec.used {
		return nil, ErrTokenAlreadyUsed
	}
	rec.used = true

	if time.Now().After(rec.expiresAt) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// sweep drops records for tokens that can never redeem again. Used records
// and long-expired records carry no further information.
func (t *tokenIssuer) sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for jti, rec := range t.records {
		if rec.used || now.After(rec.expiresAt) {
			delete(t.records, jti)
		}
	}
}
