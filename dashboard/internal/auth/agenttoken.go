// Package auth covers the dashboard's two distinct authentication
// mechanisms: long-lived per-agent bearer tokens that gate the
// agent-to-dashboard WebSocket upgrade, and short-lived opaque browser
// session tokens that gate the per-agent password-protected dashboard
// pages. These are deliberately separate — an agent's bearer token is
// provisioned once and never expires on its own, while a browser session
// is transient and tied to the per-agent password, not agent identity
// alone.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AgentClaims is the payload of an agent bearer token: just enough to bind
// the token to one agent_id. Unlike the teacher's user access tokens,
// these are not short-lived — an agent is provisioned once, typically by
// hand, and reconnects with the same token indefinitely.
type AgentClaims struct {
	jwt.RegisteredClaims
	AgentID string `json:"agent_id"`
}

// TokenManager mints and validates HS256 agent bearer tokens. A single
// shared secret is sufficient here since the dashboard is both the sole
// issuer and the sole verifier — unlike the teacher's RS256 user tokens,
// there is no separate service that only needs to verify.
type TokenManager struct {
	secret []byte
	issuer string
}

// NewTokenManager returns a TokenManager signing with secret. secret should
// be at least 32 random bytes, generated once at dashboard install time.
func NewTokenManager(secret []byte, issuer string) *TokenManager {
	return &TokenManager{secret: secret, issuer: issuer}
}

// Mint issues a new bearer token bound to agentID. Tokens carry no
// expiration — an agent is deliberately provisioned once and reconnects
// with the same credential until the operator rotates it.
func (m *TokenManager) Mint(agentID string) (string, error) {
	now := time.Now()
	claims := AgentClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   m.issuer,
			Subject:  agentID,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
		AgentID: agentID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing agent token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies tokenString, returning the bound agent_id.
func (m *TokenManager) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&AgentClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", t.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithIssuer(m.issuer),
	)
	if err != nil {
		return "", ErrTokenInvalid
	}

	claims, ok := token.Claims.(*AgentClaims)
	if !ok || !token.Valid || claims.AgentID == "" {
		return "", ErrTokenInvalid
	}
	return claims.AgentID, nil
}
