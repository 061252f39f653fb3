package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/neuralconfig/ruckus-ztp/shared/authhash"
)

// ErrTokenInvalid is returned when a bearer or session token cannot be
// parsed or verified.
var ErrTokenInvalid = errors.New("auth: token invalid")

// ErrWrongPassword is returned by Login when the supplied plaintext does
// not match the agent's stored password hash.
var ErrWrongPassword = errors.New("auth: wrong password")

// sessionTTL is how long a browser session survives after Login, per the
// per-agent password gate described in spec §4.8.
const sessionTTL = 12 * time.Hour

const sessionTokenBytes = 32

type browserSession struct {
	agentID   string
	expiresAt time.Time
}

// SessionStore is an in-memory table of opaque browser session tokens,
// deliberately not a JWT: these never need to be verified by anything
// other than the dashboard process that issued them, so there is nothing
// to gain from making them self-describing.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]browserSession
}

// NewSessionStore returns an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]browserSession)}
}

// Login verifies password against agentPasswordHash, returning
// ErrWrongPassword on mismatch. It does not create a session; the caller
// issues one with SessionStore.Issue after a successful Login.
func Login(agentID, password, agentPasswordHash string) error {
	if !authhash.Verify(password, agentPasswordHash) {
		return ErrWrongPassword
	}
	return nil
}

// Issue creates and stores a new session token for agentID, valid for
// sessionTTL.
func (s *SessionStore) Issue(agentID string) (string, time.Time, error) {
	raw := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("auth: generating session token: %w", err)
	}
	token := hex.EncodeToString(raw)
	expiresAt := time.Now().Add(sessionTTL)

	s.mu.Lock()
	s.sessions[token] = browserSession{agentID: agentID, expiresAt: expiresAt}
	s.mu.Unlock()

	return token, expiresAt, nil
}

// Validate reports whether token is a live session and, if so, which agent
// it is scoped to. Expired sessions are evicted lazily on lookup.
func (s *SessionStore) Validate(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return "", false
	}
	if time.Now().After(sess.expiresAt) {
		delete(s.sessions, token)
		return "", false
	}
	return sess.agentID, true
}

// Revoke deletes token, e.g. on logout.
func (s *SessionStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}
