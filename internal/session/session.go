// Package session implements the Session Manager (C2): opaque,
// cryptographically random session tokens with a bounded lifetime, backed
// by a periodic sweeper that revokes expired sessions.
//
// Built in the style of an OAuth state store (background cleanup loop,
// crypto/rand-generated tokens) adapted from a one-shot CSRF nonce into a
// renewable, queryable session record.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"sync"
	"time"

	"mcpcoordinator/pkg/logging"
)

const (
	// TokenBytes is the amount of entropy embedded in a session token
	// before base64 encoding (32 bytes = 256 bits).
	TokenBytes = 32

	// DefaultTTL is the lifetime of a session absent an explicit override.
	DefaultTTL = 30 * time.Minute

	// sweepDivisor controls the cleanup cadence relative to TTL: the
	// sweeper runs at least every TTL/sweepDivisor.
	sweepDivisor = 10
)

// Session is a single authenticated agent session.
type Session struct {
	Token     string
	AgentID   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Manager issues, validates and revokes sessions. Callers MUST call Stop
// when done to release the background sweeper goroutine.
type Manager struct {
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	stop chan struct{}
	done chan struct{}
}

// NewManager creates a Manager with the given session TTL and starts its
// background sweeper. A ttl <= 0 selects DefaultTTL.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	m := &Manager{
		ttl:      ttl,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go m.sweepLoop()
	return m
}

// Stop halts the background sweeper. Safe to call once.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.done
}

func generateToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf), nil
}

// tokenKey derives the map key for a token: a SHA-256 digest rather than
// the token itself, so the map's own bucket lookup never compares against
// a live, attacker-suppliable token byte-for-byte.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return string(sum[:])
}

// CreateSession issues a new session token for agentID.
func (m *Manager) CreateSession(agentID string) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		Token:     token,
		AgentID:   agentID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	m.sessions[tokenKey(token)] = sess
	m.mu.Unlock()

	logging.Audit(logging.AuditEvent{
		Action:    "create_session",
		Outcome:   "success",
		SessionID: token,
		AgentID:   agentID,
	})

	return sess, nil
}

// lookup finds the session for token, if any, using a constant-time
// comparison of the provided token against the stored one rather than
// relying on the map's own key equality, so session validation never
// leaks timing information about how much of a guessed token matched.
func (m *Manager) lookup(token string) *Session {
	sess, ok := m.sessions[tokenKey(token)]
	if !ok {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(sess.Token), []byte(token)) != 1 {
		return nil
	}
	return sess
}

// Validate returns the session for token if it exists and has not expired.
func (m *Manager) Validate(token string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess := m.lookup(token)
	if sess == nil || sess.expired(time.Now()) {
		return nil, false
	}
	return sess, true
}

// Revoke invalidates token immediately, before its natural expiry.
func (m *Manager) Revoke(token string) bool {
	m.mu.Lock()
	sess := m.lookup(token)
	if sess != nil {
		delete(m.sessions, tokenKey(token))
	}
	m.mu.Unlock()

	if sess != nil {
		logging.Audit(logging.AuditEvent{
			Action:    "revoke_session",
			Outcome:   "success",
			SessionID: token,
			AgentID:   sess.AgentID,
		})
	}
	return sess != nil
}

// Touch extends an existing session's expiry by the manager's TTL.
func (m *Manager) Touch(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.lookup(token)
	if sess == nil || sess.expired(time.Now()) {
		return false
	}
	sess.ExpiresAt = time.Now().Add(m.ttl)
	return true
}

func (m *Manager) sweepLoop() {
	defer close(m.done)

	interval := m.ttl / sweepDivisor
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) sweep() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for token, sess := range m.sessions {
		if sess.expired(now) {
			delete(m.sessions, token)
			count++
		}
	}

	if count > 0 {
		logging.Debug("session", "swept %d expired sessions", count)
	}
}
