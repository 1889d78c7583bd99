// Package session owns the signed-in state of the client. It replaces the web
// client's global token in local storage with an explicit object that is loaded
// at bootstrap, persisted at login, and cleared at logout or when the backend
// rejects the token.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/domain"
	"github.com/arunshreyas/Marketa/internal/logging"
	"github.com/arunshreyas/Marketa/internal/store"
)

// ErrNotSignedIn is returned by operations that need a session.
var ErrNotSignedIn = errors.New("not signed in")

// Manager holds the current session. It is safe for concurrent use.
type Manager struct {
	store  store.Store
	logger *zap.Logger

	mu      sync.RWMutex
	current *domain.Session

	expired chan struct{}
}

// NewManager creates a manager backed by st. Call Load at bootstrap.
func NewManager(st store.Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:   st,
		logger:  logging.OrNop(logger),
		expired: make(chan struct{}, 1),
	}
}

// Load restores the persisted session, if any.
func (m *Manager) Load(ctx context.Context) error {
	sess, err := m.store.LoadSession(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	return nil
}

// Current returns a copy of the session, or nil when signed out.
func (m *Manager) Current() *domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	cp := *m.current
	if m.current.User != nil {
		u := *m.current.User
		cp.User = &u
	}
	return &cp
}

// SignedIn reports whether a token is held.
func (m *Manager) SignedIn() bool {
	return m.Token() != ""
}

// Token returns the bearer token, or "".
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.Token
}

// UserID returns the signed-in user's id. When no profile is cached it falls
// back to the id claim inside the token.
func (m *Manager) UserID() string {
	m.mu.RLock()
	sess := m.current
	m.mu.RUnlock()
	if sess == nil {
		return ""
	}
	if id := sess.UserID(); id != "" {
		return id
	}
	return UserIDFromToken(sess.Token)
}

// Login stores a new session and persists it.
func (m *Manager) Login(ctx context.Context, sess *domain.Session) error {
	if !sess.Valid() {
		return errors.New("login: empty token")
	}
	if sess.User == nil {
		if id := UserIDFromToken(sess.Token); id != "" {
			sess.User = &domain.User{ID: id}
		}
	}
	m.mu.Lock()
	if err := m.store.SaveSession(ctx, sess); err != nil {
		m.mu.Unlock()
		return err
	}
	m.current = sess
	m.mu.Unlock()
	m.drainExpired()
	m.logger.Info("session started", zap.String("user_id", sess.UserID()))
	return nil
}

// SetUser replaces the cached profile of the current session.
func (m *Manager) SetUser(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNotSignedIn
	}
	next := &domain.Session{Token: m.current.Token, User: user}
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, next); err != nil {
		return err
	}
	m.mu.Lock()
	if m.current != nil && m.current.Token == next.Token {
		m.current = next
	}
	m.mu.Unlock()
	return nil
}

// Logout clears the session on request of the user.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	if err := m.store.ClearSession(ctx); err != nil {
		return err
	}
	m.logger.Info("session ended")
	return nil
}

// Expire tears the session down after the backend rejected token and
// notifies Expired listeners. A token that is no longer current, such as one
// carried by a request that was in flight across a re-login, is ignored.
func (m *Manager) Expire(ctx context.Context, token string) {
	m.mu.Lock()
	current := ""
	if m.current != nil {
		current = m.current.Token
	}
	if token != current {
		m.mu.Unlock()
		m.logger.Debug("ignoring rejection of a stale token")
		return
	}
	had := m.current != nil
	m.current = nil
	if had {
		if err := m.store.ClearSession(ctx); err != nil {
			m.logger.Warn("failed to clear expired session", zap.Error(err))
		}
	}
	m.mu.Unlock()

	if had {
		m.logger.Info("session rejected by backend")
	}
	select {
	case m.expired <- struct{}{}:
	default:
	}
}

// Expired delivers a value each time the session is torn down by Expire. The
// presentation layer navigates to the login screen when it fires.
func (m *Manager) Expired() <-chan struct{} {
	return m.expired
}

func (m *Manager) drainExpired() {
	select {
	case <-m.expired:
	default:
	}
}
