package deviceapi

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/muurk/intesis/internal/clock"
)

// DefaultSessionTTL is how long a session is trusted before a fresh login.
// The device may still reject a session earlier; that is handled by retry.
const DefaultSessionTTL = 10 * time.Minute

// Credentials identify one device and the account used to log in to it
type Credentials struct {
	Host     string
	Username string
	Password string
}

// Session is a token issued by login
type Session struct {
	Token      string
	ObtainedAt time.Time
	TTL        time.Duration // 0 means no local expiry
}

// ValidAt reports whether the session should still be used at now
func (s Session) ValidAt(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	if s.TTL <= 0 {
		return true
	}
	return now.Before(s.ObtainedAt.Add(s.TTL))
}

// ShortToken returns the first 8 characters of the token, for logs
func (s Session) ShortToken() string {
	return shortToken(s.Token)
}

func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}

// LoginFunc performs one login exchange and returns the session token
type LoginFunc func(ctx context.Context) (string, error)

// SessionManager owns the session token for one device.
// Overlapping logins collapse into a single exchange whose result every
// waiting caller receives.
type SessionManager struct {
	login  LoginFunc
	ttl    time.Duration
	clock  clock.Clock
	logger *zap.Logger

	mu      sync.Mutex
	current *Session

	group  singleflight.Group
	logins atomic.Int64
}

// NewSessionManager creates a session manager around a login exchange.
// ttl <= 0 disables local expiry.
func NewSessionManager(login LoginFunc, ttl time.Duration, clk clock.Clock, logger *zap.Logger) *SessionManager {
	if clk == nil {
		clk = clock.NewReal()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		login:  login,
		ttl:    ttl,
		clock:  clk,
		logger: logger,
	}
}

// EnsureSession returns a valid session, logging in if none is held or the
// held one has expired.
func (m *SessionManager) EnsureSession(ctx context.Context) (Session, error) {
	if s, ok := m.valid(); ok {
		return s, nil
	}
	return m.refresh(ctx)
}

// Login discards any held session and performs a fresh login
func (m *SessionManager) Login(ctx context.Context) (Session, error) {
	m.Invalidate()
	return m.refresh(ctx)
}

// Invalidate marks the current session invalid; the next EnsureSession logs in
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

// release invalidates the session only if it is still the one that failed,
// so a stale failure cannot discard a session obtained in the meantime.
func (m *SessionManager) release(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.Token == token {
		m.current = nil
	}
}

// Current returns the held session, if any
func (m *SessionManager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// Logins returns the number of login exchanges performed
func (m *SessionManager) Logins() int64 {
	return m.logins.Load()
}

func (m *SessionManager) valid() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.ValidAt(m.clock.Now()) {
		return *m.current, true
	}
	return Session{}, false
}

func (m *SessionManager) refresh(ctx context.Context) (Session, error) {
	// The shared login must not be cancelled by whichever caller started it.
	loginCtx := context.WithoutCancel(ctx)

	ch := m.group.DoChan("login", func() (any, error) {
		if s, ok := m.valid(); ok {
			return s, nil
		}

		m.logins.Add(1)
		m.logger.Debug("logging in")

		token, err := m.login(loginCtx)
		if err != nil {
			if !IsAuthError(err) {
				err = NewAuthError(AuthTransient, "login failed", err)
			}
			m.logger.Debug("login failed", zap.Error(err))
			return Session{}, err
		}

		s := Session{Token: token, ObtainedAt: m.clock.Now(), TTL: m.ttl}
		m.mu.Lock()
		m.current = &s
		m.mu.Unlock()

		m.logger.Debug("login successful", zap.String("session", s.ShortToken()))
		return s, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Session{}, res.Err
		}
		return res.Val.(Session), nil
	case <-ctx.Done():
		return Session{}, NewAuthError(AuthTransient, "waiting for login", NewCommunicationError("login cancelled", ctx.Err()))
	}
}
