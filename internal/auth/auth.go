// Package auth owns the upstream session: login, proactive renewal and the
// fail-fast state after a credential rejection. Everything else in the
// process gets a bearer token from Manager.Token and never sees the login
// exchange itself.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/frndlytuner/frndly-tuner/internal/frndly"
)

// SessionLifetime is how long an upstream session-id stays usable. The
// upstream does not advertise an expiry; the Android client re-logs-in
// after five hours, so we do too.
const SessionLifetime = 5 * time.Hour

// renewFraction: renew once this fraction of the lifetime has elapsed, so
// foreground callers never pay login latency.
const renewFraction = 0.8

// Kind classifies an auth failure.
type Kind int

const (
	// InvalidCredentials: signin rejected. Fatal until credentials change.
	InvalidCredentials Kind = iota + 1
	// UpstreamUnavailable: network/5xx during login. Recoverable.
	UpstreamUnavailable
	// RevokedSession: the session was rejected mid-lifetime and renewal
	// has not yet produced a replacement.
	RevokedSession
)

func (k Kind) String() string {
	switch k {
	case InvalidCredentials:
		return "invalid_credentials"
	case UpstreamUnavailable:
		return "upstream_unavailable"
	case RevokedSession:
		return "revoked_session"
	}
	return "unknown"
}

// Error is an auth failure with a machine-readable kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "auth: " + e.Kind.String()
	}
	return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Credentials is the user-supplied account identity. Immutable; replaced
// wholesale via SetCredentials when the user reconfigures.
type Credentials struct {
	Username string
	Password string
}

// Session is the live upstream session. Owned exclusively by Manager.
type Session struct {
	SessionID string    `json:"session_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the session can still be handed to a caller.
func (s Session) Valid(now time.Time) bool {
	return s.SessionID != "" && now.Before(s.ExpiresAt)
}

func (s Session) needsRenew(now time.Time) bool {
	if s.SessionID == "" {
		return true
	}
	renewAt := s.IssuedAt.Add(time.Duration(float64(s.ExpiresAt.Sub(s.IssuedAt)) * renewFraction))
	return !now.Before(renewAt)
}

// LoginClient is the part of the wire client the manager needs.
type LoginClient interface {
	Login(ctx context.Context, username, password string) (sessionID string, err error)
}

var (
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frndly_tuner_logins_total",
		Help: "Upstream login attempts by result.",
	}, []string{"result"})
	sessionValid = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frndly_tuner_session_valid",
		Help: "1 when a usable upstream session is held.",
	})
)

// Manager owns the Session. Renewal is single-flighted: concurrent Token
// callers during a login share the one in-flight attempt.
type Manager struct {
	client    LoginClient
	cacheFile string
	lifetime  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	creds    Credentials
	session  Session
	badCreds bool

	sf singleflight.Group
}

// New builds a Manager. cacheFile may be empty to disable the session
// cache; when set, a previously saved still-valid session is adopted so a
// restart inside the session window skips the login exchange.
func New(client LoginClient, creds Credentials, cacheFile string) *Manager {
	m := &Manager{
		client:    client,
		cacheFile: cacheFile,
		lifetime:  SessionLifetime,
		now:       time.Now,
		creds:     creds,
	}
	if s, ok := m.loadSession(); ok {
		m.session = s
		sessionValid.Set(1)
		log.Printf("auth: restored cached session (expires %s)", s.ExpiresAt.Format(time.RFC3339))
	}
	return m
}

// Token returns a currently valid bearer token. The returned token's expiry
// is strictly in the future at hand-out time. When the held session is past
// its renew point but still valid, the stale token is returned immediately
// and a renewal proceeds in the background.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.badCreds {
		m.mu.Unlock()
		return "", &Error{Kind: InvalidCredentials, Err: errors.New("credentials previously rejected")}
	}
	s := m.session
	now := m.now()
	m.mu.Unlock()

	if s.Valid(now) {
		if s.needsRenew(now) {
			// Stale-but-valid: renew off the caller's path.
			go func() { _, _ = m.renew() }()
		}
		return s.SessionID, nil
	}
	s2, err := m.renew()
	if err != nil {
		return "", err
	}
	return s2.SessionID, nil
}

// ForceRenew discards the held session and performs a single-flighted
// login. Used by the catalog client after an HTTP-level auth rejection.
func (m *Manager) ForceRenew(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.session = Session{}
	sessionValid.Set(0)
	m.mu.Unlock()
	_, err := m.renew()
	return err
}

// SetCredentials replaces the account identity and clears the fail-fast
// state. The next Token call logs in fresh.
func (m *Manager) SetCredentials(creds Credentials) {
	m.mu.Lock()
	m.creds = creds
	m.badCreds = false
	m.session = Session{}
	sessionValid.Set(0)
	m.mu.Unlock()
}

// Status reports session state for the status page and healthz.
func (m *Manager) Status() (valid bool, expiresAt time.Time, credsRejected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Valid(m.now()), m.session.ExpiresAt, m.badCreds
}

// KeepAlive runs the proactive renewal loop until ctx is cancelled. A
// failed proactive renewal keeps the stale session; foreground callers
// will block on a synchronous login only once it actually expires.
func (m *Manager) KeepAlive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		m.mu.Lock()
		bad := m.badCreds
		s := m.session
		now := m.now()
		m.mu.Unlock()
		if bad || !s.needsRenew(now) {
			continue
		}
		if _, err := m.renew(); err != nil {
			log.Printf("auth: keep-alive renewal failed: %v", err)
		}
	}
}

// renew performs one single-flighted login. All concurrent callers receive
// the result of the same attempt. The login runs on its own context so a
// cancelled foreground request cannot abort a renewal other callers share.
func (m *Manager) renew() (Session, error) {
	v, err, _ := m.sf.Do("login", func() (any, error) {
		m.mu.Lock()
		if m.badCreds {
			m.mu.Unlock()
			return Session{}, &Error{Kind: InvalidCredentials, Err: errors.New("credentials previously rejected")}
		}
		creds := m.creds
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sid, err := m.client.Login(ctx, creds.Username, creds.Password)
		if err != nil {
			if errors.Is(err, frndly.ErrBadCredentials) {
				m.mu.Lock()
				m.badCreds = true
				m.session = Session{}
				m.mu.Unlock()
				sessionValid.Set(0)
				loginsTotal.WithLabelValues("invalid_credentials").Inc()
				m.clearSessionCache()
				return Session{}, &Error{Kind: InvalidCredentials, Err: err}
			}
			loginsTotal.WithLabelValues("error").Inc()
			return Session{}, &Error{Kind: UpstreamUnavailable, Err: err}
		}
		now := m.now()
		s := Session{SessionID: sid, IssuedAt: now, ExpiresAt: now.Add(m.lifetime)}
		m.mu.Lock()
		m.session = s
		m.mu.Unlock()
		sessionValid.Set(1)
		loginsTotal.WithLabelValues("ok").Inc()
		m.saveSession(s)
		log.Printf("auth: login ok (session valid until %s)", s.ExpiresAt.Format(time.RFC3339))
		return s, nil
	})
	if err != nil {
		return Session{}, err
	}
	return v.(Session), nil
}
