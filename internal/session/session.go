// Package session implements the server-side session store.
//
// The browser only holds an opaque session id in a cookie; all session data
// lives in the cache backend (memory or Redis) as JSON, keyed by that id.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mindusforge/mindus-web/internal/cache"
)

// Data is the typed session payload. Zero value means "anonymous visitor".
type Data struct {
	// Principal establecido tras un login exitoso.
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Platform  string `json:"platform,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	LoggedIn  bool   `json:"logged_in,omitempty"`

	// Permanent marca la sesión como de vida extendida (cookie persistente).
	Permanent bool `json:"permanent,omitempty"`

	// OAuthState es el anti-forgery token del intento de login en curso.
	// Un solo slot: cada intento nuevo pisa el anterior.
	OAuthState string `json:"oauth_state,omitempty"`

	// NextURL es la URL capturada cuando el gate negó el acceso.
	NextURL string `json:"next_url,omitempty"`
}

// Session couples an id with its payload. Obtained via Manager.Load and
// written back with Manager.Save.
type Session struct {
	ID   string
	Data Data
}

// Options configure a Manager.
type Options struct {
	CookieName string
	Secure     bool
	SameSite   string
	Domain     string
	TTL        time.Duration
}

// Manager owns the session cookie and the cache-backed persistence.
type Manager struct {
	cache cache.Client
	opts  Options
}

const keyPrefix = "sess:"

// NewManager creates a session manager over the given cache client.
func NewManager(c cache.Client, opts Options) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "mindus_session"
	}
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	return &Manager{cache: c, opts: opts}
}

// Load returns the session referenced by the request cookie, or a fresh one.
// A fresh session is not persisted until Save is called.
func (m *Manager) Load(r *http.Request) *Session {
	ck, err := r.Cookie(m.opts.CookieName)
	if err != nil || ck.Value == "" {
		return m.fresh()
	}

	raw, err := m.cache.Get(r.Context(), keyPrefix+ck.Value)
	if err != nil {
		// Expirada o backend caído: arrancar de cero.
		return m.fresh()
	}

	var d Data
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return m.fresh()
	}
	return &Session{ID: ck.Value, Data: d}
}

// Save persists the session payload and (re)sets the cookie.
// Non-permanent sessions get a browser-session cookie; the server-side
// entry expires after TTL either way.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return err
	}
	if err := m.cache.Set(ctx, keyPrefix+s.ID, string(raw), m.opts.TTL); err != nil {
		return err
	}

	ttl := time.Duration(0)
	if s.Data.Permanent {
		ttl = m.opts.TTL
	}
	http.SetCookie(w, buildCookie(m.opts.CookieName, s.ID, m.opts.Domain, m.opts.SameSite, m.opts.Secure, ttl))
	return nil
}

// Clear wipes the session server-side and expires the cookie.
func (m *Manager) Clear(ctx context.Context, w http.ResponseWriter, s *Session) error {
	err := m.cache.Delete(ctx, keyPrefix+s.ID)
	http.SetCookie(w, buildDeletionCookie(m.opts.CookieName, m.opts.Domain, m.opts.SameSite, m.opts.Secure))
	s.Data = Data{}
	return err
}

func (m *Manager) fresh() *Session {
	return &Session{ID: uuid.NewString()}
}
