package tenanthttp

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// DefaultCookieName identifies the session cookie.
const DefaultCookieName = "pgtenant_session"

// CookieStore hands out cookie-backed sessions. Session data lives
// server-side keyed by an opaque random id; the cookie carries only the id.
//
// The in-memory map suits single-process deployments and tests. The
// sessions it returns implement pgtenant.Store, so applications with their
// own session infrastructure can ignore this type entirely and pass their
// store to the middleware instead.
type CookieStore struct {
	cookieName string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewCookieStore creates a store. An empty cookieName uses
// DefaultCookieName.
func NewCookieStore(cookieName string) *CookieStore {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &CookieStore{
		cookieName: cookieName,
		sessions:   make(map[string]*Session),
	}
}

// Load returns the request's session, creating one (and setting the
// cookie) when the request carries none or an unknown id.
func (cs *CookieStore) Load(w http.ResponseWriter, r *http.Request) *Session {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if c, err := r.Cookie(cs.cookieName); err == nil && c.Value != "" {
		if s, ok := cs.sessions[c.Value]; ok {
			return s
		}
	}

	sid := uuid.NewString()
	s := &Session{}
	cs.sessions[sid] = s

	http.SetCookie(w, &http.Cookie{
		Name:     cs.cookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}

// Session is one caller's session state. It implements pgtenant.Store.
type Session struct {
	mu         sync.Mutex
	tenantID   string
	tenantName string
	callerID   string
}

// ActiveTenant implements pgtenant.Store.
func (s *Session) ActiveTenant() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenantID, s.tenantName
}

// SetActiveTenant implements pgtenant.Store.
func (s *Session) SetActiveTenant(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenantID, s.tenantName = id, name
}

// Clear implements pgtenant.Store.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenantID, s.tenantName = "", ""
}

// EnsureCaller drops the tenant selection when the session's caller
// identity changes. A selection must never survive a login, logout, or
// account switch: the new identity may not be permitted the old tenant.
func (s *Session) EnsureCaller(callerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callerID != callerID {
		s.tenantID, s.tenantName = "", ""
		s.callerID = callerID
	}
}
