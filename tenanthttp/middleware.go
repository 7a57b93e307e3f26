// Package tenanthttp provides the HTTP surface for tenant switching: the
// middleware that recognizes tenant-switch requests and the middleware that
// propagates the session's selection to the database before handlers run.
//
// Three triggers select a tenant, checked in order:
//
//   - a request to /__change_tenant__/<id>/ (responds directly)
//   - a __tenant query parameter (stripped; GET requests redirect)
//   - an X-Change-Tenant header
//
// An empty tenant id deselects. A forbidden switch responds 403 and changes
// nothing.
package tenanthttp

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pgtenant/pgtenant"
)

// Tenant-switch triggers.
const (
	ChangeTenantPrefix = "/__change_tenant__/"
	TenantParam        = "__tenant"
	ChangeTenantHeader = "X-Change-Tenant"
)

// Response bodies, matching the three switch outcomes.
const (
	msgTenantChanged  = "Tenant changed to %s"
	msgTenantCleared  = "Tenant deselected"
	msgCannotSelect   = "You may not select that tenant"
	msgActivateFailed = "Unable to activate tenant"
)

// Identity resolves the caller driving a request. Authentication is the
// application's concern; the zero Caller means anonymous.
type Identity func(r *http.Request) pgtenant.Caller

// Middleware wires the session controller to HTTP requests.
type Middleware struct {
	controller *pgtenant.SessionController
	sessions   *CookieStore
	identity   Identity
	db         pgtenant.Execer
}

// New creates the middleware. db is the handle session settings are
// propagated on; it must be the same database the protected queries use.
func New(controller *pgtenant.SessionController, sessions *CookieStore, identity Identity, db pgtenant.Execer) *Middleware {
	return &Middleware{
		controller: controller,
		sessions:   sessions,
		identity:   identity,
		db:         db,
	}
}

// SelectTenant handles tenant-switch triggers before passing the request
// on. Switch-path requests are answered directly and never reach next.
func (m *Middleware) SelectTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.sessions.Load(w, r)
		caller := m.identity(r)
		sess.EnsureCaller(caller.ID)

		switch {
		case strings.HasPrefix(r.URL.Path, ChangeTenantPrefix):
			candidate := pathCandidate(r.URL.Path)
			if !m.selectOr403(w, r, caller, sess, candidate) {
				return
			}
			if id, _ := sess.ActiveTenant(); id != "" {
				fmt.Fprintf(w, msgTenantChanged, id)
			} else {
				fmt.Fprint(w, msgTenantCleared)
			}
			return

		case r.URL.Query().Has(TenantParam):
			if !m.selectOr403(w, r, caller, sess, r.URL.Query().Get(TenantParam)) {
				return
			}
			q := r.URL.Query()
			q.Del(TenantParam)
			if r.Method == http.MethodGet {
				target := r.URL.Path
				if len(q) > 0 {
					target += "?" + q.Encode()
				}
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
			// The parameter is consumed here; the handler never sees it.
			r.URL.RawQuery = q.Encode()

		case r.Header.Get(ChangeTenantHeader) != "":
			if !m.selectOr403(w, r, caller, sess, r.Header.Get(ChangeTenantHeader)) {
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// ActivateTenant propagates the session's selection (or its absence) to
// the database session before the wrapped handler runs. Without it the
// policies see no tenant and the handler's queries return zero protected
// rows.
func (m *Middleware) ActivateTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.sessions.Load(w, r)
		caller := m.identity(r)
		sess.EnsureCaller(caller.ID)

		if err := m.controller.Activate(r.Context(), m.db, caller, sess); err != nil {
			http.Error(w, msgActivateFailed, http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// selectOr403 applies a selection, answering 403 on rejection. Reports
// whether the request may proceed.
func (m *Middleware) selectOr403(w http.ResponseWriter, r *http.Request, caller pgtenant.Caller, sess *Session, candidate string) bool {
	err := m.controller.Select(r.Context(), caller, sess, candidate)
	if err == nil {
		return true
	}
	if pgtenant.IsForbiddenErr(err) {
		http.Error(w, msgCannotSelect, http.StatusForbidden)
	} else {
		http.Error(w, msgActivateFailed, http.StatusInternalServerError)
	}
	return false
}

// pathCandidate extracts the tenant id from /__change_tenant__/<id>/.
func pathCandidate(path string) string {
	rest := strings.TrimPrefix(path, ChangeTenantPrefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
