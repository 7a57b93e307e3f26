package pgtenant

import (
	"context"
	"fmt"
	"sync"
)

// Store is the caller-controlled session mapping holding the current tenant
// selection. It must survive across requests within one session but never
// across sessions or caller identities. Implementations are typically
// cookie-backed (see the tenanthttp package); tests use an in-memory map.
type Store interface {
	// ActiveTenant returns the selected tenant id and name, or empty strings
	// when no tenant is selected.
	ActiveTenant() (id, name string)

	// SetActiveTenant records a selection.
	SetActiveTenant(id, name string)

	// Clear removes any selection.
	Clear()
}

// Directory answers "may this caller see this tenant". The lookup must only
// return tenants the caller has been granted visibility into; the controller
// trusts it as the single authorization point for tenant switches.
type Directory interface {
	VisibleTenant(ctx context.Context, callerID, tenantID string) (Tenant, bool, error)
}

// Observer is notified synchronously after a successful selection change,
// with the old and new tenant ids (either may be empty). Typical observers
// invalidate permission caches keyed by tenant.
type Observer func(oldID, newID string)

// SessionController validates and applies tenant selections.
//
// The controller is the only mutation path for the stored selection. Every
// transition passes authorization here, so "who switched to which tenant"
// is auditable at a single choke point.
//
// Safe for concurrent use; observer registration is expected at startup.
type SessionController struct {
	cfg Config
	dir Directory

	mu        sync.RWMutex
	observers []Observer
}

// ControllerOption configures a SessionController.
type ControllerOption func(*SessionController)

// WithConfig sets a non-default Config.
func WithConfig(cfg Config) ControllerOption {
	return func(c *SessionController) {
		c.cfg = cfg.WithDefaults()
	}
}

// NewSessionController creates a controller backed by the given directory.
func NewSessionController(dir Directory, opts ...ControllerOption) *SessionController {
	c := &SessionController{
		cfg: DefaultConfig(),
		dir: dir,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnTenantChanged registers an observer. Observers run synchronously, in
// registration order, after the store has been updated.
func (c *SessionController) OnTenantChanged(fn Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Select applies a tenant-selection request to the session store.
//
// Transitions:
//   - empty candidate: clear the selection. Always allowed, including for
//     unauthenticated callers.
//   - unauthenticated caller, non-empty candidate: clear and return
//     ErrForbidden.
//   - candidate equals the current selection: no-op, no directory query.
//   - candidate not visible to the caller: ErrForbidden, prior selection
//     untouched.
//   - otherwise: record the selection and notify observers.
//
// Select does not touch the database session; see Activate.
func (c *SessionController) Select(ctx context.Context, caller Caller, store Store, candidate string) error {
	current, _ := store.ActiveTenant()

	if candidate == "" {
		store.Clear()
		return nil
	}

	if !caller.Authenticated {
		store.Clear()
		return ErrForbidden
	}

	if candidate == current {
		return nil
	}

	tenant, ok, err := c.dir.VisibleTenant(ctx, caller.ID, candidate)
	if err != nil {
		return fmt.Errorf("looking up tenant %q: %w", candidate, err)
	}
	if !ok {
		return ErrForbidden
	}

	store.SetActiveTenant(tenant.ID, tenant.Name)
	c.notify(current, tenant.ID)
	return nil
}

// Activate propagates the session's current selection to the database
// connection's session-scoped settings. Call it before executing queries on
// behalf of the session; an unselected session propagates the empty value,
// which the installed policies treat as "no tenant" (zero rows).
//
// Authenticated callers additionally propagate their identity for the
// superuser bypass policy. Unauthenticated callers clear it so a reused
// session can never inherit a previous caller's identity.
func (c *SessionController) Activate(ctx context.Context, db Execer, caller Caller, store Store) error {
	tenantID, _ := store.ActiveTenant()

	userID := ""
	if caller.Authenticated {
		userID = caller.ID
	}
	return Activate(ctx, db, c.cfg, tenantID, userID)
}

// Config returns the controller's effective configuration.
func (c *SessionController) Config() Config {
	return c.cfg
}

func (c *SessionController) notify(oldID, newID string) {
	c.mu.RLock()
	observers := c.observers
	c.mu.RUnlock()
	for _, fn := range observers {
		fn(oldID, newID)
	}
}
