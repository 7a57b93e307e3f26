// Package pgtenant provides PostgreSQL-based multi-tenancy using row-level
// security, with zero runtime dependencies.
//
// # Module Structure
//
// This root package is the runtime: it manages which tenant a session has
// selected and propagates that selection to the database connection executing
// queries. The schema package discovers foreign-key chains back to the tenant
// table and installs the row-security policies that consult the propagated
// setting. Integrations live in their own packages (pgxtenant for pgxpool,
// tenanthttp for HTTP middleware); the CLI lives under cmd/pgtenant.
//
// # How Isolation Works
//
// Every tenant-owned table gets a policy whose predicate compares the row's
// foreign-key chain to a session-scoped setting (by default
// "pgtenant.active_tenant"). When the setting is absent or empty the
// predicate is false, so an unconfigured connection sees zero protected rows.
// Fail-closed is the point: forgetting to propagate the tenant never leaks
// another tenant's data.
//
// # Basic Usage
//
//	dir := pgtenant.NewPGDirectory(db, pgtenant.DefaultConfig())
//	ctrl := pgtenant.NewSessionController(dir)
//
//	// On tenant switch requests:
//	err := ctrl.Select(ctx, caller, store, "42")
//
//	// Before running queries on behalf of the session:
//	err = ctrl.Activate(ctx, db, caller, store)
//
// # Transaction Support
//
// The Querier and Execer interfaces are implemented by *sql.DB, *sql.Tx, and
// *sql.Conn, so activation can participate in an existing transaction. Note
// that activation applies to the underlying session: on a pooled *sql.DB the
// executing connection is not pinned, so pooled applications should use the
// pgxtenant package, which re-propagates on every connection checkout.
package pgtenant

import (
	"context"
	"database/sql"
)

// Tenant is the entity whose identifier partitions rows. A row belongs to
// the tenant reachable through its foreign-key chain.
//
// IDs are strings end to end because the database-side setting is text; the
// installed predicates cast the foreign-key column to TEXT for comparison.
type Tenant struct {
	ID     string
	Name   string
	Active bool
}

// Caller identifies who is driving a session. The zero value is an
// unauthenticated caller, which may deselect but never select a tenant.
type Caller struct {
	ID            string
	Authenticated bool
}

// Config carries the settings shared by the runtime and the schema package.
// Components receive it explicitly at construction; there is no process-wide
// mutable configuration.
type Config struct {
	// TenantTable is the table holding tenant rows. Foreign-key chains are
	// resolved against it and it never receives a policy itself.
	TenantTable string

	// TenantSetting is the session-scoped setting name the generated
	// predicates read via current_setting. Absent or empty means no tenant,
	// which yields zero protected rows.
	TenantSetting string

	// UserSetting is the session-scoped setting carrying the caller identity.
	// Only the superuser bypass policy consults it.
	UserSetting string

	// SuperuserBypass installs a second, independent policy granting
	// visibility to flagged operator connections. Always an explicit opt-in.
	SuperuserBypass bool
}

// Default setting names. Namespaced so they cannot collide with server GUCs.
const (
	DefaultTenantTable   = "pgtenant_tenant"
	DefaultTenantSetting = "pgtenant.active_tenant"
	DefaultUserSetting   = "pgtenant.user_id"
)

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		TenantTable:   DefaultTenantTable,
		TenantSetting: DefaultTenantSetting,
		UserSetting:   DefaultUserSetting,
	}
}

// WithDefaults fills any unset field from DefaultConfig. Constructors call
// this so a zero Config behaves like the stock one.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.TenantTable == "" {
		c.TenantTable = d.TenantTable
	}
	if c.TenantSetting == "" {
		c.TenantSetting = d.TenantSetting
	}
	if c.UserSetting == "" {
		c.UserSetting = d.UserSetting
	}
	return c
}

// IsRegistryTable reports whether a table belongs to the tenant registry.
// Registry tables never receive a policy: the visibility lookup that decides
// whether a caller may select a tenant has to work before any tenant is
// active.
func (c Config) IsRegistryTable(table string) bool {
	switch table {
	case c.TenantTable, c.TenantTable + "_users", "pgtenant_superusers":
		return true
	}
	return false
}

// Querier executes queries against PostgreSQL.
// Implemented by *sql.DB, *sql.Tx, and *sql.Conn.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer extends Querier with ExecContext. Activation and the tenant
// directory need it; read-only callers can stay on Querier.
type Execer interface {
	Querier
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
