package pgtenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	pgtenantsql "github.com/pgtenant/pgtenant/sql"
)

// PGDirectory stores tenants and their visibility grants in PostgreSQL.
//
// Tenants are deactivated (soft) rather than deleted by default; Delete is
// the explicit destructive operation. Lookup methods only ever return active
// tenants, so deactivation immediately removes a tenant from every caller's
// permitted set without destroying its rows.
type PGDirectory struct {
	db  Execer
	cfg Config
}

// NewPGDirectory creates a directory over the given database handle.
func NewPGDirectory(db Execer, cfg Config) *PGDirectory {
	return &PGDirectory{db: db, cfg: cfg.WithDefaults()}
}

// EnsureSchema applies the embedded tenant DDL. Idempotent; safe to call on
// every application startup.
func (d *PGDirectory) EnsureSchema(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, pgtenantsql.TenantsSQL); err != nil {
		return fmt.Errorf("creating tenant tables: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, pgtenantsql.FunctionsSQL); err != nil {
		return fmt.Errorf("creating superuser function: %w", err)
	}
	return nil
}

// Create inserts a new active tenant and returns it.
func (d *PGDirectory) Create(ctx context.Context, name string) (Tenant, error) {
	var t Tenant
	err := d.db.QueryRowContext(ctx,
		`INSERT INTO pgtenant_tenant (name) VALUES ($1)
		 RETURNING tenant_id::TEXT, name, is_active`,
		name,
	).Scan(&t.ID, &t.Name, &t.Active)
	if err != nil {
		return Tenant{}, fmt.Errorf("creating tenant %q: %w", name, err)
	}
	return t, nil
}

// Get returns the tenant with the given id, active or not.
func (d *PGDirectory) Get(ctx context.Context, tenantID string) (Tenant, error) {
	var t Tenant
	err := d.db.QueryRowContext(ctx,
		`SELECT tenant_id::TEXT, name, is_active FROM pgtenant_tenant
		 WHERE tenant_id::TEXT = $1`,
		tenantID,
	).Scan(&t.ID, &t.Name, &t.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return Tenant{}, fmt.Errorf("tenant %q: %w", tenantID, ErrTenantNotFound)
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("loading tenant %q: %w", tenantID, err)
	}
	return t, nil
}

// Deactivate soft-deletes a tenant. Its rows remain; it disappears from
// every caller's permitted set.
func (d *PGDirectory) Deactivate(ctx context.Context, tenantID string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE pgtenant_tenant SET is_active = FALSE WHERE tenant_id::TEXT = $1`,
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("deactivating tenant %q: %w", tenantID, err)
	}
	return d.checkAffected(res, tenantID)
}

// Delete hard-deletes a tenant and, via cascade, its visibility grants.
// Destructive and irreversible; prefer Deactivate.
func (d *PGDirectory) Delete(ctx context.Context, tenantID string) error {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM pgtenant_tenant WHERE tenant_id::TEXT = $1`,
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("deleting tenant %q: %w", tenantID, err)
	}
	return d.checkAffected(res, tenantID)
}

// GrantVisibility allows a caller to select the tenant. Granting twice is a
// no-op.
func (d *PGDirectory) GrantVisibility(ctx context.Context, tenantID, userID string) error {
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO pgtenant_tenant_users (tenant_id, user_id)
		 SELECT tenant_id, $2 FROM pgtenant_tenant WHERE tenant_id::TEXT = $1
		 ON CONFLICT DO NOTHING`,
		tenantID, userID,
	)
	if err != nil {
		return fmt.Errorf("granting tenant %q to %q: %w", tenantID, userID, err)
	}
	// Zero rows means either the tenant is missing or the grant already
	// existed; distinguish so missing tenants fail loudly.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := d.Get(ctx, tenantID); err != nil {
			return err
		}
	}
	return nil
}

// RevokeVisibility removes a caller's grant. Revoking a grant that does not
// exist is a no-op.
func (d *PGDirectory) RevokeVisibility(ctx context.Context, tenantID, userID string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM pgtenant_tenant_users
		 WHERE tenant_id::TEXT = $1 AND user_id = $2`,
		tenantID, userID,
	)
	if err != nil {
		return fmt.Errorf("revoking tenant %q from %q: %w", tenantID, userID, err)
	}
	return nil
}

// AddSuperuser registers an operator identity honored by the superuser
// bypass policy. An explicit, auditable escape hatch, never a default.
func (d *PGDirectory) AddSuperuser(ctx context.Context, userID string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO pgtenant_superusers (user_id) VALUES ($1) ON CONFLICT DO NOTHING`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("adding superuser %q: %w", userID, err)
	}
	return nil
}

// RemoveSuperuser drops an operator identity.
func (d *PGDirectory) RemoveSuperuser(ctx context.Context, userID string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM pgtenant_superusers WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("removing superuser %q: %w", userID, err)
	}
	return nil
}

// VisibleTenant implements Directory. Only active tenants with a grant for
// the caller are returned; (Tenant{}, false, nil) means "not permitted"
// without distinguishing unknown from ungranted, so callers cannot probe for
// tenant existence.
func (d *PGDirectory) VisibleTenant(ctx context.Context, callerID, tenantID string) (Tenant, bool, error) {
	var t Tenant
	err := d.db.QueryRowContext(ctx,
		`SELECT t.tenant_id::TEXT, t.name, t.is_active
		 FROM pgtenant_tenant t
		 JOIN pgtenant_tenant_users tu ON tu.tenant_id = t.tenant_id
		 WHERE t.tenant_id::TEXT = $1 AND tu.user_id = $2 AND t.is_active`,
		tenantID, callerID,
	).Scan(&t.ID, &t.Name, &t.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return Tenant{}, false, nil
	}
	if err != nil {
		return Tenant{}, false, fmt.Errorf("checking tenant visibility: %w", err)
	}
	return t, true, nil
}

// VisibleTenants lists every active tenant the caller may select.
func (d *PGDirectory) VisibleTenants(ctx context.Context, callerID string) ([]Tenant, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT t.tenant_id::TEXT, t.name, t.is_active
		 FROM pgtenant_tenant t
		 JOIN pgtenant_tenant_users tu ON tu.tenant_id = t.tenant_id
		 WHERE tu.user_id = $1 AND t.is_active
		 ORDER BY t.name`,
		callerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing visible tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tenants []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Active); err != nil {
			return nil, fmt.Errorf("scanning tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (d *PGDirectory) checkAffected(res sql.Result, tenantID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("tenant %q: %w", tenantID, ErrTenantNotFound)
	}
	return nil
}
