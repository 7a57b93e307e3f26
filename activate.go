package pgtenant

import (
	"context"
	"fmt"
)

// set_config is used instead of SET because SET does not accept bind
// parameters. The final argument (is_local=false) makes the value
// session-scoped rather than transaction-scoped, matching the lifetime the
// installed policies expect. Callers holding a pooled connection must reset
// or re-propagate on every checkout; the pgxtenant package does this.
const setConfigSQL = "SELECT set_config($1, $2, false)"

// Activate writes the active tenant and caller identity into the database
// session's settings. An empty tenantID explicitly clears the tenant, which
// the policies read as "no tenant": zero protected rows. An empty userID
// clears the identity consumed by the superuser bypass policy.
//
// Both settings are always written, never skipped, so a connection reused
// from a previous logical session cannot retain stale values.
func Activate(ctx context.Context, db Execer, cfg Config, tenantID, userID string) error {
	cfg = cfg.WithDefaults()

	if _, err := db.ExecContext(ctx, setConfigSQL, cfg.TenantSetting, tenantID); err != nil {
		return fmt.Errorf("setting %s: %w", cfg.TenantSetting, err)
	}
	if _, err := db.ExecContext(ctx, setConfigSQL, cfg.UserSetting, userID); err != nil {
		return fmt.Errorf("setting %s: %w", cfg.UserSetting, err)
	}
	return nil
}

// Reset clears both session settings. Equivalent to Activate with empty
// values; reads as a statement of intent at connection-release points.
func Reset(ctx context.Context, db Execer, cfg Config) error {
	return Activate(ctx, db, cfg, "", "")
}
