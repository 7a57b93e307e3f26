// Package pgxtenant integrates pgtenant with pgxpool connection pools.
//
// Row-security settings are session-scoped at the database, but a pooled
// connection outlives the logical session that configured it. A stale
// tenant setting on a reused connection would leak or misattribute rows,
// so this package re-propagates (or explicitly clears) the tenant and
// caller-identity settings on every connection checkout, and resets them
// when the connection goes back to the pool.
//
// The active session travels on the context:
//
//	ctx = pgxtenant.WithSession(ctx, pgxtenant.Session{TenantID: "42", UserID: "alice"})
//	rows, err := pool.Query(ctx, "SELECT ...")
//
// A context without a session clears both settings, so queries on such a
// context see zero protected rows. Fail-closed, same as the policies.
package pgxtenant

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgtenant/pgtenant"
)

// Session is the per-request tenant and caller identity propagated to the
// connection. The zero value means "no tenant, no identity".
type Session struct {
	TenantID string
	UserID   string
}

type sessionCtxKey struct{}

// WithSession returns a context carrying the session. Queries issued on the
// returned context run with the session's tenant active.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

// SessionFromContext returns the session carried by the context, if any.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionCtxKey{}).(Session)
	return s, ok
}

// Both settings in one round trip per checkout.
const propagateSQL = "SELECT set_config($1, $2, false), set_config($3, $4, false)"

// Configure installs the propagation hooks on a pgxpool config. Existing
// BeforeAcquire/AfterRelease hooks are preserved and run first.
func Configure(poolCfg *pgxpool.Config, cfg pgtenant.Config) {
	cfg = cfg.WithDefaults()

	prevAcquire := poolCfg.BeforeAcquire
	poolCfg.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		if prevAcquire != nil && !prevAcquire(ctx, conn) {
			return false
		}
		// Absent session propagates empty values; skipping the write would
		// let the previous holder's settings survive the checkout.
		s, _ := SessionFromContext(ctx)
		if _, err := conn.Exec(ctx, propagateSQL,
			cfg.TenantSetting, s.TenantID, cfg.UserSetting, s.UserID); err != nil {
			log.Printf("[pgtenant] discarding connection, session propagation failed: %v", err)
			return false
		}
		return true
	}

	prevRelease := poolCfg.AfterRelease
	poolCfg.AfterRelease = func(conn *pgx.Conn) bool {
		if prevRelease != nil && !prevRelease(conn) {
			return false
		}
		if _, err := conn.Exec(context.Background(), propagateSQL,
			cfg.TenantSetting, "", cfg.UserSetting, ""); err != nil {
			log.Printf("[pgtenant] discarding connection, session reset failed: %v", err)
			return false
		}
		return true
	}
}

// NewPool parses the DSN and returns a pool with propagation hooks
// installed.
func NewPool(ctx context.Context, dsn string, cfg pgtenant.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	Configure(poolCfg, cfg)
	return pgxpool.NewWithConfig(ctx, poolCfg)
}
