package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/pgtenant/pgtenant"
)

// Policy names, fixed so Status and Disable can find what Enable installed.
const (
	AccessPolicyName = "access_tenant_data"
	BypassPolicyName = "superuser_access_tenant_data"
)

// DDL templates. Identifiers are interpolated because DDL does not accept
// bind parameters; every identifier passes through quoteIdent first.
const (
	enableRLS  = "ALTER TABLE %s ENABLE ROW LEVEL SECURITY"
	forceRLS   = "ALTER TABLE %s FORCE ROW LEVEL SECURITY"
	noForceRLS = "ALTER TABLE %s NO FORCE ROW LEVEL SECURITY"
	disableRLS = "ALTER TABLE %s DISABLE ROW LEVEL SECURITY"

	createPolicy = "CREATE POLICY " + AccessPolicyName + " ON %s USING (%s) WITH CHECK (%s)"
	dropPolicy   = "DROP POLICY " + AccessPolicyName + " ON %s"

	createBypassPolicy = "CREATE POLICY " + BypassPolicyName +
		" ON %s USING (pgtenant_is_superuser(current_setting('%s', TRUE)))"
	dropBypassPolicy = "DROP POLICY " + BypassPolicyName + " ON %s"
)

// Manager orchestrates enabling and disabling row-security policies.
//
// Each Enable or Disable runs in its own transaction; a failure at any step
// rolls the whole operation back, so partial policy state is never
// observable. Calls on different tables are independent; calls on the same
// table are serialized by the engine's DDL locking and should not be issued
// concurrently by the orchestrating layer.
//
// Re-enabling an enabled table returns ErrPolicyExists, re-disabling a
// disabled one ErrPolicyNotFound - check Status first or handle the
// sentinel. The Manager never infers cross-table ordering for single-table
// calls; use EnableAll/DisableAll for dependency-ordered batches.
type Manager struct {
	db  pgtenant.Execer
	cat Catalog
	cfg pgtenant.Config
}

// NewManager creates a policy manager over the given handle and catalog.
// The Execer is typically *sql.DB; DDL batches run transactionally when the
// handle supports BeginTx and statement-by-statement otherwise (an already
// open *sql.Tx provides its own atomicity).
func NewManager(db pgtenant.Execer, cat Catalog, cfg pgtenant.Config) *Manager {
	return &Manager{db: db, cat: cat, cfg: cfg.WithDefaults()}
}

// Enable installs row security on a table.
//
// Returns (false, nil) for registry tables: tenant rows are scoped by
// visibility grants, not by a self-referential policy, and the grant tables
// must stay readable before any tenant is active.
// Returns ErrNoTenantLink when the table has no foreign-key path to the
// tenant table - that is an operator configuration error, not a skip.
//
// The chain set is resolved from the catalog at call time; nothing is
// cached across schema changes.
func (m *Manager) Enable(ctx context.Context, table string) (applied bool, err error) {
	if m.cfg.IsRegistryTable(table) {
		return false, nil
	}

	graph, err := BuildGraph(ctx, m.cat)
	if err != nil {
		return false, fmt.Errorf("building schema graph: %w", err)
	}
	chains, err := graph.Resolve(table, m.cfg.TenantTable)
	if err != nil {
		return false, err
	}
	if len(chains) == 0 {
		return false, fmt.Errorf("table %q: %w", table, ErrNoTenantLink)
	}

	predicate := Predicate(chains, m.cfg.TenantTable, m.cfg.TenantSetting)
	quoted := quoteIdent(table)

	statements := []string{
		fmt.Sprintf(enableRLS, quoted),
		fmt.Sprintf(forceRLS, quoted),
		fmt.Sprintf(createPolicy, quoted, predicate, predicate),
	}
	if m.cfg.SuperuserBypass {
		statements = append(statements,
			fmt.Sprintf(createBypassPolicy, quoted, m.cfg.UserSetting))
	}

	if err := m.applyTx(ctx, statements); err != nil {
		return false, err
	}
	return true, nil
}

// Disable removes row security from a table: drop the policies, then turn
// off forced and regular row security, all in one transaction. Disabling
// a registry table is a no-op since Enable never touches them.
func (m *Manager) Disable(ctx context.Context, table string) error {
	if m.cfg.IsRegistryTable(table) {
		return nil
	}

	quoted := quoteIdent(table)
	statements := []string{
		fmt.Sprintf(dropPolicy, quoted),
	}
	if m.cfg.SuperuserBypass {
		statements = append(statements, fmt.Sprintf(dropBypassPolicy, quoted))
	}
	statements = append(statements,
		fmt.Sprintf(noForceRLS, quoted),
		fmt.Sprintf(disableRLS, quoted),
	)

	return m.applyTx(ctx, statements)
}

// EnableAll installs policies on every table with a chain to the tenant
// table, dependency-first: a table is never enabled before the tables its
// indirect predicates reference, so each EXISTS subquery lands on an
// already-protected table. Tables without any chain and the registry
// tables are skipped and reported, not failed - a schema normally
// contains unrelated tables.
func (m *Manager) EnableAll(ctx context.Context) (enabled, skipped []string, err error) {
	ordered, unlinked, err := m.orderedTables(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, table := range ordered {
		if _, err := m.Enable(ctx, table); err != nil {
			return enabled, unlinked, fmt.Errorf("enabling %q: %w", table, err)
		}
		enabled = append(enabled, table)
	}
	return enabled, unlinked, nil
}

// DisableAll removes policies root-first (the reverse of EnableAll),
// skipping tables that have none installed.
func (m *Manager) DisableAll(ctx context.Context) (disabled []string, err error) {
	ordered, _, err := m.orderedTables(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(ordered) - 1; i >= 0; i-- {
		table := ordered[i]
		st, err := m.Status(ctx, table)
		if err != nil {
			return disabled, err
		}
		if !st.HasPolicy {
			continue
		}
		if err := m.Disable(ctx, table); err != nil {
			return disabled, fmt.Errorf("disabling %q: %w", table, err)
		}
		disabled = append(disabled, table)
	}
	return disabled, nil
}

// Status reports a table's current row-security state from the system
// catalogs. Callers use it to make Enable/Disable idempotent at their
// layer without relying on error swallowing.
type Status struct {
	Table            string
	RowSecurity      bool
	ForceRowSecurity bool
	HasPolicy        bool
	HasBypassPolicy  bool
}

// Status returns the row-security state of one table.
func (m *Manager) Status(ctx context.Context, table string) (Status, error) {
	st := Status{Table: table}
	err := m.db.QueryRowContext(ctx, `
		SELECT c.relrowsecurity,
		       c.relforcerowsecurity,
		       EXISTS (SELECT 1 FROM pg_catalog.pg_policy p
		               WHERE p.polrelid = c.oid AND p.polname = $2),
		       EXISTS (SELECT 1 FROM pg_catalog.pg_policy p
		               WHERE p.polrelid = c.oid AND p.polname = $3)
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind = 'r'
		  AND n.nspname = current_schema()
		  AND c.relname = $1`,
		table, AccessPolicyName, BypassPolicyName,
	).Scan(&st.RowSecurity, &st.ForceRowSecurity, &st.HasPolicy, &st.HasBypassPolicy)
	if errors.Is(err, sql.ErrNoRows) {
		return Status{}, fmt.Errorf("table %q not found in current schema", table)
	}
	if err != nil {
		return Status{}, fmt.Errorf("reading status of %q: %w", table, err)
	}
	return st, nil
}

// applyTx executes statements in order, atomically when the handle can
// begin a transaction.
func (m *Manager) applyTx(ctx context.Context, statements []string) error {
	if txer, ok := m.db.(interface {
		BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	}); ok {
		tx, err := txer.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("starting transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := applyStatements(ctx, tx, statements); err != nil {
			return err
		}
		return tx.Commit()
	}

	// Caller-supplied transaction or connection provides atomicity.
	return applyStatements(ctx, m.db, statements)
}

func applyStatements(ctx context.Context, db pgtenant.Execer, statements []string) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return mapPolicyError(stmt, err)
		}
	}
	return nil
}

// orderedTables resolves chains for every catalog table and returns the
// linked ones sorted dependency-first, plus the tables with no chain at all.
//
// The sort key is the longest chain to the tenant table: an indirect
// predicate on table t references the first-edge table of each of t's
// chains, and that table's longest chain is strictly shorter than t's
// (every one of its chains extends to a chain of t). Sorting by maximum
// length ascending therefore installs every referenced table's policy
// before the policies that reference it. Name is the tiebreak; tables at
// equal depth cannot reference one another.
func (m *Manager) orderedTables(ctx context.Context) (ordered, unlinked []string, err error) {
	graph, err := BuildGraph(ctx, m.cat)
	if err != nil {
		return nil, nil, fmt.Errorf("building schema graph: %w", err)
	}

	depth := map[string]int{}
	for _, table := range graph.Tables() {
		if m.cfg.IsRegistryTable(table) {
			continue
		}
		chains, err := graph.Resolve(table, m.cfg.TenantTable)
		if err != nil {
			return nil, nil, err
		}
		if len(chains) == 0 {
			unlinked = append(unlinked, table)
			continue
		}
		max := len(chains[0])
		for _, c := range chains[1:] {
			if len(c) > max {
				max = len(c)
			}
		}
		depth[table] = max
		ordered = append(ordered, table)
	}

	sort.Slice(ordered, func(i, j int) bool {
		if depth[ordered[i]] != depth[ordered[j]] {
			return depth[ordered[i]] < depth[ordered[j]]
		}
		return ordered[i] < ordered[j]
	})
	return ordered, unlinked, nil
}
