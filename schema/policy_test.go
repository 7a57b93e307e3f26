package schema_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/pgtenant/pgtenant"
	"github.com/pgtenant/pgtenant/schema"
)

// fakeExecer records executed statements and can fail a specific one.
// It deliberately does not implement BeginTx, exercising the Manager's
// caller-supplied-atomicity path.
type fakeExecer struct {
	statements []string
	failOn     string
	failWith   error
}

func (f *fakeExecer) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if f.failOn != "" && strings.Contains(query, f.failOn) {
		return nil, f.failWith
	}
	f.statements = append(f.statements, query)
	return nil, nil
}

func (f *fakeExecer) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeExecer) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

// fakePGError mimics a pgconn/pq error carrying a SQLSTATE.
type fakePGError struct {
	state string
}

func (e *fakePGError) Error() string    { return "fake pg error " + e.state }
func (e *fakePGError) SQLState() string { return e.state }

func newManager(db pgtenant.Execer, bypass bool) *schema.Manager {
	cfg := pgtenant.Config{
		TenantTable:     "tenant",
		SuperuserBypass: bypass,
	}
	return schema.NewManager(db, testCatalog(), cfg)
}

func TestEnableIssuesDDLInOrder(t *testing.T) {
	db := &fakeExecer{}
	m := newManager(db, false)

	applied, err := m.Enable(context.Background(), "customer")
	if err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if !applied {
		t.Fatal("Enable should report applied")
	}

	want := []string{
		`ALTER TABLE "customer" ENABLE ROW LEVEL SECURITY`,
		`ALTER TABLE "customer" FORCE ROW LEVEL SECURITY`,
		`CREATE POLICY access_tenant_data ON "customer" ` +
			`USING ("customer"."tenant_id"::TEXT = current_setting('pgtenant.active_tenant', TRUE)) ` +
			`WITH CHECK ("customer"."tenant_id"::TEXT = current_setting('pgtenant.active_tenant', TRUE))`,
	}
	if len(db.statements) != len(want) {
		t.Fatalf("statements = %d, want %d:\n%s", len(db.statements), len(want), strings.Join(db.statements, "\n"))
	}
	for i, stmt := range want {
		if db.statements[i] != stmt {
			t.Errorf("statement %d = %q, want %q", i, db.statements[i], stmt)
		}
	}
}

func TestEnableWithBypassInstallsSecondPolicy(t *testing.T) {
	db := &fakeExecer{}
	m := newManager(db, true)

	if _, err := m.Enable(context.Background(), "customer"); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	last := db.statements[len(db.statements)-1]
	want := `CREATE POLICY superuser_access_tenant_data ON "customer" ` +
		`USING (pgtenant_is_superuser(current_setting('pgtenant.user_id', TRUE)))`
	if last != want {
		t.Errorf("bypass policy = %q, want %q", last, want)
	}
}

func TestEnableTenantTableIsSkipped(t *testing.T) {
	db := &fakeExecer{}
	m := newManager(db, false)

	applied, err := m.Enable(context.Background(), "tenant")
	if err != nil {
		t.Fatalf("Enable(tenant): %v", err)
	}
	if applied {
		t.Error("tenant table should not receive a policy")
	}
	if len(db.statements) != 0 {
		t.Errorf("no DDL expected, got %v", db.statements)
	}
}

func TestEnableNoTenantLink(t *testing.T) {
	db := &fakeExecer{}
	m := newManager(db, false)

	_, err := m.Enable(context.Background(), "distinct_model")
	if !schema.IsNoTenantLinkErr(err) {
		t.Fatalf("Enable(distinct_model) err = %v, want ErrNoTenantLink", err)
	}
	if len(db.statements) != 0 {
		t.Errorf("no DDL should be issued, got %v", db.statements)
	}
}

func TestEnableMapsDuplicatePolicy(t *testing.T) {
	db := &fakeExecer{
		failOn:   "CREATE POLICY access_tenant_data",
		failWith: &fakePGError{state: "42710"},
	}
	m := newManager(db, false)

	_, err := m.Enable(context.Background(), "customer")
	if !schema.IsPolicyExistsErr(err) {
		t.Fatalf("err = %v, want ErrPolicyExists", err)
	}
}

func TestDisableIssuesMirrorDDL(t *testing.T) {
	db := &fakeExecer{}
	m := newManager(db, true)

	if err := m.Disable(context.Background(), "customer"); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	want := []string{
		`DROP POLICY access_tenant_data ON "customer"`,
		`DROP POLICY superuser_access_tenant_data ON "customer"`,
		`ALTER TABLE "customer" NO FORCE ROW LEVEL SECURITY`,
		`ALTER TABLE "customer" DISABLE ROW LEVEL SECURITY`,
	}
	if len(db.statements) != len(want) {
		t.Fatalf("statements = %v, want %v", db.statements, want)
	}
	for i, stmt := range want {
		if db.statements[i] != stmt {
			t.Errorf("statement %d = %q, want %q", i, db.statements[i], stmt)
		}
	}
}

func TestDisableMapsMissingPolicy(t *testing.T) {
	db := &fakeExecer{
		failOn:   "DROP POLICY access_tenant_data",
		failWith: &fakePGError{state: "42704"},
	}
	m := newManager(db, false)

	err := m.Disable(context.Background(), "customer")
	if !schema.IsPolicyNotFoundErr(err) {
		t.Fatalf("err = %v, want ErrPolicyNotFound", err)
	}
}

func TestEnableAllOrdersDependenciesFirst(t *testing.T) {
	db := &fakeExecer{}
	m := newManager(db, false)

	enabled, skipped, err := m.EnableAll(context.Background())
	if err != nil {
		t.Fatalf("EnableAll: %v", err)
	}

	// Every table comes after the tables its EXISTS predicates reference:
	// orders after customer, pair_b after pair_a, note after orders.
	want := []string{"customer", "employee", "pair_a", "orders", "pair_b", "note"}
	if len(enabled) != len(want) {
		t.Fatalf("enabled = %v, want %v", enabled, want)
	}
	for i := range want {
		if enabled[i] != want[i] {
			t.Errorf("enabled[%d] = %q, want %q", i, enabled[i], want[i])
		}
	}

	if len(skipped) != 1 || skipped[0] != "distinct_model" {
		t.Errorf("skipped = %v, want [distinct_model]", skipped)
	}
}

func TestEnableAllReferencedTableBeforeReferencingTable(t *testing.T) {
	// alpha has both a direct tenant FK and an FK to zeta, so its predicate
	// contains an EXISTS over zeta. Despite sorting alphabetically first,
	// alpha must be enabled after zeta; ordering by the shortest chain would
	// put them both at depth one and enable alpha first.
	cat := &fakeCatalog{columns: map[string][]schema.Column{
		"tenant": {
			{Name: "tenant_id", Type: "bigint"},
		},
		"alpha": {
			fk("tenant_id", "tenant", "tenant_id"),
			fk("zeta_id", "zeta", "id"),
		},
		"zeta": {
			fk("tenant_id", "tenant", "tenant_id"),
		},
	}}
	db := &fakeExecer{}
	m := schema.NewManager(db, cat, pgtenant.Config{TenantTable: "tenant"})

	enabled, _, err := m.EnableAll(context.Background())
	if err != nil {
		t.Fatalf("EnableAll: %v", err)
	}
	want := []string{"zeta", "alpha"}
	if len(enabled) != 2 || enabled[0] != want[0] || enabled[1] != want[1] {
		t.Fatalf("enabled = %v, want %v", enabled, want)
	}
}
