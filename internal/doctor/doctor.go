// Package doctor provides health checks for tenant isolation infrastructure.
//
// The doctor command validates that row level security is properly installed
// by checking the tenant registry, the helper functions, and the per-table
// policy state.
//
// Example usage:
//
//	d := doctor.New(db, cfg)
//	report, err := d.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	report.Print(os.Stdout, true) // verbose=true
package doctor

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pgtenant/pgtenant"
	"github.com/pgtenant/pgtenant/schema"
)

// Status represents the result of a health check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical issue that will cause failures.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns a status indicator symbol for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}

// CheckResult represents the outcome of a single health check.
type CheckResult struct {
	// Category groups related checks (e.g., "Tenant Registry", "Policies").
	Category string

	// Name is a short identifier for the check.
	Name string

	// Status is the check outcome.
	Status Status

	// Message is a human-readable description of the result.
	Message string

	// Details provides additional information for verbose output.
	Details string

	// FixHint suggests how to resolve issues.
	FixHint string
}

// Report contains all health check results.
type Report struct {
	Checks []CheckResult

	// Summary counts.
	Passed   int
	Warnings int
	Errors   int
}

// AddCheck adds a check result and updates summary counts.
func (r *Report) AddCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	switch check.Status {
	case StatusPass:
		r.Passed++
	case StatusWarn:
		r.Warnings++
	case StatusFail:
		r.Errors++
	}
}

// Print writes the report to the given writer.
func (r *Report) Print(w io.Writer, verbose bool) {
	// Group checks by category
	categories := make(map[string][]CheckResult)
	var categoryOrder []string
	for _, check := range r.Checks {
		if _, exists := categories[check.Category]; !exists {
			categoryOrder = append(categoryOrder, check.Category)
		}
		categories[check.Category] = append(categories[check.Category], check)
	}

	// Print each category
	for _, cat := range categoryOrder {
		_, _ = fmt.Fprintf(w, "\n%s\n", cat)
		for _, check := range categories[cat] {
			_, _ = fmt.Fprintf(w, "  %s %s\n", check.Status.Symbol(), check.Message)
			if verbose && check.Details != "" {
				// Indent details
				for _, line := range strings.Split(check.Details, "\n") {
					_, _ = fmt.Fprintf(w, "      %s\n", line)
				}
			}
			if check.Status != StatusPass && check.FixHint != "" {
				_, _ = fmt.Fprintf(w, "      Fix: %s\n", check.FixHint)
			}
		}
	}

	// Print summary
	_, _ = fmt.Fprintf(w, "\nSummary: %d passed, %d warnings, %d errors\n",
		r.Passed, r.Warnings, r.Errors)
}

// HasErrors returns true if any check failed.
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// Doctor performs health checks on the tenant isolation infrastructure.
type Doctor struct {
	db  *sql.DB
	cfg pgtenant.Config

	// Cached data from checks (populated during Run)
	linked   []string
	unlinked []string
}

// New creates a new Doctor instance.
func New(db *sql.DB, cfg pgtenant.Config) *Doctor {
	return &Doctor{
		db:  db,
		cfg: cfg.WithDefaults(),
	}
}

// Run executes all health checks and returns a report.
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	if err := d.checkRegistry(ctx, report); err != nil {
		return nil, fmt.Errorf("checking tenant registry: %w", err)
	}
	if err := d.checkFunctions(ctx, report); err != nil {
		return nil, fmt.Errorf("checking helper functions: %w", err)
	}
	if err := d.checkTenantLinks(ctx, report); err != nil {
		return nil, fmt.Errorf("checking tenant links: %w", err)
	}
	if err := d.checkPolicies(ctx, report); err != nil {
		return nil, fmt.Errorf("checking policies: %w", err)
	}

	return report, nil
}

// checkRegistry verifies the tenant table and the visibility table exist
// and reports how many active tenants are registered.
func (d *Doctor) checkRegistry(ctx context.Context, report *Report) error {
	exists, err := d.tableExists(ctx, d.cfg.TenantTable)
	if err != nil {
		return err
	}
	if !exists {
		report.AddCheck(CheckResult{
			Category: "Tenant Registry",
			Name:     "tenant_table",
			Status:   StatusFail,
			Message:  fmt.Sprintf("Tenant table %q not found", d.cfg.TenantTable),
			FixHint:  "Run 'pgtenant enable' to install the registry schema",
		})
		return nil
	}

	var total, active int64
	row := d.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM %q`, d.cfg.TenantTable))
	if err := row.Scan(&total, &active); err != nil {
		return err
	}

	report.AddCheck(CheckResult{
		Category: "Tenant Registry",
		Name:     "tenant_table",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Tenant table %q exists (%d tenants, %d active)", d.cfg.TenantTable, total, active),
	})

	if total == 0 {
		report.AddCheck(CheckResult{
			Category: "Tenant Registry",
			Name:     "tenants",
			Status:   StatusWarn,
			Message:  "No tenants registered; every protected query returns zero rows",
			FixHint:  "Create a tenant with 'pgtenant tenant create'",
		})
	}

	usersExists, err := d.tableExists(ctx, d.cfg.TenantTable+"_users")
	if err != nil {
		return err
	}
	if !usersExists {
		report.AddCheck(CheckResult{
			Category: "Tenant Registry",
			Name:     "visibility",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("Visibility table %q not found", d.cfg.TenantTable+"_users"),
			FixHint:  "Run 'pgtenant enable' to install the registry schema",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: "Tenant Registry",
			Name:     "visibility",
			Status:   StatusPass,
			Message:  fmt.Sprintf("Visibility table %q exists", d.cfg.TenantTable+"_users"),
		})
	}

	return nil
}

// checkFunctions verifies the superuser helper function is installed when
// the bypass policy is configured.
func (d *Doctor) checkFunctions(ctx context.Context, report *Report) error {
	if !d.cfg.SuperuserBypass {
		return nil
	}

	var exists bool
	row := d.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_proc WHERE proname = 'pgtenant_is_superuser')`)
	if err := row.Scan(&exists); err != nil {
		return err
	}

	if !exists {
		report.AddCheck(CheckResult{
			Category: "Helper Functions",
			Name:     "superuser",
			Status:   StatusFail,
			Message:  "pgtenant_is_superuser() not installed but superuser bypass is enabled",
			FixHint:  "Run 'pgtenant enable' to install helper functions",
		})
		return nil
	}

	report.AddCheck(CheckResult{
		Category: "Helper Functions",
		Name:     "superuser",
		Status:   StatusPass,
		Message:  "pgtenant_is_superuser() installed",
	})
	return nil
}

// checkTenantLinks walks the foreign key graph and reports tables that
// cannot be tied back to the tenant table. Those tables are unprotected.
func (d *Doctor) checkTenantLinks(ctx context.Context, report *Report) error {
	cat := schema.NewInformationSchemaCatalog(d.db)
	graph, err := schema.BuildGraph(ctx, cat)
	if err != nil {
		return err
	}

	for _, table := range graph.Tables() {
		if d.cfg.IsRegistryTable(table) {
			continue
		}
		chains, err := graph.Resolve(table, d.cfg.TenantTable)
		if err != nil || len(chains) == 0 {
			d.unlinked = append(d.unlinked, table)
			continue
		}
		d.linked = append(d.linked, table)
	}
	sort.Strings(d.linked)
	sort.Strings(d.unlinked)

	report.AddCheck(CheckResult{
		Category: "Tenant Links",
		Name:     "linked",
		Status:   StatusPass,
		Message:  fmt.Sprintf("%d tables reach the tenant table", len(d.linked)),
		Details:  strings.Join(d.linked, "\n"),
	})

	if len(d.unlinked) > 0 {
		report.AddCheck(CheckResult{
			Category: "Tenant Links",
			Name:     "unlinked",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d tables have no path to the tenant table and are unprotected", len(d.unlinked)),
			Details:  strings.Join(d.unlinked, "\n"),
			FixHint:  "Add a foreign key toward the tenant table, or leave shared tables unprotected on purpose",
		})
	}

	return nil
}

// checkPolicies inspects each linked table's row security state.
func (d *Doctor) checkPolicies(ctx context.Context, report *Report) error {
	mgr := schema.NewManager(d.db, schema.NewInformationSchemaCatalog(d.db), d.cfg)

	var missing, unforced []string
	protected := 0
	for _, table := range d.linked {
		st, err := mgr.Status(ctx, table)
		if err != nil {
			return err
		}
		switch {
		case !st.HasPolicy:
			missing = append(missing, table)
		case !st.RowSecurity || !st.ForceRowSecurity:
			unforced = append(unforced, table)
		default:
			protected++
		}
	}

	report.AddCheck(CheckResult{
		Category: "Policies",
		Name:     "protected",
		Status:   StatusPass,
		Message:  fmt.Sprintf("%d of %d linked tables fully protected", protected, len(d.linked)),
	})

	if len(missing) > 0 {
		report.AddCheck(CheckResult{
			Category: "Policies",
			Name:     "missing",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%d linked tables have no tenant policy", len(missing)),
			Details:  strings.Join(missing, "\n"),
			FixHint:  "Run 'pgtenant enable' to install policies",
		})
	}
	if len(unforced) > 0 {
		report.AddCheck(CheckResult{
			Category: "Policies",
			Name:     "forced",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%d tables have a policy but row security is not enabled and forced", len(unforced)),
			Details:  strings.Join(unforced, "\n"),
			FixHint:  "Run 'pgtenant enable' to re-apply ALTER TABLE ... FORCE ROW LEVEL SECURITY",
		})
	}

	return nil
}

func (d *Doctor) tableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	row := d.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, name)
	err := row.Scan(&exists)
	return exists, err
}
