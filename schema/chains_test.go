package schema_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/pgtenant/pgtenant/schema"
)

// fakeCatalog is an in-memory Catalog fixture. Column lists only carry the
// foreign-key columns tests care about.
type fakeCatalog struct {
	columns map[string][]schema.Column
}

func (f *fakeCatalog) Tables(ctx context.Context) ([]string, error) {
	tables := make([]string, 0, len(f.columns))
	for t := range f.columns {
		tables = append(tables, t)
	}
	return tables, nil
}

func (f *fakeCatalog) ListColumns(ctx context.Context, table string) ([]schema.Column, error) {
	return f.columns[table], nil
}

func fk(name, target, targetCol string) schema.Column {
	return schema.Column{Name: name, Type: "bigint", IsForeignKey: true, TargetTable: target, TargetColumn: targetCol}
}

// testCatalog mirrors the shapes the resolver must handle: a direct link,
// a table with both a direct and an indirect link, a deeper indirect-only
// link, a self-referential table, a mutually-referential pair, and a table
// with no path at all.
func testCatalog() *fakeCatalog {
	return &fakeCatalog{columns: map[string][]schema.Column{
		"tenant": {
			{Name: "tenant_id", Type: "bigint"},
			{Name: "name", Type: "text"},
		},
		"customer": {
			fk("tenant_id", "tenant", "tenant_id"),
		},
		"orders": {
			fk("customer_id", "customer", "id"),
			fk("tenant_id", "tenant", "tenant_id"),
		},
		"note": {
			fk("order_id", "orders", "id"),
		},
		"employee": {
			fk("manager_id", "employee", "id"),
			fk("tenant_id", "tenant", "tenant_id"),
		},
		"pair_a": {
			fk("pair_b_id", "pair_b", "id"),
			fk("tenant_id", "tenant", "tenant_id"),
		},
		"pair_b": {
			fk("pair_a_id", "pair_a", "id"),
		},
		"distinct_model": {
			{Name: "label", Type: "text"},
		},
	}}
}

func buildTestGraph(t *testing.T) *schema.Graph {
	t.Helper()
	g, err := schema.BuildGraph(context.Background(), testCatalog())
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	return g
}

func resolve(t *testing.T, g *schema.Graph, subject string) []schema.Chain {
	t.Helper()
	chains, err := g.Resolve(subject, "tenant")
	if err != nil {
		t.Fatalf("Resolve(%s): %v", subject, err)
	}
	return chains
}

func TestResolveDirect(t *testing.T) {
	g := buildTestGraph(t)

	chains := resolve(t, g, "customer")
	if len(chains) != 1 {
		t.Fatalf("customer chains = %d, want 1", len(chains))
	}
	if !chains[0].Direct() {
		t.Errorf("customer chain should be direct: %v", chains[0])
	}
	if got := chains[0].First().Column; got != "tenant_id" {
		t.Errorf("first column = %q, want tenant_id", got)
	}
}

func TestResolveMultipleChains(t *testing.T) {
	g := buildTestGraph(t)

	// orders reaches the tenant directly and through customer; both chains
	// are necessary conditions and both must be returned.
	chains := resolve(t, g, "orders")
	if len(chains) != 2 {
		t.Fatalf("orders chains = %d, want 2: %v", len(chains), chains)
	}

	var direct, indirect int
	for _, c := range chains {
		if c.Direct() {
			direct++
		} else {
			indirect++
		}
	}
	if direct != 1 || indirect != 1 {
		t.Errorf("got %d direct and %d indirect chains, want 1 and 1", direct, indirect)
	}
}

func TestResolveDeepChain(t *testing.T) {
	g := buildTestGraph(t)

	// note -> orders, then inherits both of orders' routes to the tenant.
	chains := resolve(t, g, "note")
	if len(chains) != 2 {
		t.Fatalf("note chains = %d, want 2: %v", len(chains), chains)
	}
	for _, c := range chains {
		if c.First().TargetTable != "orders" {
			t.Errorf("note chain should start through orders, got %v", c.First())
		}
	}
}

func TestResolveSelfReferential(t *testing.T) {
	g := buildTestGraph(t)

	// employee.manager_id points at employee itself; traversal must
	// terminate and still find the tenant FK.
	chains := resolve(t, g, "employee")
	if len(chains) != 1 {
		t.Fatalf("employee chains = %d, want 1: %v", len(chains), chains)
	}
	if !chains[0].Direct() {
		t.Errorf("employee chain should be direct: %v", chains[0])
	}
}

func TestResolveMutuallyReferential(t *testing.T) {
	g := buildTestGraph(t)

	// pair_a <-> pair_b reference each other. pair_a has its own tenant FK;
	// pair_b reaches the tenant only through pair_a.
	aChains := resolve(t, g, "pair_a")
	if len(aChains) != 1 {
		t.Fatalf("pair_a chains = %d, want 1: %v", len(aChains), aChains)
	}

	bChains := resolve(t, g, "pair_b")
	if len(bChains) != 1 {
		t.Fatalf("pair_b chains = %d, want 1: %v", len(bChains), bChains)
	}
	if bChains[0].Direct() {
		t.Errorf("pair_b chain should be indirect: %v", bChains[0])
	}
	if got := len(bChains[0]); got != 2 {
		t.Errorf("pair_b chain length = %d, want 2", got)
	}
}

func TestResolveNoPath(t *testing.T) {
	g := buildTestGraph(t)

	chains := resolve(t, g, "distinct_model")
	if len(chains) != 0 {
		t.Errorf("distinct_model chains = %v, want none", chains)
	}
}

func TestResolveSubjectIsTenantTable(t *testing.T) {
	g := buildTestGraph(t)

	chains := resolve(t, g, "tenant")
	if len(chains) != 0 {
		t.Errorf("tenant chains = %v, want none", chains)
	}
}

func TestResolveDeterministic(t *testing.T) {
	g := buildTestGraph(t)

	first := resolve(t, g, "orders")
	for range 10 {
		if next := resolve(t, g, "orders"); !reflect.DeepEqual(first, next) {
			t.Fatalf("Resolve output not deterministic: %v vs %v", first, next)
		}
	}
}
