package schema_test

import (
	"strings"
	"testing"

	"github.com/pgtenant/pgtenant/schema"
)

const testSetting = "pgtenant.active_tenant"

func TestClausesDirect(t *testing.T) {
	g := buildTestGraph(t)
	chains := resolve(t, g, "customer")

	clauses := schema.Clauses(chains, "tenant", testSetting)
	if len(clauses) != 1 {
		t.Fatalf("clauses = %v, want 1", clauses)
	}

	want := `"customer"."tenant_id"::TEXT = current_setting('pgtenant.active_tenant', TRUE)`
	if clauses[0] != want {
		t.Errorf("direct clause = %q, want %q", clauses[0], want)
	}
}

func TestClausesIndirect(t *testing.T) {
	g := buildTestGraph(t)
	chains := resolve(t, g, "pair_b")

	clauses := schema.Clauses(chains, "tenant", testSetting)
	if len(clauses) != 1 {
		t.Fatalf("clauses = %v, want 1", clauses)
	}

	want := `EXISTS (SELECT 1 FROM "pair_a" WHERE "pair_b"."pair_a_id" = "pair_a"."id")`
	if clauses[0] != want {
		t.Errorf("indirect clause = %q, want %q", clauses[0], want)
	}
}

func TestClausesConjoinBothForms(t *testing.T) {
	g := buildTestGraph(t)
	chains := resolve(t, g, "orders")

	predicate := schema.Predicate(chains, "tenant", testSetting)

	if !strings.Contains(predicate, " AND ") {
		t.Errorf("predicate should conjoin both chains: %q", predicate)
	}
	if !strings.Contains(predicate, `"orders"."tenant_id"::TEXT = current_setting`) {
		t.Errorf("predicate missing direct clause: %q", predicate)
	}
	if !strings.Contains(predicate, `EXISTS (SELECT 1 FROM "customer" WHERE "orders"."customer_id" = "customer"."id")`) {
		t.Errorf("predicate missing indirect clause: %q", predicate)
	}
}

func TestClausesDeduplicateSharedFirstEdge(t *testing.T) {
	g := buildTestGraph(t)

	// Both of note's chains run through note.order_id, so one existence
	// check covers them; orders' own policy enforces the rest.
	chains := resolve(t, g, "note")
	if len(chains) != 2 {
		t.Fatalf("note chains = %d, want 2", len(chains))
	}

	clauses := schema.Clauses(chains, "tenant", testSetting)
	if len(clauses) != 1 {
		t.Fatalf("clauses = %v, want 1 after first-edge dedup", clauses)
	}
	want := `EXISTS (SELECT 1 FROM "orders" WHERE "note"."order_id" = "orders"."id")`
	if clauses[0] != want {
		t.Errorf("clause = %q, want %q", clauses[0], want)
	}
}

func TestPredicateEmptyForNoChains(t *testing.T) {
	if got := schema.Predicate(nil, "tenant", testSetting); got != "" {
		t.Errorf("predicate for no chains = %q, want empty", got)
	}
}
