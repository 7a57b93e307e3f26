package schema

import "fmt"

// Chain is an ordered, non-empty sequence of foreign-key edges from a
// subject table to the tenant table. Within one chain no table repeats;
// distinct chains from the same subject may coexist and every one of them
// is a necessary ownership condition.
type Chain []ForeignKey

// First returns the chain's first edge: the subject table's own foreign-key
// column. Policy predicates are built from first edges only; the rest of
// the chain is enforced by the policies installed on the tables it crosses.
func (c Chain) First() ForeignKey {
	return c[0]
}

// Direct reports whether the chain links the subject straight to the tenant
// table with a single edge.
func (c Chain) Direct() bool {
	return len(c) == 1
}

// Resolve returns every foreign-key chain from subject to tenantTable.
//
// Traversal is depth-first over outgoing edges. An edge landing on the
// tenant table completes a chain; any other edge is followed only when its
// target has not already appeared on the current path, which breaks
// self-referential tables and mutually-referential pairs without losing the
// chains that do reach the tenant.
//
// An empty result means either the subject is the tenant table itself (no
// self-predicate needed) or no path exists; Manager distinguishes the two.
// Output order is deterministic for a given graph.
func (g *Graph) Resolve(subject, tenantTable string) ([]Chain, error) {
	if subject == tenantTable {
		return nil, nil
	}

	// The visited guard bounds every path by the node count, so a path
	// longer than the graph has tables means the guard was defeated
	// (duplicate table identities in the catalog). Surfaced, never looped.
	maxDepth := len(g.edges)
	if n := len(g.tables); n > maxDepth {
		maxDepth = n
	}

	var chains []Chain
	visited := map[string]bool{subject: true}

	var walk func(table string, path Chain) error
	walk = func(table string, path Chain) error {
		if len(path) > maxDepth {
			return fmt.Errorf("%w: path through %q exceeds table count", ErrCycle, table)
		}
		for _, edge := range g.edges[table] {
			if edge.TargetTable == tenantTable {
				chain := make(Chain, len(path)+1)
				copy(chain, path)
				chain[len(path)] = edge
				chains = append(chains, chain)
				continue
			}
			if visited[edge.TargetTable] {
				continue
			}
			visited[edge.TargetTable] = true
			err := walk(edge.TargetTable, append(path, edge))
			visited[edge.TargetTable] = false
			if err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(subject, nil); err != nil {
		return nil, err
	}
	return chains, nil
}
