// Package schema discovers tenant-ownership foreign-key chains and installs
// the row-security policies that enforce them.
//
// This package contains the schema-setup half of pgtenant. It sits between
// the database catalog (which describes tables and foreign keys) and the
// runtime (which propagates the active tenant per session).
//
// # Package Responsibilities
//
// The schema package handles three steps:
//
//  1. Graph construction (Graph, BuildGraph) - tables and FK edges from a Catalog
//  2. Chain resolution (Graph.Resolve) - every FK path from a table to the tenant table
//  3. Policy management (Manager) - rendering predicates and applying DDL transactionally
//
// # Key Types
//
// Catalog abstracts schema introspection. InformationSchemaCatalog reads the
// live database; tests use in-memory fixtures. Graph is derived from a
// Catalog on demand and never cached across schema changes, because stale
// edges produce incorrect or missing policies.
//
// Chain is an ordered sequence of FK edges from a subject table to the
// tenant table. A table can have several independent chains (a direct tenant
// FK and an indirect one through a parent table); every chain narrows
// visibility, so their predicates are conjoined, not OR-ed.
//
// # Policy Installation
//
// Manager.Enable runs in one transaction: enable row security, force it for
// the table owner, create the access policy with the conjoined predicate as
// both the read filter and the write check. Manager.Disable is the mirror
// image. Either everything commits or nothing does; partial policy state is
// never observable.
//
// When tables form a dependency chain (orders -> customers -> tenant),
// enable referenced tables before the tables that reference them, and
// disable in the reverse order.
// An indirect predicate only confirms the join link; it relies on the
// referenced table's own policy to narrow which referenced rows exist.
// EnableAll and DisableAll order their input accordingly.
package schema

import (
	"context"
	"sort"
)

// Column describes one column of a table as reported by the catalog.
// Names are exact stored identifiers, never display names.
type Column struct {
	Name         string
	Type         string
	IsForeignKey bool
	TargetTable  string // set when IsForeignKey
	TargetColumn string // referenced column, usually the target's primary key
}

// ForeignKey is one edge of the schema graph.
type ForeignKey struct {
	Table        string
	Column       string
	TargetTable  string
	TargetColumn string
}

// Catalog exposes table and foreign-key metadata. Read-only, queried on
// demand. Implementations must report exact stored identifiers.
type Catalog interface {
	// Tables lists the tables eligible for policy management.
	Tables(ctx context.Context) ([]string, error)

	// ListColumns returns the columns of a table, with outgoing foreign-key
	// targets populated.
	ListColumns(ctx context.Context, table string) ([]Column, error)
}

// Graph is the directed foreign-key graph of a schema: nodes are tables,
// edges are FK relationships. Derived, never persisted; rebuild it whenever
// the catalog changes.
type Graph struct {
	tables []string
	edges  map[string][]ForeignKey
}

// BuildGraph constructs the FK graph for every table the catalog reports.
func BuildGraph(ctx context.Context, cat Catalog) (*Graph, error) {
	tables, err := cat.Tables(ctx)
	if err != nil {
		return nil, err
	}
	return BuildGraphFor(ctx, cat, tables)
}

// BuildGraphFor constructs the FK graph for a specific table set. Edges
// pointing outside the set are still included; chain resolution follows
// them, policy management does not require them to be listed.
func BuildGraphFor(ctx context.Context, cat Catalog, tables []string) (*Graph, error) {
	g := &Graph{
		tables: append([]string(nil), tables...),
		edges:  make(map[string][]ForeignKey, len(tables)),
	}
	sort.Strings(g.tables)

	for _, table := range g.tables {
		cols, err := cat.ListColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		for _, col := range cols {
			if !col.IsForeignKey {
				continue
			}
			g.edges[table] = append(g.edges[table], ForeignKey{
				Table:        table,
				Column:       col.Name,
				TargetTable:  col.TargetTable,
				TargetColumn: col.TargetColumn,
			})
		}
		// Deterministic traversal order regardless of catalog ordering.
		sort.Slice(g.edges[table], func(i, j int) bool {
			a, b := g.edges[table][i], g.edges[table][j]
			if a.Column != b.Column {
				return a.Column < b.Column
			}
			return a.TargetTable < b.TargetTable
		})
	}
	return g, nil
}

// Tables returns the graph's node set in sorted order.
func (g *Graph) Tables() []string {
	return append([]string(nil), g.tables...)
}

// Outgoing returns the outgoing FK edges of a table.
func (g *Graph) Outgoing(table string) []ForeignKey {
	return g.edges[table]
}
