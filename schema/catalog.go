package schema

import (
	"context"
	"fmt"

	"github.com/pgtenant/pgtenant"
)

// InformationSchemaCatalog reads table and foreign-key metadata from the
// live database via information_schema. Identifier names come back exactly
// as stored, which is what clause rendering requires.
//
// Queries run on demand; the catalog holds no state, so a new Graph built
// from it always reflects the current schema.
type InformationSchemaCatalog struct {
	db pgtenant.Querier
}

// NewInformationSchemaCatalog creates a catalog over the given handle.
func NewInformationSchemaCatalog(db pgtenant.Querier) *InformationSchemaCatalog {
	return &InformationSchemaCatalog{db: db}
}

// Tables lists the ordinary tables of the current schema.
func (c *InformationSchemaCatalog) Tables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// ListColumns returns the table's columns with outgoing foreign-key targets
// populated. Composite foreign keys yield one Column entry per member
// column, each carrying its referenced counterpart.
func (c *InformationSchemaCatalog) ListColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT cols.column_name,
		       cols.data_type,
		       fk.foreign_table_name IS NOT NULL,
		       COALESCE(fk.foreign_table_name, ''),
		       COALESCE(fk.foreign_column_name, '')
		FROM information_schema.columns cols
		LEFT JOIN (
		    SELECT kcu.column_name,
		           ccu.table_name AS foreign_table_name,
		           ccu.column_name AS foreign_column_name
		    FROM information_schema.table_constraints tc
		    JOIN information_schema.key_column_usage kcu
		      ON kcu.constraint_name = tc.constraint_name
		     AND kcu.table_schema = tc.table_schema
		    JOIN information_schema.constraint_column_usage ccu
		      ON ccu.constraint_name = tc.constraint_name
		     AND ccu.table_schema = tc.table_schema
		    WHERE tc.constraint_type = 'FOREIGN KEY'
		      AND tc.table_schema = current_schema()
		      AND tc.table_name = $1
		) fk ON fk.column_name = cols.column_name
		WHERE cols.table_schema = current_schema()
		  AND cols.table_name = $1
		ORDER BY cols.ordinal_position`,
		table)
	if err != nil {
		return nil, fmt.Errorf("listing columns of %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []Column
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.Type, &col.IsForeignKey, &col.TargetTable, &col.TargetColumn); err != nil {
			return nil, fmt.Errorf("scanning column of %q: %w", table, err)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}
