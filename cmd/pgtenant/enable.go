package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pgtenant/pgtenant"
	"github.com/pgtenant/pgtenant/internal/cli"
	"github.com/pgtenant/pgtenant/schema"
)

var (
	enableDB     string
	enableDryRun bool
)

var enableCmd = &cobra.Command{
	Use:   "enable [table...]",
	Short: "Install tenant policies",
	Long: `Install row level security policies.

Without arguments, every table with a foreign key path to the tenant
table is protected, closest tables first. With arguments, only the named
tables are protected, in the order given.`,
	Example: `  # Protect every linked table
  pgtenant enable --db postgres://localhost/mydb

  # Protect specific tables
  pgtenant enable --db postgres://localhost/mydb customer orders

  # Preview the policy predicates without applying
  pgtenant enable --db postgres://localhost/mydb --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun := resolveBool(enableDryRun, cfg.Enable.DryRun)
		tables := args
		if len(tables) == 0 {
			tables = cfg.Enable.Tables
		}

		dsn, err := resolveDSN(enableDB)
		if err != nil {
			return err
		}

		return runEnable(dsn, tables, dryRun)
	},
}

func init() {
	f := enableCmd.Flags()
	f.StringVar(&enableDB, "db", "", "database URL")
	f.BoolVar(&enableDryRun, "dry-run", false, "output policy predicates without applying")
}

// resolveDSN gets the database DSN from flag or config.
func resolveDSN(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return "", cli.ConfigError("database configuration", err)
	}
	if dsn == "" {
		return "", cli.ConfigError("database URL is required (use --db or set in config)", nil)
	}
	return dsn, nil
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, cli.DBConnectError("connecting to database", err)
	}
	return db, nil
}

func runEnable(dsn string, tables []string, dryRun bool) error {
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	model := cfg.TenancyModel()
	cat := schema.NewInformationSchemaCatalog(db)

	if dryRun {
		return printPredicates(ctx, cat, model, tables)
	}

	// The registry tables and helper functions are prerequisites for the
	// visibility lookups and the bypass policy.
	dir := pgtenant.NewPGDirectory(db, model)
	if err := dir.EnsureSchema(ctx); err != nil {
		return cli.GeneralError("installing tenant registry", err)
	}

	mgr := schema.NewManager(db, cat, model)

	if len(tables) == 0 {
		enabled, skipped, err := mgr.EnableAll(ctx)
		if err != nil {
			return classifyPolicyError("enabling policies", err)
		}
		if !quiet {
			for _, t := range enabled {
				fmt.Printf("Protected %s\n", t)
			}
			for _, t := range skipped {
				fmt.Printf("Skipped %s (no path to %s)\n", t, model.TenantTable)
			}
			fmt.Printf("%d tables protected, %d skipped.\n", len(enabled), len(skipped))
		}
		return nil
	}

	for _, table := range tables {
		applied, err := mgr.Enable(ctx, table)
		if err != nil {
			return classifyPolicyError(fmt.Sprintf("enabling %q", table), err)
		}
		if !quiet {
			if applied {
				fmt.Printf("Protected %s\n", table)
			} else {
				fmt.Printf("Skipped %s (tenant table)\n", table)
			}
		}
	}
	return nil
}

// printPredicates writes the USING predicate each table would get,
// without touching the database beyond catalog reads.
func printPredicates(ctx context.Context, cat schema.Catalog, model pgtenant.Config, tables []string) error {
	graph, err := schema.BuildGraph(ctx, cat)
	if err != nil {
		return cli.GeneralError("building schema graph", err)
	}

	if len(tables) == 0 {
		tables = graph.Tables()
	}

	fmt.Fprintln(os.Stderr, "-- Dry-run mode: predicates will be output but not applied")
	fmt.Fprintln(os.Stderr, "")
	for _, table := range tables {
		if model.IsRegistryTable(table) {
			continue
		}
		chains, err := graph.Resolve(table, model.TenantTable)
		if err != nil {
			return classifyPolicyError(fmt.Sprintf("resolving %q", table), err)
		}
		if len(chains) == 0 {
			fmt.Printf("-- %s: no path to %s\n", table, model.TenantTable)
			continue
		}
		fmt.Printf("-- %s\n%s\n", table, schema.Predicate(chains, model.TenantTable, model.TenantSetting))
	}
	return nil
}

// classifyPolicyError maps schema-layer sentinels to exit codes.
func classifyPolicyError(msg string, err error) error {
	if schema.IsNoTenantLinkErr(err) || schema.IsCycleErr(err) {
		return cli.SchemaError(msg, err)
	}
	return cli.GeneralError(msg, err)
}
