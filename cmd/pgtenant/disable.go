package main

import (
	"context"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pgtenant/pgtenant/schema"
)

var disableDB string

var disableCmd = &cobra.Command{
	Use:   "disable [table...]",
	Short: "Remove tenant policies",
	Long: `Remove row level security policies.

Without arguments, every protected table is unprotected, furthest tables
first (the reverse of enable). With arguments, only the named tables are
unprotected.`,
	Example: `  # Unprotect every table
  pgtenant disable --db postgres://localhost/mydb

  # Unprotect specific tables
  pgtenant disable --db postgres://localhost/mydb note orders`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tables := args
		if len(tables) == 0 {
			tables = cfg.Disable.Tables
		}

		dsn, err := resolveDSN(disableDB)
		if err != nil {
			return err
		}

		return runDisable(dsn, tables)
	},
}

func init() {
	disableCmd.Flags().StringVar(&disableDB, "db", "", "database URL")
}

func runDisable(dsn string, tables []string) error {
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	model := cfg.TenancyModel()
	mgr := schema.NewManager(db, schema.NewInformationSchemaCatalog(db), model)

	if len(tables) == 0 {
		disabled, err := mgr.DisableAll(ctx)
		if err != nil {
			return classifyPolicyError("disabling policies", err)
		}
		if !quiet {
			for _, t := range disabled {
				fmt.Printf("Unprotected %s\n", t)
			}
			fmt.Printf("%d tables unprotected.\n", len(disabled))
		}
		return nil
	}

	for _, table := range tables {
		if err := mgr.Disable(ctx, table); err != nil {
			return classifyPolicyError(fmt.Sprintf("disabling %q", table), err)
		}
		if !quiet {
			fmt.Printf("Unprotected %s\n", table)
		}
	}
	return nil
}
