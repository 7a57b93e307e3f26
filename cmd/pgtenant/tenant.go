package main

import (
	"context"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pgtenant/pgtenant"
	"github.com/pgtenant/pgtenant/internal/cli"
)

var tenantDB string

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage the tenant registry",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register a new tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDirectory(func(ctx context.Context, dir *pgtenant.PGDirectory) error {
			t, err := dir.Create(ctx, args[0])
			if err != nil {
				return cli.GeneralError("creating tenant", err)
			}
			if !quiet {
				fmt.Printf("Created tenant %s (%s)\n", t.ID, t.Name)
			}
			return nil
		})
	},
}

var tenantListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List tenants visible to a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDirectory(func(ctx context.Context, dir *pgtenant.PGDirectory) error {
			tenants, err := dir.VisibleTenants(ctx, args[0])
			if err != nil {
				return cli.GeneralError("listing tenants", err)
			}
			for _, t := range tenants {
				fmt.Printf("%s\t%s\n", t.ID, t.Name)
			}
			if !quiet {
				fmt.Printf("%d tenants visible to %s\n", len(tenants), args[0])
			}
			return nil
		})
	},
}

var tenantDeactivateCmd = &cobra.Command{
	Use:   "deactivate <tenant-id>",
	Short: "Deactivate a tenant, keeping its rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDirectory(func(ctx context.Context, dir *pgtenant.PGDirectory) error {
			if err := dir.Deactivate(ctx, args[0]); err != nil {
				return cli.GeneralError("deactivating tenant", err)
			}
			if !quiet {
				fmt.Printf("Deactivated tenant %s\n", args[0])
			}
			return nil
		})
	},
}

var tenantGrantCmd = &cobra.Command{
	Use:   "grant <tenant-id> <user-id>",
	Short: "Allow a user to select a tenant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDirectory(func(ctx context.Context, dir *pgtenant.PGDirectory) error {
			if err := dir.GrantVisibility(ctx, args[0], args[1]); err != nil {
				return cli.GeneralError("granting visibility", err)
			}
			if !quiet {
				fmt.Printf("Granted tenant %s to %s\n", args[0], args[1])
			}
			return nil
		})
	},
}

var tenantRevokeCmd = &cobra.Command{
	Use:   "revoke <tenant-id> <user-id>",
	Short: "Revoke a user's access to a tenant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDirectory(func(ctx context.Context, dir *pgtenant.PGDirectory) error {
			if err := dir.RevokeVisibility(ctx, args[0], args[1]); err != nil {
				return cli.GeneralError("revoking visibility", err)
			}
			if !quiet {
				fmt.Printf("Revoked tenant %s from %s\n", args[0], args[1])
			}
			return nil
		})
	},
}

var tenantSuperuserCmd = &cobra.Command{
	Use:   "superuser <add|remove> <user-id>",
	Short: "Manage bypass-policy operator identities",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDirectory(func(ctx context.Context, dir *pgtenant.PGDirectory) error {
			switch args[0] {
			case "add":
				if err := dir.AddSuperuser(ctx, args[1]); err != nil {
					return cli.GeneralError("adding superuser", err)
				}
			case "remove":
				if err := dir.RemoveSuperuser(ctx, args[1]); err != nil {
					return cli.GeneralError("removing superuser", err)
				}
			default:
				return cli.GeneralError(fmt.Sprintf("unknown action %q (want add or remove)", args[0]), nil)
			}
			if !quiet {
				fmt.Printf("Superuser %s: %s\n", args[0], args[1])
			}
			return nil
		})
	},
}

func init() {
	tenantCmd.PersistentFlags().StringVar(&tenantDB, "db", "", "database URL")
	tenantCmd.AddCommand(tenantCreateCmd)
	tenantCmd.AddCommand(tenantListCmd)
	tenantCmd.AddCommand(tenantDeactivateCmd)
	tenantCmd.AddCommand(tenantGrantCmd)
	tenantCmd.AddCommand(tenantRevokeCmd)
	tenantCmd.AddCommand(tenantSuperuserCmd)
}

// withDirectory opens the database, ensures the registry schema, and runs fn
// against a directory.
func withDirectory(fn func(ctx context.Context, dir *pgtenant.PGDirectory) error) error {
	dsn, err := resolveDSN(tenantDB)
	if err != nil {
		return err
	}
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	dir := pgtenant.NewPGDirectory(db, cfg.TenancyModel())
	if err := dir.EnsureSchema(ctx); err != nil {
		return cli.GeneralError("installing tenant registry", err)
	}
	return fn(ctx, dir)
}
