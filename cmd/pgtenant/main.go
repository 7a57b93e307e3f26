// Package main provides a CLI for managing tenant row level security.
//
// The CLI supports:
//   - enable: Install tenant policies on linked tables (dependency order)
//   - disable: Remove tenant policies (root-first)
//   - status: Show per-table row security state
//   - tenant: Manage the tenant registry and visibility grants
//   - doctor: Run health checks on the isolation infrastructure
//
// This tool is typically run during deployment to keep the database's
// policies synchronized with its foreign key graph.
//
// Usage:
//
//	pgtenant [flags] <command>
//
// Every command except version and config needs --db or a configured
// database URL.
package main

func main() {
	Execute()
}
