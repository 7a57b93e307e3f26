// Package sql provides embedded SQL files for pgtenant infrastructure.
package sql

import (
	_ "embed"
)

// Embedded SQL files for pgtenant infrastructure.
// These are applied idempotently by PGDirectory.EnsureSchema.
//
// The SQL is embedded at compile time, ensuring the application binary
// contains all necessary schema components. This eliminates runtime
// dependencies on external SQL files.

// TenantsSQL contains the tenant, visibility-grant, and superuser tables.
// Applied via CREATE TABLE IF NOT EXISTS for idempotence.
//
//go:embed tenants.sql
var TenantsSQL string

// FunctionsSQL contains the pgtenant_is_superuser function consulted by the
// superuser bypass policy.
//
// Applied via CREATE OR REPLACE FUNCTION for idempotence.
//
//go:embed functions.sql
var FunctionsSQL string
