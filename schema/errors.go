package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for policy management. These separate "configuration
// problem" (operator must fix the schema) from "idempotence conflict"
// (caller should have checked state first); neither is retried.
var (
	// ErrNoTenantLink is returned when a table has no foreign-key path back
	// to the tenant table. Enabling a policy on such a table would protect
	// nothing, so this is a configuration error, not a soft skip.
	ErrNoTenantLink = errors.New("pgtenant/schema: no foreign-key chain to tenant table")

	// ErrCycle is returned when chain resolution detects a malformed graph
	// it cannot terminate on. The per-path visited guard handles ordinary
	// self-referential and mutually-referential tables; this fires only when
	// that guard is defeated, which indicates catalog corruption.
	ErrCycle = errors.New("pgtenant/schema: cycle detected in foreign-key graph")

	// ErrPolicyExists is returned when enabling a table that already has the
	// access policy installed. Surfaced from the engine, never swallowed:
	// callers must check Status first or treat this as "already enabled".
	ErrPolicyExists = errors.New("pgtenant/schema: policy already exists")

	// ErrPolicyNotFound is returned when disabling a table that has no
	// access policy installed.
	ErrPolicyNotFound = errors.New("pgtenant/schema: policy not found")
)

// IsNoTenantLinkErr returns true if err is or wraps ErrNoTenantLink.
func IsNoTenantLinkErr(err error) bool {
	return errors.Is(err, ErrNoTenantLink)
}

// IsCycleErr returns true if err is or wraps ErrCycle.
func IsCycleErr(err error) bool {
	return errors.Is(err, ErrCycle)
}

// IsPolicyExistsErr returns true if err is or wraps ErrPolicyExists.
func IsPolicyExistsErr(err error) bool {
	return errors.Is(err, ErrPolicyExists)
}

// IsPolicyNotFoundErr returns true if err is or wraps ErrPolicyNotFound.
func IsPolicyNotFoundErr(err error) bool {
	return errors.Is(err, ErrPolicyNotFound)
}

// PostgreSQL error codes used to map engine errors onto sentinels.
const (
	pgDuplicateObject = "42710" // duplicate_object: CREATE POLICY on existing name
	pgUndefinedObject = "42704" // undefined_object: DROP POLICY on missing name
)

// mapPolicyError wraps engine errors in sentinel errors where the SQLSTATE
// identifies a redundant enable/disable.
func mapPolicyError(operation string, err error) error {
	switch sqlState(err) {
	case pgDuplicateObject:
		return fmt.Errorf("%w: %v", ErrPolicyExists, err)
	case pgUndefinedObject:
		return fmt.Errorf("%w: %v", ErrPolicyNotFound, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// sqlState extracts the SQLSTATE code from a PostgreSQL error.
// Works with multiple drivers via interface detection:
//   - pgx/pgconn: SQLState() string
//   - lib/pq: Code field (via error interface)
//
// Returns empty string if the error doesn't contain a SQLSTATE.
func sqlState(err error) string {
	type sqlStateErr interface{ SQLState() string }
	var se sqlStateErr
	if errors.As(err, &se) {
		return se.SQLState()
	}

	type codeErr interface{ Code() string }
	var ce codeErr
	if errors.As(err, &ce) {
		return ce.Code()
	}

	// Fallback: string matching for known patterns (last resort)
	errStr := err.Error()
	for _, prefix := range []string{"SQLSTATE ", "SQLSTATE: "} {
		if idx := strings.Index(errStr, prefix); idx >= 0 {
			start := idx + len(prefix)
			if start+5 <= len(errStr) {
				return errStr[start : start+5]
			}
		}
	}

	return ""
}
