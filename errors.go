package pgtenant

import "errors"

// Sentinel errors for the runtime. Authorization failures and missing
// tenants are distinct conditions: callers surface ErrForbidden to the end
// user as an explicit rejection, while ErrTenantNotFound usually indicates a
// stale identifier or a deactivated tenant.
var (
	// ErrForbidden is returned when a caller attempts to select a tenant
	// outside their permitted set, or when an unauthenticated caller attempts
	// any selection other than deselection. It is never downgraded to a
	// silent no-op, and the prior selection is left untouched.
	ErrForbidden = errors.New("pgtenant: tenant selection forbidden")

	// ErrTenantNotFound is returned by directory lookups for an unknown or
	// inactive tenant identifier.
	ErrTenantNotFound = errors.New("pgtenant: tenant not found")
)

// IsForbiddenErr returns true if err is or wraps ErrForbidden.
func IsForbiddenErr(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsTenantNotFoundErr returns true if err is or wraps ErrTenantNotFound.
func IsTenantNotFoundErr(err error) bool {
	return errors.Is(err, ErrTenantNotFound)
}
