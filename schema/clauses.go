package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Predicate clause shapes. The direct form compares the subject's tenant FK
// against the session setting; casting to TEXT keeps the comparison valid
// for any key type. current_setting's missing_ok form returns NULL when the
// setting was never defined, and NULL compares false, so an unconfigured
// session sees zero rows rather than an error.
//
// The indirect form only confirms the join link to the related table. It
// does not recurse: the related table's own installed policy already
// narrows which related rows exist, which is why a table's policy must be
// installed after the tables it references. A NULL foreign key finds no related row and fails the
// predicate - no ownership chain, no visibility.
const (
	directLink   = "%s.%s::TEXT = current_setting('%s', TRUE)"
	indirectLink = "EXISTS (SELECT 1 FROM %s WHERE %s.%s = %s.%s)"
)

// Clauses renders one boolean predicate fragment per distinct first edge of
// the given chains. Chains sharing a first edge collapse to one clause;
// beyond the first edge, enforcement belongs to the policies installed on
// the tables the chain crosses.
//
// Identifiers are taken verbatim from the catalog and quoted; the setting
// name comes from configuration, never from user input. Output is sorted
// for deterministic DDL.
func Clauses(chains []Chain, tenantTable, tenantSetting string) []string {
	seen := make(map[ForeignKey]bool, len(chains))
	clauses := make([]string, 0, len(chains))

	for _, chain := range chains {
		first := chain.First()
		if seen[first] {
			continue
		}
		seen[first] = true

		var clause string
		if first.TargetTable == tenantTable {
			clause = fmt.Sprintf(directLink,
				quoteIdent(first.Table), quoteIdent(first.Column), tenantSetting)
		} else {
			clause = fmt.Sprintf(indirectLink,
				quoteIdent(first.TargetTable),
				quoteIdent(first.Table), quoteIdent(first.Column),
				quoteIdent(first.TargetTable), quoteIdent(first.TargetColumn))
		}
		clauses = append(clauses, clause)
	}

	sort.Strings(clauses)
	return clauses
}

// Predicate conjoins the clause set into the table's policy expression.
// Conjunction, not disjunction: each chain is a necessary ownership
// condition, so a row is visible only when every chain points at the
// active tenant.
func Predicate(chains []Chain, tenantTable, tenantSetting string) string {
	return strings.Join(Clauses(chains, tenantTable, tenantSetting), " AND ")
}

// quoteIdent quotes a SQL identifier, doubling embedded quotes. Catalog
// identifiers are trusted metadata, not user input; quoting guards against
// case folding and reserved words, not injection.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
