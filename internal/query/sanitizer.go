// Package query builds the handful of SQL statements deskdata issues against
// tenant databases and validates the identifiers interpolated into them.
// Values always travel as ordinal parameters; only table names are spliced
// into the text, and only after ValidateTableName.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidIdentifier is returned for table names that may not be
// interpolated into SQL.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// tableNameRegex restricts interpolated table names to letters, digits and
// underscores.
var tableNameRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateTableName ensures a table name is safe to interpolate. It rejects
// empty strings, strings over 128 characters and anything outside
// [A-Za-z0-9_].
func ValidateTableName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("%w: table name cannot be empty", ErrInvalidIdentifier)
	}
	if len(name) > 128 {
		return fmt.Errorf("%w: table name too long (max 128 chars): %q", ErrInvalidIdentifier, name)
	}
	if !tableNameRegex.MatchString(name) {
		return fmt.Errorf("%w: table name %q must match [A-Za-z0-9_]+", ErrInvalidIdentifier, name)
	}
	return nil
}

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern returns a LIKE pattern matching term anywhere in a value.
// Wildcards inside term are escaped so they match literally.
func ContainsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
