package tenantdb

import (
	"errors"
	"fmt"
)

// Kind classifies a tenant database failure.
type Kind int

const (
	// KindConfiguration: the tenant's secret is missing, unparseable or
	// incomplete and no fallback was allowed.
	KindConfiguration Kind = iota + 1
	// KindConnection: the backend could not be reached or authenticated.
	KindConnection
	// KindQueryExecution: the backend rejected or failed the statement.
	KindQueryExecution
	// KindUnsupportedProvider: the secret names a provider with no backend.
	KindUnsupportedProvider
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindConnection:
		return "connection error"
	case KindQueryExecution:
		return "query execution error"
	case KindUnsupportedProvider:
		return "unsupported provider"
	default:
		return "unknown error"
	}
}

const maxQueryContext = 100

// Error carries tenant and statement context for a failed operation.
type Error struct {
	Kind     Kind
	TenantID string
	// Query is the statement text truncated to 100 characters. Parameters
	// are never included.
	Query string
	Err   error
}

func newError(kind Kind, tenantID, query string, err error) *Error {
	return &Error{Kind: kind, TenantID: tenantID, Query: truncate(query, maxQueryContext), Err: err}
}

func (e *Error) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("tenant %s: %s: %v", e.TenantID, e.Kind, e.Err)
	}
	return fmt.Sprintf("tenant %s: %s: %v (query: %s)", e.TenantID, e.Kind, e.Err, e.Query)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
