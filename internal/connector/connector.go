package connector

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/deskdata/deskdata/internal/model"
)

var (
	// ErrConnection marks failures reaching a backend: network, TLS, auth,
	// or a client that could not be constructed.
	ErrConnection = errors.New("backend connection failed")

	// ErrStatement marks failures reported by the backend for a statement:
	// syntax, permissions, missing relations, timeouts.
	ErrStatement = errors.New("statement execution failed")
)

// Connector executes parameterized SQL against one tenant backend. The SQL
// always uses ordinal placeholders ($1, $2, ...); connectors that need a
// different form rewrite it themselves.
type Connector interface {
	Query(ctx context.Context, sql string, params []interface{}) (*model.QueryResult, error)
	Ping(ctx context.Context) error
	Close() error
	Provider() model.Provider
}

// Factory builds a Connector for cfg. The registry guarantees cfg.Provider()
// matches the provider the factory was registered under.
type Factory func(ctx context.Context, cfg model.DatabaseConfig) (Connector, error)

// SanitizeDSN ensures that URL-style DSNs (postgres://, postgresql://) have
// their userinfo (especially the password) properly percent-encoded. Raw
// passwords containing @, #, %, or other URL-special characters cause the
// Go URL parser to mis-split the authority component, which surfaces as an
// unreachable host rather than an auth error.
func SanitizeDSN(dsn string) string {
	// Find the scheme separator.
	schemeEnd := strings.Index(dsn, "://")
	if schemeEnd < 0 {
		return dsn // key=value DSN, return as-is
	}

	scheme := dsn[:schemeEnd]
	rest := dsn[schemeEnd+3:]

	// Split off query/fragment from the authority+path portion.
	query := ""
	if qi := strings.IndexByte(rest, '?'); qi >= 0 {
		query = rest[qi:]
		rest = rest[:qi]
	}

	// Find the LAST '@': everything before it is userinfo.
	atIdx := strings.LastIndex(rest, "@")
	if atIdx < 0 {
		return dsn
	}

	userinfo := rest[:atIdx]
	hostpath := rest[atIdx+1:]

	user := userinfo
	pass := ""
	hasPass := false
	if ci := strings.IndexByte(userinfo, ':'); ci >= 0 {
		user = userinfo[:ci]
		pass = userinfo[ci+1:]
		hasPass = true
	}

	// Already-encoded values must not be encoded twice.
	if u, err := url.PathUnescape(user); err == nil {
		user = u
	}
	if p, err := url.PathUnescape(pass); err == nil {
		pass = p
	}

	out := scheme + "://" + url.PathEscape(user)
	if hasPass {
		out += ":" + url.PathEscape(pass)
	}
	return out + "@" + hostpath + query
}
