// Package secrets stores per-tenant credential blobs. Callers address
// secrets by name; the backend decides how they are encrypted at rest.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no secret exists under the requested name.
var ErrNotFound = errors.New("secret not found")

// Store reads and writes opaque secret blobs.
type Store interface {
	GetSecret(ctx context.Context, name string) ([]byte, error)
	PutSecret(ctx context.Context, name string, value []byte) error
	DeleteSecret(ctx context.Context, name string) error
}

// TenantSecretName returns the conventional secret name for a tenant's
// plugin, e.g. tenant/org_123/database.
func TenantSecretName(tenantID, service string) string {
	return fmt.Sprintf("tenant/%s/%s", tenantID, service)
}

// ParseTenantSecretName is the inverse of TenantSecretName.
func ParseTenantSecretName(name string) (tenantID, service string, ok bool) {
	parts := strings.Split(name, "/")
	if len(parts) != 3 || parts[0] != "tenant" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
