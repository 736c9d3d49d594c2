package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/observability"
	"github.com/deskdata/deskdata/internal/secrets"
)

// Status is the outcome of resolving a tenant's database configuration.
type Status int

const (
	// StatusMissing: no secret exists for the tenant.
	StatusMissing Status = iota
	// StatusConfigured: the secret parsed into a valid DatabaseConfig.
	StatusConfigured
	// StatusInvalid: a secret exists but could not be used, or the secret
	// store itself failed.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusConfigured:
		return "configured"
	case StatusInvalid:
		return "invalid"
	default:
		return "missing"
	}
}

// Resolution is what the resolver knows about one tenant.
type Resolution struct {
	Status Status
	// Config is set only when Status is StatusConfigured.
	Config model.DatabaseConfig
	// Err explains StatusInvalid.
	Err error
}

type cacheEntry struct {
	res     Resolution
	expires time.Time // zero means never
}

// Resolver loads tenant database configurations from the secret store and
// caches them, including negative results. Entries expire after ttl and can
// be dropped explicitly with Invalidate.
type Resolver struct {
	secrets secrets.Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
	// gen is bumped on every invalidation so a fetch that started before
	// Invalidate cannot repopulate the cache with stale data.
	gen   map[string]uint64
	group singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithTTL sets how long entries stay cached. Zero caches for the life of
// the process.
func WithTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithResolverMetrics records lookups on m.
func WithResolverMetrics(m *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a Resolver reading from store.
func NewResolver(store secrets.Store, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		secrets: store,
		ttl:     10 * time.Minute,
		logger:  logger,
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
		gen:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the tenant's configuration status. Concurrent misses for
// the same tenant share one secret fetch.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) Resolution {
	if res, ok := r.Cached(tenantID); ok {
		r.metrics.ObserveResolution(res.Status.String(), true)
		return res
	}

	v, _, _ := r.group.Do(tenantID, func() (interface{}, error) {
		return r.load(ctx, tenantID), nil
	})
	res := v.(Resolution)
	r.metrics.ObserveResolution(res.Status.String(), false)
	return res
}

// Cached returns the cached resolution for tenantID if it has not expired.
func (r *Resolver) Cached(tenantID string) (Resolution, bool) {
	r.mu.RLock()
	entry, ok := r.cache[tenantID]
	r.mu.RUnlock()
	if !ok {
		return Resolution{}, false
	}
	if !entry.expires.IsZero() && !r.now().Before(entry.expires) {
		return Resolution{}, false
	}
	return entry.res, true
}

// Invalidate drops the cached entry for tenantID. The next Resolve reads
// the secret store again.
func (r *Resolver) Invalidate(tenantID string) {
	r.mu.Lock()
	delete(r.cache, tenantID)
	r.gen[tenantID]++
	r.mu.Unlock()
	r.group.Forget(tenantID)
}

func (r *Resolver) load(ctx context.Context, tenantID string) Resolution {
	r.mu.RLock()
	gen := r.gen[tenantID]
	r.mu.RUnlock()

	name := secrets.TenantSecretName(tenantID, model.ServiceDatabase)
	blob, err := r.secrets.GetSecret(ctx, name)
	if err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			res := Resolution{Status: StatusMissing}
			r.store(tenantID, gen, res)
			return res
		}
		// Store failures are transient; caching them would pin the tenant
		// to the fallback until the entry expired.
		r.logger.Warn("secret store lookup failed", "tenant", tenantID, "secret", name, "error", err)
		return Resolution{Status: StatusInvalid, Err: fmt.Errorf("load secret %s: %w", name, err)}
	}

	cfg, err := model.ParseDatabaseConfig(blob)
	if err != nil {
		r.logger.Warn("invalid tenant database configuration", "tenant", tenantID, "secret", name, "reason", err)
		res := Resolution{Status: StatusInvalid, Err: err}
		r.store(tenantID, gen, res)
		return res
	}

	r.logger.Debug("resolved tenant database", "tenant", tenantID, "config", model.RedactedDescription(cfg))
	res := Resolution{Status: StatusConfigured, Config: cfg}
	r.store(tenantID, gen, res)
	return res
}

func (r *Resolver) store(tenantID string, gen uint64, res Resolution) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen[tenantID] != gen {
		return
	}
	entry := cacheEntry{res: res}
	if r.ttl > 0 {
		entry.expires = r.now().Add(r.ttl)
	}
	r.cache[tenantID] = entry
}
