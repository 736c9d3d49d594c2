package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/deskdata/deskdata/internal/model"
)

// Registry manages connector factories and the process-wide client cache.
// Clients are keyed by DatabaseConfig.ClientKey, so tenants that share a
// connection string share a pool and no two keys ever share a client.
type Registry struct {
	mu        sync.RWMutex
	factories map[model.Provider]Factory
	active    map[string]Connector
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[model.Provider]Factory),
		active:    make(map[string]Connector),
	}
}

// RegisterProvider registers a connector factory for a provider.
func (r *Registry) RegisterProvider(p model.Provider, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[p] = factory
}

// Acquire returns the cached connector for cfg, building one on first use.
// Construction happens outside the lock; if two goroutines race, the loser's
// connector is closed and both get the winner's.
func (r *Registry) Acquire(ctx context.Context, cfg model.DatabaseConfig) (Connector, error) {
	key := cfg.ClientKey()

	r.mu.RLock()
	conn, ok := r.active[key]
	factory, hasFactory := r.factories[cfg.Provider()]
	r.mu.RUnlock()
	if ok {
		return conn, nil
	}
	if !hasFactory {
		return nil, fmt.Errorf("unsupported provider: %s (available: %v)", cfg.Provider(), r.availableProviders())
	}

	built, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build %s connector: %w", cfg.Provider(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.active[key]; ok {
		built.Close()
		return existing, nil
	}
	r.active[key] = built
	return built, nil
}

// CloseAll disconnects every cached connector.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, conn := range r.active {
		conn.Close()
		delete(r.active, key)
	}
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	return r.availableProviders()
}

func (r *Registry) availableProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for p := range r.factories {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}
