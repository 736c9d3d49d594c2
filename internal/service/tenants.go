package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deskdata/deskdata/internal/config"
	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/secrets"
)

// ErrTenantRequired is returned when a tenant id is blank.
var ErrTenantRequired = errors.New("tenant id is required")

// Invalidator drops cached state for a tenant after its configuration
// changes. *tenantdb.Adapter satisfies it.
type Invalidator interface {
	Invalidate(tenantID string)
}

// TenantService writes tenant database configurations: the secret blob goes
// to the secret store, the plugin record to the config store, and the
// query layer's cache for the tenant is dropped.
type TenantService struct {
	store   *config.Store
	secrets secrets.Store
	cache   Invalidator
	logger  *slog.Logger
}

// NewTenantService creates a TenantService. cache may be nil.
func NewTenantService(store *config.Store, sec secrets.Store, cache Invalidator, logger *slog.Logger) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantService{store: store, secrets: sec, cache: cache, logger: logger}
}

// Configure validates cfg and stores it as tenantID's database.
func (s *TenantService) Configure(ctx context.Context, tenantID string, cfg model.DatabaseConfig) (*model.TenantPlugin, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: database config is required", model.ErrIncompleteConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	blob, err := json.Marshal(model.SecretFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("encode database secret: %w", err)
	}

	name := secrets.TenantSecretName(tenantID, model.ServiceDatabase)
	if err := s.secrets.PutSecret(ctx, name, blob); err != nil {
		return nil, fmt.Errorf("store database secret: %w", err)
	}

	plugin := &model.TenantPlugin{
		TenantID:   tenantID,
		Service:    model.ServiceDatabase,
		SecretName: name,
		Provider:   string(cfg.Provider()),
	}
	if err := s.store.UpsertTenantPlugin(ctx, plugin); err != nil {
		return nil, err
	}

	s.invalidate(tenantID)
	s.logger.Info("tenant database configured", "tenant", tenantID, "backend", model.RedactedDescription(cfg))
	return plugin, nil
}

// Remove deletes tenantID's database secret and plugin record. Returns
// config.ErrNotFound when neither existed.
func (s *TenantService) Remove(ctx context.Context, tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrTenantRequired
	}

	name := secrets.TenantSecretName(tenantID, model.ServiceDatabase)
	secretErr := s.secrets.DeleteSecret(ctx, name)
	if secretErr != nil && !errors.Is(secretErr, secrets.ErrNotFound) {
		return fmt.Errorf("delete database secret: %w", secretErr)
	}

	pluginErr := s.store.DeleteTenantPlugin(ctx, tenantID, model.ServiceDatabase)
	if pluginErr != nil && !errors.Is(pluginErr, config.ErrNotFound) {
		return pluginErr
	}

	s.invalidate(tenantID)
	if secretErr != nil && pluginErr != nil {
		return config.ErrNotFound
	}
	s.logger.Info("tenant database removed", "tenant", tenantID)
	return nil
}

// List returns every tenant with a database plugin record.
func (s *TenantService) List(ctx context.Context) ([]model.TenantPlugin, error) {
	return s.store.ListTenantPlugins(ctx, model.ServiceDatabase)
}

// Import configures every tenant in f. It stops at the first failure and
// reports how many tenants were written before it.
func (s *TenantService) Import(ctx context.Context, f *config.TenantsFile) (int, error) {
	for i, t := range f.Tenants {
		cfg, err := t.Database.Config()
		if err != nil {
			return i, fmt.Errorf("tenant %s: %w", t.ID, err)
		}
		if _, err := s.Configure(ctx, t.ID, cfg); err != nil {
			return i, fmt.Errorf("tenant %s: %w", t.ID, err)
		}
	}
	return len(f.Tenants), nil
}

func (s *TenantService) invalidate(tenantID string) {
	if s.cache != nil {
		s.cache.Invalidate(tenantID)
	}
}
