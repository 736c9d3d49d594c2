package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/deskdata/deskdata/internal/model"
)

// Store manages deskdata's local state backed by SQLite. It records which
// tenants have plugins configured, holds the local secret backend and a
// small key-value settings table.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new config store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "deskdata.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open config database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate config database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Tenant plugins
// ---------------------------------------------------------------------------

// UpsertTenantPlugin records that tenant p.TenantID has a secret for
// p.Service. ID, CreatedAt and UpdatedAt on p are populated from the stored
// row.
func (s *Store) UpsertTenantPlugin(ctx context.Context, p *model.TenantPlugin) error {
	now := time.Now().UTC()
	p.UpdatedAt = now
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}

	const q = `INSERT INTO tenant_plugins
		(tenant_id, service, secret_name, provider, created_at, updated_at)
		VALUES
		(:tenant_id, :service, :secret_name, :provider, :created_at, :updated_at)
		ON CONFLICT(tenant_id, service) DO UPDATE SET
		secret_name = excluded.secret_name,
		provider = excluded.provider,
		updated_at = excluded.updated_at`

	if _, err := s.db.NamedExecContext(ctx, q, p); err != nil {
		return fmt.Errorf("upsert tenant plugin: %w", err)
	}

	stored, err := s.GetTenantPlugin(ctx, p.TenantID, p.Service)
	if err != nil {
		return fmt.Errorf("reload tenant plugin: %w", err)
	}
	*p = *stored
	return nil
}

// GetTenantPlugin returns the plugin record for one tenant and service.
func (s *Store) GetTenantPlugin(ctx context.Context, tenantID, service string) (*model.TenantPlugin, error) {
	var p model.TenantPlugin
	err := s.db.GetContext(ctx, &p,
		"SELECT * FROM tenant_plugins WHERE tenant_id = ? AND service = ?", tenantID, service)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tenant plugin: %w", err)
	}
	return &p, nil
}

// ListTenantPlugins returns every plugin record, optionally filtered to one
// service. Pass "" for all services.
func (s *Store) ListTenantPlugins(ctx context.Context, service string) ([]model.TenantPlugin, error) {
	var plugins []model.TenantPlugin
	var err error
	if service == "" {
		err = s.db.SelectContext(ctx, &plugins, "SELECT * FROM tenant_plugins ORDER BY tenant_id, service")
	} else {
		err = s.db.SelectContext(ctx, &plugins,
			"SELECT * FROM tenant_plugins WHERE service = ? ORDER BY tenant_id", service)
	}
	if err != nil {
		return nil, fmt.Errorf("list tenant plugins: %w", err)
	}
	return plugins, nil
}

// DeleteTenantPlugin removes the plugin record for one tenant and service.
func (s *Store) DeleteTenantPlugin(ctx context.Context, tenantID, service string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM tenant_plugins WHERE tenant_id = ? AND service = ?", tenantID, service)
	if err != nil {
		return fmt.Errorf("delete tenant plugin: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete tenant plugin rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the value stored under key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores value under key, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
