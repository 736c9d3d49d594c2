package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/deskdata/deskdata/internal/model"
)

// TenantsFile is a seed file listing tenant database configurations, used
// by `deskdata tenant import`.
type TenantsFile struct {
	Tenants []TenantYAML `yaml:"tenants"`
}

// TenantYAML is one tenant entry in a TenantsFile.
type TenantYAML struct {
	ID       string               `yaml:"id"`
	Database model.DatabaseSecret `yaml:"database"`
}

// LoadTenantsFile reads and parses a tenants seed file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before
// parsing, so credentials need not be written to disk.
func LoadTenantsFile(path string) (*TenantsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	var f TenantsFile
	if err := yaml.Unmarshal([]byte(content), &f); err != nil {
		return nil, fmt.Errorf("parse tenants file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every entry has an id, ids are unique and each database
// block is complete for its provider.
func (f *TenantsFile) Validate() error {
	seen := make(map[string]bool, len(f.Tenants))
	for i, t := range f.Tenants {
		if t.ID == "" {
			return fmt.Errorf("tenants[%d]: id is required", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("tenants[%d]: duplicate id %q", i, t.ID)
		}
		seen[t.ID] = true
		if _, err := t.Database.Config(); err != nil {
			return fmt.Errorf("tenant %s: %w", t.ID, err)
		}
	}
	return nil
}
