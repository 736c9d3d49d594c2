package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deskdata/deskdata/internal/model"
)

func writeTenantsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTenantsFile(t *testing.T) {
	t.Setenv("ORG_A_DSN", "postgres://u:p@ep-1.neon.tech/app")
	path := writeTenantsFile(t, `
tenants:
  - id: org_A
    database:
      provider: serverless_sql
      connection_string: ${ORG_A_DSN}
  - id: org_B
    database:
      provider: remote_data_api
      resource_arn: arn:aws:rds:us-east-1:1:cluster:b
      secret_arn: arn:aws:secretsmanager:us-east-1:1:secret:b
      database: clinic
      region: us-east-1
`)

	f, err := LoadTenantsFile(path)
	if err != nil {
		t.Fatalf("LoadTenantsFile: %v", err)
	}
	if len(f.Tenants) != 2 {
		t.Fatalf("got %d tenants, want 2", len(f.Tenants))
	}

	cfg, err := f.Tenants[0].Database.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg != (model.ServerlessSQL{ConnectionString: "postgres://u:p@ep-1.neon.tech/app"}) {
		t.Errorf("env expansion failed: %#v", cfg)
	}
	if f.Tenants[1].Database.Provider != model.ProviderRemoteDataAPI {
		t.Errorf("provider = %q", f.Tenants[1].Database.Provider)
	}
}

func TestLoadTenantsFileValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing id", "tenants:\n  - database: {provider: serverless_sql, connection_string: x}\n", "id is required"},
		{"duplicate", "tenants:\n  - {id: a, database: {provider: serverless_sql, connection_string: x}}\n  - {id: a, database: {provider: serverless_sql, connection_string: y}}\n", "duplicate"},
		{"incomplete", "tenants:\n  - {id: a, database: {provider: remote_data_api, region: us-east-1}}\n", "resourceArn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTenantsFile(writeTenantsFile(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
