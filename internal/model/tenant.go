package model

import "time"

// Plugin services a tenant can bind a secret to.
const (
	ServiceDatabase = "database"
)

// TenantPlugin records that a tenant has a secret configured for a service.
// The secret itself lives in the secret store; only its name is kept here.
type TenantPlugin struct {
	ID         int64     `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	Service    string    `json:"service" db:"service"`
	SecretName string    `json:"secret_name" db:"secret_name"`
	Provider   string    `json:"provider" db:"provider"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
