package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Provider identifies which execution protocol a tenant database speaks.
type Provider string

const (
	// ProviderServerlessSQL is a Postgres-compatible database reached with a
	// connection string and ordinal ($1, $2, ...) placeholders.
	ProviderServerlessSQL Provider = "serverless_sql"

	// ProviderRemoteDataAPI is a managed cluster reached only through the
	// RDS Data API gateway, using named parameters and secret indirection.
	ProviderRemoteDataAPI Provider = "remote_data_api"
)

var (
	// ErrUnsupportedProvider is returned when a secret blob names a provider
	// that has no backend implementation.
	ErrUnsupportedProvider = errors.New("unsupported database provider")

	// ErrIncompleteConfig is returned when a required field for the declared
	// provider is missing.
	ErrIncompleteConfig = errors.New("incomplete database configuration")
)

// DatabaseConfig is the connection descriptor for a single tenant. Exactly one
// of ServerlessSQL or RemoteDataAPI implements it; callers switch on the
// concrete type.
type DatabaseConfig interface {
	Provider() Provider
	Validate() error
	// ClientKey identifies the backend client this config needs. Two configs
	// with the same key can share a client.
	ClientKey() string

	isDatabaseConfig()
}

// ServerlessSQL holds the connection string for a serverless Postgres backend.
type ServerlessSQL struct {
	ConnectionString string
}

func (ServerlessSQL) Provider() Provider { return ProviderServerlessSQL }

func (c ServerlessSQL) Validate() error {
	if strings.TrimSpace(c.ConnectionString) == "" {
		return fmt.Errorf("%w: connectionString is required for %s", ErrIncompleteConfig, ProviderServerlessSQL)
	}
	return nil
}

func (c ServerlessSQL) ClientKey() string {
	return string(ProviderServerlessSQL) + "|" + c.ConnectionString
}

func (ServerlessSQL) isDatabaseConfig() {}

// RemoteDataAPI identifies an Aurora cluster behind the RDS Data API. The
// cluster credentials live in SecretARN; nothing here is a password.
type RemoteDataAPI struct {
	ResourceARN string
	SecretARN   string
	Database    string
	Region      string
}

func (RemoteDataAPI) Provider() Provider { return ProviderRemoteDataAPI }

func (c RemoteDataAPI) Validate() error {
	var missing []string
	if strings.TrimSpace(c.ResourceARN) == "" {
		missing = append(missing, "resourceArn")
	}
	if strings.TrimSpace(c.SecretARN) == "" {
		missing = append(missing, "secretArn")
	}
	if strings.TrimSpace(c.Database) == "" {
		missing = append(missing, "database")
	}
	if strings.TrimSpace(c.Region) == "" {
		missing = append(missing, "region")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required for %s", ErrIncompleteConfig, strings.Join(missing, ", "), ProviderRemoteDataAPI)
	}
	return nil
}

func (c RemoteDataAPI) ClientKey() string {
	return strings.Join([]string{string(ProviderRemoteDataAPI), c.Region, c.ResourceARN, c.SecretARN, c.Database}, "|")
}

func (RemoteDataAPI) isDatabaseConfig() {}

// DatabaseSecret is the JSON document stored in the secret store under
// tenant/{id}/database.
type DatabaseSecret struct {
	Provider         Provider `json:"provider" yaml:"provider"`
	ConnectionString string   `json:"connectionString,omitempty" yaml:"connection_string,omitempty"`
	ResourceARN      string   `json:"resourceArn,omitempty" yaml:"resource_arn,omitempty"`
	SecretARN        string   `json:"secretArn,omitempty" yaml:"secret_arn,omitempty"`
	Database         string   `json:"database,omitempty" yaml:"database,omitempty"`
	Region           string   `json:"region,omitempty" yaml:"region,omitempty"`
}

// Config converts the secret document into a validated DatabaseConfig.
func (s DatabaseSecret) Config() (DatabaseConfig, error) {
	var cfg DatabaseConfig
	switch s.Provider {
	case ProviderServerlessSQL:
		cfg = ServerlessSQL{ConnectionString: s.ConnectionString}
	case ProviderRemoteDataAPI:
		cfg = RemoteDataAPI{
			ResourceARN: s.ResourceARN,
			SecretARN:   s.SecretARN,
			Database:    s.Database,
			Region:      s.Region,
		}
	case "":
		return nil, fmt.Errorf("%w: provider is required", ErrIncompleteConfig)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, s.Provider)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SecretFromConfig is the inverse of DatabaseSecret.Config.
func SecretFromConfig(cfg DatabaseConfig) DatabaseSecret {
	switch c := cfg.(type) {
	case ServerlessSQL:
		return DatabaseSecret{Provider: ProviderServerlessSQL, ConnectionString: c.ConnectionString}
	case RemoteDataAPI:
		return DatabaseSecret{
			Provider:    ProviderRemoteDataAPI,
			ResourceARN: c.ResourceARN,
			SecretARN:   c.SecretARN,
			Database:    c.Database,
			Region:      c.Region,
		}
	default:
		return DatabaseSecret{}
	}
}

// ParseDatabaseConfig decodes a secret blob into a DatabaseConfig.
func ParseDatabaseConfig(blob []byte) (DatabaseConfig, error) {
	var s DatabaseSecret
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("%w: decode secret: %v", ErrIncompleteConfig, err)
	}
	return s.Config()
}

// RedactedDescription returns a log-safe summary of cfg. Connection strings
// are reduced to their scheme and host.
func RedactedDescription(cfg DatabaseConfig) string {
	switch c := cfg.(type) {
	case ServerlessSQL:
		return fmt.Sprintf("%s(%s)", c.Provider(), redactDSN(c.ConnectionString))
	case RemoteDataAPI:
		return fmt.Sprintf("%s(%s, db=%s, region=%s)", c.Provider(), c.ResourceARN, c.Database, c.Region)
	default:
		return "unknown"
	}
}

func redactDSN(dsn string) string {
	scheme := ""
	rest := dsn
	if i := strings.Index(dsn, "://"); i >= 0 {
		scheme = dsn[:i+3]
		rest = dsn[i+3:]
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	if slash := strings.IndexAny(rest, "/?"); slash >= 0 {
		rest = rest[:slash]
	}
	return scheme + rest
}
