package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/deskdata/deskdata/internal/connector"
	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/observability"
	"github.com/deskdata/deskdata/internal/query"
)

// FallbackPolicy decides when a tenant without a usable configuration may
// be served by the shared default connection.
type FallbackPolicy struct {
	OnMissing bool
	OnInvalid bool
}

// DefaultFallbackPolicy allows fallback in both cases.
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{OnMissing: true, OnInvalid: true}
}

// Options configures an Adapter.
type Options struct {
	Fallback FallbackPolicy
	// DefaultURL is the shared connection string used for fallback. Empty
	// disables fallback regardless of policy.
	DefaultURL string
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}

// Adapter executes statements against whichever backend a tenant resolves
// to, behind one call signature.
type Adapter struct {
	resolver   *Resolver
	registry   *connector.Registry
	fallback   FallbackPolicy
	defaultCfg model.DatabaseConfig
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewAdapter wires a resolver and connector registry together.
func NewAdapter(resolver *Resolver, registry *connector.Registry, opts Options) *Adapter {
	a := &Adapter{
		resolver: resolver,
		registry: registry,
		fallback: opts.Fallback,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if strings.TrimSpace(opts.DefaultURL) != "" {
		a.defaultCfg = model.ServerlessSQL{ConnectionString: opts.DefaultURL}
	}
	return a
}

// Resolve exposes the tenant's current resolution.
func (a *Adapter) Resolve(ctx context.Context, tenantID string) Resolution {
	return a.resolver.Resolve(ctx, tenantID)
}

// Execute runs sql with ordinal params against the tenant's backend.
func (a *Adapter) Execute(ctx context.Context, tenantID, sql string, params ...interface{}) (*model.QueryResult, error) {
	cfg, err := a.configFor(ctx, tenantID)
	if err != nil {
		a.metrics.ObserveQuery("none", "config_error", 0)
		return nil, newError(kindOf(err), tenantID, sql, err)
	}
	return a.run(ctx, tenantID, cfg, sql, params)
}

func (a *Adapter) run(ctx context.Context, tenantID string, cfg model.DatabaseConfig, sql string, params []interface{}) (*model.QueryResult, error) {
	switch cfg.(type) {
	case model.ServerlessSQL, model.RemoteDataAPI:
	default:
		return nil, newError(KindUnsupportedProvider, tenantID, sql, fmt.Errorf("%w: %T", model.ErrUnsupportedProvider, cfg))
	}

	provider := string(cfg.Provider())
	start := time.Now()

	conn, err := a.registry.Acquire(ctx, cfg)
	if err != nil {
		a.metrics.ObserveQuery(provider, "connection_error", time.Since(start))
		return nil, newError(KindConnection, tenantID, sql, err)
	}

	res, err := conn.Query(ctx, sql, params)
	if err != nil {
		kind := KindConnection
		outcome := "connection_error"
		if errors.Is(err, connector.ErrStatement) {
			kind = KindQueryExecution
			outcome = "query_error"
		}
		a.metrics.ObserveQuery(provider, outcome, time.Since(start))
		return nil, newError(kind, tenantID, sql, err)
	}

	a.metrics.ObserveQuery(provider, "ok", time.Since(start))
	return res, nil
}

// configFor applies the fallback policy to the tenant's resolution.
func (a *Adapter) configFor(ctx context.Context, tenantID string) (model.DatabaseConfig, error) {
	res := a.resolver.Resolve(ctx, tenantID)

	switch res.Status {
	case StatusConfigured:
		return res.Config, nil

	case StatusMissing:
		if a.fallback.OnMissing && a.defaultCfg != nil {
			a.logger.Info("no tenant database configured, using default connection", "tenant", tenantID)
			a.metrics.ObserveFallback("missing")
			return a.defaultCfg, nil
		}
		return nil, fmt.Errorf("no database configured for tenant")

	default:
		if a.fallback.OnInvalid && a.defaultCfg != nil {
			a.logger.Warn("tenant database configuration unusable, using default connection",
				"tenant", tenantID, "reason", res.Err)
			a.metrics.ObserveFallback("invalid")
			return a.defaultCfg, nil
		}
		return nil, res.Err
	}
}

func kindOf(configErr error) Kind {
	if errors.Is(configErr, model.ErrUnsupportedProvider) {
		return KindUnsupportedProvider
	}
	return KindConfiguration
}

// ListTables returns the tenant's base tables in the public schema, sorted
// by name.
func (a *Adapter) ListTables(ctx context.Context, tenantID string) ([]string, error) {
	res, err := a.Execute(ctx, tenantID, query.ListTablesSQL)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, res.RowCount)
	for _, row := range res.Rows {
		if name := stringValue(row["table_name"]); name != "" {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

// PreviewTable returns up to limit rows from table. limit defaults to 20
// and never exceeds 200.
func (a *Adapter) PreviewTable(ctx context.Context, tenantID, table string, limit int) (*model.QueryResult, error) {
	sql, err := query.SelectLimit(table)
	if err != nil {
		return nil, newError(KindQueryExecution, tenantID, "", err)
	}
	limit = query.ClampLimit(limit, query.DefaultLimit, query.MaxPreviewLimit)

	res, err := a.Execute(ctx, tenantID, sql, limit)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) > limit {
		res = model.NewQueryResult(res.Rows[:limit])
	}
	return res, nil
}

// QueryTable returns one page of table. limit defaults to 20 and never
// exceeds 200.
func (a *Adapter) QueryTable(ctx context.Context, tenantID, table string, limit, offset int) (*model.QueryResult, error) {
	sql, err := query.SelectPage(table)
	if err != nil {
		return nil, newError(KindQueryExecution, tenantID, "", err)
	}
	limit = query.ClampLimit(limit, query.DefaultLimit, query.MaxPreviewLimit)
	if offset < 0 {
		offset = 0
	}

	res, err := a.Execute(ctx, tenantID, sql, limit, offset)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) > limit {
		res = model.NewQueryResult(res.Rows[:limit])
	}
	return res, nil
}

// TestResult reports whether a tenant's own backend answered.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TestConnection checks the tenant's configured backend. It never falls
// back to the default connection.
func (a *Adapter) TestConnection(ctx context.Context, tenantID string) TestResult {
	res := a.resolver.Resolve(ctx, tenantID)
	switch res.Status {
	case StatusMissing:
		return TestResult{Message: "No database configured for this organization"}
	case StatusInvalid:
		return TestResult{Message: fmt.Sprintf("Database configuration is invalid: %v", res.Err)}
	}
	return a.TestConfig(ctx, tenantID, res.Config)
}

// TestConfig runs a trivial statement against cfg without consulting or
// changing the resolver cache.
func (a *Adapter) TestConfig(ctx context.Context, tenantID string, cfg model.DatabaseConfig) TestResult {
	if err := cfg.Validate(); err != nil {
		return TestResult{Message: err.Error()}
	}
	if _, err := a.run(ctx, tenantID, cfg, "SELECT 1 AS test", nil); err != nil {
		return TestResult{Message: err.Error()}
	}
	return TestResult{Success: true, Message: "Connection successful"}
}

// Invalidate forgets the tenant's cached configuration so the next request
// reads the secret store again. Clients are shared by every tenant with the
// same ClientKey and stay open; a rotated configuration has a new key and
// gets its own client.
func (a *Adapter) Invalidate(tenantID string) {
	a.resolver.Invalidate(tenantID)
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
