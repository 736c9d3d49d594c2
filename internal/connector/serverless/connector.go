package serverless

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/deskdata/deskdata/internal/connector"
	"github.com/deskdata/deskdata/internal/model"
)

// Connector implements connector.Connector for serverless Postgres backends.
// Statements are sent as-is with ordinal placeholders.
type Connector struct {
	db *sqlx.DB
}

// New wraps an already-open pool.
func New(db *sqlx.DB) *Connector {
	return &Connector{db: db}
}

// Factory returns a connector.Factory that opens pools with the given
// settings.
func Factory(pool model.PoolConfig) connector.Factory {
	return func(ctx context.Context, cfg model.DatabaseConfig) (connector.Connector, error) {
		c, ok := cfg.(model.ServerlessSQL)
		if !ok {
			return nil, fmt.Errorf("serverless: unexpected config %T", cfg)
		}
		return Open(ctx, c.ConnectionString, pool)
	}
}

// Open connects to dsn and configures the pool.
func Open(ctx context.Context, dsn string, pool model.PoolConfig) (*Connector, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", connector.SanitizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("%w: serverless connect: %v", connector.ErrConnection, err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	return New(db), nil
}

// Query runs sql with params and scans every row into a column map.
func (c *Connector) Query(ctx context.Context, sql string, params []interface{}) (*model.QueryResult, error) {
	rows, err := c.db.QueryxContext(ctx, sql, params...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", connector.ErrStatement, err)
		}
		cleanMapValues(row)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return model.NewQueryResult(out), nil
}

// Ping verifies the pool can reach the database.
func (c *Connector) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", connector.ErrConnection, err)
	}
	return nil
}

// Close closes the pool.
func (c *Connector) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *Connector) Provider() model.Provider { return model.ProviderServerlessSQL }

// classify maps a driver error onto the connector sentinels. Anything the
// server answered with a SQLSTATE is a statement error; the rest is treated
// as a connection failure.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s (SQLSTATE %s)", connector.ErrStatement, pgErr.Message, pgErr.Code)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", connector.ErrStatement, err)
	}
	return fmt.Errorf("%w: %v", connector.ErrConnection, err)
}

// cleanMapValues converts []byte values from database scans into strings
// for clean JSON serialization. sqlx MapScan returns []byte for many column
// types which would otherwise be base64-encoded in JSON.
func cleanMapValues(m map[string]interface{}) {
	for k, v := range m {
		if b, ok := v.([]byte); ok {
			m[k] = string(b)
		}
	}
}
