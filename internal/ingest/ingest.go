// Package ingest copies rows from a tenant's tables into the tenant's
// knowledge-base namespace.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/deskdata/deskdata/internal/knowledge"
	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/observability"
	"github.com/deskdata/deskdata/internal/query"
)

// Per-table row limits.
const (
	DefaultLimit = 100
	MaxLimit     = 200
)

// excluded tables are never ingested.
var excluded = map[string]bool{
	"_prisma_migrations": true,
}

// Source reads a tenant's tables.
type Source interface {
	ListTables(ctx context.Context, tenantID string) ([]string, error)
	PreviewTable(ctx context.Context, tenantID, table string, limit int) (*model.QueryResult, error)
}

// Stats reports how many new or changed documents each table produced.
// Tables that failed are listed in Failed and absent from Tables.
type Stats struct {
	TenantID string         `json:"tenantId"`
	Tables   map[string]int `json:"tables"`
	Failed   []string       `json:"failed,omitempty"`
}

// Pipeline ingests tenant tables into the knowledge base.
type Pipeline struct {
	source  Source
	index   knowledge.Indexer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPipeline creates a Pipeline. metrics may be nil.
func NewPipeline(source Source, index knowledge.Indexer, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{source: source, index: index, logger: logger, metrics: metrics}
}

// Run ingests up to limitPerTable rows from every table of tenantID.
// A failing table is logged and skipped; only a failure to list tables
// fails the run.
func (p *Pipeline) Run(ctx context.Context, tenantID string, limitPerTable int) (*Stats, error) {
	limit := query.ClampLimit(limitPerTable, DefaultLimit, MaxLimit)

	tables, err := p.source.ListTables(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	stats := &Stats{TenantID: tenantID, Tables: make(map[string]int)}
	for _, table := range tables {
		if excluded[table] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		n, err := p.ingestTable(ctx, tenantID, table, limit)
		if err != nil {
			p.logger.Error("ingestion failed for table", "tenant", tenantID, "table", table, "error", err)
			p.metrics.ObserveIngest("failed")
			stats.Failed = append(stats.Failed, table)
			continue
		}
		stats.Tables[table] = n
	}

	p.logger.Info("ingestion finished", "tenant", tenantID, "tables", len(stats.Tables), "failed", len(stats.Failed))
	return stats, nil
}

func (p *Pipeline) ingestTable(ctx context.Context, tenantID, table string, limit int) (int, error) {
	res, err := p.source.PreviewTable(ctx, tenantID, table, limit)
	if err != nil {
		return 0, err
	}

	created := 0
	for i, row := range res.Rows {
		id := rowID(row, i)
		doc := knowledge.Document{
			Key:   table + ":" + id,
			Title: table + " " + id,
			Text:  RowToText(table, row),
			Metadata: map[string]string{
				"table":          table,
				"organizationId": tenantID,
			},
		}
		ok, err := p.index.Add(ctx, tenantID, doc)
		if err != nil {
			return created, fmt.Errorf("index %s: %w", doc.Key, err)
		}
		if ok {
			created++
			p.metrics.ObserveIngest("created")
		} else {
			p.metrics.ObserveIngest("unchanged")
		}
	}
	return created, nil
}

// RowToText renders a row as "Table: name" followed by one "key: value"
// line per column in key order.
func RowToText(table string, row map[string]interface{}) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Table: ")
	b.WriteString(table)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, textValue(row[k]))
	}
	return b.String()
}

func rowID(row map[string]interface{}, index int) string {
	if v, ok := row["id"]; ok && v != nil {
		return textValue(v)
	}
	return fmt.Sprint(index)
}

func textValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
