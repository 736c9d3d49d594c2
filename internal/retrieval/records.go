package retrieval

import (
	"context"
	"strings"

	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/query"
)

// Executor runs statements against a tenant's backend.
type Executor interface {
	Execute(ctx context.Context, tenantID, sql string, params ...interface{}) (*model.QueryResult, error)
	QueryTable(ctx context.Context, tenantID, table string, limit, offset int) (*model.QueryResult, error)
}

const recentLimit = 50

const userTicketsSQL = `SELECT id, user_id, organization_id, title, description, status, priority,
       created_at, updated_at, resolved_at
FROM tickets
WHERE user_id = $1 AND organization_id = $2
ORDER BY created_at DESC
LIMIT 50`

const userOrdersSQL = `SELECT id, user_id, organization_id, order_number, status,
       total_amount, currency, created_at, updated_at
FROM orders
WHERE user_id = $1 AND organization_id = $2
ORDER BY created_at DESC
LIMIT 50`

// searchRecordsSQL matches a lowercased LIKE pattern across tickets,
// orders and customers. Every row carries a record_type discriminator.
const searchRecordsSQL = `SELECT 'ticket' AS record_type, t.id, t.user_id, t.organization_id,
       t.title, t.description, t.status, t.priority,
       t.created_at, t.updated_at, t.resolved_at
FROM tickets t
WHERE t.organization_id = $1
  AND (LOWER(t.title) LIKE $2 OR LOWER(t.description) LIKE $2)

UNION ALL

SELECT 'order' AS record_type, o.id, o.user_id, o.organization_id,
       o.order_number AS title, NULL AS description, o.status, NULL AS priority,
       o.created_at, o.updated_at, NULL AS resolved_at
FROM orders o
WHERE o.organization_id = $1
  AND LOWER(o.order_number) LIKE $2

UNION ALL

SELECT 'customer' AS record_type, c.id, NULL AS user_id, c.organization_id,
       c.name AS title, c.email AS description, NULL AS status, NULL AS priority,
       c.created_at, c.updated_at, NULL AS resolved_at
FROM customers c
WHERE c.organization_id = $1
  AND (LOWER(c.name) LIKE $2 OR LOWER(c.email) LIKE $2)

ORDER BY created_at DESC
LIMIT $3 OFFSET $4`

// UserTickets returns the user's 50 most recent tickets.
func UserTickets(ctx context.Context, db Executor, tenantID, userID string) (*model.QueryResult, error) {
	return db.Execute(ctx, tenantID, userTicketsSQL, userID, tenantID)
}

// UserOrders returns the user's 50 most recent orders.
func UserOrders(ctx context.Context, db Executor, tenantID, userID string) (*model.QueryResult, error) {
	return db.Execute(ctx, tenantID, userOrdersSQL, userID, tenantID)
}

// SearchRecords runs a case-insensitive substring search over tickets,
// orders and customers. limit defaults to 50 and is capped at 100.
func SearchRecords(ctx context.Context, db Executor, tenantID, term string, limit, offset int) (*model.QueryResult, error) {
	limit = query.ClampLimit(limit, recentLimit, query.MaxPageSize)
	if offset < 0 {
		offset = 0
	}
	pattern := query.ContainsPattern(strings.ToLower(term))
	return db.Execute(ctx, tenantID, searchRecordsSQL, tenantID, pattern, limit, offset)
}
