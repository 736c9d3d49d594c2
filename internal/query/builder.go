package query

import "fmt"

// Row limits.
const (
	DefaultLimit    = 20
	MaxPreviewLimit = 200
	MaxPageSize     = 100
)

// ListTablesSQL lists base tables in the public schema in name order.
const ListTablesSQL = `SELECT table_name FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name`

// ClampLimit returns def when limit is not positive and max when it exceeds
// max.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}

// Page normalizes a 1-based page number and page size and returns the
// resulting limit and offset. pageSize defaults to DefaultLimit and is
// clamped to MaxPageSize.
func Page(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	limit = ClampLimit(pageSize, DefaultLimit, MaxPageSize)
	return limit, (page - 1) * limit
}

// SelectLimit builds `SELECT * FROM "table" LIMIT $1`.
func SelectLimit(table string) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT * FROM %s LIMIT $1", QuoteIdentifier(table)), nil
}

// SelectPage builds a stable paged select over table with $1 as the limit
// and $2 as the offset.
func SelectPage(table string) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT * FROM %s ORDER BY 1 LIMIT $1 OFFSET $2", QuoteIdentifier(table)), nil
}
