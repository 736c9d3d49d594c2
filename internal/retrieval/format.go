package retrieval

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Row caps for the rendered summaries.
const (
	ListingRows = 20
	SampleRows  = 5
)

// NoResultsMessage is the summary when neither source had anything.
const NoResultsMessage = "I couldn't find any matching information in either the database or the knowledge base for this question."

// FormatStructured renders up to max rows as numbered key/value blocks.
func FormatStructured(label string, rows []map[string]interface{}, max int) string {
	lower := strings.ToLower(label)
	if len(rows) == 0 {
		return fmt.Sprintf("No %s records found in the database.", lower)
	}
	if max <= 0 {
		max = ListingRows
	}

	items := rows
	if len(items) > max {
		items = items[:max]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s record(s) in the database (up to the current limit).", len(rows), lower)
	for i, row := range items {
		fmt.Fprintf(&b, "\n\n%d. **%s %d**", i+1, label, i+1)
		for _, key := range sortedKeys(row) {
			fmt.Fprintf(&b, "\n- **%s:** %s", TitleCaseKey(key), FormatValue(row[key]))
		}
	}
	if len(rows) > max {
		fmt.Fprintf(&b, "\n\n(Showing first %d of %d record(s).)", max, len(rows))
	}
	return b.String()
}

// FormatTickets renders the first tickets as "#id: title (status)".
func FormatTickets(rows []map[string]interface{}, total int) string {
	lines := make([]string, 0, SampleRows)
	for _, r := range head(rows, SampleRows) {
		lines = append(lines, fmt.Sprintf("#%s: %s (%s)", FormatValue(r["id"]), FormatValue(r["title"]), FormatValue(r["status"])))
	}
	return fmt.Sprintf("Found %d ticket(s) in the database. Recent tickets:\n%s", total, strings.Join(lines, "\n"))
}

// FormatOrders renders the first orders as "number: status - total currency".
func FormatOrders(rows []map[string]interface{}, total int) string {
	lines := make([]string, 0, SampleRows)
	for _, r := range head(rows, SampleRows) {
		lines = append(lines, fmt.Sprintf("%s: %s - %s %s",
			FormatValue(r["order_number"]), FormatValue(r["status"]),
			FormatValue(r["total_amount"]), FormatValue(r["currency"])))
	}
	return fmt.Sprintf("Found %d order(s) in the database. Recent orders:\n%s", total, strings.Join(lines, "\n"))
}

// FormatRecordSample renders cross-entity rows as "type: title", using the
// id when a row has no title.
func FormatRecordSample(rows []map[string]interface{}, total int) string {
	lines := make([]string, 0, SampleRows)
	for _, r := range head(rows, SampleRows) {
		title := r["title"]
		if title == nil {
			title = r["id"]
		}
		lines = append(lines, fmt.Sprintf("%s: %s", FormatValue(r["record_type"]), FormatValue(title)))
	}
	return fmt.Sprintf("Found %d record(s) in the database. Sample:\n%s", total, strings.Join(lines, "\n"))
}

// FormatValue renders one field for display.
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "N/A"
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = fmt.Sprint(rv.Index(i).Interface())
		}
		return strings.Join(parts, ", ")
	case reflect.Map, reflect.Struct:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

// TitleCaseKey turns "created_at" into "Created At".
func TitleCaseKey(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(p)
		parts[i] = string(unicode.ToUpper(r)) + p[size:]
	}
	return strings.Join(parts, " ")
}

func hasRecordType(rows []map[string]interface{}) bool {
	if len(rows) == 0 {
		return false
	}
	_, ok := rows[0]["record_type"]
	return ok
}

func head(rows []map[string]interface{}, n int) []map[string]interface{} {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}

func sortedKeys(row map[string]interface{}) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
