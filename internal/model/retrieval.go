package model

// QueryResult is the uniform shape returned by every backend. Rows are
// schema-less column maps.
type QueryResult struct {
	Rows     []map[string]interface{} `json:"rows"`
	RowCount int                      `json:"rowCount"`
}

// NewQueryResult wraps rows and sets RowCount to len(rows).
func NewQueryResult(rows []map[string]interface{}) *QueryResult {
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	return &QueryResult{Rows: rows, RowCount: len(rows)}
}

// Answer sources.
const (
	SourceDatabase      = "database"
	SourceKnowledgeBase = "knowledge_base"
	SourceNone          = "none"
)

// RetrievalQuestion is one natural-language question from the agent.
type RetrievalQuestion struct {
	TenantID string `json:"tenantId"`
	// UserID is the contact identity (usually an email) used by the ticket
	// and order fast paths. Optional.
	UserID   string `json:"userId,omitempty"`
	Text     string `json:"query"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
}

// RetrievalAnswer is the merged answer handed back to the agent.
type RetrievalAnswer struct {
	Source   string                   `json:"source"`
	Summary  string                   `json:"summary"`
	Records  []map[string]interface{} `json:"records"`
	Metadata AnswerMetadata           `json:"metadata"`
}

// AnswerMetadata records how the answer was produced.
type AnswerMetadata struct {
	Intent   string `json:"queryType"`
	RowCount int    `json:"rowCount"`
}
