package retrieval

import (
	"strings"

	"github.com/deskdata/deskdata/internal/model"
)

// Source picks which branch answers: the database whenever it returned
// rows, else the knowledge base when it returned text, else none.
func Source(dbRows int, kbText string) string {
	switch {
	case dbRows > 0:
		return model.SourceDatabase
	case strings.TrimSpace(kbText) != "":
		return model.SourceKnowledgeBase
	default:
		return model.SourceNone
	}
}

// Merge combines the two branch results into an answer. db may be nil when
// the database branch failed. The knowledge-base summary is the raw
// context; interpretation happens afterwards.
func Merge(intent Intent, db *model.QueryResult, kbText string) model.RetrievalAnswer {
	rowCount := 0
	if db != nil {
		rowCount = db.RowCount
	}

	answer := model.RetrievalAnswer{
		Source:   Source(rowCount, kbText),
		Records:  []map[string]interface{}{},
		Metadata: model.AnswerMetadata{Intent: string(intent)},
	}

	switch answer.Source {
	case model.SourceDatabase:
		answer.Summary = formatDatabase(intent, db)
		answer.Records = db.Rows
		answer.Metadata.RowCount = db.RowCount
	case model.SourceKnowledgeBase:
		answer.Summary = kbText
	default:
		answer.Summary = NoResultsMessage
	}
	return answer
}

func formatDatabase(intent Intent, db *model.QueryResult) string {
	if e, ok := entities[intent]; ok {
		return FormatStructured(e.label, db.Rows, ListingRows)
	}
	// Cross-entity search rows are rendered as a sample whatever the
	// intent, since they lack the per-entity columns.
	if hasRecordType(db.Rows) {
		return FormatRecordSample(db.Rows, db.RowCount)
	}
	switch intent {
	case IntentTickets:
		return FormatTickets(db.Rows, db.RowCount)
	case IntentOrders:
		return FormatOrders(db.Rows, db.RowCount)
	default:
		return FormatStructured("Record", db.Rows, ListingRows)
	}
}
