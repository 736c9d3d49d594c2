// Package knowledge is the vector-searchable text index that backs the
// knowledge-base half of retrieval. Entries are partitioned by namespace:
// one per tenant plus a shared global namespace.
package knowledge

import (
	"context"
	"strings"
)

// Entry is one matched document.
type Entry struct {
	Key   string  `json:"key"`
	Title string  `json:"title"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// SearchResult is what a search returns. Text concatenates the entries in
// score order; it is empty when nothing matched.
type SearchResult struct {
	Text    string  `json:"text"`
	Entries []Entry `json:"entries"`
}

// Document is a unit of text to index.
type Document struct {
	Key      string
	Title    string
	Text     string
	Metadata map[string]string
}

// Searcher finds the entries of a namespace most similar to query.
type Searcher interface {
	Search(ctx context.Context, namespace, query string, limit int) (*SearchResult, error)
}

// Indexer adds documents to a namespace. created is false when a document
// with the same key and content already exists.
type Indexer interface {
	Add(ctx context.Context, namespace string, doc Document) (created bool, err error)
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const entrySeparator = "\n\n---\n\n"

// JoinEntries builds SearchResult.Text from entries.
func JoinEntries(entries []Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if t := strings.TrimSpace(e.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, entrySeparator)
}
