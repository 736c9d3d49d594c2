// Package catalog picks the tenant table a free-text question most likely
// refers to.
package catalog

import (
	"context"
	"regexp"
	"strings"
)

// Matcher chooses a table for a question. Implementations must be
// deterministic for a given table ordering.
type Matcher interface {
	FindBestTable(question string, tables []string) (string, bool)
}

// TableLister lists a tenant's base tables.
type TableLister interface {
	ListTables(ctx context.Context, tenantID string) ([]string, error)
}

var nonWord = regexp.MustCompile(`\W+`)

// LexicalMatcher scores tables by substring and token overlap with the
// question.
type LexicalMatcher struct{}

// FindBestTable returns the first table with the highest positive score.
func (LexicalMatcher) FindBestTable(question string, tables []string) (string, bool) {
	best, bestScore := "", 0
	for _, name := range tables {
		if s := Score(name, question); s > bestScore {
			best, bestScore = name, s
		}
	}
	return best, bestScore > 0
}

// Score rates how strongly question mentions table:
//
//	+5  the table name with underscores as spaces appears in the question
//	+2  the raw table name appears in the question
//	+1  for each name token that is also a question token
//
// Matching is case-insensitive.
func Score(table, question string) int {
	q := strings.ToLower(question)
	norm := normalize(table)
	if norm == "" {
		return 0
	}

	score := 0
	if strings.Contains(q, norm) {
		score += 5
	}
	if strings.Contains(q, strings.ToLower(table)) {
		score += 2
	}

	qTokens := make(map[string]struct{})
	for _, tok := range tokens(q) {
		qTokens[tok] = struct{}{}
	}
	for _, tok := range tokens(norm) {
		if _, ok := qTokens[tok]; ok {
			score++
		}
	}
	return score
}

func normalize(table string) string {
	return strings.ReplaceAll(strings.ToLower(table), "_", " ")
}

func tokens(s string) []string {
	var out []string
	for _, t := range nonWord.Split(s, -1) {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Finder resolves a question to one of a tenant's tables.
type Finder struct {
	lister  TableLister
	matcher Matcher
}

// NewFinder creates a Finder. A nil matcher uses LexicalMatcher.
func NewFinder(lister TableLister, matcher Matcher) *Finder {
	if matcher == nil {
		matcher = LexicalMatcher{}
	}
	return &Finder{lister: lister, matcher: matcher}
}

// FindBestTable lists the tenant's tables and asks the matcher to pick one.
// It returns false when no table scores.
func (f *Finder) FindBestTable(ctx context.Context, tenantID, question string) (string, bool, error) {
	tables, err := f.lister.ListTables(ctx, tenantID)
	if err != nil {
		return "", false, err
	}
	name, ok := f.matcher.FindBestTable(question, tables)
	return name, ok, nil
}
