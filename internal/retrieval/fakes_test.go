package retrieval

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/deskdata/deskdata/internal/knowledge"
	"github.com/deskdata/deskdata/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type call struct {
	Tenant string
	Table  string // set for QueryTable
	SQL    string // set for Execute
	Params []interface{}
}

// fakeExecutor answers QueryTable by table name and Execute with execRows.
type fakeExecutor struct {
	mu       sync.Mutex
	calls    []call
	tables   map[string][]map[string]interface{}
	execRows []map[string]interface{}
	err      error
	// wait, when set, makes every call block until ctx is done.
	wait bool
	// entered, when set, is signalled as a call starts.
	entered chan struct{}
}

func (f *fakeExecutor) record(ctx context.Context, c call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.wait {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeExecutor) Execute(ctx context.Context, tenantID, sql string, params ...interface{}) (*model.QueryResult, error) {
	if err := f.record(ctx, call{Tenant: tenantID, SQL: sql, Params: params}); err != nil {
		return nil, err
	}
	return model.NewQueryResult(f.execRows), nil
}

func (f *fakeExecutor) QueryTable(ctx context.Context, tenantID, table string, limit, offset int) (*model.QueryResult, error) {
	if err := f.record(ctx, call{Tenant: tenantID, Table: table, Params: []interface{}{limit, offset}}); err != nil {
		return nil, err
	}
	return model.NewQueryResult(f.tables[table]), nil
}

func (f *fakeExecutor) seen() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeFinder struct {
	table string
	err   error
}

func (f fakeFinder) FindBestTable(context.Context, string, string) (string, bool, error) {
	return f.table, f.table != "", f.err
}

// fakeSearcher returns canned results per namespace.
type fakeSearcher struct {
	mu       sync.Mutex
	results  map[string]*knowledge.SearchResult
	err      error
	searched []string
	entered  chan struct{}
	release  chan struct{}
}

func (f *fakeSearcher) Search(ctx context.Context, namespace, query string, limit int) (*knowledge.SearchResult, error) {
	f.mu.Lock()
	f.searched = append(f.searched, namespace)
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[namespace]; ok {
		return r, nil
	}
	return &knowledge.SearchResult{}, nil
}

func (f *fakeSearcher) namespaces() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searched...)
}

type fakeInterpreter struct {
	out      string
	err      error
	question string
	context  string
	// hang blocks until the caller's context is done.
	hang bool
}

func (f *fakeInterpreter) Interpret(ctx context.Context, question, searchResults string) (string, error) {
	f.question, f.context = question, searchResults
	if f.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.out, f.err
}

func kbResult(title, text string) *knowledge.SearchResult {
	return &knowledge.SearchResult{
		Text:    text,
		Entries: []knowledge.Entry{{Key: title, Title: title, Text: text, Score: 0.9}},
	}
}
