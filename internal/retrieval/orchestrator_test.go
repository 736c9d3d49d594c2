package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/deskdata/deskdata/internal/knowledge"
	"github.com/deskdata/deskdata/internal/model"
)

func newTestOrchestrator(db Executor, finder TableFinder, kb *fakeSearcher, interp Interpreter) *Orchestrator {
	opts := Options{Logger: discardLogger()}
	if kb == nil {
		return New(db, finder, nil, interp, opts)
	}
	return New(db, finder, kb, interp, opts)
}

func TestAskRejectsIncompleteQuestion(t *testing.T) {
	o := newTestOrchestrator(&fakeExecutor{}, nil, nil, nil)
	for _, q := range []model.RetrievalQuestion{
		{TenantID: "", Text: "doctors"},
		{TenantID: "org_A", Text: "   "},
	} {
		if _, err := o.Ask(context.Background(), q); !errors.Is(err, ErrInvalidQuestion) {
			t.Errorf("Ask(%+v) err = %v, want ErrInvalidQuestion", q, err)
		}
	}
}

func TestAskDispatchesByIntent(t *testing.T) {
	tests := []struct {
		name       string
		q          model.RetrievalQuestion
		finder     TableFinder
		wantTable  string
		wantSQL    string
		wantParams []interface{}
	}{
		{
			name:       "entity table with paging",
			q:          model.RetrievalQuestion{TenantID: "org_A", Text: "list the physicians", Page: 2, PageSize: 10},
			wantTable:  "doctors",
			wantParams: []interface{}{10, 10},
		},
		{
			name:       "page size clamped",
			q:          model.RetrievalQuestion{TenantID: "org_A", Text: "show patients", PageSize: 1000},
			wantTable:  "patients",
			wantParams: []interface{}{100, 0},
		},
		{
			name:       "tickets for known user",
			q:          model.RetrievalQuestion{TenantID: "org_A", UserID: "ana@example.com", Text: "my tickets"},
			wantSQL:    userTicketsSQL,
			wantParams: []interface{}{"ana@example.com", "org_A"},
		},
		{
			name:       "orders for known user",
			q:          model.RetrievalQuestion{TenantID: "org_A", UserID: "ana@example.com", Text: "where is my order"},
			wantSQL:    userOrdersSQL,
			wantParams: []interface{}{"ana@example.com", "org_A"},
		},
		{
			name:       "tickets without user searches records",
			q:          model.RetrievalQuestion{TenantID: "org_A", Text: "ticket about refunds"},
			wantSQL:    searchRecordsSQL,
			wantParams: []interface{}{"org_A", "%ticket about refunds%", 20, 0},
		},
		{
			name:       "search with matched table",
			q:          model.RetrievalQuestion{TenantID: "org_A", Text: "insurance plans"},
			finder:     fakeFinder{table: "insurance_plans"},
			wantTable:  "insurance_plans",
			wantParams: []interface{}{20, 0},
		},
		{
			name:       "search without match",
			q:          model.RetrievalQuestion{TenantID: "org_A", Text: "100% refund"},
			finder:     fakeFinder{},
			wantSQL:    searchRecordsSQL,
			wantParams: []interface{}{"org_A", `%100\% refund%`, 20, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeExecutor{}
			o := newTestOrchestrator(db, tt.finder, nil, nil)
			if _, err := o.Ask(context.Background(), tt.q); err != nil {
				t.Fatalf("Ask: %v", err)
			}

			calls := db.seen()
			if len(calls) != 1 {
				t.Fatalf("calls = %+v, want 1", calls)
			}
			c := calls[0]
			if c.Tenant != tt.q.TenantID || c.Table != tt.wantTable || c.SQL != tt.wantSQL {
				t.Errorf("call = %+v", c)
			}
			if len(c.Params) != len(tt.wantParams) {
				t.Fatalf("params = %v, want %v", c.Params, tt.wantParams)
			}
			for i := range c.Params {
				if c.Params[i] != tt.wantParams[i] {
					t.Errorf("param %d = %v, want %v", i, c.Params[i], tt.wantParams[i])
				}
			}
		})
	}
}

func TestAskFinderErrorCountsAsEmpty(t *testing.T) {
	db := &fakeExecutor{}
	o := newTestOrchestrator(db, fakeFinder{err: errors.New("catalog down")}, nil, nil)

	answer, err := o.Ask(context.Background(), model.RetrievalQuestion{TenantID: "org_A", Text: "hello"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Source != model.SourceNone || answer.Summary != NoResultsMessage {
		t.Errorf("answer = %+v", answer)
	}
	if len(db.seen()) != 0 {
		t.Error("no statement should run after the catalog failed")
	}
}

func TestAskDatabaseWins(t *testing.T) {
	db := &fakeExecutor{tables: map[string][]map[string]interface{}{
		"doctors": {{"id": 1, "name": "Dr. Rao"}},
	}}
	kb := &fakeSearcher{results: map[string]*knowledge.SearchResult{"org_A": kbResult("Staff", "Dr. Mehta")}}
	interp := &fakeInterpreter{out: "unused"}
	o := newTestOrchestrator(db, nil, kb, interp)

	answer, err := o.Ask(context.Background(), model.RetrievalQuestion{TenantID: "org_A", Text: "who are the doctors"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Source != model.SourceDatabase || answer.Metadata.RowCount != 1 || answer.Metadata.Intent != "doctors" {
		t.Errorf("answer = %+v", answer)
	}
	if !strings.Contains(answer.Summary, "Dr. Rao") || strings.Contains(answer.Summary, "Mehta") {
		t.Errorf("Summary = %q", answer.Summary)
	}
	if interp.question != "" {
		t.Error("interpreter must not run for database answers")
	}
}

func TestAskKnowledgeFallsBackToGlobalNamespace(t *testing.T) {
	kb := &fakeSearcher{results: map[string]*knowledge.SearchResult{
		"global": kbResult("Clinic FAQ", "Dr. Mehta sees patients on Mondays."),
	}}
	interp := &fakeInterpreter{out: "Dr. Mehta is available on Mondays."}
	o := newTestOrchestrator(&fakeExecutor{}, nil, kb, interp)

	answer, err := o.Ask(context.Background(), model.RetrievalQuestion{TenantID: "org_B", Text: "when can I see Dr. Mehta"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Source != model.SourceKnowledgeBase || answer.Summary != "Dr. Mehta is available on Mondays." {
		t.Errorf("answer = %+v", answer)
	}
	if got := kb.namespaces(); len(got) != 2 || got[0] != "org_B" || got[1] != "global" {
		t.Errorf("searched namespaces = %v", got)
	}
	want := "Found results in Clinic FAQ. Here is the context:\n\nDr. Mehta sees patients on Mondays."
	if interp.context != want {
		t.Errorf("interpreter context = %q, want %q", interp.context, want)
	}
	if len(answer.Records) != 0 || answer.Metadata.RowCount != 0 {
		t.Errorf("knowledge answers carry no records: %+v", answer)
	}
}

func TestAskTenantNamespaceSkipsGlobal(t *testing.T) {
	kb := &fakeSearcher{results: map[string]*knowledge.SearchResult{
		"org_B":  kbResult("Staff", "Dr. Mehta"),
		"global": kbResult("Other", "unrelated"),
	}}
	o := newTestOrchestrator(&fakeExecutor{}, nil, kb, nil)

	answer, _ := o.Ask(context.Background(), model.RetrievalQuestion{TenantID: "org_B", Text: "doctors"})
	if got := kb.namespaces(); len(got) != 1 {
		t.Errorf("searched namespaces = %v, want tenant only", got)
	}
	if !strings.Contains(answer.Summary, "Dr. Mehta") {
		t.Errorf("without an interpreter the raw context is the summary, got %q", answer.Summary)
	}
}

func TestAskInterpreterFailureKeepsContext(t *testing.T) {
	kb := &fakeSearcher{results: map[string]*knowledge.SearchResult{"org_B": kbResult("Staff", "Dr. Mehta")}}
	o := newTestOrchestrator(&fakeExecutor{}, nil, kb, &fakeInterpreter{err: errors.New("rate limited")})

	answer, err := o.Ask(context.Background(), model.RetrievalQuestion{TenantID: "org_B", Text: "doctors"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Source != model.SourceKnowledgeBase || !strings.HasPrefix(answer.Summary, "Found results in Staff.") {
		t.Errorf("answer = %+v", answer)
	}
}

func TestAskInterpreterTimeoutKeepsContext(t *testing.T) {
	kb := &fakeSearcher{results: map[string]*knowledge.SearchResult{"org_B": kbResult("Staff", "Dr. Mehta")}}
	o := New(&fakeExecutor{}, nil, kb, &fakeInterpreter{out: "late", hang: true}, Options{
		InterpretTimeout: 20 * time.Millisecond,
		Logger:           discardLogger(),
	})

	start := time.Now()
	answer, err := o.Ask(context.Background(), model.RetrievalQuestion{TenantID: "org_B", Text: "doctors"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Ask took %v, the interpreter deadline was not applied", elapsed)
	}
	if answer.Source != model.SourceKnowledgeBase || !strings.HasPrefix(answer.Summary, "Found results in Staff.") {
		t.Errorf("answer = %+v", answer)
	}
}

func TestAskBranchErrorsAreSwallowed(t *testing.T) {
	db := &fakeExecutor{err: errors.New("connection refused")}
	kb := &fakeSearcher{err: errors.New("qdrant unavailable")}
	o := newTestOrchestrator(db, nil, kb, nil)

	answer, err := o.Ask(context.Background(), model.RetrievalQuestion{TenantID: "org_A", Text: "doctors"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Source != model.SourceNone || answer.Summary != NoResultsMessage {
		t.Errorf("answer = %+v", answer)
	}
}

func TestAskDatabaseFailureStillUsesKnowledgeBase(t *testing.T) {
	db := &fakeExecutor{err: errors.New("relation does not exist")}
	kb := &fakeSearcher{results: map[string]*knowledge.SearchResult{"org_A": kbResult("Staff", "Dr. Mehta")}}
	o := newTestOrchestrator(db, nil, kb, nil)

	answer, _ := o.Ask(context.Background(), model.RetrievalQuestion{TenantID: "org_A", Text: "doctors"})
	if answer.Source != model.SourceKnowledgeBase {
		t.Errorf("Source = %s, want knowledge_base", answer.Source)
	}
}

func TestAskBoundsSlowDatabase(t *testing.T) {
	db := &fakeExecutor{wait: true}
	kb := &fakeSearcher{results: map[string]*knowledge.SearchResult{"org_A": kbResult("Staff", "Dr. Mehta")}}
	o := New(db, nil, kb, nil, Options{DBTimeout: 20 * time.Millisecond, Logger: discardLogger()})

	start := time.Now()
	answer, err := o.Ask(context.Background(), model.RetrievalQuestion{TenantID: "org_A", Text: "doctors"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Ask took %v; the database deadline was not applied", elapsed)
	}
	if answer.Source != model.SourceKnowledgeBase {
		t.Errorf("Source = %s, want knowledge_base", answer.Source)
	}
}

func TestAskRunsBranchesConcurrently(t *testing.T) {
	dbEntered := make(chan struct{}, 1)
	db := &fakeExecutor{entered: dbEntered}
	kb := &fakeSearcher{entered: make(chan struct{}, 2), release: make(chan struct{})}
	o := newTestOrchestrator(db, nil, kb, nil)

	done := make(chan model.RetrievalAnswer)
	go func() {
		answer, _ := o.Ask(context.Background(), model.RetrievalQuestion{TenantID: "org_A", Text: "doctors"})
		done <- answer
	}()

	// The knowledge search is parked until released; the database branch
	// must start regardless.
	select {
	case <-dbEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("database branch did not start while the knowledge branch was blocked")
	}
	close(kb.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Ask did not return")
	}
}

func TestContextTextSkipsUntitledEntries(t *testing.T) {
	res := &knowledge.SearchResult{
		Text:    "a\n\nb",
		Entries: []knowledge.Entry{{Title: "One"}, {Title: ""}, {Title: "Two"}},
	}
	want := "Found results in One, Two. Here is the context:\n\na\n\nb"
	if got := ContextText(res); got != want {
		t.Errorf("ContextText = %q, want %q", got, want)
	}
}
