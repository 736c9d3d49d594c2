// Package retrieval answers a tenant's natural-language question from its
// own database first and the knowledge base second.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deskdata/deskdata/internal/knowledge"
	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/observability"
	"github.com/deskdata/deskdata/internal/query"
)

// ErrInvalidQuestion is returned for a question without tenant or text.
var ErrInvalidQuestion = errors.New("invalid question")

// TableFinder picks a table for a question that matched no intent.
type TableFinder interface {
	FindBestTable(ctx context.Context, tenantID, question string) (string, bool, error)
}

// Interpreter rewrites knowledge-base context into an answer grounded in
// that context.
type Interpreter interface {
	Interpret(ctx context.Context, question, searchResults string) (string, error)
}

// Options tunes the orchestrator. Zero values take defaults.
type Options struct {
	DBTimeout        time.Duration // default 15s
	KBTimeout        time.Duration // default 10s
	InterpretTimeout time.Duration // default 20s
	KBLimit          int           // default 5
	GlobalNamespace  string        // default "global"

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Orchestrator runs the classify, dispatch, merge, format pipeline.
type Orchestrator struct {
	db          Executor
	tables      TableFinder
	kb          knowledge.Searcher
	interpreter Interpreter
	opts        Options
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// New creates an Orchestrator. kb and interpreter may be nil, which
// disables the knowledge-base branch and the interpretation step.
func New(db Executor, tables TableFinder, kb knowledge.Searcher, interpreter Interpreter, opts Options) *Orchestrator {
	if opts.DBTimeout <= 0 {
		opts.DBTimeout = 15 * time.Second
	}
	if opts.KBTimeout <= 0 {
		opts.KBTimeout = 10 * time.Second
	}
	if opts.InterpretTimeout <= 0 {
		opts.InterpretTimeout = 20 * time.Second
	}
	if opts.KBLimit <= 0 {
		opts.KBLimit = 5
	}
	if opts.GlobalNamespace == "" {
		opts.GlobalNamespace = "global"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		db:          db,
		tables:      tables,
		kb:          kb,
		interpreter: interpreter,
		opts:        opts,
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

// Ask answers q. Branch failures never fail the request; they count as an
// empty result for that branch.
func (o *Orchestrator) Ask(ctx context.Context, q model.RetrievalQuestion) (model.RetrievalAnswer, error) {
	if strings.TrimSpace(q.TenantID) == "" || strings.TrimSpace(q.Text) == "" {
		return model.RetrievalAnswer{}, fmt.Errorf("%w: tenant and query are required", ErrInvalidQuestion)
	}

	intent := Classify(q.Text)
	limit, offset := query.Page(q.Page, q.PageSize)

	var (
		dbResult *model.QueryResult
		kbText   string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dbResult = o.databaseBranch(gctx, q, intent, limit, offset)
		return nil
	})
	g.Go(func() error {
		kbText = o.knowledgeBranch(gctx, q)
		return nil
	})
	g.Wait()

	answer := Merge(intent, dbResult, kbText)
	if answer.Source == model.SourceKnowledgeBase && o.interpreter != nil {
		answer.Summary = o.interpret(ctx, q, kbText, answer.Summary)
	}

	o.metrics.ObserveAnswer(answer.Source)
	o.logger.Debug("retrieval answered",
		"tenant", q.TenantID, "intent", intent, "source", answer.Source, "rows", answer.Metadata.RowCount)
	return answer, nil
}

// interpret asks the interpreter to rewrite kbText, keeping fallback when
// the call fails or runs past InterpretTimeout.
func (o *Orchestrator) interpret(ctx context.Context, q model.RetrievalQuestion, kbText, fallback string) string {
	ctx, cancel := context.WithTimeout(ctx, o.opts.InterpretTimeout)
	defer cancel()

	text, err := o.interpreter.Interpret(ctx, q.Text, kbText)
	if err != nil {
		o.logger.Warn("knowledge base interpretation failed, returning raw context", "tenant", q.TenantID, "error", err)
		return fallback
	}
	return text
}

func (o *Orchestrator) databaseBranch(ctx context.Context, q model.RetrievalQuestion, intent Intent, limit, offset int) *model.QueryResult {
	ctx, cancel := context.WithTimeout(ctx, o.opts.DBTimeout)
	defer cancel()

	start := time.Now()
	res, err := o.queryDatabase(ctx, q, intent, limit, offset)
	o.metrics.ObserveBranch("database", time.Since(start), err)
	if err != nil {
		o.logger.Warn("database branch failed", "tenant", q.TenantID, "intent", intent, "error", err)
		return nil
	}
	return res
}

func (o *Orchestrator) queryDatabase(ctx context.Context, q model.RetrievalQuestion, intent Intent, limit, offset int) (*model.QueryResult, error) {
	if e, ok := entities[intent]; ok {
		return o.db.QueryTable(ctx, q.TenantID, e.table, limit, offset)
	}

	switch {
	case intent == IntentTickets && q.UserID != "":
		return UserTickets(ctx, o.db, q.TenantID, q.UserID)
	case intent == IntentOrders && q.UserID != "":
		return UserOrders(ctx, o.db, q.TenantID, q.UserID)
	case intent == IntentSearch && o.tables != nil:
		table, ok, err := o.tables.FindBestTable(ctx, q.TenantID, q.Text)
		if err != nil {
			return nil, err
		}
		if ok {
			o.logger.Debug("matched question to table", "tenant", q.TenantID, "table", table)
			return o.db.QueryTable(ctx, q.TenantID, table, limit, offset)
		}
	}
	return SearchRecords(ctx, o.db, q.TenantID, q.Text, limit, offset)
}

func (o *Orchestrator) knowledgeBranch(ctx context.Context, q model.RetrievalQuestion) string {
	if o.kb == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, o.opts.KBTimeout)
	defer cancel()

	start := time.Now()
	text, err := o.searchKnowledge(ctx, q)
	o.metrics.ObserveBranch("knowledge_base", time.Since(start), err)
	if err != nil {
		o.logger.Warn("knowledge base branch failed", "tenant", q.TenantID, "error", err)
		return ""
	}
	return text
}

func (o *Orchestrator) searchKnowledge(ctx context.Context, q model.RetrievalQuestion) (string, error) {
	res, err := o.kb.Search(ctx, q.TenantID, q.Text, o.opts.KBLimit)
	if err != nil {
		return "", err
	}
	if res == nil || strings.TrimSpace(res.Text) == "" {
		res, err = o.kb.Search(ctx, o.opts.GlobalNamespace, q.Text, o.opts.KBLimit)
		if err != nil {
			return "", err
		}
		if res == nil || strings.TrimSpace(res.Text) == "" {
			return "", nil
		}
	}
	return ContextText(res), nil
}

// ContextText renders a search result the way the interpreter expects it.
func ContextText(res *knowledge.SearchResult) string {
	titles := make([]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		if e.Title != "" {
			titles = append(titles, e.Title)
		}
	}
	return fmt.Sprintf("Found results in %s. Here is the context:\n\n%s", strings.Join(titles, ", "), res.Text)
}
