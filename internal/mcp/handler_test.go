package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/tenantdb"
)

type fakeAsker struct {
	got model.RetrievalQuestion
	err error
}

func (f *fakeAsker) Ask(_ context.Context, q model.RetrievalQuestion) (model.RetrievalAnswer, error) {
	f.got = q
	if f.err != nil {
		return model.RetrievalAnswer{}, f.err
	}
	return model.RetrievalAnswer{
		Source:   model.SourceDatabase,
		Summary:  "Dr. Rao",
		Records:  []map[string]interface{}{{"name": "Dr. Rao"}},
		Metadata: model.AnswerMetadata{Intent: "catalog", RowCount: 1},
	}, nil
}

type fakeTables struct {
	tenants    []string
	previewLim int
}

func (f *fakeTables) ListTables(_ context.Context, tenantID string) ([]string, error) {
	f.tenants = append(f.tenants, tenantID)
	if tenantID == "org_down" {
		return nil, errors.New("connection refused")
	}
	return []string{"appointments", "doctors"}, nil
}

func (f *fakeTables) PreviewTable(_ context.Context, tenantID, table string, limit int) (*model.QueryResult, error) {
	f.tenants = append(f.tenants, tenantID)
	f.previewLim = limit
	return model.NewQueryResult([]map[string]interface{}{{"id": 1}}), nil
}

func (f *fakeTables) TestConnection(_ context.Context, tenantID string) tenantdb.TestResult {
	f.tenants = append(f.tenants, tenantID)
	return tenantdb.TestResult{Success: true, Message: "connected"}
}

type fakeTenants struct{}

func (fakeTenants) List(context.Context) ([]model.TenantPlugin, error) {
	return []model.TenantPlugin{
		{TenantID: "org_A", Provider: string(model.ProviderServerlessSQL)},
		{TenantID: "org_B", Provider: string(model.ProviderRemoteDataAPI)},
	}, nil
}

func newTestServer(pinned string) (*MCPServer, *fakeAsker, *fakeTables) {
	asker := &fakeAsker{}
	tables := &fakeTables{}
	s := NewMCPServer(Deps{
		Asker:   asker,
		Tables:  tables,
		Tenants: fakeTenants{},
		Tenant:  pinned,
	}, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, asker, tables
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("content is %T, want text", res.Content[0])
	}
	return text.Text
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		val      int
		min      int
		max      int
		expected int
	}{
		{"value in range", 5, 1, 10, 5},
		{"value below min", -3, 1, 10, 1},
		{"value above max", 15, 1, 10, 10},
		{"value equals min", 1, 1, 10, 1},
		{"value equals max", 10, 1, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clamp(tt.val, tt.min, tt.max)
			if got != tt.expected {
				t.Errorf("clamp(%d, %d, %d) = %d, want %d", tt.val, tt.min, tt.max, got, tt.expected)
			}
		})
	}
}

func TestToolsRegistered(t *testing.T) {
	s, _, _ := newTestServer("")
	tools := s.Server().ListTools()
	for _, name := range []string{"query_database", "list_tables", "preview_table", "test_database"} {
		tool, ok := tools[name]
		if !ok {
			t.Errorf("tool %q not registered", name)
			continue
		}
		if ro := tool.Tool.Annotations.ReadOnlyHint; ro == nil || !*ro {
			t.Errorf("tool %q should be annotated read-only", name)
		}
	}
	if len(tools) != 4 {
		t.Errorf("registered %d tools, want 4", len(tools))
	}
}

func TestTenantResolution(t *testing.T) {
	tests := []struct {
		name    string
		pinned  string
		arg     string
		want    string
		wantErr bool
	}{
		{"unpinned uses argument", "", "org_B", "org_B", false},
		{"unpinned without argument", "", "", "", true},
		{"pinned default", "org_A", "", "org_A", false},
		{"pinned same tenant", "org_A", "org_A", "org_A", false},
		{"pinned other tenant", "org_A", "org_B", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestServer(tt.pinned)
			args := map[string]interface{}{}
			if tt.arg != "" {
				args["tenant_id"] = tt.arg
			}
			got, err := s.tenantFor(call(args))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("tenant = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQueryDatabase(t *testing.T) {
	s, asker, _ := newTestServer("org_A")

	res, err := s.handleQueryDatabase(context.Background(), call(map[string]interface{}{
		"query":     "which doctors work here",
		"user_id":   "ana@example.com",
		"page":      float64(2),
		"page_size": float64(5),
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	want := model.RetrievalQuestion{TenantID: "org_A", UserID: "ana@example.com", Text: "which doctors work here", Page: 2, PageSize: 5}
	if asker.got != want {
		t.Errorf("question = %+v, want %+v", asker.got, want)
	}

	var answer model.RetrievalAnswer
	if err := json.Unmarshal([]byte(resultText(t, res)), &answer); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if answer.Source != model.SourceDatabase || answer.Metadata.RowCount != 1 {
		t.Errorf("answer = %+v", answer)
	}
}

func TestQueryDatabaseErrors(t *testing.T) {
	s, asker, _ := newTestServer("org_A")

	res, _ := s.handleQueryDatabase(context.Background(), call(map[string]interface{}{}))
	if !res.IsError || !strings.Contains(resultText(t, res), `"query"`) {
		t.Errorf("missing query: %+v", res)
	}

	res, _ = s.handleQueryDatabase(context.Background(), call(map[string]interface{}{"query": "x", "tenant_id": "org_B"}))
	if !res.IsError {
		t.Error("cross-tenant query should be a tool error")
	}
	if asker.got.TenantID != "" {
		t.Error("asker called for a cross-tenant query")
	}

	asker.err = errors.New("backend down")
	res, _ = s.handleQueryDatabase(context.Background(), call(map[string]interface{}{"query": "x"}))
	if !res.IsError || !strings.Contains(resultText(t, res), "backend down") {
		t.Errorf("asker failure: %+v", res)
	}

	s.deps.Asker = nil
	res, _ = s.handleQueryDatabase(context.Background(), call(map[string]interface{}{"query": "x"}))
	if !res.IsError {
		t.Error("expected tool error without an asker")
	}
}

func TestListTables(t *testing.T) {
	s, _, tables := newTestServer("")

	res, _ := s.handleListTables(context.Background(), call(map[string]interface{}{"tenant_id": "org_B"}))
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	var body struct {
		Tables []string `json:"tables"`
		Count  int      `json:"count"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 || body.Tables[1] != "doctors" {
		t.Errorf("body = %+v", body)
	}
	if tables.tenants[0] != "org_B" {
		t.Errorf("listed tenant = %q", tables.tenants[0])
	}

	res, _ = s.handleListTables(context.Background(), call(map[string]interface{}{"tenant_id": "org_down"}))
	if !res.IsError || !strings.Contains(resultText(t, res), "connection refused") {
		t.Errorf("failing backend: %+v", res)
	}
}

func TestPreviewTable(t *testing.T) {
	s, _, tables := newTestServer("org_A")

	res, _ := s.handlePreviewTable(context.Background(), call(map[string]interface{}{"table": "doctors", "limit": float64(5000)}))
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	if tables.previewLim != maxPreviewLimit {
		t.Errorf("limit = %d, want clamp to %d", tables.previewLim, maxPreviewLimit)
	}

	res, _ = s.handlePreviewTable(context.Background(), call(map[string]interface{}{"table": "doctors"}))
	if res.IsError || tables.previewLim != defaultPreviewLimit {
		t.Errorf("default limit = %d", tables.previewLim)
	}

	calls := len(tables.tenants)
	res, _ = s.handlePreviewTable(context.Background(), call(map[string]interface{}{"table": "doctors; drop table x"}))
	if !res.IsError {
		t.Error("invalid table name should be a tool error")
	}
	if len(tables.tenants) != calls {
		t.Error("backend reached with an invalid table name")
	}
}

func TestTestDatabase(t *testing.T) {
	s, _, _ := newTestServer("org_A")
	res, _ := s.handleTestDatabase(context.Background(), call(nil))
	if res.IsError || !strings.Contains(resultText(t, res), `"success": true`) {
		t.Errorf("result = %s", resultText(t, res))
	}
}

func TestTenantsResourcePinned(t *testing.T) {
	s, _, _ := newTestServer("org_A")
	contents, err := s.handleTenantsResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, "org_A") || strings.Contains(text, "org_B") {
		t.Errorf("pinned server listed %s", text)
	}
}

func TestTablesResource(t *testing.T) {
	s, _, _ := newTestServer("org_A")

	var req mcp.ReadResourceRequest
	req.Params.URI = "deskdata://tables/org_A"
	contents, err := s.handleTablesResource(context.Background(), req)
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	if text := contents[0].(mcp.TextResourceContents).Text; !strings.Contains(text, "doctors") {
		t.Errorf("text = %s", text)
	}

	req.Params.URI = "deskdata://tables/org_B"
	if _, err := s.handleTablesResource(context.Background(), req); err == nil {
		t.Error("expected error for another tenant")
	}
	req.Params.URI = "deskdata://tables/"
	if _, err := s.handleTablesResource(context.Background(), req); err == nil {
		t.Error("expected error for an empty tenant")
	}
}

func TestReadOnlyAnnotation(t *testing.T) {
	ann := readOnlyAnnotation()
	if ann.ReadOnlyHint == nil || !*ann.ReadOnlyHint {
		t.Error("readOnlyAnnotation should set ReadOnlyHint to true")
	}
}
