package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/query"
)

const (
	defaultPreviewLimit = 20
	maxPreviewLimit     = 200
)

// registerTools registers all deskdata MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {
	tenantParam := mcp.WithString("tenant_id",
		mcp.Description("Tenant (organization) whose data to use. Optional when the server is pinned to a tenant."),
	)

	// ----- Retrieval -----

	srv.AddTool(
		mcp.NewTool("query_database",
			mcp.WithDescription(
				"Answer a customer-support question from the tenant's own data. The question "+
					"is routed to the tenant's database (tickets, orders, catalog tables) or to "+
					"the knowledge base, and the answer comes back as a summary plus the "+
					"supporting records.\n\n"+
					"Pass user_id (the customer's email) for questions about \"my tickets\" or "+
					"\"my orders\".",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("The question in plain language"),
			),
			tenantParam,
			mcp.WithString("user_id",
				mcp.Description("Customer identity, usually an email"),
			),
			mcp.WithNumber("page",
				mcp.Description("Page number for catalog answers (default 1)"),
			),
			mcp.WithNumber("page_size",
				mcp.Description("Rows per page for catalog answers (default 20)"),
			),
		),
		s.handleQueryDatabase,
	)

	// ----- Discovery -----

	srv.AddTool(
		mcp.NewTool("list_tables",
			mcp.WithDescription(
				"List the tables in the tenant's database. Use this to see what data exists "+
					"before previewing a table.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			tenantParam,
		),
		s.handleListTables,
	)

	srv.AddTool(
		mcp.NewTool("preview_table",
			mcp.WithDescription("Return the first rows of one table in the tenant's database."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("table",
				mcp.Required(),
				mcp.Description("Table name, as returned by list_tables"),
			),
			tenantParam,
			mcp.WithNumber("limit",
				mcp.Description("Maximum rows to return (default 20, max 200)"),
			),
		),
		s.handlePreviewTable,
	)

	srv.AddTool(
		mcp.NewTool("test_database",
			mcp.WithDescription("Check that the tenant's configured database answers."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			tenantParam,
		),
		s.handleTestDatabase,
	)
}

// ---------------------------------------------------------------------------
// Tool handlers
// ---------------------------------------------------------------------------

func (s *MCPServer) handleQueryDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Asker == nil {
		return toolError("retrieval is not configured on this server")
	}
	text, err := requireString(request, "query")
	if err != nil {
		return toolError("%v", err)
	}
	tenant, err := s.tenantFor(request)
	if err != nil {
		return toolError("%v", err)
	}

	answer, err := s.deps.Asker.Ask(ctx, model.RetrievalQuestion{
		TenantID: tenant,
		UserID:   optionalString(request, "user_id"),
		Text:     text,
		Page:     optionalInt(request, "page", 0),
		PageSize: optionalInt(request, "page_size", 0),
	})
	if err != nil {
		s.logger.Warn("mcp query failed", "tenant", tenant, "error", err)
		return toolError("query failed: %v", err)
	}
	return successJSON(answer)
}

func (s *MCPServer) handleListTables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenant, err := s.tenantFor(request)
	if err != nil {
		return toolError("%v", err)
	}
	tables, err := s.deps.Tables.ListTables(ctx, tenant)
	if err != nil {
		return toolError("failed to list tables: %v", err)
	}
	return successJSON(map[string]interface{}{
		"tenant_id": tenant,
		"tables":    tables,
		"count":     len(tables),
	})
}

func (s *MCPServer) handlePreviewTable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table, err := requireString(request, "table")
	if err != nil {
		return toolError("%v", err)
	}
	if err := query.ValidateTableName(table); err != nil {
		return toolError("%v", err)
	}
	tenant, err := s.tenantFor(request)
	if err != nil {
		return toolError("%v", err)
	}
	limit := clamp(optionalInt(request, "limit", defaultPreviewLimit), 1, maxPreviewLimit)

	result, err := s.deps.Tables.PreviewTable(ctx, tenant, table, limit)
	if err != nil {
		return toolError("failed to preview %q: %v", table, err)
	}
	return successJSON(map[string]interface{}{
		"table":    table,
		"rows":     result.Rows,
		"rowCount": result.RowCount,
	})
}

func (s *MCPServer) handleTestDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenant, err := s.tenantFor(request)
	if err != nil {
		return toolError("%v", err)
	}
	return successJSON(s.deps.Tables.TestConnection(ctx, tenant))
}

// clamp restricts v to the range [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
