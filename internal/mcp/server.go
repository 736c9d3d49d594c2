package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/tenantdb"
)

// Asker answers a retrieval question. *retrieval.Orchestrator satisfies it.
type Asker interface {
	Ask(ctx context.Context, q model.RetrievalQuestion) (model.RetrievalAnswer, error)
}

// TableReader is the part of the query layer the table tools use.
// *tenantdb.Adapter satisfies it.
type TableReader interface {
	ListTables(ctx context.Context, tenantID string) ([]string, error)
	PreviewTable(ctx context.Context, tenantID, table string, limit int) (*model.QueryResult, error)
	TestConnection(ctx context.Context, tenantID string) tenantdb.TestResult
}

// TenantLister lists configured tenants. *service.TenantService satisfies it.
type TenantLister interface {
	List(ctx context.Context) ([]model.TenantPlugin, error)
}

// Deps wires an MCPServer.
type Deps struct {
	Asker   Asker
	Tables  TableReader
	Tenants TenantLister
	// Tenant pins the server to one tenant. Tool calls may omit tenant_id
	// and may not name any other tenant. Empty leaves tenant_id required.
	Tenant string
}

// MCPServer wraps the mcp-go server with deskdata's tools and resources. It
// lets an agent ask a tenant's data a question and explore its tables.
type MCPServer struct {
	deps   Deps
	logger *slog.Logger
	server *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all deskdata tools and
// resources. The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(deps Deps, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{
		deps:   deps,
		logger: logger,
	}

	mcpServer := server.NewMCPServer(
		"deskdata",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance. Useful for
// advanced configuration or testing.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, the integration path for
// agent runtimes that launch the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode", "tenant", s.deps.Tenant)
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. ":3001"). This is suitable for remote MCP clients.
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr, "tenant", s.deps.Tenant)
	return httpServer.Start(addr)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
