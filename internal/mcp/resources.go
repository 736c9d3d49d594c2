package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	tenantsURI      = "deskdata://tenants"
	tablesURIPrefix = "deskdata://tables/"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	if s.deps.Tenants != nil {
		srv.AddResource(
			mcp.NewResource(
				tenantsURI,
				"Configured Tenants",
				mcp.WithResourceDescription("Tenants with a database configured, and their provider."),
				mcp.WithMIMEType("application/json"),
			),
			s.handleTenantsResource,
		)
	}

	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			tablesURIPrefix+"{tenant}",
			"Tenant Tables",
			mcp.WithTemplateDescription("Table names in a tenant's database."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleTablesResource,
	)
}

// handleTenantsResource lists configured tenants. A pinned server only
// reveals its own tenant.
func (s *MCPServer) handleTenantsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	plugins, err := s.deps.Tenants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	type tenantInfo struct {
		TenantID string `json:"tenant_id"`
		Provider string `json:"provider"`
	}
	items := make([]tenantInfo, 0, len(plugins))
	for _, p := range plugins {
		if s.deps.Tenant != "" && p.TenantID != s.deps.Tenant {
			continue
		}
		items = append(items, tenantInfo{TenantID: p.TenantID, Provider: p.Provider})
	}
	return jsonContents(tenantsURI, items)
}

// handleTablesResource returns table names for deskdata://tables/{tenant}.
func (s *MCPServer) handleTablesResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	tenant := strings.TrimPrefix(uri, tablesURIPrefix)
	if tenant == "" || tenant == uri {
		return nil, fmt.Errorf("invalid tables URI %q: expected %s{tenant}", uri, tablesURIPrefix)
	}
	if s.deps.Tenant != "" && tenant != s.deps.Tenant {
		return nil, fmt.Errorf("this server only answers for tenant %q", s.deps.Tenant)
	}

	tables, err := s.deps.Tables.ListTables(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables for %q: %w", tenant, err)
	}
	return jsonContents(uri, tables)
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
