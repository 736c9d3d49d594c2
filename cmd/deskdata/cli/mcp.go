package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	dmcp "github.com/deskdata/deskdata/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
		tenant    string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes tenant retrieval
and table discovery as tools for AI agents. Supports stdio (default) and HTTP
transports.

With --tenant the server answers for that tenant only and tools may omit
tenant_id. Without it every tool call must name its tenant.`,
		Example: `  deskdata mcp --tenant org_123                  # stdio mode, pinned to one tenant
  deskdata mcp --transport http --port 3001        # Streamable HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd.Context(), port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Pin the server to one tenant")

	viper.BindPFlag("mcp.transport", cmd.Flags().Lookup("transport"))
	viper.BindPFlag("mcp.tenant", cmd.Flags().Lookup("tenant"))

	return cmd
}

func runMCP(ctx context.Context, port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging.Level)

	st, err := buildStack(ctx, cfg, logger, stackOptions{Knowledge: true})
	if err != nil {
		return err
	}
	defer st.close()

	mcpSrv := dmcp.NewMCPServer(dmcp.Deps{
		Asker:   st.orchestrator,
		Tables:  st.adapter,
		Tenants: st.tenants,
		Tenant:  cfg.MCP.Tenant,
	}, versionString(), logger)

	switch cfg.MCP.Transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		return mcpSrv.ServeHTTP(fmt.Sprintf(":%d", port))
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", cfg.MCP.Transport)
	}
}
