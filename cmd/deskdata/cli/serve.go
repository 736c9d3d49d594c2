package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deskdata/deskdata/internal/handler"
	"github.com/deskdata/deskdata/internal/server"
)

const banner = `
     _           _       _       _
  __| | ___  ___| | ____| | __ _| |_ __ _
 / _' |/ _ \/ __| |/ / _' |/ _' | __/ _' |
| (_| |  __/\__ \   < (_| | (_| | || (_| |
 \__,_|\___||___/_|\_\__,_|\__,_|\__\__,_|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the deskdata API server",
		Long:  "Start the HTTP server that answers tenant questions and manages tenant database configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging.Level)

	fmt.Print(banner)
	fmt.Println()

	st, err := buildStack(ctx, cfg, logger, stackOptions{Metrics: true, Knowledge: true})
	if err != nil {
		return err
	}

	tenantDeps := handler.TenantDeps{
		Asker:   st.orchestrator,
		Tables:  st.adapter,
		Tenants: st.tenants,
		Logger:  logger,
	}
	ready := map[string]server.Pinger{"config_store": st.store}
	if st.pipeline != nil {
		tenantDeps.Ingester = st.pipeline
		ready["knowledge_base"] = st.kb
	}

	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
		MaxBodySize:     cfg.Server.MaxBodySize,
		RateLimit:       cfg.Server.RateLimit,
		IPRateLimit:     cfg.Server.IPRateLimit,
	}, server.Deps{
		Auth:       st.auth,
		Tenant:     tenantDeps,
		Metrics:    st.metrics,
		Gatherer:   st.promReg,
		Ready:      ready,
		OnShutdown: st.close,
	}, logger)

	fmt.Printf("→ deskdata %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Metrics:    http://%s:%d/metrics\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Secrets:    %s\n", cfg.Secrets.Backend)
	if st.kb == nil {
		fmt.Println("→ Knowledge base: disabled")
	}
	fmt.Println()

	if err := srv.ListenAndServe(); err != nil {
		st.close()
		return err
	}
	return nil
}
