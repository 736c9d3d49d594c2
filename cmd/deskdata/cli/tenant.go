package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/deskdata/deskdata/internal/config"
	"github.com/deskdata/deskdata/internal/model"
)

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tenant",
		Aliases: []string{"tenants", "org"},
		Short:   "Manage tenant database connections",
		Long:    "Configure, import, remove, test and inspect the database each tenant brings.",
	}

	cmd.AddCommand(newTenantConfigureCmd())
	cmd.AddCommand(newTenantImportCmd())
	cmd.AddCommand(newTenantListCmd())
	cmd.AddCommand(newTenantRemoveCmd())
	cmd.AddCommand(newTenantTestCmd())
	cmd.AddCommand(newTenantTablesCmd())
	cmd.AddCommand(newTenantPreviewCmd())

	return cmd
}

// withStack loads configuration, builds the stack without metrics or the
// knowledge base, runs fn and closes the stack.
func withStack(ctx context.Context, fn func(st *stack) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := buildStack(ctx, cfg, newLogger(cfg.Logging.Level), stackOptions{})
	if err != nil {
		return err
	}
	defer st.close()
	return fn(st)
}

// ---------- tenant configure ----------

func newTenantConfigureCmd() *cobra.Command {
	var (
		secret model.DatabaseSecret
		test   bool
	)

	cmd := &cobra.Command{
		Use:   "configure <tenant>",
		Short: "Store a tenant's database configuration",
		Long: `Store the database configuration for a tenant. The secret document is
written to the configured secret backend and the tenant's cached
configuration is dropped.

Providers:
  serverless_sql   --connection-string (prompted without echo when omitted)
  remote_data_api  --resource-arn --secret-arn --database --region`,
		Example: `  deskdata tenant configure org_123 --provider serverless_sql
  deskdata tenant configure org_456 --provider remote_data_api \
      --resource-arn arn:aws:rds:us-east-1:123:cluster:crm \
      --secret-arn arn:aws:secretsmanager:us-east-1:123:secret:crm \
      --database crm --region us-east-1 --test`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID := args[0]
			if secret.Provider == model.ProviderServerlessSQL && secret.ConnectionString == "" {
				cs, err := promptSecret("Connection string: ")
				if err != nil {
					return err
				}
				secret.ConnectionString = cs
			}
			dbCfg, err := secret.Config()
			if err != nil {
				return err
			}

			return withStack(cmd.Context(), func(st *stack) error {
				if test {
					res := st.adapter.TestConfig(cmd.Context(), tenantID, dbCfg)
					if !res.Success {
						return fmt.Errorf("connection test failed: %s", res.Message)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Connection test passed.")
				}
				plugin, err := st.tenants.Configure(cmd.Context(), tenantID, dbCfg)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Configured tenant %q (%s, secret=%s)\n", tenantID, plugin.Provider, plugin.SecretName)
				return nil
			})
		},
	}

	cmd.Flags().Var((*providerFlag)(&secret.Provider), "provider", "Backend provider: serverless_sql or remote_data_api")
	cmd.Flags().StringVar(&secret.ConnectionString, "connection-string", "", "Postgres connection string (serverless_sql)")
	cmd.Flags().StringVar(&secret.ResourceARN, "resource-arn", "", "Cluster ARN (remote_data_api)")
	cmd.Flags().StringVar(&secret.SecretARN, "secret-arn", "", "Database credentials secret ARN (remote_data_api)")
	cmd.Flags().StringVar(&secret.Database, "database", "", "Database name (remote_data_api)")
	cmd.Flags().StringVar(&secret.Region, "region", "", "AWS region (remote_data_api)")
	cmd.Flags().BoolVar(&test, "test", false, "Test the connection before storing it")
	cmd.MarkFlagRequired("provider")

	return cmd
}

// providerFlag is a pflag.Value restricted to known providers.
type providerFlag model.Provider

func (p *providerFlag) String() string { return string(*p) }
func (p *providerFlag) Type() string   { return "provider" }
func (p *providerFlag) Set(v string) error {
	switch model.Provider(v) {
	case model.ProviderServerlessSQL, model.ProviderRemoteDataAPI:
		*p = providerFlag(v)
		return nil
	}
	return fmt.Errorf("must be %s or %s", model.ProviderServerlessSQL, model.ProviderRemoteDataAPI)
}

// promptSecret reads a value from the terminal without echoing it.
func promptSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--connection-string is required when stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// ---------- tenant import ----------

func newTenantImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <tenants.yaml>",
		Short: "Configure tenants from a seed file",
		Long: `Configure every tenant listed in a YAML seed file. ${VAR} references are
expanded from the environment, so credentials need not be written to disk.

  tenants:
    - id: org_123
      database:
        provider: serverless_sql
        connection_string: ${ORG_123_DATABASE_URL}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.LoadTenantsFile(args[0])
			if err != nil {
				return err
			}
			return withStack(cmd.Context(), func(st *stack) error {
				n, err := st.tenants.Import(cmd.Context(), f)
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d tenants\n", n, len(f.Tenants))
				return err
			})
		},
	}
}

// ---------- tenant list ----------

func newTenantListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd.Context(), func(st *stack) error {
				plugins, err := st.tenants.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					return printJSON(out, plugins)
				}
				if len(plugins) == 0 {
					fmt.Fprintln(out, "No tenants configured. Add one with: deskdata tenant configure")
					return nil
				}
				fmt.Fprintf(out, "%-24s %-18s %-20s\n", "TENANT", "PROVIDER", "UPDATED")
				fmt.Fprintf(out, "%-24s %-18s %-20s\n", "------", "--------", "-------")
				for _, p := range plugins {
					fmt.Fprintf(out, "%-24s %-18s %-20s\n", p.TenantID, p.Provider, p.UpdatedAt.Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// ---------- tenant remove ----------

func newTenantRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <tenant>",
		Aliases: []string{"rm"},
		Short:   "Remove a tenant's database configuration",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd.Context(), func(st *stack) error {
				if err := st.tenants.Remove(cmd.Context(), args[0]); err != nil {
					if errors.Is(err, config.ErrNotFound) {
						return fmt.Errorf("tenant %q has no database configured", args[0])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed tenant %q\n", args[0])
				return nil
			})
		},
	}
}

// ---------- tenant test ----------

func newTenantTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <tenant>",
		Short: "Test a tenant's configured database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd.Context(), func(st *stack) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Testing tenant %q...\n", args[0])
				res := st.adapter.TestConnection(cmd.Context(), args[0])
				if !res.Success {
					return fmt.Errorf("FAILED: %s", res.Message)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK: %s\n", res.Message)
				return nil
			})
		},
	}
}

// ---------- tenant tables ----------

func newTenantTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables <tenant>",
		Short: "List the tables in a tenant's database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd.Context(), func(st *stack) error {
				tables, err := st.adapter.ListTables(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, t := range tables {
					fmt.Fprintln(cmd.OutOrStdout(), t)
				}
				return nil
			})
		},
	}
}

// ---------- tenant preview ----------

func newTenantPreviewCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "preview <tenant> <table>",
		Short: "Print the first rows of a tenant table as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd.Context(), func(st *stack) error {
				result, err := st.adapter.PreviewTable(cmd.Context(), args[0], args[1], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows")
	return cmd
}
