package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deskdata/deskdata/internal/config"
)

var (
	cfgFile    string
	dataDir    string
	devMode    bool
	appVersion string
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deskdata",
		Short: "Answer support questions from each tenant's own data",
		Long: `deskdata: a multi-tenant query layer for customer-support agents.

Each tenant (organization) brings its own database, either a serverless
Postgres reached by connection string or a managed cluster reached through
the AWS RDS Data API. deskdata resolves the tenant's backend, runs safe
read-only queries against it, searches the tenant's knowledge base, and
returns one merged answer over HTTP or MCP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./deskdata.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite config store (default: ~/.deskdata)")
	cmd.PersistentFlags().BoolVar(&devMode, "dev", false, "development mode (debug logging)")
	viper.BindPFlag("data_dir", cmd.PersistentFlags().Lookup("data-dir"))

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newTenantCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("deskdata")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.deskdata")
	}

	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("DESKDATA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
