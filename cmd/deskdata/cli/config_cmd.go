package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/deskdata/deskdata/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage deskdata configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default deskdata.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "deskdata.yaml"
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
			}
			if err := config.WriteDefaultConfig(path); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "Set auth.jwt_secret and secrets.local_key (or DESKDATA_AUTH_JWT_SECRET, DESKDATA_SECRETS_LOCAL_KEY), then run 'deskdata serve'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if f := viper.ConfigFileUsed(); f != "" {
				fmt.Fprintf(out, "# Config file: %s\n", f)
			} else {
				fmt.Fprintln(out, "# Config file: (none found, using defaults and environment)")
			}

			masked := *cfg
			masked.Auth.JWTSecret = mask(masked.Auth.JWTSecret)
			masked.Secrets.LocalKey = mask(masked.Secrets.LocalKey)
			masked.OpenAI.APIKey = mask(masked.OpenAI.APIKey)
			masked.Qdrant.APIKey = mask(masked.Qdrant.APIKey)
			if masked.Database.URL != "" {
				masked.Database.URL = "(set)"
			}

			data, err := yaml.Marshal(masked)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
