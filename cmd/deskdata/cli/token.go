package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/deskdata/deskdata/internal/service"
)

func newTokenCmd() *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <tenant>",
		Short: "Issue a bearer token for a tenant",
		Long: `Sign a JWT carrying the tenant's org_id with auth.jwt_secret. Useful for
local testing and for service accounts calling the HTTP API.`,
		Example: `  curl -H "Authorization: Bearer $(deskdata token org_123)" \
      localhost:8080/api/v1/tenants/org_123/tables`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			secret := cfg.Auth.JWTSecret
			if secret == "" {
				newLogger(cfg.Logging.Level).Warn("auth.jwt_secret is not set, signing with the development secret")
				secret = devJWTSecret
			}
			token, err := service.NewAuthService(secret, cfg.Auth.Issuer).IssueJWT(cmd.Context(), args[0], email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email claim (the default user for ticket and order questions)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
