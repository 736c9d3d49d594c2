package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/deskdata/deskdata/internal/model"
)

func newAskCmd() *cobra.Command {
	var (
		userID     string
		page       int
		pageSize   int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ask <tenant> <question>",
		Short: "Ask a question against a tenant's data",
		Example: `  deskdata ask org_123 "which doctors work on Mondays"
  deskdata ask org_123 "status of my last order" --user ana@example.com --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := buildStack(cmd.Context(), cfg, newLogger(cfg.Logging.Level), stackOptions{Knowledge: true})
			if err != nil {
				return err
			}
			defer st.close()

			answer, err := st.orchestrator.Ask(cmd.Context(), model.RetrievalQuestion{
				TenantID: args[0],
				UserID:   userID,
				Text:     args[1],
				Page:     page,
				PageSize: pageSize,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), answer)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s, %s, %d rows]\n\n%s\n", answer.Source, answer.Metadata.Intent, answer.Metadata.RowCount, answer.Summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Customer identity (email) for ticket and order questions")
	cmd.Flags().IntVar(&page, "page", 0, "Page number for catalog answers")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Rows per page for catalog answers")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the full answer as JSON")

	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
