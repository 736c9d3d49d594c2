package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/deskdata/deskdata/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <tenant>",
		Short: "Copy a tenant's table rows into its knowledge base",
		Long: `Read up to --limit rows from every table of the tenant's database and add
them to the tenant's knowledge-base namespace. Unchanged rows are skipped,
so the command is safe to re-run.`,
		Args: cobra.ExactArgs(1),
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
			if st.pipeline == nil {
				return errors.New("knowledge base is disabled; set openai.api_key")
			}

			stats, err := st.pipeline.Run(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			printStats(cmd, stats)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", ingest.DefaultLimit, fmt.Sprintf("Rows per table (max %d)", ingest.MaxLimit))
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")
	return cmd
}

func printStats(cmd *cobra.Command, stats *ingest.Stats) {
	out := cmd.OutOrStdout()
	tables := make([]string, 0, len(stats.Tables))
	for t := range stats.Tables {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	fmt.Fprintf(out, "%-32s %s\n", "TABLE", "NEW/CHANGED")
	for _, t := range tables {
		fmt.Fprintf(out, "%-32s %d\n", t, stats.Tables[t])
	}
	for _, t := range stats.Failed {
		fmt.Fprintf(out, "%-32s failed\n", t)
	}
}
