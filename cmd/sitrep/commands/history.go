package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/sitrep-go/internal/logging"
)

// NewHistoryCmd constructs the `sitrep history` command, which prints the
// most recent runs from the local history log.
func NewHistoryCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent questions and their outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			hist, closeHistory := openHistory(log)
			if hist == nil {
				return fmt.Errorf("history: log is disabled or unavailable")
			}
			defer closeHistory()

			entries, err := hist.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %-10s %3d records %6dms  %s\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), e.Outcome, e.RecordCount, e.DurationMS, e.Query)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")

	return cmd
}
