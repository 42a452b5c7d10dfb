package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/sitrep-go/internal/logging"
	"github.com/54b3r/sitrep-go/internal/pipeline"
)

// NewAskCmd constructs the `sitrep ask` command, which runs one question
// through the pipeline and prints the result.
func NewAskCmd() *cobra.Command {
	var asJSON bool
	var record bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question about the incident reports",
		Long: `Ask one question and print the answer.

The question is interpreted, matched against the sitrep table and
answered from the retrieved reports only.

Examples:
  sitrep ask "Which hosts were hit by ransomware last week?"
  sitrep ask --json "Summarise phishing incidents in May"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("ask: no query provided")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush := setupTracing(log)
			defer flush()

			a, err := buildApp(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.Close()

			res := a.pipeline.Run(ctx, query)

			if record {
				if hist, closeHistory := openHistory(log); hist != nil {
					if err := hist.Record(ctx, res); err != nil {
						log.Warn("history: record failed", slog.Any("error", err))
					}
					closeHistory()
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return fmt.Errorf("ask: encode result: %w", err)
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), res.Answer)
				if len(res.Records) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "\n(%d reports retrieved)\n", len(res.Records))
				}
			}

			for _, d := range res.Degraded {
				fmt.Fprintf(os.Stderr, "warning: %v\n", d)
			}
			if res.Outcome == pipeline.OutcomeNotFound {
				return fmt.Errorf("ask: %w", res.Err())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full JSON result")
	cmd.Flags().BoolVar(&record, "record", true, "Record the run in the local history log")

	return cmd
}
