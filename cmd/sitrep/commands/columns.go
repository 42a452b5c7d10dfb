package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/sitrep-go/internal/logging"
)

// NewColumnsCmd constructs the `sitrep columns` command, which prints the
// column catalog the intent extractor is offered.
func NewColumnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "columns",
		Short: "List the columns of the sitrep table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			retriever, distance, err := retrieverFromEnv()
			if err != nil {
				return fmt.Errorf("columns: %w", err)
			}
			store, _, err := openStore(ctx, distance)
			if err != nil {
				return fmt.Errorf("columns: %w", err)
			}
			defer func() { _ = store.Close() }()

			sess, err := store.Acquire(ctx)
			if err != nil {
				return fmt.Errorf("columns: %w", err)
			}
			defer func() { _ = sess.Release() }()

			cols, err := sess.Columns(ctx, retriever.Table())
			if err != nil {
				return fmt.Errorf("columns: %w", err)
			}
			if len(cols) == 0 {
				return fmt.Errorf("columns: table %q has no columns or does not exist", retriever.Table())
			}
			for _, c := range cols {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}
