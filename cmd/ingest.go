package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hwvalue/internal/model"
)

var ingestSkipProbe bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion cycle",
	Long:  "Fetches result pages for every configured search term, filters the listings, persists accepted prices and prints the run summary as JSON. SIGINT/SIGTERM drains the run: the current page completes and accumulated listings are still saved.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if !ingestSkipProbe {
			if err := env.Client.Probe(ctx); err != nil {
				return eris.Wrap(err, "ingest: connectivity check")
			}
		}

		summary, err := env.Pipeline.Run(ctx)
		if summary != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(summary); encErr != nil {
				zap.L().Error("ingest: write summary", zap.Error(encErr))
			}
		}
		if err != nil {
			return err
		}
		if summary.Status == model.RunStatusFailed {
			return eris.Errorf("ingest: run %s failed: %s", summary.ID, summary.Error)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestSkipProbe, "skip-probe", false, "skip the connectivity check before the run")
	rootCmd.AddCommand(ingestCmd)
}
