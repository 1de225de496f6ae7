package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/hwvalue/internal/model"
	"github.com/sells-group/hwvalue/internal/value"
)

var rankJSON bool

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Print the value ranking from the latest completed run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		cat, err := initCatalog()
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ranking, err := value.NewEngine(cat).RankFromStore(ctx, st)
		if err != nil {
			return eris.Wrap(err, "rank")
		}

		if rankJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ranking)
		}
		if len(ranking) == 0 {
			fmt.Fprintln(os.Stderr, "No ranking available; run `hwvalue ingest` first.")
			return nil
		}
		formatRanking(os.Stdout, ranking)
		return nil
	},
}

func init() {
	rankCmd.Flags().BoolVar(&rankJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(rankCmd)
}

// formatRanking writes the ranking as a table. Values are rounded for
// display only.
func formatRanking(out io.Writer, ranking []model.ValueRanking) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tMODEL\tMEDIAN\tBENCH\tPERF/LEV\tREL\tLISTINGS")
	_, _ = fmt.Fprintln(w, "-\t-----\t------\t-----\t--------\t---\t--------")
	for i, r := range ranking {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%.0f лв\t%.1f\t%.4f\t%.1f\t%d\n",
			i+1,
			r.Model,
			r.MedianPrice,
			r.Benchmark,
			r.PerfPerCurrency,
			r.RelativeScore,
			r.Listings,
		)
	}
	_ = w.Flush()
}
