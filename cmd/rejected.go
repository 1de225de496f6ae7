package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/hwvalue/internal/model"
	"github.com/sells-group/hwvalue/internal/store"
)

var (
	rejectedSummary  bool
	rejectedCategory string
)

var rejectedCmd = &cobra.Command{
	Use:   "rejected",
	Short: "Show the rejection log of the last cycle",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rejected, err := st.ListRejected(ctx)
		if err != nil {
			return eris.Wrap(err, "list rejected")
		}

		if rejectedSummary {
			formatRejectionCounts(os.Stdout, store.RejectionCounts(rejected))
			return nil
		}

		rejected = filterRejected(rejected, model.RejectCategory(rejectedCategory))
		if len(rejected) == 0 {
			fmt.Println("No rejected listings.")
			return nil
		}
		formatRejected(os.Stdout, rejected)
		return nil
	},
}

func init() {
	rejectedCmd.Flags().BoolVar(&rejectedSummary, "summary", false, "print counts per category only")
	rejectedCmd.Flags().StringVar(&rejectedCategory, "category", "", "show only one rejection category")
	rootCmd.AddCommand(rejectedCmd)
}

func filterRejected(rejected []model.RejectedListing, category model.RejectCategory) []model.RejectedListing {
	if category == "" {
		return rejected
	}
	var out []model.RejectedListing
	for _, r := range rejected {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

func formatRejected(out io.Writer, rejected []model.RejectedListing) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tMODEL\tPRICE\tTERM\tTITLE")
	_, _ = fmt.Fprintln(w, "--------\t-----\t-----\t----\t-----")
	for _, r := range rejected {
		mdl := r.Model
		if mdl == "" {
			mdl = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.0f\t%s\t%s\n", r.Category, mdl, r.Price, r.Term, truncate(r.Title, 60))
	}
	_ = w.Flush()
}

func formatRejectionCounts(out io.Writer, counts map[model.RejectCategory]int) {
	cats := make([]model.RejectCategory, 0, len(counts))
	total := 0
	for c, n := range counts {
		cats = append(cats, c)
		total += n
	}
	sort.Slice(cats, func(i, j int) bool {
		if counts[cats[i]] != counts[cats[j]] {
			return counts[cats[i]] > counts[cats[j]]
		}
		return cats[i] < cats[j]
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tCOUNT")
	for _, c := range cats {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", c, counts[c])
	}
	_, _ = fmt.Fprintf(w, "total\t%d\n", total)
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
