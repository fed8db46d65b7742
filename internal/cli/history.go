package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sadopc/tally/internal/store"
	"github.com/sadopc/tally/internal/tui"
)

func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var (
		limit int
		chart bool
		width int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived weeks",
		Long: `List archived weeks, most recent first.

Example:
  tally history --limit 4
  tally history --chart
  tally history --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid limit %d", limit))
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.tracker.History(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list archive", err)
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			if records == nil {
				records = []store.ArchiveRecord{}
			}
			cats := a.tracker.Categories(cmd.Context())

			return formatterFor(cmd, opts).Success(records, func(w io.Writer) {
				if len(records) == 0 {
					fmt.Fprintln(w, tui.MutedStyle.Render("No archived weeks yet"))
					return
				}
				if chart {
					fmt.Fprintln(w, tui.RenderHistoryChart(records, cats, width, 12))
					return
				}
				printHistoryTable(w, records)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many weeks (0 = all)")
	cmd.Flags().BoolVar(&chart, "chart", false, "draw a stacked bar chart instead of a table")
	cmd.Flags().IntVar(&width, "width", 60, "chart width in columns")

	return cmd
}

func printHistoryTable(w io.Writer, records []store.ArchiveRecord) {
	fmt.Fprintln(w, tui.MutedStyle.Render(fmt.Sprintf("%-12s %-12s %-10s %7s %7s", "Start", "End", "Source", "Total", "Target")))
	for _, r := range records {
		total, target := r.Totals.Total(), r.Targets.Total()
		line := fmt.Sprintf("%-12s %-12s %-10s %7d %7d",
			r.PeriodStartDate, r.PeriodEndDate, r.Metadata.Provenance, total, target)
		if target > 0 && total >= target {
			line = tui.SuccessStyle.Render(line)
		}
		fmt.Fprintln(w, line)
	}
}
