package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sadopc/tally/internal/period"
	"github.com/sadopc/tally/internal/store"
	"github.com/sadopc/tally/internal/tracker"
	"github.com/sadopc/tally/internal/tui"
)

// StatusData is the JSON payload of status and add.
type StatusData struct {
	Today       string           `json:"today"`
	ViewDate    string           `json:"viewDate"`
	PeriodStart string           `json:"periodStart"`
	PeriodEnd   string           `json:"periodEnd"`
	WeekStart   period.Weekday   `json:"weekStart"`
	Categories  []CategoryStatus `json:"categories"`
}

type CategoryStatus struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Day    int    `json:"day"`
	Week   int    `json:"week"`
	Target int    `json:"target"`
}

func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show this week's counts against targets",
		Long: `Show today's and this week's counts for each category.

Rolls any finished week into the archive first.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.tracker.State(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load current state", err)
			}
			return printStatus(cmd, opts, a.tracker, st)
		},
	}
}

func NewAddCommand(opts *RootOptions) *cobra.Command {
	var (
		count int
		day   string
	)

	cmd := &cobra.Command{
		Use:   "add <category>",
		Short: "Add to a category's count",
		Long: `Add to a category's count for today, or for another day of the current week.

Counts never go below zero.

Example:
  tally add fruit
  tally add water -n 3
  tally add veg -n -1 --day 2025-03-09`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.tracker.Increment(cmd.Context(), day, args[0], count)
			switch {
			case errors.Is(err, tracker.ErrUnknownCategory),
				errors.Is(err, tracker.ErrDayOutsidePeriod),
				errors.Is(err, tracker.ErrFutureDay):
				return WrapExitError(ExitCommandError, "cannot add", err)
			case err != nil:
				return WrapExitError(ExitFailure, "failed to save count", err)
			}
			if day == "" {
				day = st.CurrentDayDate
			}
			st.SelectedViewDate = day
			return printStatus(cmd, opts, a.tracker, st)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "amount to add (negative to subtract)")
	cmd.Flags().StringVar(&day, "day", "", "day to change as YYYY-MM-DD (default today)")

	return cmd
}

func statusData(t *tracker.Tracker, cmd *cobra.Command, st store.CurrentState) StatusData {
	end, _ := period.End(st.CurrentPeriodStartDate)
	data := StatusData{
		Today:       st.CurrentDayDate,
		ViewDate:    st.SelectedViewDate,
		PeriodStart: st.CurrentPeriodStartDate,
		PeriodEnd:   end,
		WeekStart:   t.WeekStart(cmd.Context()),
		Categories:  []CategoryStatus{},
	}
	day := st.DailyCounts[st.SelectedViewDate]
	for _, c := range t.Categories(cmd.Context()) {
		data.Categories = append(data.Categories, CategoryStatus{
			ID:     c.ID,
			Name:   c.Name,
			Day:    day[c.ID],
			Week:   st.WeeklyCounts[c.ID],
			Target: c.Target,
		})
	}
	return data
}

func printStatus(cmd *cobra.Command, opts *RootOptions, t *tracker.Tracker, st store.CurrentState) error {
	data := statusData(t, cmd, st)
	return formatterFor(cmd, opts).Success(data, func(w io.Writer) {
		fmt.Fprintf(w, "%s  %s\n", tui.TitleStyle.Render("Week of"), tui.FormatPeriod(data.PeriodStart))
		fmt.Fprintf(w, "%s\n\n", tui.MutedStyle.Render("day "+data.ViewDate+", week starts "+string(data.WeekStart)))
		for _, c := range data.Categories {
			line := fmt.Sprintf("  %-14s %4d day %5d/%-5d %s",
				c.Name, c.Day, c.Week, c.Target, tui.ProgressBar(c.Week, c.Target, 20))
			if c.Target > 0 && c.Week >= c.Target {
				line = tui.SuccessStyle.Render(line + "  done")
			}
			fmt.Fprintln(w, line)
		}
	})
}
