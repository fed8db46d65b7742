package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sadopc/tally/internal/store"
	"github.com/sadopc/tally/internal/tui"
)

func NewChangesCommand(opts *RootOptions) *cobra.Command {
	var (
		since int64
		limit int
	)

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "List change-log entries",
		Long: `List the append-only change log, oldest first.

Pass the last seq you have seen to --since to list only newer entries.

Example:
  tally changes --since 120 --limit 20
  tally changes --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if since < 0 || limit < 0 {
				return NewExitError(ExitCommandError, "--since and --limit must not be negative")
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.store.ListChanges(cmd.Context(), since, limit)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list changes", err)
			}
			if entries == nil {
				entries = []store.ChangeLogEntry{}
			}

			return formatterFor(cmd, opts).Success(entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintln(w, tui.MutedStyle.Render("No changes"))
					return
				}
				for _, e := range entries {
					fmt.Fprintf(w, "%6d  %s  %-13s %-7s %s\n",
						e.Seq, e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.RecordType, e.Operation, e.RecordID)
				}
			})
		},
	}

	cmd.Flags().Int64Var(&since, "since", 0, "only entries with a greater seq")
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many entries (0 = all)")

	return cmd
}
