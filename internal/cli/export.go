package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sadopc/tally/internal/clock"
	"github.com/sadopc/tally/internal/export"
	"github.com/sadopc/tally/internal/tui"
)

type ExportData struct {
	Path    string `json:"path"`
	Format  string `json:"format"`
	Records int    `json:"records"`
}

func NewExportCommand(opts *RootOptions) *cobra.Command {
	var asCSV bool

	cmd := &cobra.Command{
		Use:   "export [path]",
		Short: "Write an export file",
		Long: `Write the current week, archive, and preferences to a JSON export file
that "tally import" accepts on another device. With --csv, write the
archive as a spreadsheet instead.

The default file name is tally-export-YYYY-MM-DD.json in the current
directory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			path := export.DefaultFileName(clock.NowAsDateKey(a.clock))
			if asCSV {
				path = strings.TrimSuffix(path, ".json") + ".csv"
			}
			if len(args) == 1 {
				path = args[0]
			}

			data := ExportData{Path: path, Format: "json"}
			if asCSV {
				records, err := a.tracker.History(cmd.Context())
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list archive", err)
				}
				if err := export.ToCSV(records, path); err != nil {
					return WrapExitError(ExitFailure, "failed to write csv", err)
				}
				data.Format, data.Records = "csv", len(records)
			} else {
				// Roll over first so the exported draft is today's.
				if _, err := a.tracker.State(cmd.Context()); err != nil {
					return WrapExitError(ExitFailure, "failed to load current state", err)
				}
				f, err := export.Build(cmd.Context(), a.store, a.cfg.DeviceID)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to build export", err)
				}
				if err := export.ToJSON(f, path); err != nil {
					return WrapExitError(ExitFailure, "failed to write export", err)
				}
				data.Records = len(f.History)
			}

			return formatterFor(cmd, opts).Success(data, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s (%d archived weeks)\n", tui.SuccessStyle.Render("Exported"), data.Path, data.Records)
			})
		},
	}

	cmd.Flags().BoolVar(&asCSV, "csv", false, "export the archive as CSV")

	return cmd
}
