package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/sadopc/tally/internal/reconcile"
	"github.com/sadopc/tally/internal/tui"
)

// ImportData is the JSON payload of import.
type ImportData struct {
	Classification      reconcile.Classification `json:"classification"`
	Strategy            reconcile.Strategy       `json:"strategy"`
	ImportedDay         string                   `json:"importedDay"`
	Today               string                   `json:"today"`
	DryRun              bool                     `json:"dryRun,omitempty"`
	ArchiveWritten      int                      `json:"archiveWritten"`
	PreferencesWritten  int                      `json:"preferencesWritten"`
	CurrentStateWritten bool                     `json:"currentStateWritten"`
	Skipped             []string                 `json:"skipped,omitempty"`
}

// confirm asks before a full replace. Tests swap it out.
var confirm = func(title, description string) (bool, error) {
	ok := false
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(description).
			Affirmative("Replace").
			Negative("Cancel").
			Value(&ok),
	)).Run()
	return ok, err
}

func NewImportCommand(opts *RootOptions) *cobra.Command {
	var (
		yes    bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Merge an export file from another device",
		Long: `Merge an export file into local data.

The file's current day decides how it is merged:
  same day as today          local data is replaced by the file
  earlier day, same week     counts are merged, keeping the larger per day
  an earlier week            the file's week is added to the archive
  a later week               local data is replaced by the file

Replacing asks for confirmation unless --yes is given.

Example:
  tally import tally-export-2025-03-10.json
  tally import --dry-run phone.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := reconcile.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot import "+args[0], err)
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			r := a.reconciler()
			plan, err := r.Plan(cmd.Context(), snap)
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot import "+args[0], err)
			}
			out := formatterFor(cmd, opts)

			if dryRun {
				data := importData(plan)
				data.DryRun = true
				return out.Success(data, func(w io.Writer) {
					fmt.Fprintf(w, "%s %s from %s: %s\n",
						tui.TitleStyle.Render("Would import"), plan.Classification, plan.ImportedDay, describe(plan.Strategy))
				})
			}

			if plan.Destructive() && !yes {
				ok, err := confirm(
					"Replace local data?",
					fmt.Sprintf("The file is from %s (%s). Local archive and current week will be replaced.",
						plan.ImportedDay, plan.Classification))
				if err != nil {
					return WrapExitError(ExitFailure, "confirmation failed", err)
				}
				if !ok {
					return NewExitError(ExitFailure, "import cancelled")
				}
			}

			res, err := r.Import(cmd.Context(), snap)
			if err != nil {
				if reconcile.IsValidation(err) {
					return WrapExitError(ExitCommandError, "cannot import "+args[0], err)
				}
				return WrapExitError(ExitFailure, "import failed", err)
			}

			data := importData(res.Plan)
			data.ArchiveWritten = res.ArchiveWritten
			data.PreferencesWritten = res.PreferencesWritten
			data.CurrentStateWritten = res.CurrentStateWritten
			for _, s := range res.Skipped {
				data.Skipped = append(data.Skipped, s.Error())
			}

			if err := out.Success(data, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s: %s\n", tui.SuccessStyle.Render("Imported"), plan.Classification, describe(plan.Strategy))
				fmt.Fprintf(w, "  %d archived weeks, %d preferences written\n", data.ArchiveWritten, data.PreferencesWritten)
				if data.CurrentStateWritten {
					fmt.Fprintln(w, "  current week updated")
				}
				for _, s := range data.Skipped {
					fmt.Fprintln(w, tui.WarningStyle.Render("  "+s))
				}
			}); err != nil {
				return err
			}
			if res.Partial() {
				return NewExitError(ExitPartialImport, fmt.Sprintf("%d import entries skipped", len(res.Skipped)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "replace without asking")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show how the file would be merged without writing")

	return cmd
}

func importData(p reconcile.Plan) ImportData {
	return ImportData{
		Classification: p.Classification,
		Strategy:       p.Strategy,
		ImportedDay:    p.ImportedDay,
		Today:          p.Today,
	}
}

func describe(s reconcile.Strategy) string {
	switch s {
	case reconcile.FullReplace:
		return "local data replaced"
	case reconcile.MaxMerge:
		return "counts merged"
	case reconcile.ArchiveAdditive:
		return "added to archive"
	}
	return string(s)
}
