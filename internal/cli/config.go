package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sadopc/tally/internal/store"
	"github.com/sadopc/tally/internal/tui"
)

// ConfigData is the JSON payload of config.
type ConfigData struct {
	Path       string           `json:"path"`
	DataDir    string           `json:"dataDir"`
	DBPath     string           `json:"dbPath"`
	DeviceID   string           `json:"deviceId"`
	WeekStart  string           `json:"weekStart"`
	LogLevel   string           `json:"logLevel"`
	Categories []store.Category `json:"categories"`
}

func NewConfigCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Show the configuration after environment overrides, with the stored
week start and categories that are actually in effect.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			data := ConfigData{
				Path:       a.cfg.Path(),
				DataDir:    a.cfg.DataDir,
				DBPath:     a.cfg.DBPath(),
				DeviceID:   a.cfg.DeviceID,
				WeekStart:  string(a.tracker.WeekStart(cmd.Context())),
				LogLevel:   a.cfg.LogLevel,
				Categories: a.tracker.Categories(cmd.Context()),
			}

			return formatterFor(cmd, opts).Success(data, func(w io.Writer) {
				fmt.Fprintln(w, tui.MutedStyle.Render("# "+data.Path))
				effective := *a.cfg
				effective.WeekStart = data.WeekStart
				effective.Categories = data.Categories
				out, err := yaml.Marshal(&effective)
				if err != nil {
					fmt.Fprintln(w, tui.ErrorStyle.Render(err.Error()))
					return
				}
				fmt.Fprint(w, string(out))
			})
		},
	}
}
