package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sadopc/tally/internal/clock"
	"github.com/sadopc/tally/internal/config"
	"github.com/sadopc/tally/internal/normalize"
	"github.com/sadopc/tally/internal/reconcile"
	"github.com/sadopc/tally/internal/store"
	"github.com/sadopc/tally/internal/tracker"
)

// app is everything a command needs, wired from config.
type app struct {
	cfg     *config.Config
	clock   clock.Clock
	store   *store.Store
	norm    *normalize.Normalizer
	tracker *tracker.Tracker
}

func openApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}

	level := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	setupLogging(cmd.ErrOrStderr(), level)

	c := opts.clock
	if c == nil {
		c = clock.System{}
	}

	slog.Debug("opening store", "path", cfg.DBPath())
	s := store.New(cfg.DBPath(), c)
	n := normalize.New(c)
	t := tracker.New(s, c, n, cfg.DeviceID).WithDefaultCategories(cfg.Categories)

	if err := seedWeekStart(cmd, s, cfg); err != nil {
		s.Close()
		return nil, err
	}

	return &app{cfg: cfg, clock: c, store: s, norm: n, tracker: t}, nil
}

// seedWeekStart copies week_start from config into the preferences the
// first time. After that the stored preference wins.
func seedWeekStart(cmd *cobra.Command, s *store.Store, cfg *config.Config) error {
	w, ok := cfg.Weekday()
	if !ok {
		return nil
	}
	p, err := s.GetPreference(cmd.Context(), store.PrefWeekStartDay)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read preferences", err)
	}
	if p != nil {
		return nil
	}
	slog.Debug("seeding week start from config", "week_start", w)
	if err := s.SetWeekStart(cmd.Context(), w); err != nil {
		return WrapExitError(ExitFailure, "failed to store week start", err)
	}
	return nil
}

func (a *app) reconciler() *reconcile.Reconciler {
	return reconcile.New(a.store, a.clock, a.norm, a.cfg.DeviceID)
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func setupLogging(w io.Writer, level slog.Level) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func formatterFor(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}
