// Package reconcile folds an imported snapshot into the local store.
//
// Import classifies the snapshot's current day against local today and
// runs exactly one strategy:
//
//	SAME_DAY, FUTURE_WEEK  full replace of archive and current state
//	SAME_WEEK              per-day, per-category max merge of counts;
//	                       archive entries upserted last-writer-wins
//	PAST_WEEK              imported draft archived alongside imported
//	                       history; local draft left alone
//
// Validation happens before any write. After that, writes are per-record
// and not atomic: a bad archive entry is skipped and reported.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/sadopc/tally/internal/clock"
	"github.com/sadopc/tally/internal/normalize"
	"github.com/sadopc/tally/internal/period"
	"github.com/sadopc/tally/internal/store"
)

type Reconciler struct {
	store    *store.Store
	clock    clock.Clock
	norm     *normalize.Normalizer
	deviceID string
}

func New(s *store.Store, c clock.Clock, n *normalize.Normalizer, deviceID string) *Reconciler {
	return &Reconciler{store: s, clock: c, norm: n, deviceID: deviceID}
}

// Plan describes what Import would do, without doing it.
type Plan struct {
	Classification   Classification
	Strategy         Strategy
	ImportedDay      string
	Today            string
	LocalPeriodStart string
	WeekStart        period.Weekday
}

// Destructive reports whether the plan replaces local data wholesale.
func (p Plan) Destructive() bool {
	return p.Strategy == FullReplace
}

// Result summarizes a completed import.
type Result struct {
	Plan
	ArchiveWritten      int
	PreferencesWritten  int
	CurrentStateWritten bool
	Skipped             []*PartialImportError
}

// Partial reports whether some archive entries were skipped.
func (r *Result) Partial() bool {
	return len(r.Skipped) > 0
}

func (r *Reconciler) Plan(ctx context.Context, snap *Snapshot) (Plan, error) {
	w := r.store.WeekStart(ctx)
	today := clock.NowAsDateKey(r.clock)
	c, err := Classify(snap.CurrentState.CurrentDayDate, today, w)
	if err != nil {
		return Plan{}, &ValidationError{Reason: "cannot classify import", Err: err}
	}
	start, _ := period.Start(today, w)
	return Plan{
		Classification:   c,
		Strategy:         c.Strategy(),
		ImportedDay:      snap.CurrentState.CurrentDayDate,
		Today:            today,
		LocalPeriodStart: start,
		WeekStart:        w,
	}, nil
}

// Import classifies snap and applies the matching strategy. A
// ValidationError means nothing was written. Any other error comes from an
// authoritative write and may leave earlier writes committed.
func (r *Reconciler) Import(ctx context.Context, snap *Snapshot) (*Result, error) {
	if snap == nil {
		return nil, &ValidationError{Reason: "no snapshot"}
	}
	plan, err := r.Plan(ctx, snap)
	if err != nil {
		return nil, err
	}
	slog.Info("import classified",
		"classification", plan.Classification, "strategy", plan.Strategy,
		"imported_day", plan.ImportedDay, "today", plan.Today, "source", snap.Source)

	res := &Result{Plan: plan}
	switch plan.Strategy {
	case FullReplace:
		err = r.fullReplace(ctx, snap, res)
	case MaxMerge:
		err = r.maxMerge(ctx, snap, res)
	case ArchiveAdditive:
		err = r.archiveAdditive(ctx, snap, res)
	}
	if err != nil {
		return res, err
	}

	slog.Info("import complete",
		"classification", plan.Classification,
		"archive_written", res.ArchiveWritten,
		"skipped", len(res.Skipped),
		"current_state_written", res.CurrentStateWritten)
	return res, nil
}

func (r *Reconciler) importInfo(snap *Snapshot) *normalize.ImportInfo {
	return &normalize.ImportInfo{At: r.clock.Now(), Source: snap.Source}
}

// fullReplace clears archive and draft, then writes the snapshot's
// preferences, draft, and history.
func (r *Reconciler) fullReplace(ctx context.Context, snap *Snapshot, res *Result) error {
	if err := r.store.ClearArchive(ctx, store.AsImport()); err != nil {
		return fmt.Errorf("full replace: %w", err)
	}
	if err := r.store.ClearCurrent(ctx); err != nil {
		return fmt.Errorf("full replace: %w", err)
	}

	for _, name := range slices.Sorted(maps.Keys(snap.Preferences)) {
		value, err := normalize.Preference(name, snap.Preferences[name])
		if err != nil {
			slog.Warn("skipping imported preference", "name", name, "error", err)
			continue
		}
		if err := r.store.PutPreference(ctx, name, value, store.AsImport()); err != nil {
			return fmt.Errorf("full replace: preference %q: %w", name, err)
		}
		res.PreferencesWritten++
	}

	w := snap.WeekStart(res.WeekStart)
	st, err := r.norm.CurrentState(snap.CurrentState, w, r.deviceID)
	if err != nil {
		return fmt.Errorf("full replace: %w", err)
	}
	if err := r.store.SaveCurrent(ctx, st, store.AsImport()); err != nil {
		return fmt.Errorf("full replace: %w", err)
	}
	res.CurrentStateWritten = true

	r.writeHistory(ctx, snap, nil, res)
	return nil
}

// maxMerge folds the imported daily counts into the local draft taking the
// larger value per day and category, then recomputes weekly counts.
// Archive entries are upserted as-is.
func (r *Reconciler) maxMerge(ctx context.Context, snap *Snapshot, res *Result) error {
	local, err := r.store.LoadCurrent(ctx)
	if err != nil {
		return fmt.Errorf("max merge: %w", err)
	}
	base := r.norm.Empty(res.WeekStart, r.deviceID)
	if local != nil {
		base = *local
	}

	merged := base
	merged.DailyCounts = MergeDaily(base.DailyCounts, snap.CurrentState.DailyCounts)
	merged.LastModified = r.clock.Now()
	merged, err = r.norm.CurrentState(merged, res.WeekStart, r.deviceID)
	if err != nil {
		return fmt.Errorf("max merge: %w", err)
	}
	if err := r.store.SaveCurrent(ctx, merged, store.AsImport()); err != nil {
		return fmt.Errorf("max merge: %w", err)
	}
	res.CurrentStateWritten = true

	r.writeHistory(ctx, snap, nil, res)
	return nil
}

// archiveAdditive turns the imported draft into an archive record for its
// own period and adds it, with the imported history, to the archive. The
// local draft is only rewritten if its weekly counts were found
// inconsistent.
func (r *Reconciler) archiveAdditive(ctx context.Context, snap *Snapshot, res *Result) error {
	w := snap.WeekStart(res.WeekStart)
	imported, err := r.norm.CurrentState(snap.CurrentState, w, "")
	if err != nil {
		return fmt.Errorf("archive additive: %w", err)
	}
	synthetic := normalize.ArchiveFromCurrent(imported)
	synthetic.Targets = snap.Targets()

	r.writeHistory(ctx, snap, &synthetic, res)
	r.reportOutsidePeriod(imported, res)

	local, err := r.store.LoadCurrent(ctx)
	if err != nil {
		slog.Warn("could not verify local weekly counts after import", "error", err)
		return nil
	}
	if local != nil {
		if weekly := normalize.RecomputeWeekly(*local); !maps.Equal(weekly, local.WeeklyCounts) {
			slog.Warn("repairing inconsistent weekly counts", "period", local.CurrentPeriodStartDate)
			local.WeeklyCounts = weekly
			if err := r.store.SaveCurrent(ctx, *local); err != nil {
				return fmt.Errorf("archive additive: %w", err)
			}
		}
	}
	return nil
}

// writeHistory normalizes and upserts first (when non-nil) followed by every
// entry of snap.History. Entries that fail are recorded and skipped.
func (r *Reconciler) writeHistory(ctx context.Context, snap *Snapshot, first *store.ArchiveRecord, res *Result) {
	targets := snap.Targets()
	info := r.importInfo(snap)

	put := func(idx int, candidate store.ArchiveRecord) {
		existing, err := r.store.GetArchive(ctx, candidate.PeriodStartDate)
		if err != nil {
			slog.Debug("archive lookup failed, treating as absent",
				"period", candidate.PeriodStartDate, "error", err)
			existing = nil
		}
		rec, err := r.norm.Archive(candidate, normalize.Options{
			Existing:  existing,
			Targets:   targets,
			Import:    info,
			WeekStart: snap.WeekStart(res.WeekStart),
			DeviceID:  snap.AppInfo.DeviceID,
		})
		if err == nil {
			err = r.store.PutArchive(ctx, rec, store.AsImport())
		}
		if err != nil {
			r.skip(res, idx, candidate.PeriodStartDate, err)
			return
		}
		res.ArchiveWritten++
	}

	if first != nil {
		put(CurrentStateIndex, *first)
	}
	for i, raw := range snap.History {
		candidate, err := store.DecodeArchive(raw)
		if err != nil {
			r.skip(res, i, "", err)
			continue
		}
		put(i, candidate)
	}
}

// reportOutsidePeriod records every imported day with counts that fell
// outside the imported draft's own period and so did not reach the archive.
func (r *Reconciler) reportOutsidePeriod(st store.CurrentState, res *Result) {
	for _, day := range slices.Sorted(maps.Keys(st.DailyCounts)) {
		if period.Contains(st.CurrentPeriodStartDate, day) || st.DailyCounts[day].Total() == 0 {
			continue
		}
		err := fmt.Errorf("%w %s", ErrOutsidePeriod, st.CurrentPeriodStartDate)
		slog.Warn("dropping imported day outside its period",
			"day", day, "period", st.CurrentPeriodStartDate, "counts", st.DailyCounts[day])
		res.Skipped = append(res.Skipped, &PartialImportError{Index: CurrentStateIndex, PeriodStartDate: day, Err: err})
	}
}

func (r *Reconciler) skip(res *Result, idx int, start string, err error) {
	pe := &PartialImportError{Index: idx, PeriodStartDate: start, Err: err}
	slog.Warn("skipping archive record during import", "index", idx, "period", start, "error", err)
	res.Skipped = append(res.Skipped, pe)
}

// MergeDaily returns, for every day and category present in either input,
// the larger of the two counts. Summing would double-count events logged
// on both devices; overwriting would lose local progress.
func MergeDaily(local, imported store.DailyCounts) store.DailyCounts {
	out := local.Clone()
	if out == nil {
		out = store.DailyCounts{}
	}
	for day, counts := range imported {
		dst, ok := out[day]
		if !ok || dst == nil {
			dst = store.Counts{}
			out[day] = dst
		}
		for cat, v := range counts {
			if cur, ok := dst[cat]; !ok || v > cur {
				dst[cat] = v
			}
		}
	}
	return out
}
