// Package tracker owns the live weekly draft: first-run creation, count
// changes, day selection, and rolling elapsed periods into the archive.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/sadopc/tally/internal/clock"
	"github.com/sadopc/tally/internal/normalize"
	"github.com/sadopc/tally/internal/period"
	"github.com/sadopc/tally/internal/reconcile"
	"github.com/sadopc/tally/internal/store"
)

var (
	ErrDayOutsidePeriod = errors.New("day is outside the current period")
	ErrFutureDay        = errors.New("day is in the future")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrInvalidCategory  = errors.New("invalid category")
)

// DefaultCategories is used until the categories preference is set.
var DefaultCategories = []store.Category{
	{ID: "fruit", Name: "Fruit", Target: 14},
	{ID: "veg", Name: "Vegetables", Target: 21},
	{ID: "water", Name: "Water", Target: 56},
}

type Tracker struct {
	mu       sync.Mutex
	store    *store.Store
	clock    clock.Clock
	norm     *normalize.Normalizer
	deviceID string
	defaults []store.Category
}

func New(s *store.Store, c clock.Clock, n *normalize.Normalizer, deviceID string) *Tracker {
	return &Tracker{
		store:    s,
		clock:    c,
		norm:     n,
		deviceID: deviceID,
		defaults: DefaultCategories,
	}
}

// WithDefaultCategories replaces the fallback category list.
func (t *Tracker) WithDefaultCategories(cats []store.Category) *Tracker {
	if len(cats) > 0 {
		t.defaults = slices.Clone(cats)
	}
	return t
}

func (t *Tracker) Store() *store.Store { return t.store }

func (t *Tracker) Clock() clock.Clock { return t.clock }

func (t *Tracker) DeviceID() string { return t.deviceID }

// State returns the live draft, creating it on first run and rolling over
// any elapsed periods first.
func (t *Tracker) State(ctx context.Context) (store.CurrentState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, _, err := t.sync(ctx)
	return st, err
}

// Rollover archives every elapsed period that has counts and resets the
// draft to the period containing today. It returns the archived records,
// oldest first. Calling it again with nothing elapsed is a no-op.
func (t *Tracker) Rollover(ctx context.Context) ([]store.ArchiveRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, archived, err := t.sync(ctx)
	return archived, err
}

// Increment adds delta to category on day (today when empty), clamping the
// result at zero.
func (t *Tracker) Increment(ctx context.Context, day, category string, delta int) (store.CurrentState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, _, err := t.sync(ctx)
	if err != nil {
		return st, err
	}
	if day == "" {
		day = st.CurrentDayDate
	}
	if err := t.checkDay(st, day); err != nil {
		return st, err
	}
	if !slices.ContainsFunc(t.categories(ctx), func(c store.Category) bool { return c.ID == category }) {
		return st, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	counts := st.DailyCounts[day].Clone()
	if counts == nil {
		counts = store.Counts{}
	}
	counts[category] = max(counts[category]+delta, 0)
	st.DailyCounts = st.DailyCounts.Clone()
	st.DailyCounts[day] = counts
	st.WeeklyCounts = normalize.RecomputeWeekly(st)
	st.LastModified = t.clock.Now()
	st.Metadata.Dirty = true

	if err := t.store.SaveCurrent(ctx, st); err != nil {
		return st, fmt.Errorf("increment %s: %w", category, err)
	}
	slog.Debug("count changed", "day", day, "category", category, "delta", delta, "count", counts[category])
	return st, nil
}

// SelectDay moves the view to day, which must be inside the current
// period and not after today.
func (t *Tracker) SelectDay(ctx context.Context, day string) (store.CurrentState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, _, err := t.sync(ctx)
	if err != nil {
		return st, err
	}
	if err := t.checkDay(st, day); err != nil {
		return st, err
	}
	if st.SelectedViewDate == day {
		return st, nil
	}
	st.SelectedViewDate = day
	if err := t.store.SaveCurrent(ctx, st); err != nil {
		return st, fmt.Errorf("select day: %w", err)
	}
	return st, nil
}

// ShiftDay moves the selected view date by n days, staying inside the
// current period and never past today.
func (t *Tracker) ShiftDay(ctx context.Context, n int) (store.CurrentState, error) {
	st, err := t.State(ctx)
	if err != nil {
		return st, err
	}
	target, err := period.AddDays(st.SelectedViewDate, n)
	if err != nil {
		return st, err
	}
	if target < st.CurrentPeriodStartDate {
		target = st.CurrentPeriodStartDate
	}
	if target > st.CurrentDayDate {
		target = st.CurrentDayDate
	}
	return t.SelectDay(ctx, target)
}

func (t *Tracker) checkDay(st store.CurrentState, day string) error {
	if _, err := period.ParseKey(day); err != nil {
		return err
	}
	if !period.Contains(st.CurrentPeriodStartDate, day) {
		return fmt.Errorf("%w: %s not in %s", ErrDayOutsidePeriod, day, st.CurrentPeriodStartDate)
	}
	if day > st.CurrentDayDate {
		return fmt.Errorf("%w: %s", ErrFutureDay, day)
	}
	return nil
}

// Categories returns the configured categories, or the defaults.
func (t *Tracker) Categories(ctx context.Context) []store.Category {
	return t.categories(ctx)
}

func (t *Tracker) categories(ctx context.Context) []store.Category {
	if cats := t.store.Categories(ctx); len(cats) > 0 {
		return cats
	}
	return slices.Clone(t.defaults)
}

// SetCategories validates and stores the category list. Archived targets
// are frozen copies and are not affected.
func (t *Tracker) SetCategories(ctx context.Context, cats []store.Category) error {
	seen := map[string]bool{}
	for _, c := range cats {
		switch {
		case c.ID == "":
			return fmt.Errorf("%w: empty id", ErrInvalidCategory)
		case seen[c.ID]:
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidCategory, c.ID)
		case c.Target < 0:
			return fmt.Errorf("%w: negative target for %q", ErrInvalidCategory, c.ID)
		}
		seen[c.ID] = true
	}
	return t.store.SetCategories(ctx, cats)
}

// WeekStart returns the stored weekday preference.
func (t *Tracker) WeekStart(ctx context.Context) period.Weekday {
	return t.store.WeekStart(ctx)
}

// SetWeekStart stores the weekday preference and realigns the draft. Days
// that now fall before the current period are archived.
func (t *Tracker) SetWeekStart(ctx context.Context, w period.Weekday) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.SetWeekStart(ctx, w); err != nil {
		return fmt.Errorf("set week start: %w", err)
	}
	_, _, err := t.sync(ctx)
	return err
}

// History rolls over any elapsed periods and returns the archive, most
// recent first.
func (t *Tracker) History(ctx context.Context) ([]store.ArchiveRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, _, err := t.sync(ctx); err != nil {
		return nil, err
	}
	return t.store.ListArchive(ctx)
}

// sync loads the draft and brings it up to today: first-run creation,
// rollover of elapsed periods, and advancing the current day.
func (t *Tracker) sync(ctx context.Context) (store.CurrentState, []store.ArchiveRecord, error) {
	w := t.store.WeekStart(ctx)
	today := clock.NowAsDateKey(t.clock)
	todayStart, err := period.Start(today, w)
	if err != nil {
		return store.CurrentState{}, nil, err
	}

	loaded, err := t.store.LoadCurrent(ctx)
	if err != nil {
		return store.CurrentState{}, nil, err
	}
	if loaded == nil {
		st := t.norm.Empty(w, t.deviceID)
		if err := t.store.SaveCurrent(ctx, st); err != nil {
			return st, nil, fmt.Errorf("create current state: %w", err)
		}
		slog.Info("created current state", "period", st.CurrentPeriodStartDate, "week_start", w)
		return st, nil, nil
	}
	st := *loaded

	elapsed := elapsedPeriods(st, todayStart, w)
	if len(elapsed) == 0 {
		if st.CurrentDayDate == today && st.CurrentPeriodStartDate == todayStart {
			return st, nil, nil
		}
		return t.advance(ctx, st, today, w)
	}

	// Mark the reset as pending so an interrupted rollover is retried.
	if !st.Metadata.PendingReset {
		st.Metadata.PendingReset = true
		if err := t.store.SaveCurrent(ctx, st); err != nil {
			return st, nil, fmt.Errorf("rollover: %w", err)
		}
	}

	targets := store.TargetsOf(t.categories(ctx))
	var archived []store.ArchiveRecord
	for _, start := range slices.Sorted(maps.Keys(elapsed)) {
		rec, err := t.archivePeriod(ctx, start, elapsed[start], targets, w)
		if err != nil {
			return st, archived, fmt.Errorf("rollover %s: %w", start, err)
		}
		archived = append(archived, rec)
	}

	next := t.norm.Empty(w, t.deviceID)
	for day, counts := range st.DailyCounts {
		if day >= todayStart {
			next.DailyCounts[day] = counts.Clone()
		}
	}
	next.WeeklyCounts = normalize.RecomputeWeekly(next)
	next.Metadata.DeviceID = st.Metadata.DeviceID
	if next.Metadata.DeviceID == "" {
		next.Metadata.DeviceID = t.deviceID
	}
	if err := t.store.SaveCurrent(ctx, next); err != nil {
		return next, archived, fmt.Errorf("rollover: %w", err)
	}
	slog.Info("rolled over", "archived", len(archived), "period", next.CurrentPeriodStartDate)
	return next, archived, nil
}

// advance moves the draft to today without anything to archive.
func (t *Tracker) advance(ctx context.Context, st store.CurrentState, today string, w period.Weekday) (store.CurrentState, []store.ArchiveRecord, error) {
	if st.SelectedViewDate == st.CurrentDayDate || st.SelectedViewDate == "" {
		st.SelectedViewDate = today
	}
	st.CurrentDayDate = today
	st.CurrentPeriodStartDate = ""
	st.Metadata.WeekStartDay = string(w)
	st, err := t.norm.CurrentState(st, w, t.deviceID)
	if err != nil {
		return st, nil, err
	}
	if !period.Contains(st.CurrentPeriodStartDate, st.SelectedViewDate) || st.SelectedViewDate > today {
		st.SelectedViewDate = today
	}
	if err := t.store.SaveCurrent(ctx, st); err != nil {
		return st, nil, fmt.Errorf("advance day: %w", err)
	}
	return st, nil, nil
}

// archivePeriod writes one elapsed period, folding in any record already
// archived under the same key by taking the larger count per day. A record
// that cannot be read is overwritten.
func (t *Tracker) archivePeriod(ctx context.Context, start string, days store.DailyCounts, targets store.Counts, w period.Weekday) (store.ArchiveRecord, error) {
	existing, err := t.store.GetArchive(ctx, start)
	if err != nil {
		slog.Warn("archive lookup failed, treating as absent", "period", start, "error", err)
		existing = nil
	}

	candidate := store.ArchiveRecord{PeriodStartDate: start, DailyBreakdown: days}
	if existing != nil {
		candidate.DailyBreakdown = reconcile.MergeDaily(existing.DailyBreakdown, days)
		candidate.Targets = existing.Targets
		candidate.Metadata = existing.Metadata
		merged := normalize.SumDays(candidate.DailyBreakdown, nil)
		for cat, v := range existing.Totals {
			merged[cat] = max(merged[cat], v)
		}
		candidate.Totals = merged
	}

	rec, err := t.norm.Archive(candidate, normalize.Options{
		Existing:  existing,
		Targets:   targets,
		WeekStart: w,
		DeviceID:  t.deviceID,
	})
	if err != nil {
		return rec, err
	}
	if err := t.store.PutArchive(ctx, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// elapsedPeriods groups the draft's day keys that fall before todayStart
// by their period start, dropping periods with no positive count.
func elapsedPeriods(st store.CurrentState, todayStart string, w period.Weekday) map[string]store.DailyCounts {
	out := map[string]store.DailyCounts{}
	for day, counts := range st.DailyCounts {
		if day >= todayStart {
			continue
		}
		start, err := period.Start(day, w)
		if err != nil {
			slog.Warn("dropping malformed day key", "day", day, "error", err)
			continue
		}
		if out[start] == nil {
			out[start] = store.DailyCounts{}
		}
		out[start][day] = counts.Clone()
	}
	for start, days := range out {
		if normalize.SumDays(days, nil).Total() == 0 {
			delete(out, start)
		}
	}
	return out
}
