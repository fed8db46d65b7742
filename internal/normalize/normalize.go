// Package normalize turns raw candidate records into canonical ones. It
// fills identity, timestamps, schema version, and derived fields, and
// never mutates its inputs.
package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sadopc/tally/internal/clock"
	"github.com/sadopc/tally/internal/period"
	"github.com/sadopc/tally/internal/store"
)

// ImportInfo marks a record as arriving through an import.
type ImportInfo struct {
	At     time.Time
	Source string
}

// Options carries the context an archive record is normalized against.
type Options struct {
	// Existing is the stored record with the same period key, if any.
	Existing *store.ArchiveRecord
	// Targets is the category target configuration to freeze into records
	// that arrive without their own targets.
	Targets   store.Counts
	Import    *ImportInfo
	WeekStart period.Weekday
	DeviceID  string
}

type Normalizer struct {
	clock clock.Clock
	newID func() string
}

func New(c clock.Clock) *Normalizer {
	return &Normalizer{clock: c, newID: uuid.NewString}
}

// WithIDGenerator replaces the identifier source. Used by tests that need
// stable ids.
func (n *Normalizer) WithIDGenerator(fn func() string) *Normalizer {
	n.newID = fn
	return n
}

// Archive produces the canonical form of candidate.
func (n *Normalizer) Archive(candidate store.ArchiveRecord, opts Options) (store.ArchiveRecord, error) {
	if _, err := period.ParseKey(candidate.PeriodStartDate); err != nil {
		return store.ArchiveRecord{}, fmt.Errorf("normalize archive record: %w", err)
	}
	end, _ := period.End(candidate.PeriodStartDate)
	now := n.clock.Now()

	out := store.ArchiveRecord{
		PeriodStartDate: candidate.PeriodStartDate,
		PeriodEndDate:   end,
		DailyBreakdown:  clampDaily(candidate.DailyBreakdown),
		Totals:          clamp(candidate.Totals),
		Targets:         candidate.Targets.Clone(),
		Metadata:        candidate.Metadata,
	}
	if out.DailyBreakdown == nil {
		out.DailyBreakdown = store.DailyCounts{}
	}
	if len(out.Totals) == 0 {
		out.Totals = SumDays(out.DailyBreakdown, nil)
	}
	if len(out.Targets) == 0 && len(opts.Targets) > 0 {
		out.Targets = opts.Targets.Clone()
	}
	if out.Targets == nil {
		out.Targets = store.Counts{}
	}

	switch {
	case opts.Existing != nil && opts.Existing.ID != "":
		out.ID = opts.Existing.ID
	case candidate.ID != "":
		out.ID = candidate.ID
	default:
		out.ID = n.newID()
	}

	md := &out.Metadata
	if opts.Existing != nil && !opts.Existing.Metadata.CreatedAt.IsZero() {
		md.CreatedAt = opts.Existing.Metadata.CreatedAt
	} else {
		md.CreatedAt = now
	}
	md.UpdatedAt = now
	md.SchemaVersion = store.SchemaVersion

	if opts.Import != nil {
		md.Provenance = store.ProvenanceImported
		at := opts.Import.At
		if at.IsZero() {
			at = now
		}
		md.ImportedAt = &at
		md.ImportSource = opts.Import.Source
	} else if !validProvenance(md.Provenance) {
		md.Provenance = store.ProvenanceLocal
	}
	if md.WeekStartDay == "" && opts.WeekStart != "" {
		md.WeekStartDay = string(opts.WeekStart)
	}
	if md.DeviceID == "" {
		if opts.Existing != nil && opts.Existing.Metadata.DeviceID != "" {
			md.DeviceID = opts.Existing.Metadata.DeviceID
		} else {
			md.DeviceID = opts.DeviceID
		}
	}
	return out, nil
}

// CurrentState produces the canonical form of st: empty maps filled, the
// period start derived when missing or inconsistent, negative counts
// clamped, and weekly counts recomputed.
func (n *Normalizer) CurrentState(st store.CurrentState, w period.Weekday, deviceID string) (store.CurrentState, error) {
	out := st
	out.DailyCounts = clampDaily(st.DailyCounts)
	if out.DailyCounts == nil {
		out.DailyCounts = store.DailyCounts{}
	}

	if out.CurrentDayDate == "" {
		out.CurrentDayDate = clock.NowAsDateKey(n.clock)
	}
	if _, err := period.ParseKey(out.CurrentDayDate); err != nil {
		return store.CurrentState{}, fmt.Errorf("normalize current state: %w", err)
	}
	if out.SelectedViewDate == "" {
		out.SelectedViewDate = out.CurrentDayDate
	}

	start := out.CurrentPeriodStartDate
	if start == "" || !period.Contains(start, out.CurrentDayDate) {
		start, _ = period.Start(out.CurrentDayDate, w)
	}
	out.CurrentPeriodStartDate = start
	out.WeeklyCounts = RecomputeWeekly(out)

	if out.LastModified.IsZero() {
		out.LastModified = n.clock.Now()
	}
	out.Metadata.SchemaVersion = store.SchemaVersion
	if out.Metadata.WeekStartDay == "" {
		out.Metadata.WeekStartDay = string(w)
	}
	if out.Metadata.DeviceID == "" {
		out.Metadata.DeviceID = deviceID
	}
	return out, nil
}

// Empty returns a fresh draft for the period containing today.
func (n *Normalizer) Empty(w period.Weekday, deviceID string) store.CurrentState {
	st, _ := n.CurrentState(store.CurrentState{}, w, deviceID)
	return st
}

// ArchiveFromCurrent folds a draft into an archive candidate for its own
// period, keeping only the days that fall inside that period.
func ArchiveFromCurrent(st store.CurrentState) store.ArchiveRecord {
	breakdown := store.DailyCounts{}
	for day, counts := range st.DailyCounts {
		if period.Contains(st.CurrentPeriodStartDate, day) {
			breakdown[day] = counts.Clone()
		}
	}
	return store.ArchiveRecord{
		PeriodStartDate: st.CurrentPeriodStartDate,
		DailyBreakdown:  breakdown,
		Totals:          SumDays(breakdown, nil),
		Metadata: store.ArchiveMetadata{
			DeviceID:     st.Metadata.DeviceID,
			WeekStartDay: st.Metadata.WeekStartDay,
		},
	}
}

// Preference returns the canonical JSON for a known preference and
// checks that any other value is well-formed JSON. A week start is
// spelled "Sunday" or "Monday"; categories need unique ids and
// non-negative targets.
func Preference(name string, value json.RawMessage) (json.RawMessage, error) {
	if !json.Valid(value) {
		return nil, fmt.Errorf("normalize preference %q: invalid JSON", name)
	}
	switch name {
	case store.PrefWeekStartDay:
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, fmt.Errorf("normalize preference %q: %w", name, err)
		}
		w, err := period.ParseWeekday(s)
		if err != nil {
			return nil, fmt.Errorf("normalize preference %q: %w", name, err)
		}
		return json.Marshal(string(w))

	case store.PrefCategories:
		var cats []store.Category
		if err := json.Unmarshal(value, &cats); err != nil {
			return nil, fmt.Errorf("normalize preference %q: %w", name, err)
		}
		seen := map[string]bool{}
		for i := range cats {
			if cats[i].ID == "" || seen[cats[i].ID] {
				return nil, fmt.Errorf("normalize preference %q: missing or duplicate id %q", name, cats[i].ID)
			}
			seen[cats[i].ID] = true
			cats[i].Target = max(cats[i].Target, 0)
		}
		return json.Marshal(cats)
	}
	return value, nil
}

// RecomputeWeekly sums st.DailyCounts over the seven days of
// st.CurrentPeriodStartDate. Every bulk mutation must finish with this.
func RecomputeWeekly(st store.CurrentState) store.Counts {
	return SumDays(st.DailyCounts, func(day string) bool {
		return period.Contains(st.CurrentPeriodStartDate, day)
	})
}

// SumDays totals counts per category across the days accepted by keep
// (all days when keep is nil).
func SumDays(daily store.DailyCounts, keep func(day string) bool) store.Counts {
	out := store.Counts{}
	for day, counts := range daily {
		if keep != nil && !keep(day) {
			continue
		}
		for cat, v := range counts {
			if v < 0 {
				v = 0
			}
			out[cat] += v
		}
	}
	return out
}

func clamp(c store.Counts) store.Counts {
	if c == nil {
		return nil
	}
	out := make(store.Counts, len(c))
	for k, v := range c {
		if v < 0 {
			v = 0
		}
		out[k] = v
	}
	return out
}

func clampDaily(d store.DailyCounts) store.DailyCounts {
	if d == nil {
		return nil
	}
	out := make(store.DailyCounts, len(d))
	for day, counts := range d {
		c := clamp(counts)
		if c == nil {
			c = store.Counts{}
		}
		out[day] = c
	}
	return out
}

func validProvenance(p store.Provenance) bool {
	switch p {
	case store.ProvenanceLocal, store.ProvenanceImported, store.ProvenanceConflict:
		return true
	}
	return false
}
