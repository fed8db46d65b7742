package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/tally/internal/clock"
	"github.com/sadopc/tally/internal/period"
	"github.com/sadopc/tally/internal/store"
)

func newNormalizer(t *testing.T) (*Normalizer, *clock.Fixed) {
	t.Helper()
	c, err := clock.NewFixedDate("2025-03-10")
	require.NoError(t, err)
	n := 0
	norm := New(c).WithIDGenerator(func() string {
		n++
		return "gen-" + string(rune('0'+n))
	})
	return norm, c
}

func TestArchive_GeneratesIdentityAndDerivedEnd(t *testing.T) {
	n, c := newNormalizer(t)

	got, err := n.Archive(store.ArchiveRecord{
		PeriodStartDate: "2025-03-02",
		PeriodEndDate:   "2099-01-01", // never trusted
		Totals:          store.Counts{"fruit": 5},
	}, Options{WeekStart: period.Sunday, DeviceID: "dev-a"})
	require.NoError(t, err)

	assert.Equal(t, "gen-1", got.ID)
	assert.Equal(t, "2025-03-08", got.PeriodEndDate)
	assert.Equal(t, c.Now(), got.Metadata.CreatedAt)
	assert.Equal(t, c.Now(), got.Metadata.UpdatedAt)
	assert.Equal(t, store.SchemaVersion, got.Metadata.SchemaVersion)
	assert.Equal(t, store.ProvenanceLocal, got.Metadata.Provenance)
	assert.Equal(t, "Sunday", got.Metadata.WeekStartDay)
	assert.Equal(t, "dev-a", got.Metadata.DeviceID)
	assert.NotNil(t, got.DailyBreakdown)
	assert.NotNil(t, got.Targets)
}

func TestArchive_IdentityPreference(t *testing.T) {
	n, c := newNormalizer(t)
	created := time.Date(2025, 1, 1, 9, 0, 0, 0, time.Local)
	existing := &store.ArchiveRecord{
		ID:              "existing-id",
		PeriodStartDate: "2025-03-02",
		Metadata:        store.ArchiveMetadata{CreatedAt: created, DeviceID: "dev-old"},
	}

	got, err := n.Archive(store.ArchiveRecord{ID: "candidate-id", PeriodStartDate: "2025-03-02"},
		Options{Existing: existing})
	require.NoError(t, err)
	assert.Equal(t, "existing-id", got.ID)
	assert.Equal(t, created, got.Metadata.CreatedAt)
	assert.Equal(t, c.Now(), got.Metadata.UpdatedAt)
	assert.Equal(t, "dev-old", got.Metadata.DeviceID)

	got, err = n.Archive(store.ArchiveRecord{ID: "candidate-id", PeriodStartDate: "2025-03-02"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "candidate-id", got.ID)
}

func TestArchive_SynthesizesTargetsOnlyWhenMissing(t *testing.T) {
	n, _ := newNormalizer(t)
	config := store.Counts{"fruit": 14}

	got, err := n.Archive(store.ArchiveRecord{PeriodStartDate: "2025-03-02"}, Options{Targets: config})
	require.NoError(t, err)
	assert.Equal(t, store.Counts{"fruit": 14}, got.Targets)

	config["fruit"] = 99
	assert.Equal(t, 14, got.Targets["fruit"], "targets are a frozen copy")

	got, err = n.Archive(store.ArchiveRecord{PeriodStartDate: "2025-03-02", Targets: store.Counts{"fruit": 7}},
		Options{Targets: config})
	require.NoError(t, err)
	assert.Equal(t, 7, got.Targets["fruit"])
}

func TestArchive_ImportProvenance(t *testing.T) {
	n, c := newNormalizer(t)

	got, err := n.Archive(store.ArchiveRecord{PeriodStartDate: "2025-03-02"},
		Options{Import: &ImportInfo{Source: "backup.json"}})
	require.NoError(t, err)
	assert.Equal(t, store.ProvenanceImported, got.Metadata.Provenance)
	require.NotNil(t, got.Metadata.ImportedAt)
	assert.Equal(t, c.Now(), *got.Metadata.ImportedAt)
	assert.Equal(t, "backup.json", got.Metadata.ImportSource)

	conflict := store.ArchiveRecord{PeriodStartDate: "2025-03-02",
		Metadata: store.ArchiveMetadata{Provenance: store.ProvenanceConflict}}
	got, err = n.Archive(conflict, Options{})
	require.NoError(t, err)
	assert.Equal(t, store.ProvenanceConflict, got.Metadata.Provenance, "preserved when not importing")

	bogus := store.ArchiveRecord{PeriodStartDate: "2025-03-02",
		Metadata: store.ArchiveMetadata{Provenance: "martian"}}
	got, err = n.Archive(bogus, Options{})
	require.NoError(t, err)
	assert.Equal(t, store.ProvenanceLocal, got.Metadata.Provenance)
}

func TestArchive_KeepsBreakdownAndFillsTotals(t *testing.T) {
	n, _ := newNormalizer(t)
	candidate := store.ArchiveRecord{
		PeriodStartDate: "2025-03-02",
		DailyBreakdown: store.DailyCounts{
			"2025-03-02": {"fruit": 2, "veg": -4},
			"2025-03-05": {"fruit": 3},
		},
	}

	got, err := n.Archive(candidate, Options{})
	require.NoError(t, err)
	assert.Equal(t, store.Counts{"fruit": 5, "veg": 0}, got.Totals)
	assert.Equal(t, 0, got.DailyBreakdown["2025-03-02"]["veg"])

	// Input untouched.
	assert.Equal(t, -4, candidate.DailyBreakdown["2025-03-02"]["veg"])
	assert.Nil(t, candidate.Totals)

	// Supplied totals are kept even if the breakdown disagrees.
	candidate.Totals = store.Counts{"fruit": 40}
	got, err = n.Archive(candidate, Options{})
	require.NoError(t, err)
	assert.Equal(t, 40, got.Totals["fruit"])
}

func TestArchive_RejectsBadPeriod(t *testing.T) {
	n, _ := newNormalizer(t)
	_, err := n.Archive(store.ArchiveRecord{PeriodStartDate: "03/02/2025"}, Options{})
	assert.Error(t, err)
	_, err = n.Archive(store.ArchiveRecord{}, Options{})
	assert.Error(t, err)
}

func TestCurrentState_FillsDefaults(t *testing.T) {
	n, c := newNormalizer(t)

	st := n.Empty(period.Sunday, "dev-a")
	assert.Equal(t, "2025-03-10", st.CurrentDayDate)
	assert.Equal(t, "2025-03-10", st.SelectedViewDate)
	assert.Equal(t, "2025-03-09", st.CurrentPeriodStartDate)
	assert.NotNil(t, st.DailyCounts)
	assert.Empty(t, st.WeeklyCounts)
	assert.Equal(t, c.Now(), st.LastModified)
	assert.Equal(t, store.SchemaVersion, st.Metadata.SchemaVersion)
	assert.Equal(t, "Sunday", st.Metadata.WeekStartDay)
	assert.Equal(t, "dev-a", st.Metadata.DeviceID)
}

func TestCurrentState_RecomputesWeekly(t *testing.T) {
	n, _ := newNormalizer(t)
	in := store.CurrentState{
		CurrentDayDate:         "2025-03-10",
		CurrentPeriodStartDate: "2025-03-09",
		DailyCounts: store.DailyCounts{
			"2025-03-08": {"fruit": 2}, // previous period
			"2025-03-09": {"fruit": 1},
			"2025-03-10": {"fruit": 3, "veg": 1},
			"2025-03-15": {"veg": 2},
			"2025-03-16": {"veg": 9}, // next period
		},
		WeeklyCounts: store.Counts{"fruit": 1000},
	}

	got, err := n.CurrentState(in, period.Sunday, "")
	require.NoError(t, err)
	assert.Equal(t, store.Counts{"fruit": 4, "veg": 3}, got.WeeklyCounts)
	assert.Equal(t, 2, got.DailyCounts["2025-03-08"]["fruit"], "out-of-period days are kept")
	assert.Equal(t, 1000, in.WeeklyCounts["fruit"], "input untouched")
}

func TestCurrentState_FixesInconsistentPeriodStart(t *testing.T) {
	n, _ := newNormalizer(t)
	got, err := n.CurrentState(store.CurrentState{
		CurrentDayDate:         "2025-03-10",
		CurrentPeriodStartDate: "2025-02-02",
	}, period.Monday, "")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", got.CurrentPeriodStartDate)

	_, err = n.CurrentState(store.CurrentState{CurrentDayDate: "yesterday"}, period.Monday, "")
	assert.Error(t, err)
}

func TestArchiveFromCurrent(t *testing.T) {
	st := store.CurrentState{
		CurrentPeriodStartDate: "2025-03-02",
		DailyCounts: store.DailyCounts{
			"2025-03-01": {"fruit": 50},
			"2025-03-03": {"fruit": 2},
			"2025-03-08": {"fruit": 1, "veg": 4},
		},
		Metadata: store.StateMetadata{DeviceID: "dev-b", WeekStartDay: "Sunday"},
	}

	rec := ArchiveFromCurrent(st)
	assert.Equal(t, "2025-03-02", rec.PeriodStartDate)
	assert.Len(t, rec.DailyBreakdown, 2)
	assert.Equal(t, store.Counts{"fruit": 3, "veg": 4}, rec.Totals)
	assert.Equal(t, "dev-b", rec.Metadata.DeviceID)

	rec.DailyBreakdown["2025-03-03"]["fruit"] = 100
	assert.Equal(t, 2, st.DailyCounts["2025-03-03"]["fruit"], "breakdown is a copy")
}

func TestPreference_WeekStartIsCanonical(t *testing.T) {
	got, err := Preference(store.PrefWeekStartDay, json.RawMessage(`" MON "`))
	require.NoError(t, err)
	assert.JSONEq(t, `"Monday"`, string(got))

	_, err = Preference(store.PrefWeekStartDay, json.RawMessage(`"Friday"`))
	assert.Error(t, err)
	_, err = Preference(store.PrefWeekStartDay, json.RawMessage(`1`))
	assert.Error(t, err)
}

func TestPreference_Categories(t *testing.T) {
	got, err := Preference(store.PrefCategories, json.RawMessage(`[{"id":"veg","name":"Veg","target":-1}]`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"veg","name":"Veg","target":0}]`, string(got))

	for _, bad := range []string{`{"id":"veg"}`, `[{"name":"no id"}]`, `[{"id":"a"},{"id":"a"}]`} {
		_, err := Preference(store.PrefCategories, json.RawMessage(bad))
		assert.Error(t, err, bad)
	}
}

func TestPreference_OtherNamesPassThrough(t *testing.T) {
	got, err := Preference("theme", json.RawMessage(`{"dark":true}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"dark":true}`, string(got))

	_, err = Preference("theme", json.RawMessage(`{oops`))
	assert.Error(t, err)
}
