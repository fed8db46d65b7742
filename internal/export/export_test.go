package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/tally/internal/clock"
	"github.com/sadopc/tally/internal/store"
)

func sampleHistory() []store.ArchiveRecord {
	return []store.ArchiveRecord{
		{
			ID:              "rec-2",
			PeriodStartDate: "2025-03-02",
			PeriodEndDate:   "2025-03-08",
			Totals:          store.Counts{"veg": 10, "fruit": 12},
			Targets:         store.Counts{"fruit": 14, "water": 56},
			Metadata:        store.ArchiveMetadata{Provenance: store.ProvenanceLocal},
		},
		{
			ID:              "rec-1",
			PeriodStartDate: "2025-02-23",
			PeriodEndDate:   "2025-03-01",
			Totals:          store.Counts{"fruit": 3},
			Metadata:        store.ArchiveMetadata{Provenance: store.ProvenanceImported},
		},
	}
}

// ============================================================
// JSON
// ============================================================

func TestWrite_Golden(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	archived := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
	f := &File{
		AppInfo: AppInfo{AppName: AppName, ExportedAt: at, SchemaVersion: 2, DeviceID: "device-1"},
		CurrentState: store.CurrentState{
			CurrentDayDate:         "2025-03-10",
			SelectedViewDate:       "2025-03-10",
			CurrentPeriodStartDate: "2025-03-09",
			DailyCounts:            store.DailyCounts{"2025-03-10": {"fruit": 3}},
			WeeklyCounts:           store.Counts{"fruit": 3},
			LastModified:           at,
			Metadata:               store.StateMetadata{SchemaVersion: 2, DeviceID: "device-1", WeekStartDay: "Sunday"},
		},
		History: []store.ArchiveRecord{{
			ID:              "rec-1",
			PeriodStartDate: "2025-03-02",
			PeriodEndDate:   "2025-03-08",
			DailyBreakdown:  store.DailyCounts{"2025-03-04": {"fruit": 2}},
			Totals:          store.Counts{"fruit": 2},
			Targets:         store.Counts{"fruit": 14},
			Metadata: store.ArchiveMetadata{
				CreatedAt: archived, UpdatedAt: archived, SchemaVersion: 2,
				DeviceID: "device-1", Provenance: store.ProvenanceLocal, WeekStartDay: "Sunday",
			},
		}},
		Preferences: map[string]json.RawMessage{"weekStartDay": json.RawMessage(`"Sunday"`)},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, f))

	g := goldie.New(t)
	g.Assert(t, "export_document", buf.Bytes())
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	c, err := clock.NewFixedDate("2025-03-10")
	require.NoError(t, err)
	s := store.NewMemory(c)
	t.Cleanup(func() { s.Close() })

	for _, r := range sampleHistory() {
		require.NoError(t, s.PutArchive(ctx, r))
	}
	require.NoError(t, s.PutPreference(ctx, store.PrefWeekStartDay, "Monday"))
	require.NoError(t, s.SaveCurrent(ctx, store.CurrentState{CurrentDayDate: "2025-03-10"}))

	f, err := Build(ctx, s, "dev-x")
	require.NoError(t, err)
	assert.Equal(t, AppName, f.AppInfo.AppName)
	assert.Equal(t, store.SchemaVersion, f.AppInfo.SchemaVersion)
	assert.Equal(t, "dev-x", f.AppInfo.DeviceID)
	assert.True(t, f.AppInfo.ExportedAt.Equal(c.Now()))
	assert.Equal(t, "2025-03-10", f.CurrentState.CurrentDayDate)
	require.Len(t, f.History, 2)
	assert.Equal(t, "2025-03-02", f.History[0].PeriodStartDate, "history is newest first")
	assert.JSONEq(t, `"Monday"`, string(f.Preferences[store.PrefWeekStartDay]))
}

func TestBuildEmptyStore(t *testing.T) {
	s := store.NewMemory(clock.System{})
	t.Cleanup(func() { s.Close() })

	f, err := Build(context.Background(), s, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, f))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, []any{}, doc["history"], "history is an array, never null")
	assert.IsType(t, map[string]any{}, doc["currentState"])
}

func TestToJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName("2025-03-10"))
	f := &File{AppInfo: AppInfo{AppName: AppName}, History: sampleHistory()}
	require.NoError(t, ToJSON(f, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back File
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Len(t, back.History, 2)
	assert.Equal(t, "tally-export-2025-03-10.json", filepath.Base(path))
}

func TestToJSONBadPath(t *testing.T) {
	err := ToJSON(&File{}, "/nonexistent/dir/file.json")
	assert.Error(t, err)
}

// ============================================================
// CSV
// ============================================================

func TestToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.csv")
	require.NoError(t, ToCSV(sampleHistory(), path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	// header + fruit/veg/water for rec-2 + fruit for rec-1
	require.Len(t, records, 5)
	assert.Equal(t, []string{"Period Start", "Period End", "Category", "Total", "Target", "Provenance"}, records[0])
	assert.Equal(t, []string{"2025-03-02", "2025-03-08", "fruit", "12", "14", "local"}, records[1])
	assert.Equal(t, []string{"2025-03-02", "2025-03-08", "veg", "10", "", "local"}, records[2])
	assert.Equal(t, []string{"2025-03-02", "2025-03-08", "water", "0", "56", "local"}, records[3])
	assert.Equal(t, []string{"2025-02-23", "2025-03-01", "fruit", "3", "", "imported"}, records[4])
}

func TestToCSVEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, ToCSV(nil, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1, "header only")
}

func TestToCSVBadPath(t *testing.T) {
	err := ToCSV(nil, "/nonexistent/dir/file.csv")
	assert.Error(t, err)
}
