package store

import (
	"encoding/json"
	"time"
)

// SchemaVersion is stamped on every persisted record.
const SchemaVersion = 2

// Counts maps a category id to a non-negative count.
type Counts map[string]int

// DailyCounts maps a day key (YYYY-MM-DD) to that day's counts.
type DailyCounts map[string]Counts

// Clone returns a deep copy.
func (c Counts) Clone() Counts {
	if c == nil {
		return nil
	}
	out := make(Counts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Total sums every category.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Clone returns a deep copy.
func (d DailyCounts) Clone() DailyCounts {
	if d == nil {
		return nil
	}
	out := make(DailyCounts, len(d))
	for day, counts := range d {
		out[day] = counts.Clone()
	}
	return out
}

// Provenance tags where an archive record came from.
type Provenance string

const (
	ProvenanceLocal    Provenance = "local"
	ProvenanceImported Provenance = "imported"
	ProvenanceConflict Provenance = "conflict"
)

// CurrentState is the in-progress period draft.
type CurrentState struct {
	CurrentDayDate         string        `json:"currentDayDate"`
	SelectedViewDate       string        `json:"selectedViewDate"`
	CurrentPeriodStartDate string        `json:"currentPeriodStartDate"`
	DailyCounts            DailyCounts   `json:"dailyCounts"`
	WeeklyCounts           Counts        `json:"weeklyCounts"`
	LastModified           time.Time     `json:"lastModified"`
	Metadata               StateMetadata `json:"metadata"`
}

// StateMetadata carries version and reset bookkeeping for CurrentState.
type StateMetadata struct {
	SchemaVersion int    `json:"schemaVersion"`
	DeviceID      string `json:"deviceId,omitempty"`
	WeekStartDay  string `json:"weekStartDay,omitempty"`
	Dirty         bool   `json:"dirty,omitempty"`
	PendingReset  bool   `json:"pendingReset,omitempty"`
}

// ArchiveRecord is one completed period, keyed by PeriodStartDate.
type ArchiveRecord struct {
	ID              string          `json:"id"`
	PeriodStartDate string          `json:"periodStartDate"`
	PeriodEndDate   string          `json:"periodEndDate"`
	DailyBreakdown  DailyCounts     `json:"dailyBreakdown"`
	Totals          Counts          `json:"totals"`
	Targets         Counts          `json:"targets"`
	Metadata        ArchiveMetadata `json:"metadata"`
}

// ArchiveMetadata records stamping and origin of an ArchiveRecord.
type ArchiveMetadata struct {
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	SchemaVersion int        `json:"schemaVersion"`
	DeviceID      string     `json:"deviceId,omitempty"`
	Provenance    Provenance `json:"provenance"`
	WeekStartDay  string     `json:"weekStartDay,omitempty"`
	ImportedAt    *time.Time `json:"importedAt,omitempty"`
	ImportSource  string     `json:"importSource,omitempty"`
}

// PreferenceRecord is a named, opaque JSON value.
type PreferenceRecord struct {
	Name      string          `json:"name"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// RecordType names the collection a change-log entry refers to.
type RecordType string

const (
	RecordArchive      RecordType = "archive"
	RecordPreference   RecordType = "preference"
	RecordCurrentState RecordType = "current_state"
)

// Operation is the kind of mutation a change-log entry records.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpClear  Operation = "clear"
	OpImport Operation = "import"
)

// ChangeLogEntry is one append-only mutation record.
type ChangeLogEntry struct {
	Seq        int64           `json:"seq"`
	Timestamp  time.Time       `json:"timestamp"`
	RecordType RecordType      `json:"recordType"`
	Operation  Operation       `json:"operation"`
	RecordID   string          `json:"recordId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Preference names consumed by the core.
const (
	PrefWeekStartDay = "weekStartDay"
	PrefCategories   = "categories"
)

// Category is a tracked category and its weekly target.
type Category struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Target int    `json:"target" yaml:"target"`
}

// TargetsOf freezes a category list into a category -> target map.
func TargetsOf(cats []Category) Counts {
	if len(cats) == 0 {
		return nil
	}
	out := make(Counts, len(cats))
	for _, c := range cats {
		out[c.ID] = c.Target
	}
	return out
}

// WriteOption adjusts how a mutation is recorded in the change log.
type WriteOption func(*writeConfig)

type writeConfig struct {
	op Operation
}

// AsImport tags the resulting change-log entry with OpImport.
func AsImport() WriteOption {
	return func(c *writeConfig) { c.op = OpImport }
}

func applyWriteOptions(opts []WriteOption) writeConfig {
	var c writeConfig
	for _, o := range opts {
		o(&c)
	}
	return c
}
