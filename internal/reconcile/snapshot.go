package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/sadopc/tally/internal/export"
	"github.com/sadopc/tally/internal/period"
	"github.com/sadopc/tally/internal/store"
)

// Snapshot is a structurally valid import payload. History entries stay
// raw so that one bad record can be skipped without rejecting the file.
type Snapshot struct {
	AppInfo      export.AppInfo
	CurrentState store.CurrentState
	History      []json.RawMessage
	Preferences  map[string]json.RawMessage
	Source       string
}

type rawFile struct {
	AppInfo      json.RawMessage `json:"appInfo"`
	CurrentState json.RawMessage `json:"currentState"`
	History      json.RawMessage `json:"history"`
	Preferences  json.RawMessage `json:"preferences"`
}

// ReadFile loads and validates an export file from disk.
func ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	snap, err := Parse(data)
	if err != nil {
		return nil, err
	}
	snap.Source = path
	return snap, nil
}

// Parse validates data as an import payload. It requires a currentState
// object with a valid currentDayDate and a history array (possibly empty).
func Parse(data []byte) (*Snapshot, error) {
	var raw rawFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Reason: "payload is not a JSON object", Err: err}
	}
	if !isKind(raw.CurrentState, '{') {
		return nil, &ValidationError{Reason: "currentState object is missing"}
	}
	if !isKind(raw.History, '[') {
		return nil, &ValidationError{Reason: "history array is missing"}
	}

	snap := &Snapshot{Preferences: map[string]json.RawMessage{}}

	st, err := store.DecodeCurrentState(raw.CurrentState)
	if err != nil {
		return nil, &ValidationError{Reason: "currentState is malformed", Err: err}
	}
	if _, err := period.ParseKey(st.CurrentDayDate); err != nil {
		return nil, &ValidationError{Reason: "currentState.currentDayDate is not a date", Err: err}
	}
	snap.CurrentState = st

	if err := json.Unmarshal(raw.History, &snap.History); err != nil {
		return nil, &ValidationError{Reason: "history is malformed", Err: err}
	}

	if len(raw.Preferences) > 0 && !isKind(raw.Preferences, 'n') {
		if !isKind(raw.Preferences, '{') {
			return nil, &ValidationError{Reason: "preferences must be an object"}
		}
		if err := json.Unmarshal(raw.Preferences, &snap.Preferences); err != nil {
			return nil, &ValidationError{Reason: "preferences are malformed", Err: err}
		}
	}

	if len(raw.AppInfo) > 0 {
		if err := json.Unmarshal(raw.AppInfo, &snap.AppInfo); err != nil {
			slog.Warn("ignoring unreadable appInfo in import", "error", err)
		}
	}
	if snap.AppInfo.SchemaVersion > store.SchemaVersion {
		slog.Warn("import was written by a newer schema, proceeding best-effort",
			"version", snap.AppInfo.SchemaVersion, "supported", store.SchemaVersion)
	}
	return snap, nil
}

func isKind(raw json.RawMessage, first byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == first
}

// Targets returns the category targets carried by the snapshot itself.
func (s *Snapshot) Targets() store.Counts {
	raw, ok := s.Preferences[store.PrefCategories]
	if !ok {
		return nil
	}
	var cats []store.Category
	if err := json.Unmarshal(raw, &cats); err != nil {
		slog.Warn("ignoring malformed categories in import", "error", err)
		return nil
	}
	return store.TargetsOf(cats)
}

// WeekStart returns the snapshot's own weekday setting, falling back to
// fallback when the snapshot carries none.
func (s *Snapshot) WeekStart(fallback period.Weekday) period.Weekday {
	if raw, ok := s.Preferences[store.PrefWeekStartDay]; ok {
		var v string
		if json.Unmarshal(raw, &v) == nil {
			if w, err := period.ParseWeekday(v); err == nil {
				return w
			}
		}
	}
	if w, err := period.ParseWeekday(s.CurrentState.Metadata.WeekStartDay); err == nil {
		return w
	}
	return fallback
}
