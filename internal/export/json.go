package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sadopc/tally/internal/store"
)

// AppName is written into every export file.
const AppName = "tally"

// AppInfo describes the exporting installation.
type AppInfo struct {
	AppName       string    `json:"appName"`
	ExportedAt    time.Time `json:"exportedAt"`
	SchemaVersion int       `json:"schemaVersion"`
	DeviceID      string    `json:"deviceId,omitempty"`
}

// File is the export document. The same shape is accepted on import.
type File struct {
	AppInfo      AppInfo                    `json:"appInfo"`
	CurrentState store.CurrentState         `json:"currentState"`
	History      []store.ArchiveRecord      `json:"history"`
	Preferences  map[string]json.RawMessage `json:"preferences"`
}

// Build snapshots the whole store. A store with no draft yet exports an
// empty current state.
func Build(ctx context.Context, s *store.Store, deviceID string) (*File, error) {
	f := &File{
		AppInfo: AppInfo{
			AppName:       AppName,
			ExportedAt:    s.Clock().Now().UTC(),
			SchemaVersion: store.SchemaVersion,
			DeviceID:      deviceID,
		},
		History:     []store.ArchiveRecord{},
		Preferences: map[string]json.RawMessage{},
	}

	st, err := s.LoadCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("export current state: %w", err)
	}
	if st != nil {
		f.CurrentState = *st
	}

	history, err := s.ListArchive(ctx)
	if err != nil {
		return nil, fmt.Errorf("export history: %w", err)
	}
	if history != nil {
		f.History = history
	}

	prefs, err := s.ListPreferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("export preferences: %w", err)
	}
	for _, p := range prefs {
		f.Preferences[p.Name] = p.Value
	}
	return f, nil
}

// Write encodes f as indented JSON.
func Write(w io.Writer, f *File) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return nil
}

// ToJSON writes f to path.
func ToJSON(f *File, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	defer out.Close()

	if err := Write(out, f); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}

// DefaultFileName is the suggested export name for a given day.
func DefaultFileName(day string) string {
	return fmt.Sprintf("%s-export-%s.json", AppName, day)
}
