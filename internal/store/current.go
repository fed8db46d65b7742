package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Slot holds the raw CurrentState document. It is deliberately simpler than
// the SQLite collections: no transactions, whole-document reads and writes.
type Slot interface {
	Load() ([]byte, error) // nil, nil when empty
	Save(data []byte) error
	Clear() error
}

// FileSlot keeps the document in a single file, replaced via rename.
type FileSlot struct {
	path string
}

func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path}
}

func (f *FileSlot) Load() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (f *FileSlot) Save(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileSlot) Clear() error {
	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemorySlot is a Slot for tests.
type MemorySlot struct {
	mu   sync.Mutex
	data []byte
}

func NewMemorySlot() *MemorySlot { return &MemorySlot{} }

func (m *MemorySlot) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemorySlot) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *MemorySlot) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

// LoadCurrent returns the stored draft, or nil if none exists yet.
func (s *Store) LoadCurrent(ctx context.Context) (*CurrentState, error) {
	data, err := s.slot.Load()
	if err != nil {
		return nil, fmt.Errorf("load current state: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	st, err := DecodeCurrentState(data)
	if err != nil {
		return nil, fmt.Errorf("load current state: %w", err)
	}
	return &st, nil
}

// SaveCurrent replaces the stored draft.
func (s *Store) SaveCurrent(ctx context.Context, st CurrentState, opts ...WriteOption) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal current state: %w", err)
	}
	prev, _ := s.slot.Load()
	if err := s.slot.Save(data); err != nil {
		return fmt.Errorf("save current state: %w", err)
	}

	op := OpUpdate
	if len(prev) == 0 {
		op = OpCreate
	}
	if cfg := applyWriteOptions(opts); cfg.op != "" {
		op = cfg.op
	}
	s.AppendChange(ctx, ChangeLogEntry{
		RecordType: RecordCurrentState,
		Operation:  op,
		RecordID:   st.CurrentPeriodStartDate,
		Payload:    data,
	})
	return nil
}

// ClearCurrent removes the stored draft.
func (s *Store) ClearCurrent(ctx context.Context) error {
	if err := s.slot.Clear(); err != nil {
		return fmt.Errorf("clear current state: %w", err)
	}
	s.AppendChange(ctx, ChangeLogEntry{RecordType: RecordCurrentState, Operation: OpClear})
	return nil
}
