package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sadopc/tally/internal/period"
)

func (s *Store) GetPreference(ctx context.Context, name string) (*PreferenceRecord, error) {
	p := &PreferenceRecord{Name: name}
	var value, createdAt, updatedAt string
	err := s.withTx(ctx, "get preference", func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`SELECT value, created_at, updated_at FROM preferences WHERE name = ?`, name,
		).Scan(&value, &createdAt, &updatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Value = json.RawMessage(value)
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return p, nil
}

// PutPreference stores value (JSON-encoded) under name, keeping the
// original creation time on update. Writing the stored value again is a
// no-op.
func (s *Store) PutPreference(ctx context.Context, name string, value any, opts ...WriteOption) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal preference %q: %w", name, err)
	}
	now := s.clock.Now().UTC().Format(time.RFC3339Nano)

	op := OpCreate
	unchanged := false
	err = s.withTx(ctx, "put preference", func(tx *sql.Tx) error {
		var prev string
		err := tx.QueryRowContext(ctx,
			`SELECT value FROM preferences WHERE name = ?`, name,
		).Scan(&prev)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		case bytes.Equal([]byte(prev), encoded):
			unchanged = true
			return nil
		default:
			op = OpUpdate
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO preferences (name, value, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			name, string(encoded), now, now,
		)
		return err
	})
	if err != nil || unchanged {
		return err
	}

	if cfg := applyWriteOptions(opts); cfg.op != "" {
		op = cfg.op
	}
	s.AppendChange(ctx, ChangeLogEntry{
		RecordType: RecordPreference,
		Operation:  op,
		RecordID:   name,
		Payload:    encoded,
	})
	return nil
}

func (s *Store) ListPreferences(ctx context.Context) ([]PreferenceRecord, error) {
	var prefs []PreferenceRecord
	err := s.withTx(ctx, "list preferences", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT name, value, created_at, updated_at FROM preferences ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p PreferenceRecord
			var value, createdAt, updatedAt string
			if err := rows.Scan(&p.Name, &value, &createdAt, &updatedAt); err != nil {
				return err
			}
			p.Value = json.RawMessage(value)
			p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
			p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
			prefs = append(prefs, p)
		}
		return rows.Err()
	})
	return prefs, err
}

func (s *Store) ClearPreferences(ctx context.Context) error {
	err := s.withTx(ctx, "clear preferences", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM preferences`)
		return err
	})
	if err != nil {
		return err
	}
	s.AppendChange(ctx, ChangeLogEntry{RecordType: RecordPreference, Operation: OpClear})
	return nil
}

// WeekStart returns the configured period start weekday. Read failures
// and unparseable values fall back to the default.
func (s *Store) WeekStart(ctx context.Context) period.Weekday {
	p, err := s.GetPreference(ctx, PrefWeekStartDay)
	if err != nil {
		slog.Warn("reading week start preference failed, using default", "error", err)
		return period.DefaultWeekday
	}
	if p == nil {
		return period.DefaultWeekday
	}
	var v string
	if err := json.Unmarshal(p.Value, &v); err != nil {
		return period.DefaultWeekday
	}
	return period.WeekdayOrDefault(v)
}

func (s *Store) SetWeekStart(ctx context.Context, w period.Weekday) error {
	return s.PutPreference(ctx, PrefWeekStartDay, string(w))
}

// Categories returns the stored category list, or nil when unset or
// unreadable.
func (s *Store) Categories(ctx context.Context) []Category {
	p, err := s.GetPreference(ctx, PrefCategories)
	if err != nil || p == nil {
		return nil
	}
	var cats []Category
	if err := json.Unmarshal(p.Value, &cats); err != nil {
		slog.Warn("categories preference is malformed", "error", err)
		return nil
	}
	return cats
}

func (s *Store) SetCategories(ctx context.Context, cats []Category) error {
	return s.PutPreference(ctx, PrefCategories, cats)
}
