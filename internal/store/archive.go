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
)

// GetArchive returns the record for periodStart, or nil if there is none.
func (s *Store) GetArchive(ctx context.Context, periodStart string) (*ArchiveRecord, error) {
	var raw string
	err := s.withTx(ctx, "get archive", func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`SELECT payload FROM archive WHERE period_start = ?`, periodStart,
		).Scan(&raw)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := DecodeArchive([]byte(raw))
	if err != nil {
		return nil, &StoreError{Code: ErrCodeTransaction, Op: "get archive", Err: err}
	}
	return &rec, nil
}

// ListArchive returns every archive record, newest period first. The
// ordering is part of the contract. Undecodable rows are logged and skipped.
func (s *Store) ListArchive(ctx context.Context) ([]ArchiveRecord, error) {
	var raws []string
	err := s.withTx(ctx, "list archive", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT payload FROM archive ORDER BY period_start DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return err
			}
			raws = append(raws, raw)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	records := make([]ArchiveRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := DecodeArchive([]byte(raw))
		if err != nil {
			slog.Warn("skipping unreadable archive row", "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// PutArchive upserts rec keyed by PeriodStartDate. Writing a record
// identical to the stored one changes nothing and logs nothing.
func (s *Store) PutArchive(ctx context.Context, rec ArchiveRecord, opts ...WriteOption) error {
	if rec.PeriodStartDate == "" {
		return &StoreError{Code: ErrCodeTransaction, Op: "put archive", Err: errors.New("missing periodStartDate")}
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal archive record: %w", err)
	}

	op := OpUpdate
	unchanged := false
	err = s.withTx(ctx, "put archive", func(tx *sql.Tx) error {
		var prev string
		switch err := tx.QueryRowContext(ctx,
			`SELECT payload FROM archive WHERE period_start = ?`, rec.PeriodStartDate,
		).Scan(&prev); {
		case errors.Is(err, sql.ErrNoRows):
			op = OpCreate
		case err != nil:
			// The prior lookup is optional; proceed as if absent.
			slog.Debug("archive lookup before upsert failed", "period", rec.PeriodStartDate, "error", err)
			op = OpCreate
		case bytes.Equal([]byte(prev), payload):
			unchanged = true
			return nil
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO archive (period_start, id, schema_version, payload, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(period_start) DO UPDATE SET
				id = excluded.id,
				schema_version = excluded.schema_version,
				payload = excluded.payload,
				updated_at = excluded.updated_at`,
			rec.PeriodStartDate, rec.ID, rec.Metadata.SchemaVersion, string(payload),
			s.clock.Now().UTC().Format(time.RFC3339Nano),
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
		RecordType: RecordArchive,
		Operation:  op,
		RecordID:   rec.ID,
		Payload:    payload,
	})
	return nil
}

// ClearArchive removes every archive record.
func (s *Store) ClearArchive(ctx context.Context, opts ...WriteOption) error {
	err := s.withTx(ctx, "clear archive", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM archive`)
		return err
	})
	if err != nil {
		return err
	}
	s.AppendChange(ctx, ChangeLogEntry{RecordType: RecordArchive, Operation: OpClear})
	return nil
}
