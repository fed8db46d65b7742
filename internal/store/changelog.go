package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// AppendChange inserts e into the change log. The log is best-effort:
// failures are logged and never reach the caller.
func (s *Store) AppendChange(ctx context.Context, e ChangeLogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.Now()
	}
	var payload sql.NullString
	if len(e.Payload) > 0 {
		payload = sql.NullString{String: string(e.Payload), Valid: true}
	}

	err := s.withTx(ctx, "append change", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO change_log (timestamp, record_type, operation, record_id, payload)
			VALUES (?, ?, ?, ?, ?)`,
			e.Timestamp.UTC().Format(time.RFC3339Nano), string(e.RecordType),
			string(e.Operation), e.RecordID, payload,
		)
		return err
	})
	if err != nil {
		slog.Warn("change log append failed",
			"record_type", e.RecordType, "operation", e.Operation, "record_id", e.RecordID, "error", err)
	}
}

// ListChanges returns entries with seq greater than since, oldest first.
// A limit of zero or less means no limit.
func (s *Store) ListChanges(ctx context.Context, since int64, limit int) ([]ChangeLogEntry, error) {
	query := `SELECT seq, timestamp, record_type, operation, record_id, payload
		FROM change_log WHERE seq > ? ORDER BY seq ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	var entries []ChangeLogEntry
	err := s.withTx(ctx, "list changes", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, since)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e ChangeLogEntry
			var ts, recordType, op string
			var payload sql.NullString
			if err := rows.Scan(&e.Seq, &ts, &recordType, &op, &e.RecordID, &payload); err != nil {
				return err
			}
			e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
			e.RecordType = RecordType(recordType)
			e.Operation = Operation(op)
			if payload.Valid {
				e.Payload = json.RawMessage(payload.String)
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	return entries, err
}

// ClearChanges empties the change log. Administrative use only; nothing in
// the normal tracking or import paths calls it.
func (s *Store) ClearChanges(ctx context.Context) error {
	return s.withTx(ctx, "clear changes", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM change_log`)
		return err
	})
}
