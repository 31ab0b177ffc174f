package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/wicaksono/opsagent/pkg/action"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	action     TEXT NOT NULL,
	arguments  TEXT NOT NULL,
	risk       TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	actor      TEXT NOT NULL,
	timestamp  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_request ON audit_log(request_id);
`

// SQLiteAuditStore is a durable append-only audit store
type SQLiteAuditStore struct {
	db *sql.DB
}

// NewSQLiteAuditStore opens (and initializes) the audit database
func NewSQLiteAuditStore(path string) (*SQLiteAuditStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	return &SQLiteAuditStore{db: db}, nil
}

// Append inserts a record. There is no update or delete path.
func (s *SQLiteAuditStore) Append(ctx context.Context, record AuditRecord) error {
	args, err := json.Marshal(record.Arguments)
	if err != nil {
		return fmt.Errorf("failed to encode audit arguments: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, request_id, action, arguments, risk, outcome, actor, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.RequestID, record.Action, string(args),
		string(record.Risk), string(record.Outcome), record.Actor,
		record.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// List returns the most recent records, newest first
func (s *SQLiteAuditStore) List(ctx context.Context, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, action, arguments, risk, outcome, actor, timestamp
		 FROM audit_log ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	records := []AuditRecord{}
	for rows.Next() {
		var record AuditRecord
		var args string
		var risk, outcome string
		var ts int64

		if err := rows.Scan(&record.ID, &record.RequestID, &record.Action,
			&args, &risk, &outcome, &record.Actor, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}

		if err := json.Unmarshal([]byte(args), &record.Arguments); err != nil {
			return nil, fmt.Errorf("failed to decode audit arguments: %w", err)
		}
		record.Risk = action.RiskClass(risk)
		record.Outcome = Status(outcome)
		record.Timestamp = time.UnixMilli(ts)

		records = append(records, record)
	}

	return records, rows.Err()
}

// Close closes the underlying database
func (s *SQLiteAuditStore) Close() error {
	return s.db.Close()
}
