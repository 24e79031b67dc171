package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLiteSchema is the journal_events table written by the SQLite sink.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS journal_events (
	event_id   TEXT PRIMARY KEY,
	session_id TEXT NOT NULL DEFAULT '',
	product_id INTEGER NOT NULL DEFAULT 0,
	kind       TEXT NOT NULL,
	price      REAL NOT NULL DEFAULT 0,
	detail     TEXT NOT NULL DEFAULT '{}',
	timestamp  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_events_session ON journal_events(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_journal_events_kind ON journal_events(kind, timestamp);
`

// SQLite stores events in the journal_events table. The caller owns db;
// NewSQLite only creates the table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates the journal_events table in db if needed.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(SQLiteSchema); err != nil {
		return nil, fmt.Errorf("journal: sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Send(ctx context.Context, ev Event) error {
	detail := []byte("{}")
	if len(ev.Detail) > 0 {
		var err error
		if detail, err = json.Marshal(ev.Detail); err != nil {
			return fmt.Errorf("journal: sqlite detail: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO journal_events (event_id, session_id, product_id, kind, price, detail, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionID, ev.ProductID, string(ev.Kind), ev.Price, string(detail), ev.Timestamp)
	if err != nil {
		return fmt.Errorf("journal: sqlite insert %s: %w", ev.ID, err)
	}
	return nil
}

func (s *SQLite) Close() error { return nil }
