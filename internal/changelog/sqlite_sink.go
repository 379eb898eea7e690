package changelog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DBFileName is the SQLite change log inside the store's base directory.
const DBFileName = "changelog.db"

const schema = `
CREATE TABLE IF NOT EXISTS changes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	op TEXT NOT NULL,
	kind TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	before_summary TEXT NOT NULL DEFAULT '',
	after_summary TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_changes_entity ON changes(kind, entity_id);
`

// SQLiteSink mirrors change records into a SQLite table so the history can
// be queried with plain SQL.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the change database and applies the schema.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening change database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging change database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying change schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Append inserts one change row.
func (s *SQLiteSink) Append(change Change) error {
	_, err := s.db.Exec(
		`INSERT INTO changes (timestamp, op, kind, entity_id, before_summary, after_summary, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		change.Timestamp.Format(time.RFC3339Nano),
		string(change.Op), change.Kind, change.ID,
		change.Before, change.After, change.Detail,
	)
	if err != nil {
		return fmt.Errorf("inserting change: %w", err)
	}
	return nil
}

// History returns the recorded changes for one entity, newest first.
func (s *SQLiteSink) History(kind, entityID string) ([]Change, error) {
	rows, err := s.db.Query(
		`SELECT timestamp, op, kind, entity_id, before_summary, after_summary, detail
		 FROM changes WHERE kind = ? AND entity_id = ? ORDER BY id DESC`,
		kind, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying changes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var changes []Change
	for rows.Next() {
		var c Change
		var ts, op string
		if err := rows.Scan(&ts, &op, &c.Kind, &c.ID, &c.Before, &c.After, &c.Detail); err != nil {
			return nil, fmt.Errorf("scanning change: %w", err)
		}
		c.Op = Op(op)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			c.Timestamp = t
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
