// Package store persists care events and device mappings in SQLite.
// It exclusively owns both tables; open-session state is derived by
// query, never stored.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// Sentinel errors forming the storage error taxonomy. Callers match with
// errors.Is; anything else returned from this package is a storage
// failure wrapping the driver error.
var (
	// ErrValidation marks a malformed event or mapping rejected before
	// persistence.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks a device-mapping uniqueness violation.
	ErrConflict = errors.New("mapping conflict")

	// ErrNotFound marks a lookup for a row that does not exist.
	ErrNotFound = errors.New("not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS care_events (
	id               TEXT PRIMARY KEY,
	event_type       TEXT NOT NULL,
	timestamp        TEXT NOT NULL,
	duration_minutes INTEGER,
	notes            TEXT NOT NULL DEFAULT '',
	device_source    TEXT NOT NULL DEFAULT '',
	auto_closed      INTEGER NOT NULL DEFAULT 0,
	orphan           INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_care_events_timestamp ON care_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_care_events_type_ts ON care_events(event_type, timestamp);

CREATE TABLE IF NOT EXISTS device_mappings (
	id            TEXT PRIMARY KEY,
	device_id     TEXT NOT NULL,
	button_action TEXT NOT NULL,
	care_action   TEXT NOT NULL,
	device_name   TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	UNIQUE(device_id, button_action)
);
`

// Store wraps the SQLite database holding the two durable tables.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies
// the schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc.org/sqlite serializes through a single connection; more
	// would just contend on the file lock.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Healthy reports whether the database answers a trivial query.
func (s *Store) Healthy(ctx context.Context) bool {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one) == nil
}
