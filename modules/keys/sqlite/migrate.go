package sqlite

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS api_keys (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	key        TEXT    NOT NULL UNIQUE,
	owner      TEXT    NOT NULL,
	created_at TEXT    NOT NULL,
	expires_at TEXT,
	active     INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_api_keys_active ON api_keys(active);
`

// migrate creates the schema. Idempotent; safe to run on every start.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("keys.sqlite: migrate: %w", err)
	}
	return nil
}
