package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS eeprom (
	id           INTEGER PRIMARY KEY CHECK(id=1),
	data         BLOB NOT NULL,
	committed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS display_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	trigger_idx INTEGER NOT NULL,
	letter      TEXT NOT NULL,
	weekday     INTEGER NOT NULL,
	origin      TEXT NOT NULL,
	auto        BOOLEAN NOT NULL DEFAULT FALSE,
	outcome     TEXT NOT NULL,
	displayed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_display_history_displayed_at ON display_history(displayed_at);
`

// Open opens (creating if needed) the database at path and applies the schema.
// ":memory:" is accepted for tests.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Database ready")
	return db, nil
}
