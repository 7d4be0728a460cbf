package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LoadImage returns the committed image, if any.
func LoadImage(db *sql.DB) ([]byte, bool, error) {
	var data []byte
	err := db.QueryRow(`SELECT data FROM eeprom WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load image: %w", err)
	}
	return data, true, nil
}

// RecentDisplays returns up to limit history rows, newest first.
func RecentDisplays(db *sql.DB, limit int) ([]DisplayRecord, error) {
	rows, err := db.Query(`SELECT id, trigger_idx, letter, weekday, origin, auto, outcome, displayed_at
		FROM display_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []DisplayRecord
	for rows.Next() {
		var r DisplayRecord
		var at string
		if err := rows.Scan(&r.ID, &r.Trigger, &r.Letter, &r.Weekday, &r.Origin, &r.Auto, &r.Outcome, &at); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.DisplayedAt, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse displayed_at %q: %w", at, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
