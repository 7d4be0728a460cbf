package db

import (
	"database/sql"
	"fmt"
	"time"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func SaveImageWithTx(tx *sql.Tx, data []byte) error {
	_, err := tx.Exec(`INSERT INTO eeprom (id, data, committed_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, committed_at = excluded.committed_at`,
		data, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}

// DeleteImage removes the stored image so the next load starts erased.
func DeleteImage(db *sql.DB) error {
	if _, err := db.Exec(`DELETE FROM eeprom WHERE id = 1`); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

type DisplayRecord struct {
	ID          int64     `json:"id"`
	Trigger     int       `json:"trigger"`
	Letter      string    `json:"letter"`
	Weekday     int       `json:"weekday"`
	Origin      string    `json:"origin"`
	Auto        bool      `json:"auto"`
	Outcome     string    `json:"outcome"`
	DisplayedAt time.Time `json:"displayed_at"`
}

func RecordDisplay(db *sql.DB, r DisplayRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO display_history (trigger_idx, letter, weekday, origin, auto, outcome, displayed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Trigger, r.Letter, r.Weekday, r.Origin, r.Auto, r.Outcome, r.DisplayedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("record display: %w", err)
	}
	return tx.Commit()
}

// PruneHistory keeps only the newest keep rows.
func PruneHistory(db *sql.DB, keep int) error {
	_, err := db.Exec(`DELETE FROM display_history WHERE id NOT IN (SELECT id FROM display_history ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}
