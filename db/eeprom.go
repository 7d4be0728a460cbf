package db

import (
	"database/sql"
	"fmt"

	"github.com/thatsimonsguy/riddlematrix/internal/eeprom"
)

// EEPROM is an eeprom.Device persisted in the eeprom table. Reads and writes
// go to a RAM staging copy; Commit stores the whole image in one transaction.
type EEPROM struct {
	db      *sql.DB
	staging eeprom.Image
}

// NewEEPROM loads the stored image, or starts from an erased one if none has
// been committed yet.
func NewEEPROM(db *sql.DB) (*EEPROM, error) {
	e := &EEPROM{db: db, staging: eeprom.Blank()}
	data, found, err := LoadImage(db)
	if err != nil {
		return nil, err
	}
	if found {
		copy(e.staging[:], data)
	}
	return e, nil
}

func (e *EEPROM) Size() int { return eeprom.Size }

func (e *EEPROM) Read(offset int, p []byte) error {
	if offset < 0 || offset+len(p) > eeprom.Size {
		return eeprom.ErrOutOfRange
	}
	copy(p, e.staging[offset:])
	return nil
}

func (e *EEPROM) Write(offset int, p []byte) error {
	if offset < 0 || offset+len(p) > eeprom.Size {
		return eeprom.ErrOutOfRange
	}
	copy(e.staging[offset:], p)
	return nil
}

func (e *EEPROM) Commit() error {
	tx, err := StartTransaction(e.db)
	if err != nil {
		return err
	}
	if err := SaveImageWithTx(tx, e.staging[:]); err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("commit eeprom image: %w", err)
	}
	return CommitTransaction(tx)
}
