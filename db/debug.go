package db

import (
	"encoding/hex"
	"fmt"

	"github.com/thatsimonsguy/riddlematrix/internal/configstore"
	"github.com/thatsimonsguy/riddlematrix/internal/eeprom"
	"github.com/thatsimonsguy/riddlematrix/internal/model"
)

// editConfig loads the stored record, lets fn change it and saves it back if
// it still validates.
func editConfig(dbPath string, fn func(rec *model.ConfigRecord) error) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	dev, err := NewEEPROM(conn)
	if err != nil {
		return err
	}
	store := configstore.New(dev)
	rec := store.Load()
	if err := fn(&rec); err != nil {
		return err
	}
	if err := configstore.Validate(&rec); err != nil {
		return fmt.Errorf("refusing to save invalid configuration: %w", err)
	}
	return store.Save(&rec)
}

func ShowConfigCLI(dbPath string) (model.ConfigRecord, configstore.LoadReport, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return model.ConfigRecord{}, configstore.LoadReport{}, err
	}
	defer conn.Close()

	dev, err := NewEEPROM(conn)
	if err != nil {
		return model.ConfigRecord{}, configstore.LoadReport{}, err
	}
	store := configstore.New(dev)
	rec := store.Load()
	return rec, store.LastReport(), nil
}

// DumpImageCLI returns a hex dump of the committed image.
func DumpImageCLI(dbPath string) (string, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	data, found, err := LoadImage(conn)
	if err != nil {
		return "", err
	}
	if !found {
		blank := eeprom.Blank()
		data = blank[:]
	}
	return hex.Dump(data), nil
}

func SetLetterCLI(dbPath string, trigger, day int, letter byte, color string) error {
	if trigger < 0 || trigger >= model.NumTriggers || day < 0 || day >= model.NumDays {
		return fmt.Errorf("trigger %d day %d out of range", trigger+1, day)
	}
	return editConfig(dbPath, func(rec *model.ConfigRecord) error {
		rec.DailyLetters[trigger][day] = letter
		if color != "" {
			rec.DailyLetterColors[trigger][day] = color
		}
		return nil
	})
}

// SetDelayCLI sets one delay, or the whole week of a trigger when day is -1.
func SetDelayCLI(dbPath string, trigger, day int, seconds uint32) error {
	if trigger < 0 || trigger >= model.NumTriggers || day < -1 || day >= model.NumDays {
		return fmt.Errorf("trigger %d day %d out of range", trigger+1, day)
	}
	return editConfig(dbPath, func(rec *model.ConfigRecord) error {
		for d := 0; d < model.NumDays; d++ {
			if day == -1 || d == day {
				rec.TriggerDelays[trigger][d] = seconds
			}
		}
		return nil
	})
}

// FactoryResetCLI erases the stored image and writes the defaults.
func FactoryResetCLI(dbPath string) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := DeleteImage(conn); err != nil {
		return err
	}
	dev, err := NewEEPROM(conn)
	if err != nil {
		return err
	}
	configstore.New(dev).Load()
	return nil
}
