package configstore

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/riddlematrix/internal/eeprom"
	"github.com/thatsimonsguy/riddlematrix/internal/glyph"
	"github.com/thatsimonsguy/riddlematrix/internal/metrics"
	"github.com/thatsimonsguy/riddlematrix/internal/model"
)

// LoadReport describes what the last Load found and fixed.
type LoadReport struct {
	StoredVersion uint16 // versionInvalid when no plausible tag was found
	VersionOffset int
	Migrated      bool
	Relocated     bool // tag was only present at the legacy offset
	Repairs       []string
}

// WroteBack reports whether Load had to persist a corrected record.
func (r LoadReport) WroteBack() bool {
	return r.Migrated || r.Relocated || len(r.Repairs) > 0
}

func (r *LoadReport) repair(field string) {
	r.Repairs = append(r.Repairs, field)
}

type Store struct {
	dev    eeprom.Device
	image  eeprom.Image
	report LoadReport
}

func New(dev eeprom.Device) *Store {
	return &Store{dev: dev, image: eeprom.Blank()}
}

// LastReport returns the report of the most recent Load.
func (s *Store) LastReport() LoadReport {
	return s.report
}

// Load reads, migrates and sanitizes the stored record. It always returns a
// record in which every field is within range; anything it had to correct is
// saved back before returning.
func (s *Store) Load() model.ConfigRecord {
	img, err := eeprom.ReadImage(s.dev)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read configuration image, using factory defaults")
		img = eeprom.Blank()
	}
	s.image = img

	rec, report := decode(&img)
	s.report = report

	log.Info().
		Uint16("stored_version", report.StoredVersion).
		Int("version_offset", report.VersionOffset).
		Bool("migrated", report.Migrated).
		Int("repairs", len(report.Repairs)).
		Msg("Configuration loaded")

	if report.Migrated {
		metrics.Incr("config.migrations")
	}
	if len(report.Repairs) > 0 {
		metrics.Gauge("config.repairs", float64(len(report.Repairs)))
	}

	if report.WroteBack() {
		log.Info().Strs("repaired", report.Repairs).Msg("Writing corrected configuration back")
		if err := s.Save(&rec); err != nil {
			log.Error().Err(err).Msg("Failed to write corrected configuration")
		}
	}
	return rec
}

// Save serializes rec to its fixed offsets and commits. Bytes outside the
// layout keep whatever the device held at the last Load.
func (s *Store) Save(rec *model.ConfigRecord) error {
	rec.ConfigVersion = model.CurrentConfigVersion
	img := s.image
	encode(&img, rec)
	if err := eeprom.WriteImage(s.dev, &img); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	s.image = img
	log.Debug().Msg("Configuration saved")
	return nil
}

func plausibleVersion(v uint16) bool {
	return v != versionInvalid && v != 0 && v <= model.CurrentConfigVersion
}

// storedVersion returns the version tag and where it was found. The canonical
// offset wins; the legacy offset is only consulted when the canonical one is
// implausible.
func storedVersion(img *eeprom.Image) (uint16, int) {
	if v := img.Uint16(offsetVersion); plausibleVersion(v) {
		return v, offsetVersion
	}
	if v := img.Uint16(offsetLegacyVersion); plausibleVersion(v) {
		return v, offsetLegacyVersion
	}
	return versionInvalid, offsetVersion
}

func decode(img *eeprom.Image) (model.ConfigRecord, LoadReport) {
	rec := Defaults()
	report := LoadReport{}
	report.StoredVersion, report.VersionOffset = storedVersion(img)

	if report.StoredVersion == model.CurrentConfigVersion {
		if report.VersionOffset == offsetLegacyVersion {
			log.Info().Msg("Version tag found at legacy offset 400 only, relocating")
			report.Relocated = true
		}
		readMatrices(img, &rec)
	} else {
		migrate(img, report.StoredVersion, &rec)
		report.Migrated = true
	}

	ssid := readText(img, offsetSSID)
	password := readText(img, offsetPassword)
	hostname := readText(img, offsetHostname)

	rec.DisplayBrightness = img.Int32(offsetBrightness)
	rec.LetterDisplayTime = img.Uint32(offsetDisplayTime)
	rec.AutoDisplayInterval = img.Uint32(offsetAutoInterval)
	autoMode := img.Uint8(offsetAutoMode)
	rec.AutoDisplayMode = autoMode == 1
	rec.WiFiConnectTimeout = img.Int32(offsetConnectTimeout)

	sanitizeNetwork(&rec, ssid, password, hostname, &report)
	sanitizeMatrices(&rec, &report)
	sanitizeScalars(&rec, autoMode, &report)

	rec.ConfigVersion = model.CurrentConfigVersion
	return rec, report
}

func readMatrices(img *eeprom.Image, rec *model.ConfigRecord) {
	for trigger := 0; trigger < model.NumTriggers; trigger++ {
		for day := 0; day < model.NumDays; day++ {
			rec.DailyLetters[trigger][day] = img.Uint8(letterOffset(trigger, day))
			rec.DailyLetterColors[trigger][day] = readColor(img, colorOffset(trigger, day))
			rec.TriggerDelays[trigger][day] = img.Uint32(delayOffset(trigger, day))
		}
	}
}

// migrate rebuilds the matrices from a version 1/2 (or unidentifiable)
// layout. Those layouts kept one letter and color per weekday, which become
// trigger 0; the other triggers never existed and get factory values. Only
// the three legacy delay scalars are read; whatever follows them belongs to
// other fields.
func migrate(img *eeprom.Image, version uint16, rec *model.ConfigRecord) {
	ev := log.Info()
	if version == versionInvalid {
		ev = ev.Str("stored_version", "unknown")
	} else {
		ev = ev.Uint16("stored_version", version)
	}
	ev.Msg("Legacy layout detected, migrating to per-trigger configuration")

	for day := 0; day < model.NumDays; day++ {
		letter := img.Uint8(offsetLetters + day)
		if letter == eeprom.Erased || letter == 0 {
			letter = DefaultLetters[0][day]
		}
		color := readColor(img, offsetColors+day*model.ColorLength)
		if !ValidColor(color) {
			color = DefaultColors[0][day]
		}

		rec.DailyLetters[0][day] = letter
		rec.DailyLetterColors[0][day] = color
		for trigger := 1; trigger < model.NumTriggers; trigger++ {
			rec.DailyLetters[trigger][day] = DefaultLetters[trigger][day]
			rec.DailyLetterColors[trigger][day] = DefaultColors[trigger][day]
		}
	}

	for trigger := 0; trigger < legacyDelayCount; trigger++ {
		value := img.Uint32(offsetDelays + trigger*4)
		if value > MaxTriggerDelay {
			log.Warn().
				Int("trigger", trigger+1).
				Uint32("legacy_delay", value).
				Msg("Legacy trigger delay out of range, using 0 seconds")
			value = 0
		}
		for day := 0; day < model.NumDays; day++ {
			rec.TriggerDelays[trigger][day] = value
		}
	}
}

func sanitizeNetwork(rec *model.ConfigRecord, ssid, password, hostname text, report *LoadReport) {
	rec.WiFiSSID = ssid.value
	rec.WiFiPassword = password.value
	rec.Hostname = hostname.value

	if ssid.corrupt() || ssid.empty() || ssid.whitespaceOnly() {
		log.Warn().Msg("No valid WiFi SSID stored, resetting network settings to defaults")
		rec.WiFiSSID = DefaultSSID
		rec.WiFiPassword = DefaultPassword
		rec.Hostname = DefaultHostname
		rec.WiFiConnectTimeout = DefaultConnectTimeout
		report.repair("wifi_ssid")
		return
	}

	if ssid.stripped {
		noteStripped("wifi_ssid", report)
	}

	// An empty password is an open network and stays empty.
	if password.corrupt() || password.whitespaceOnly() {
		log.Warn().Msg("Invalid WiFi password stored, resetting to default")
		rec.WiFiPassword = DefaultPassword
		report.repair("wifi_password")
	} else if password.stripped {
		noteStripped("wifi_password", report)
	}

	if hostname.corrupt() || hostname.empty() || hostname.whitespaceOnly() {
		log.Warn().Msg("Invalid hostname stored, resetting to default")
		rec.Hostname = DefaultHostname
		report.repair("hostname")
	} else if hostname.stripped {
		noteStripped("hostname", report)
	}
}

// noteStripped records a string whose trailing control bytes were cut, so the
// cleaned value is written back.
func noteStripped(field string, report *LoadReport) {
	log.Warn().Str("field", field).Msg("Trailing control bytes stripped from stored string")
	report.repair(field)
}

func sanitizeMatrices(rec *model.ConfigRecord, report *LoadReport) {
	for trigger := 0; trigger < model.NumTriggers; trigger++ {
		for day := 0; day < model.NumDays; day++ {
			if !glyph.Allowed(rec.DailyLetters[trigger][day]) {
				log.Warn().Int("trigger", trigger+1).Int("day", day).Msg("Invalid letter stored, using default")
				rec.DailyLetters[trigger][day] = DefaultLetters[trigger][day]
				report.repair(fmt.Sprintf("daily_letters[%d][%d]", trigger, day))
			}
			if !ValidColor(rec.DailyLetterColors[trigger][day]) {
				log.Warn().Int("trigger", trigger+1).Int("day", day).Msg("Invalid color stored, using default")
				rec.DailyLetterColors[trigger][day] = DefaultColors[trigger][day]
				report.repair(fmt.Sprintf("daily_letter_colors[%d][%d]", trigger, day))
			}
			if rec.TriggerDelays[trigger][day] > MaxTriggerDelay {
				log.Warn().
					Int("trigger", trigger+1).
					Int("day", day).
					Uint32("delay", rec.TriggerDelays[trigger][day]).
					Msg("Invalid trigger delay stored, using 0 seconds")
				rec.TriggerDelays[trigger][day] = 0
				report.repair(fmt.Sprintf("trigger_delays[%d][%d]", trigger, day))
			}
		}
	}
}

func sanitizeScalars(rec *model.ConfigRecord, autoMode uint8, report *LoadReport) {
	if rec.DisplayBrightness < MinBrightness || rec.DisplayBrightness > MaxBrightness {
		log.Warn().Int32("brightness", rec.DisplayBrightness).Msg("Invalid brightness stored, using default")
		rec.DisplayBrightness = DefaultBrightness
		report.repair("display_brightness")
	}

	if rec.LetterDisplayTime < MinLetterDisplayTime || rec.LetterDisplayTime > MaxDisplayTime {
		log.Warn().Uint32("letter_display_time", rec.LetterDisplayTime).Msg("Invalid letter display time stored, using default")
		rec.LetterDisplayTime = DefaultLetterDisplayTime
		report.repair("letter_display_time")
	}

	original := rec.AutoDisplayInterval
	switch {
	case original == 0 || original == autoIntervalSentinel:
		rec.AutoDisplayInterval = DefaultAutoDisplayInterval
	case original < MinAutoInterval:
		rec.AutoDisplayInterval = MinAutoInterval
	case original > MaxAutoInterval:
		rec.AutoDisplayInterval = MaxAutoInterval
	}
	if rec.AutoDisplayInterval != original {
		log.Warn().
			Uint32("stored", original).
			Uint32("applied", rec.AutoDisplayInterval).
			Msg("Auto display interval out of range, adjusted")
		report.repair("auto_display_interval")
	}

	if rec.WiFiConnectTimeout < MinConnectTimeout || rec.WiFiConnectTimeout > MaxConnectTimeout {
		log.Warn().Int32("timeout", rec.WiFiConnectTimeout).Msg("Invalid WiFi connect timeout stored, using default")
		rec.WiFiConnectTimeout = DefaultConnectTimeout
		report.repair("wifi_connect_timeout")
	}

	if autoMode > 1 {
		log.Warn().Uint8("auto_mode", autoMode).Msg("Invalid auto display mode stored, disabling")
		rec.AutoDisplayMode = false
		report.repair("auto_display_mode")
	}
}

func encode(img *eeprom.Image, rec *model.ConfigRecord) {
	img.PutString(offsetSSID, model.StringLength, rec.WiFiSSID)
	img.PutString(offsetPassword, model.StringLength, rec.WiFiPassword)
	img.PutString(offsetHostname, model.StringLength, rec.Hostname)

	for trigger := 0; trigger < model.NumTriggers; trigger++ {
		for day := 0; day < model.NumDays; day++ {
			img.PutUint8(letterOffset(trigger, day), rec.DailyLetters[trigger][day])
			img.PutString(colorOffset(trigger, day), model.ColorLength, rec.DailyLetterColors[trigger][day])
			img.PutUint32(delayOffset(trigger, day), rec.TriggerDelays[trigger][day])
		}
	}

	img.PutInt32(offsetBrightness, rec.DisplayBrightness)
	img.PutUint32(offsetDisplayTime, rec.LetterDisplayTime)
	img.PutUint32(offsetAutoInterval, rec.AutoDisplayInterval)
	var autoMode uint8
	if rec.AutoDisplayMode {
		autoMode = 1
	}
	img.PutUint8(offsetAutoMode, autoMode)
	img.PutInt32(offsetConnectTimeout, rec.WiFiConnectTimeout)
	img.PutUint16(offsetVersion, model.CurrentConfigVersion)
}
