package configstore

import (
	"errors"
	"fmt"

	"github.com/thatsimonsguy/riddlematrix/internal/eeprom"
	"github.com/thatsimonsguy/riddlematrix/internal/glyph"
	"github.com/thatsimonsguy/riddlematrix/internal/model"
)

func isPrintable(b byte) bool {
	return b >= 0x20 && b <= 0x7E
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// text is a character buffer as found on the device, before any correction.
type text struct {
	value        string
	hasErased    bool
	nonPrintable bool
	// stripped is set when trailing control bytes were cut from value.
	stripped bool
}

func (t text) empty() bool { return t.value == "" }

func (t text) whitespaceOnly() bool {
	if t.value == "" {
		return false
	}
	for i := 0; i < len(t.value); i++ {
		if !isSpace(t.value[i]) {
			return false
		}
	}
	return true
}

// corrupt reports bytes that can never be part of a valid stored string.
func (t text) corrupt() bool { return t.hasErased || t.nonPrintable }

func readText(img *eeprom.Image, offset int) text {
	raw := img.String(offset, model.StringLength)
	t := text{}
	for i, b := range raw {
		if b == eeprom.Erased {
			t.hasErased = true
			raw = raw[:i]
			break
		}
	}
	value := trimTrailingNonPrintable(raw)
	t.stripped = len(value) != len(raw)
	for _, b := range value {
		if !isPrintable(b) {
			t.nonPrintable = true
		}
	}
	t.value = string(value)
	return t
}

func trimTrailingNonPrintable(b []byte) []byte {
	for len(b) > 0 && !isPrintable(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}

// readColor decodes one 8-byte color slot, cutting it at the first erased,
// NUL or non-printable byte.
func readColor(img *eeprom.Image, offset int) string {
	raw := img.Bytes(offset, model.ColorLength)
	end := model.ColorLength - 1
	for i := 0; i < model.ColorLength-1; i++ {
		b := raw[i]
		if b == eeprom.Erased || b == 0 || !isPrintable(b) {
			end = i
			break
		}
	}
	return string(raw[:end])
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// ValidColor reports whether s has the exact form "#RRGGBB".
func ValidColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for i := 1; i < 7; i++ {
		if !isHexDigit(s[i]) {
			return false
		}
	}
	return true
}

func validText(s string, allowEmpty bool) bool {
	t := text{value: s}
	for i := 0; i < len(s); i++ {
		if s[i] == eeprom.Erased {
			t.hasErased = true
		} else if !isPrintable(s[i]) {
			t.nonPrintable = true
		}
	}
	if t.corrupt() || t.whitespaceOnly() || len(s) > model.StringLength-1 {
		return false
	}
	return allowEmpty || !t.empty()
}

// Validate checks a record supplied from outside (the web layer) against
// every field constraint without changing it.
func Validate(rec *model.ConfigRecord) error {
	var errs []error
	if !validText(rec.WiFiSSID, false) {
		errs = append(errs, errors.New("wifi_ssid must be 1-49 printable characters"))
	}
	if !validText(rec.WiFiPassword, true) {
		errs = append(errs, errors.New("wifi_password must be printable and at most 49 characters"))
	}
	if !validText(rec.Hostname, false) {
		errs = append(errs, errors.New("hostname must be 1-49 printable characters"))
	}
	if rec.WiFiConnectTimeout < MinConnectTimeout || rec.WiFiConnectTimeout > MaxConnectTimeout {
		errs = append(errs, fmt.Errorf("wifi_connect_timeout %d outside %d-%d", rec.WiFiConnectTimeout, MinConnectTimeout, MaxConnectTimeout))
	}
	if rec.DisplayBrightness < MinBrightness || rec.DisplayBrightness > MaxBrightness {
		errs = append(errs, fmt.Errorf("display_brightness %d outside %d-%d", rec.DisplayBrightness, MinBrightness, MaxBrightness))
	}
	if rec.LetterDisplayTime < MinLetterDisplayTime || rec.LetterDisplayTime > MaxDisplayTime {
		errs = append(errs, fmt.Errorf("letter_display_time %d outside %d-%d", rec.LetterDisplayTime, MinLetterDisplayTime, MaxDisplayTime))
	}
	if rec.AutoDisplayInterval < MinAutoInterval || rec.AutoDisplayInterval > MaxAutoInterval {
		errs = append(errs, fmt.Errorf("auto_display_interval %d outside %d-%d", rec.AutoDisplayInterval, MinAutoInterval, MaxAutoInterval))
	}
	for trigger := 0; trigger < model.NumTriggers; trigger++ {
		for day := 0; day < model.NumDays; day++ {
			if l := rec.DailyLetters[trigger][day]; !glyph.Allowed(l) {
				errs = append(errs, fmt.Errorf("letter %q for trigger %d day %d is not selectable", l, trigger+1, day))
			}
			if c := rec.DailyLetterColors[trigger][day]; !ValidColor(c) {
				errs = append(errs, fmt.Errorf("color %q for trigger %d day %d is not #RRGGBB", c, trigger+1, day))
			}
			if d := rec.TriggerDelays[trigger][day]; d > MaxTriggerDelay {
				errs = append(errs, fmt.Errorf("delay %d for trigger %d day %d exceeds %d", d, trigger+1, day, MaxTriggerDelay))
			}
		}
	}
	return errors.Join(errs...)
}
