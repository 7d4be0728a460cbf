package gpio

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/riddlematrix/internal/pinctrl"
)

var readPin = pinctrl.ReadPin
var drive = pinctrl.Drive

// ValidateBusSelect checks that the bus-select line is an output parked on
// the console side. A line in any other state is parked and re-read; an
// error means the clock and console could talk over each other.
func ValidateBusSelect(pin int) error {
	state, err := readPin(pin)
	if err != nil {
		return fmt.Errorf("failed to read bus select pin (GPIO %d): %w", pin, err)
	}
	if consoleSide(state) {
		log.Debug().Int("pin", pin).Msg("Bus select pin parked on console")
		return nil
	}

	log.Warn().
		Int("pin", pin).
		Str("mode", state.Mode).
		Str("level", state.Level).
		Msg("Bus select pin in wrong state at startup, parking on console")

	if err := drive(pin, false); err != nil {
		return fmt.Errorf("failed to park bus select pin (GPIO %d): %w", pin, err)
	}
	state, err = readPin(pin)
	if err != nil {
		return fmt.Errorf("failed to re-read bus select pin (GPIO %d): %w", pin, err)
	}
	if !consoleSide(state) {
		return fmt.Errorf("pin %d is in wrong state after parking (mode=%s level=%s)", pin, state.Mode, state.Level)
	}
	return nil
}

func consoleSide(s *pinctrl.PinState) bool {
	return s.Mode == "op" && s.Level == "lo"
}
