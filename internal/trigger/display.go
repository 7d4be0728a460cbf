package trigger

import (
	"fmt"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/riddlematrix/internal/glyph"
	"github.com/thatsimonsguy/riddlematrix/internal/metrics"
	"github.com/thatsimonsguy/riddlematrix/internal/model"
)

var white = colorful.Color{R: 1, G: 1, B: 1}

func parseColor(s string) (colorful.Color, bool) {
	if len(s) != 7 || s[0] != '#' {
		return white, false
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return white, false
	}
	return c, true
}

// DisplayLetter draws letter for trigger index right away, bypassing the
// queue. It is reported to listeners as a web request.
func (s *Scheduler) DisplayLetter(index int, letter byte) error {
	if index < 0 || index >= model.NumTriggers {
		log.Warn().Int("trigger", index+1).Msg("Invalid trigger index, using trigger 1")
		index = 0
	}
	shown, weekday, err := s.displayLetter(index, letter)
	s.emit(Event{Index: index, Letter: shown, Weekday: weekday, Origin: model.OriginWeb, Err: err})
	return err
}

// displayLetter returns the letter actually resolved and the weekday used.
func (s *Scheduler) displayLetter(index int, letter byte) (byte, int, error) {
	if s.active {
		log.Warn().Int("trigger", index+1).Msg("A letter is already displayed")
		return letter, -1, ErrTriggerAlreadyActive
	}

	if letter == glyph.Wildcard {
		letter = glyph.WildcardAlternates[pick(len(glyph.WildcardAlternates))]
		log.Debug().Str("letter", string(letter)).Msg("Wildcard resolved")
	}

	today := s.weekdays.Weekday()
	if !validWeekday(today) {
		return letter, today, ErrInvalidWeekday
	}

	stored := s.rec.DailyLetterColors[index][today]
	color, ok := parseColor(stored)
	if !ok {
		log.Warn().Str("color", stored).Msg("Invalid color, using white")
	}

	bitmap, found := glyph.Lookup(letter)
	if !found {
		log.Warn().Str("letter", string(letter)).Msg("No glyph for letter")
		return letter, today, fmt.Errorf("%q: %w", letter, ErrLetterNotFound)
	}

	if err := s.renderer.Clear(); err != nil {
		return letter, today, fmt.Errorf("clear panel: %w", err)
	}
	if err := s.renderer.Draw(index, bitmap, color); err != nil {
		return letter, today, fmt.Errorf("draw %s: %w", bitmap, err)
	}

	s.active = true
	s.cleared = false
	s.startedAt = s.clock.Now()
	metrics.Gauge("display.active", 1)

	log.Info().
		Int("trigger", index+1).
		Str("letter", string(letter)).
		Str("color", color.Hex()).
		Uint32("seconds", s.rec.LetterDisplayTime).
		Msg("Letter displayed")
	return letter, today, nil
}

// ClearDisplay blanks the panel. Clearing an already cleared panel does
// nothing.
func (s *Scheduler) ClearDisplay() {
	if s.cleared {
		log.Debug().Msg("Display already cleared")
		return
	}
	if err := s.renderer.Clear(); err != nil {
		log.Error().Err(err).Msg("Failed to clear display")
	}
	s.cleared = true
	s.active = false
	metrics.Gauge("display.active", 0)
	log.Info().Msg("Display cleared")
}

// CheckDisplayTimeout clears the panel once the letter display time is over.
func (s *Scheduler) CheckDisplayTimeout() {
	if !s.active {
		return
	}
	if s.clock.Since(s.startedAt) >= time.Duration(s.rec.LetterDisplayTime)*time.Second {
		s.ClearDisplay()
	}
}

// CheckAutoDisplay shows trigger 1's letter every auto display interval while
// auto mode is on. Auto displays skip the delay and keep the network up.
func (s *Scheduler) CheckAutoDisplay() {
	if !s.rec.AutoDisplayMode {
		return
	}
	interval := time.Duration(s.rec.AutoDisplayInterval) * time.Second
	if s.clock.Since(s.lastAuto) < interval {
		return
	}
	s.lastAuto = s.clock.Now()
	log.Info().Msg("Auto mode: showing today's letter")
	if err := s.HandleTrigger(0, true, model.OriginAuto); err != nil {
		log.Debug().Err(err).Msg("Auto display skipped")
	}
}

// CheckConsole consumes one byte from the trigger line. '1' to '3' queue the
// matching trigger.
func (s *Scheduler) CheckConsole() {
	if s.console == nil {
		return
	}
	b, ok := s.console.ReadByte()
	if !ok {
		return
	}
	if b < '1' || b >= '1'+model.NumTriggers {
		log.Warn().Str("byte", fmt.Sprintf("%q", b)).Msg("Unknown trigger received")
		return
	}
	log.Info().Str("byte", string(b)).Msg("Trigger received")
	if err := s.Enqueue(int(b-'1'), model.OriginSerial); err != nil {
		log.Debug().Err(err).Msg("Console trigger dropped")
	}
}
