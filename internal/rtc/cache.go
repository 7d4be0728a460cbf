package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/riddlematrix/internal/model"
)

const (
	CacheMaxAge      = 5000 * time.Millisecond
	consoleSettle    = 2 * time.Millisecond
	consoleIdleLimit = 20 * time.Millisecond
)

// WeekdayCache remembers the last weekday read from the clock so that the
// shared bus is not taken away from the console more than necessary.
type WeekdayCache struct {
	clock   Clock
	bus     Bus
	console Console
	wall    clockwork.Clock

	weekday   int
	valid     bool
	updatedAt time.Time
}

func NewWeekdayCache(clock Clock, bus Bus, console Console, wall clockwork.Clock) *WeekdayCache {
	return &WeekdayCache{
		clock:   clock,
		bus:     bus,
		console: console,
		wall:    wall,
		weekday: -1,
	}
}

func (c *WeekdayCache) IsValid() bool { return c.valid }

// Get returns the cached weekday (0 = Sunday) or -1 when the cache is invalid.
func (c *WeekdayCache) Get() int {
	if !c.valid {
		return -1
	}
	return c.weekday
}

func (c *WeekdayCache) Invalidate() { c.valid = false }

func (c *WeekdayCache) store(weekday int) {
	if weekday < 0 || weekday >= model.NumDays {
		log.Warn().Int("weekday", weekday).Msg("Clock reported an impossible weekday")
		c.valid = false
		return
	}
	c.weekday = weekday
	c.valid = true
	c.updatedAt = c.wall.Now()
}

// consoleBusy reports whether the console still holds unread bytes after the
// settle delay and, when waitForIdle is set, the bounded idle wait.
func (c *WeekdayCache) consoleBusy(waitForIdle bool) bool {
	if c.console.Pending() == 0 {
		return false
	}
	c.wall.Sleep(consoleSettle)
	if waitForIdle {
		start := c.wall.Now()
		for c.console.Pending() > 0 && c.wall.Since(start) < consoleIdleLimit {
			c.wall.Sleep(consoleSettle)
		}
	}
	return c.console.Pending() > 0
}

func (c *WeekdayCache) read() (model.DateTime, error) {
	c.bus.EnableClock()
	defer c.bus.EnableConsole()
	return c.clock.Now()
}

// Update refreshes the cache unless it is still fresh. It gives up rather
// than switch the bus while console bytes are waiting, since switching would
// lose them.
func (c *WeekdayCache) Update(waitForIdle bool) bool {
	if c.valid && c.wall.Since(c.updatedAt) < CacheMaxAge {
		return true
	}

	if c.consoleBusy(waitForIdle) {
		log.Debug().Msg("Console busy, skipping clock read")
		c.valid = false
		return false
	}

	dt, err := c.read()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read clock")
		c.valid = false
		return false
	}
	c.store(dt.Weekday)
	return c.valid
}

// Weekday refreshes with an idle wait and returns the weekday or -1.
func (c *WeekdayCache) Weekday() int {
	c.Update(true)
	return c.Get()
}

// SetTime sets the clock from a "YYYY-MM-DD" date and "HH:MM:SS" time.
func (c *WeekdayCache) SetTime(date, clock string) error {
	dt, err := ParseDateTime(date, clock)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected clock update")
		return err
	}
	if err := c.adjust(dt); err != nil {
		return err
	}
	log.Info().Str("time", dt.String()).Msg("Clock updated")
	return nil
}

func (c *WeekdayCache) adjust(dt model.DateTime) error {
	c.bus.EnableClock()
	err := c.clock.Adjust(dt)
	c.bus.EnableConsole()
	if err != nil {
		c.valid = false
		return fmt.Errorf("adjust clock: %w", err)
	}
	c.store(dt.Weekday)
	return nil
}

// Sync sets the clock from src. The clock keeps UTC.
func (c *WeekdayCache) Sync(ctx context.Context, src TimeSource) error {
	log.Info().Msg("Synchronizing clock")
	t, err := src.Now(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Time source unavailable")
		return fmt.Errorf("fetch reference time: %w", err)
	}
	dt := FromTime(t.UTC())
	if err := c.adjust(dt); err != nil {
		return err
	}
	log.Info().Str("time", dt.String()).Msg("Clock synchronized")
	return nil
}

// Format reads the clock and renders "<Weekday>, YYYY-MM-DD HH:MM:SS". The
// reading also refreshes the cache.
func (c *WeekdayCache) Format() (string, error) {
	dt, err := c.read()
	if err != nil {
		c.valid = false
		return "", fmt.Errorf("read clock: %w", err)
	}
	c.store(dt.Weekday)
	return dt.String(), nil
}
