package rtc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/riddlematrix/internal/model"
	"github.com/thatsimonsguy/riddlematrix/internal/pinctrl"
)

// SystemClock emulates an adjustable hardware clock on top of the host wall
// clock: Adjust stores an offset instead of touching the host time.
type SystemClock struct {
	wall   clockwork.Clock
	loc    *time.Location
	offset time.Duration
}

func NewSystemClock(wall clockwork.Clock, loc *time.Location) *SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return &SystemClock{wall: wall, loc: loc}
}

func (c *SystemClock) Now() (model.DateTime, error) {
	return FromTime(c.wall.Now().Add(c.offset).In(c.loc)), nil
}

func (c *SystemClock) Adjust(dt model.DateTime) error {
	c.offset = ToTime(dt, c.loc).Sub(c.wall.Now())
	return nil
}

// NopBus is used when clock and console do not share a line.
type NopBus struct{}

func (NopBus) EnableClock()   {}
func (NopBus) EnableConsole() {}

// PinctrlBus drives the transceiver enable line: high hands the bus to the
// clock, low gives it back to the console.
type PinctrlBus struct {
	Pin int
}

func (b PinctrlBus) EnableClock() {
	if err := pinctrl.Drive(b.Pin, true); err != nil {
		log.Warn().Err(err).Int("pin", b.Pin).Msg("Failed to select clock bus")
	}
}

func (b PinctrlBus) EnableConsole() {
	if err := pinctrl.Drive(b.Pin, false); err != nil {
		log.Warn().Err(err).Int("pin", b.Pin).Msg("Failed to select console bus")
	}
}

// HTTPDateSource takes reference time from the Date header of an HTTP HEAD
// response.
type HTTPDateSource struct {
	URL    string
	Client *http.Client
}

func (s HTTPDateSource) Now(ctx context.Context) (time.Time, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.URL, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("build time request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("query %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	t, err := http.ParseTime(resp.Header.Get("Date"))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse Date header from %s: %w", s.URL, err)
	}
	return t, nil
}

// HostSource trusts the host clock, which is kept in sync by the OS.
type HostSource struct {
	Wall clockwork.Clock
}

func (s HostSource) Now(context.Context) (time.Time, error) {
	return s.Wall.Now(), nil
}

// FixedSource always reports the same instant. It lets a reading taken off
// the control loop be applied on it.
type FixedSource struct {
	T time.Time
}

func (s FixedSource) Now(context.Context) (time.Time, error) {
	return s.T, nil
}
