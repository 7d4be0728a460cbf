// Package rtc wraps the battery-backed clock that tells the scheduler which
// weekday it is. The clock shares a bus with the serial console, so every
// read switches the bus over and back.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thatsimonsguy/riddlematrix/internal/model"
)

var (
	ErrInvalidFormat = errors.New("invalid date or time format")
	ErrInvalidYear   = errors.New("year outside 2000-2099")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidTime   = errors.New("invalid time of day")
)

// Clock is the calendar clock collaborator.
type Clock interface {
	Now() (model.DateTime, error)
	Adjust(model.DateTime) error
}

// Bus switches the shared line between the clock and the console.
type Bus interface {
	EnableClock()
	EnableConsole()
}

// Console reports how many received bytes are waiting to be read.
type Console interface {
	Pending() int
}

// TimeSource supplies reference time for Sync.
type TimeSource interface {
	Now(ctx context.Context) (time.Time, error)
}

func isLeapYear(y int) bool {
	return (y%4 == 0 && y%100 != 0) || y%400 == 0
}

func daysInMonth(y, m int) int {
	if m < 1 || m > 12 {
		return 0
	}
	days := [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}[m-1]
	if m == 2 && isLeapYear(y) {
		days = 29
	}
	return days
}

// ParseDateTime validates a "YYYY-MM-DD" date and an "HH:MM:SS" time and
// returns the calendar reading with its weekday filled in.
func ParseDateTime(date, clock string) (model.DateTime, error) {
	var dt model.DateTime
	if n, err := fmt.Sscanf(date, "%d-%d-%d", &dt.Year, &dt.Month, &dt.Day); err != nil || n != 3 {
		return dt, fmt.Errorf("date %q: %w", date, ErrInvalidFormat)
	}
	if n, err := fmt.Sscanf(clock, "%d:%d:%d", &dt.Hour, &dt.Minute, &dt.Second); err != nil || n != 3 {
		return dt, fmt.Errorf("time %q: %w", clock, ErrInvalidFormat)
	}

	if dt.Year < 2000 || dt.Year > 2099 {
		return dt, fmt.Errorf("%d: %w", dt.Year, ErrInvalidYear)
	}
	if maxDay := daysInMonth(dt.Year, dt.Month); maxDay == 0 || dt.Day < 1 || dt.Day > maxDay {
		return dt, fmt.Errorf("%s: %w", date, ErrInvalidDate)
	}
	if dt.Hour < 0 || dt.Hour > 23 || dt.Minute < 0 || dt.Minute > 59 || dt.Second < 0 || dt.Second > 59 {
		return dt, fmt.Errorf("%s: %w", clock, ErrInvalidTime)
	}

	dt.Weekday = int(time.Date(dt.Year, time.Month(dt.Month), dt.Day, 0, 0, 0, 0, time.UTC).Weekday())
	return dt, nil
}

// FromTime converts a wall-clock instant to a calendar reading.
func FromTime(t time.Time) model.DateTime {
	return model.DateTime{
		Year:    t.Year(),
		Month:   int(t.Month()),
		Day:     t.Day(),
		Hour:    t.Hour(),
		Minute:  t.Minute(),
		Second:  t.Second(),
		Weekday: int(t.Weekday()),
	}
}

// ToTime interprets dt in loc.
func ToTime(dt model.DateTime, loc *time.Location) time.Time {
	return time.Date(dt.Year, time.Month(dt.Month), dt.Day, dt.Hour, dt.Minute, dt.Second, 0, loc)
}
