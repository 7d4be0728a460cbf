// Package trigger decides which glyph to show, for which trigger and when.
//
// Requests are queued with a deadline (now plus the configured per-weekday
// delay) and executed by ProcessPending once the deadline has passed, so a
// pending delay never blocks the control loop. At most one glyph is on the
// panel at a time.
package trigger

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/riddlematrix/internal/glyph"
	"github.com/thatsimonsguy/riddlematrix/internal/metrics"
	"github.com/thatsimonsguy/riddlematrix/internal/model"
)

// QueueCapacity bounds the pending queue.
const QueueCapacity = model.NumTriggers * 3

var (
	ErrInvalidTrigger       = errors.New("trigger index out of range")
	ErrQueueFull            = errors.New("pending queue is full")
	ErrAlreadyPending       = errors.New("trigger already pending")
	ErrTriggerAlreadyActive = errors.New("a letter is already displayed")
	ErrInvalidWeekday       = errors.New("clock did not report a valid weekday")
	ErrLetterNotFound       = errors.New("no glyph for letter")
)

// Renderer draws on the physical (or virtual) panel.
type Renderer interface {
	Draw(index int, bitmap glyph.BitmapID, color colorful.Color) error
	Clear() error
}

// Network is the radio link that is torn down before hardware-triggered draws.
type Network interface {
	Connected() bool
	Disconnect()
}

// Weekdays resolves today's weekday, 0 = Sunday, -1 when unknown.
type Weekdays interface {
	Weekday() int
}

// Console yields bytes received on the trigger line.
type Console interface {
	ReadByte() (byte, bool)
}

// Pending is a trigger accepted for execution that waits for its deadline.
type Pending struct {
	Index     int          `json:"index"`
	ExecuteAt time.Time    `json:"execute_at"`
	Origin    model.Origin `json:"origin"`
	Weekday   int          `json:"weekday"`
}

// Event reports the outcome of one display attempt.
type Event struct {
	Index   int
	Letter  byte
	Weekday int
	Origin  model.Origin
	Auto    bool
	At      time.Time
	Err     error
}

type Deps struct {
	Record   *model.ConfigRecord
	Weekdays Weekdays
	Renderer Renderer
	Clock    clockwork.Clock

	// Optional.
	Network  Network
	Console  Console
	Listener func(Event)
}

// pick returns a uniform value in [0, n). Replaced in tests.
var pick = rand.IntN

type Scheduler struct {
	rec      *model.ConfigRecord
	weekdays Weekdays
	renderer Renderer
	clock    clockwork.Clock
	network  Network
	console  Console
	listener func(Event)

	queue []Pending

	active    bool
	cleared   bool
	startedAt time.Time
	lastAuto  time.Time
}

func New(d Deps) *Scheduler {
	return &Scheduler{
		rec:      d.Record,
		weekdays: d.Weekdays,
		renderer: d.Renderer,
		clock:    d.Clock,
		network:  d.Network,
		console:  d.Console,
		listener: d.Listener,
		queue:    make([]Pending, 0, QueueCapacity),
		lastAuto: d.Clock.Now(),
	}
}

// SetNetwork replaces the network link. Call it before the control loop starts.
func (s *Scheduler) SetNetwork(n Network) { s.network = n }

func (s *Scheduler) Active() bool { return s.active }

func (s *Scheduler) IsPending(index int) bool {
	for _, p := range s.queue {
		if p.Index == index {
			return true
		}
	}
	return false
}

// Pending returns a copy of the queue in service order.
func (s *Scheduler) Pending() []Pending {
	out := make([]Pending, len(s.queue))
	copy(out, s.queue)
	return out
}

func validWeekday(day int) bool {
	return day >= 0 && day < model.NumDays
}

// Enqueue schedules trigger index for execution after its delay for today.
func (s *Scheduler) Enqueue(index int, origin model.Origin) error {
	err := s.enqueue(index, origin)
	if err != nil {
		metrics.Incr("trigger.rejected", "origin:"+string(origin))
		log.Warn().Err(err).Int("trigger", index+1).Str("origin", string(origin)).Msg("Trigger rejected")
		return err
	}
	metrics.Incr("trigger.enqueued", "origin:"+string(origin))
	metrics.Gauge("trigger.queue_depth", float64(len(s.queue)))
	return nil
}

func (s *Scheduler) enqueue(index int, origin model.Origin) error {
	if index < 0 || index >= model.NumTriggers {
		return fmt.Errorf("trigger %d: %w", index+1, ErrInvalidTrigger)
	}
	if len(s.queue) >= QueueCapacity {
		return ErrQueueFull
	}
	if s.IsPending(index) {
		return fmt.Errorf("trigger %d: %w", index+1, ErrAlreadyPending)
	}

	weekday := s.weekdays.Weekday()
	day := weekday
	if !validWeekday(day) {
		log.Warn().Int("weekday", weekday).Msg("Weekday unknown, using Sunday's delay")
		day = 0
	}
	delay := time.Duration(s.rec.TriggerDelays[index][day]) * time.Second
	p := Pending{
		Index:     index,
		ExecuteAt: s.clock.Now().Add(delay),
		Origin:    origin,
		Weekday:   weekday,
	}
	s.queue = append(s.queue, p)

	log.Info().
		Int("trigger", index+1).
		Str("origin", string(origin)).
		Dur("delay", delay).
		Time("execute_at", p.ExecuteAt).
		Msg("Trigger queued")
	return nil
}

// ProcessPending executes the first queued trigger whose deadline has passed.
// Entries due at exactly the same instant are moved to the front, in their
// original order, so they run back to back. It reports whether a trigger was
// executed.
func (s *Scheduler) ProcessPending() bool {
	if s.active || len(s.queue) == 0 {
		return false
	}

	now := s.clock.Now()
	due := -1
	for i, p := range s.queue {
		if !now.Before(p.ExecuteAt) {
			due = i
			break
		}
	}
	if due < 0 {
		return false
	}

	next := s.queue[due]
	rest := make([]Pending, 0, len(s.queue)-1)
	rest = append(rest, s.queue[:due]...)
	rest = append(rest, s.queue[due+1:]...)

	s.queue = s.queue[:0]
	for _, p := range rest {
		if p.ExecuteAt.Equal(next.ExecuteAt) {
			s.queue = append(s.queue, p)
		}
	}
	for _, p := range rest {
		if !p.ExecuteAt.Equal(next.ExecuteAt) {
			s.queue = append(s.queue, p)
		}
	}
	metrics.Gauge("trigger.queue_depth", float64(len(s.queue)))

	if err := s.HandleTrigger(next.Index, false, next.Origin); err != nil {
		log.Warn().Err(err).Int("trigger", next.Index+1).Msg("Queued trigger did not display")
	}
	return true
}

// HandleTrigger shows today's letter for index. Hardware-originated manual
// triggers drop the network link first.
func (s *Scheduler) HandleTrigger(index int, isAuto bool, origin model.Origin) error {
	if index < 0 || index >= model.NumTriggers {
		log.Warn().Int("trigger", index+1).Msg("Unknown trigger, using trigger 1")
		index = 0
	}

	if !isAuto && origin != model.OriginWeb && s.network != nil && s.network.Connected() {
		log.Warn().Int("trigger", index+1).Msg("Disconnecting network for trigger")
		s.network.Disconnect()
	}

	weekday := s.weekdays.Weekday()
	if !validWeekday(weekday) {
		log.Warn().Int("trigger", index+1).Msg("Invalid weekday, display skipped")
		s.emit(Event{Index: index, Weekday: weekday, Origin: origin, Auto: isAuto, Err: ErrInvalidWeekday})
		return ErrInvalidWeekday
	}

	letter := s.rec.DailyLetters[index][weekday]
	log.Info().
		Str("weekday", model.WeekdayNames[weekday]).
		Int("trigger", index+1).
		Str("letter", string(letter)).
		Msg("Trigger fired")

	shown, _, err := s.displayLetter(index, letter)
	s.emit(Event{Index: index, Letter: shown, Weekday: weekday, Origin: origin, Auto: isAuto, Err: err})
	return err
}

func (s *Scheduler) emit(e Event) {
	e.At = s.clock.Now()
	outcome := "ok"
	if e.Err != nil {
		outcome = "failed"
	}
	metrics.Incr("trigger.executed", "outcome:"+outcome, fmt.Sprintf("trigger:%d", e.Index+1))
	if s.listener != nil {
		s.listener(e)
	}
}
