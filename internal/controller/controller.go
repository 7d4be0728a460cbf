// Package controller runs the single control loop. The loop goroutine is the
// only one that touches the scheduler, the weekday cache and the live
// configuration record; other goroutines hand it work through Do.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/riddlematrix/internal/configstore"
	"github.com/thatsimonsguy/riddlematrix/internal/model"
	"github.com/thatsimonsguy/riddlematrix/internal/rtc"
	"github.com/thatsimonsguy/riddlematrix/internal/trigger"
)

const (
	DefaultPollInterval = 10 * time.Millisecond
	syncTimeout         = 10 * time.Second
)

var ErrStopped = errors.New("control loop is not running")

// ErrInvalidRecord wraps every validation failure from SaveRecord.
var ErrInvalidRecord = errors.New("invalid configuration")

type Config struct {
	Scheduler    *trigger.Scheduler
	Cache        *rtc.WeekdayCache
	Store        *configstore.Store
	Record       *model.ConfigRecord
	Clock        clockwork.Clock
	PollInterval time.Duration
	TimeSource   rtc.TimeSource

	// OnRecordChanged runs on the loop after a new record has been saved.
	OnRecordChanged func(*model.ConfigRecord)
}

type Controller struct {
	sched   *trigger.Scheduler
	cache   *rtc.WeekdayCache
	store   *configstore.Store
	rec     *model.ConfigRecord
	clock   clockwork.Clock
	poll    time.Duration
	timeSrc rtc.TimeSource
	changed func(*model.ConfigRecord)

	cmds    chan func()
	stopped chan struct{}
	cron    *cron.Cron
}

func New(cfg Config) *Controller {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Controller{
		sched:   cfg.Scheduler,
		cache:   cfg.Cache,
		store:   cfg.Store,
		rec:     cfg.Record,
		clock:   cfg.Clock,
		poll:    poll,
		timeSrc: cfg.TimeSource,
		changed: cfg.OnRecordChanged,
		cmds:    make(chan func()),
		stopped: make(chan struct{}),
		cron:    cron.New(),
	}
}

// Scheduler, Cache and Record may only be used inside a Do callback.
func (c *Controller) Scheduler() *trigger.Scheduler { return c.sched }
func (c *Controller) Cache() *rtc.WeekdayCache      { return c.cache }
func (c *Controller) Record() *model.ConfigRecord   { return c.rec }

// Run drives the loop until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.stopped)

	ticker := c.clock.NewTicker(c.poll)
	defer ticker.Stop()

	c.cron.Start()
	defer c.cron.Stop()

	log.Info().Dur("poll_interval", c.poll).Msg("Control loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Control loop stopped")
			return
		case fn := <-c.cmds:
			fn()
		case <-ticker.Chan():
			c.Step()
		}
	}
}

// Step runs one polling pass.
func (c *Controller) Step() {
	c.sched.CheckConsole()
	c.sched.ProcessPending()
	c.sched.CheckAutoDisplay()
	c.sched.CheckDisplayTimeout()
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (c *Controller) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case c.cmds <- wrapped:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrStopped
	}
}

// SaveRecord validates rec, persists it and makes it the live record. Must
// run on the loop.
func (c *Controller) SaveRecord(rec model.ConfigRecord) error {
	if err := configstore.Validate(&rec); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if err := c.store.Save(&rec); err != nil {
		return err
	}
	*c.rec = rec
	if c.changed != nil {
		c.changed(c.rec)
	}
	log.Info().Msg("Configuration updated")
	return nil
}

// SyncClock fetches reference time off the loop, then applies it on the loop.
func (c *Controller) SyncClock(ctx context.Context) error {
	if c.timeSrc == nil {
		return errors.New("no time source configured")
	}
	fetchCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	t, err := c.timeSrc.Now(fetchCtx)
	if err != nil {
		log.Warn().Err(err).Msg("Clock sync failed")
		return fmt.Errorf("fetch reference time: %w", err)
	}

	var syncErr error
	if err := c.Do(ctx, func() {
		syncErr = c.cache.Sync(ctx, rtc.FixedSource{T: t})
	}); err != nil {
		return err
	}
	return syncErr
}

// ScheduleSync resynchronizes the clock on the given cron spec.
func (c *Controller) ScheduleSync(ctx context.Context, spec string) error {
	_, err := c.cron.AddFunc(spec, func() {
		if err := c.SyncClock(ctx); err != nil {
			log.Warn().Err(err).Msg("Scheduled clock sync failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}
	log.Info().Str("spec", spec).Msg("Clock sync scheduled")
	return nil
}
