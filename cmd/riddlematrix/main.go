package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/riddlematrix/db"
	"github.com/thatsimonsguy/riddlematrix/internal/api"
	"github.com/thatsimonsguy/riddlematrix/internal/config"
	"github.com/thatsimonsguy/riddlematrix/internal/configstore"
	"github.com/thatsimonsguy/riddlematrix/internal/console"
	"github.com/thatsimonsguy/riddlematrix/internal/controller"
	"github.com/thatsimonsguy/riddlematrix/internal/display"
	"github.com/thatsimonsguy/riddlematrix/internal/env"
	"github.com/thatsimonsguy/riddlematrix/internal/gpio"
	"github.com/thatsimonsguy/riddlematrix/internal/logging"
	"github.com/thatsimonsguy/riddlematrix/internal/metrics"
	"github.com/thatsimonsguy/riddlematrix/internal/model"
	"github.com/thatsimonsguy/riddlematrix/internal/notifications"
	"github.com/thatsimonsguy/riddlematrix/internal/rtc"
	"github.com/thatsimonsguy/riddlematrix/internal/trigger"
	"github.com/thatsimonsguy/riddlematrix/system/shutdown"
)

const historyQueue = 32

func main() {
	cfg := config.Load()
	env.Cfg = &cfg
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("db_path", cfg.DBPath).
		Str("http_addr", cfg.HTTPAddr).
		Msg("Starting riddlematrix")

	metrics.Init(cfg.Datadog)
	notifications.Init()

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	shutdown.OnShutdown(func() { conn.Close() })

	dev, err := db.NewEEPROM(conn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load EEPROM image")
	}
	store := configstore.New(dev)
	rec := store.Load()

	wall := clockwork.NewRealClock()
	panel := display.NewPanel(wall)
	panel.SetBrightness(rec.DisplayBrightness)

	var bus rtc.Bus = rtc.NopBus{}
	if cfg.BusSelectPin != nil {
		if err := gpio.ValidateBusSelect(*cfg.BusSelectPin); err != nil {
			log.Fatal().Err(err).Msg("Refusing to share the clock bus")
		}
		bus = rtc.PinctrlBus{Pin: *cfg.BusSelectPin}
	}

	var in io.Reader = os.Stdin
	if cfg.SerialPort != "" {
		port, err := console.OpenSerial(cfg.SerialPort, cfg.SerialBaud)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open serial console")
		}
		shutdown.OnShutdown(func() { port.Close() })
		in = port
	}
	cons := console.NewStream(in)

	cache := rtc.NewWeekdayCache(rtc.NewSystemClock(wall, time.UTC), bus, cons, wall)

	history := make(chan trigger.Event, historyQueue)
	sched := trigger.New(trigger.Deps{
		Record:   &rec,
		Weekdays: cache,
		Renderer: panel,
		Clock:    wall,
		Console:  cons,
		Listener: func(e trigger.Event) {
			notifications.TriggerExecuted(e)
			select {
			case history <- e:
			default:
				log.Warn().Int("trigger", e.Index+1).Msg("History queue full, dropping entry")
			}
		},
	})

	var timeSrc rtc.TimeSource = rtc.HostSource{Wall: wall}
	if cfg.TimeSourceURL != "" {
		timeSrc = rtc.HTTPDateSource{URL: cfg.TimeSourceURL, Client: &http.Client{Timeout: 10 * time.Second}}
	}

	ctrl := controller.New(controller.Config{
		Scheduler:    sched,
		Cache:        cache,
		Store:        store,
		Record:       &rec,
		Clock:        wall,
		PollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		TimeSource:   timeSrc,
		OnRecordChanged: func(r *model.ConfigRecord) {
			panel.SetBrightness(r.DisplayBrightness)
		},
	})

	server := api.NewServer(ctrl, conn, api.Options{
		Panel:     panel.Hub(),
		RateLimit: cfg.APIRateLimit,
		RateBurst: cfg.APIRateBurst,
	})
	sched.SetNetwork(server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Watch(ctx, cfg.ConfigFile, func(next config.Config) {
		logging.SetLevel(next.LogLevel)
	}); err != nil {
		log.Warn().Err(err).Msg("Config changes will need a restart")
	}

	go panel.Hub().Run(ctx)
	go recordHistory(ctx, conn, history, cfg.HistoryKeep)

	if cfg.NTPSyncSpec != "" {
		if err := ctrl.ScheduleSync(ctx, cfg.NTPSyncSpec); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule clock sync")
		}
	}
	go func() {
		if err := ctrl.SyncClock(ctx); err != nil {
			log.Warn().Err(err).Msg("Initial clock sync failed")
		}
	}()

	go func() {
		err := server.Start(cfg.HTTPAddr)
		if errors.Is(err, http.ErrServerClosed) {
			log.Warn().Msg("Web server stopped, serial triggers only")
			return
		}
		shutdown.ShutdownWithError(err, "Web server failed")
	}()

	shutdown.OnShutdown(func() {
		if err := panel.Clear(); err != nil {
			log.Warn().Err(err).Msg("Failed to clear panel")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Web server did not stop cleanly")
		}
	})

	ctrl.Run(ctx)
	shutdown.Shutdown()
}

// recordHistory persists display outcomes off the control loop.
func recordHistory(ctx context.Context, conn *sql.DB, events <-chan trigger.Event, keep int) {
	written := 0
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			outcome := "ok"
			if e.Err != nil {
				outcome = e.Err.Error()
			}
			letter := ""
			if e.Letter != 0 {
				letter = string(rune(e.Letter))
			}
			if err := db.RecordDisplay(conn, db.DisplayRecord{
				Trigger:     e.Index,
				Letter:      letter,
				Weekday:     e.Weekday,
				Origin:      string(e.Origin),
				Auto:        e.Auto,
				Outcome:     outcome,
				DisplayedAt: e.At,
			}); err != nil {
				log.Warn().Err(err).Msg("Failed to record display")
				continue
			}
			written++
			if keep > 0 && written%50 == 0 {
				if err := db.PruneHistory(conn, keep); err != nil {
					log.Warn().Err(err).Msg("Failed to prune display history")
				}
			}
		}
	}
}
