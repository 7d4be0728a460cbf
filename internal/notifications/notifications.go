package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/riddlematrix/internal/env"
	"github.com/thatsimonsguy/riddlematrix/internal/model"
	"github.com/thatsimonsguy/riddlematrix/internal/trigger"
)

const queueSize = 16

type message struct {
	title string
	body  string
}

var client *http.Client
var server string
var topic string
var initialized atomic.Bool
var queue chan message

// Init initializes the notification client and starts the sender.
func Init() {
	if env.Cfg == nil || env.Cfg.NtfyTopic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return
	}

	client = &http.Client{
		Timeout: 10 * time.Second,
	}
	server = strings.TrimRight(env.Cfg.NtfyServer, "/")
	topic = env.Cfg.NtfyTopic
	queue = make(chan message, queueSize)
	initialized.Store(true)

	go func(q <-chan message) {
		for m := range q {
			if err := Send(m.title, m.body); err != nil {
				log.Warn().Err(err).Str("title", m.title).Msg("Failed to send notification")
			}
		}
	}(queue)

	log.Info().
		Str("server", server).
		Str("topic", topic).
		Msg("Ntfy notifications initialized")
}

// Stop ends the sender. Queued messages are still delivered.
func Stop() {
	if !initialized.CompareAndSwap(true, false) {
		return
	}
	close(queue)
}

// Send publishes one message to ntfy and waits for the answer.
func Send(title, message string) error {
	if client == nil {
		return fmt.Errorf("notifications not initialized")
	}

	payload := map[string]interface{}{
		"topic":   topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest("POST", server+"/", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}

// Notify queues a message without blocking; it is dropped when the queue is full.
func Notify(title, body string) bool {
	if !initialized.Load() {
		return false
	}
	select {
	case queue <- message{title: title, body: body}:
		return true
	default:
		log.Warn().Str("title", title).Msg("Notification queue full, dropping message")
		return false
	}
}

// TriggerExecuted is a scheduler listener. It announces manual displays only.
func TriggerExecuted(e trigger.Event) {
	if e.Auto {
		return
	}
	day := "?"
	if e.Weekday >= 0 && e.Weekday < model.NumDays {
		day = model.WeekdayNames[e.Weekday]
	}
	if e.Err != nil {
		Notify(fmt.Sprintf("Trigger %d failed", e.Index+1),
			fmt.Sprintf("%s trigger on %s: %v", e.Origin, day, e.Err))
		return
	}
	Notify(fmt.Sprintf("Trigger %d", e.Index+1),
		fmt.Sprintf("Showing %q (%s, via %s)", string(rune(e.Letter)), day, e.Origin))
}
