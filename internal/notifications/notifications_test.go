package notifications

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/riddlematrix/internal/config"
	"github.com/thatsimonsguy/riddlematrix/internal/env"
	"github.com/thatsimonsguy/riddlematrix/internal/model"
	"github.com/thatsimonsguy/riddlematrix/internal/trigger"
)

type published struct {
	Topic   string `json:"topic"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func startNtfy(t *testing.T, status int) <-chan published {
	t.Helper()
	got := make(chan published, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var p published
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		got <- p
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	env.Cfg = &config.Config{NtfyTopic: "riddle-room", NtfyServer: srv.URL + "/"}
	Init()
	t.Cleanup(func() {
		Stop()
		env.Cfg = nil
	})
	return got
}

func receive(t *testing.T, ch <-chan published) published {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no notification received")
		return published{}
	}
}

func TestSendPublishesJSON(t *testing.T) {
	got := startNtfy(t, http.StatusOK)

	require.NoError(t, Send("Hello", "world"))

	assert.Equal(t, published{Topic: "riddle-room", Title: "Hello", Message: "world"}, receive(t, got))
}

func TestSendReportsServerError(t *testing.T) {
	got := startNtfy(t, http.StatusTooManyRequests)

	err := Send("Hello", "world")

	assert.ErrorContains(t, err, "429")
	receive(t, got)
}

func TestTriggerExecutedSkipsAutoDisplays(t *testing.T) {
	got := startNtfy(t, http.StatusOK)

	TriggerExecuted(trigger.Event{Index: 0, Letter: 'A', Weekday: 1, Origin: model.OriginAuto, Auto: true})
	TriggerExecuted(trigger.Event{Index: 1, Letter: 'Q', Weekday: 2, Origin: model.OriginSerial})

	p := receive(t, got)
	assert.Equal(t, "Trigger 2", p.Title)
	assert.Equal(t, `Showing "Q" (Tuesday, via serial)`, p.Message)
}

func TestTriggerExecutedReportsFailure(t *testing.T) {
	got := startNtfy(t, http.StatusOK)

	TriggerExecuted(trigger.Event{Index: 2, Weekday: -1, Origin: model.OriginWeb, Err: errors.New("clock offline")})

	p := receive(t, got)
	assert.Equal(t, "Trigger 3 failed", p.Title)
	assert.Equal(t, "web trigger on ?: clock offline", p.Message)
}

func TestDisabledWithoutTopic(t *testing.T) {
	env.Cfg = &config.Config{}
	t.Cleanup(func() { env.Cfg = nil })
	Init()

	assert.False(t, Notify("Hello", "world"))
}
