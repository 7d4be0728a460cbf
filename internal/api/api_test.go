package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/riddlematrix/db"
	"github.com/thatsimonsguy/riddlematrix/internal/configstore"
	"github.com/thatsimonsguy/riddlematrix/internal/controller"
	"github.com/thatsimonsguy/riddlematrix/internal/display"
	"github.com/thatsimonsguy/riddlematrix/internal/model"
	"github.com/thatsimonsguy/riddlematrix/internal/rtc"
	"github.com/thatsimonsguy/riddlematrix/internal/trigger"
)

type quietConsole struct{}

func (quietConsole) Pending() int           { return 0 }
func (quietConsole) ReadByte() (byte, bool) { return 0, false }

type testEnv struct {
	server   *Server
	handler  http.Handler
	database *sql.DB
	rec      *model.ConfigRecord
	panel    *display.Panel
}

func setupTestServer(t *testing.T, opts Options) *testEnv {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	dev, err := db.NewEEPROM(database)
	require.NoError(t, err)
	store := configstore.New(dev)
	rec := store.Load()

	// Wednesday; the fake wall clock never ticks the loop, so queued triggers stay queued.
	wall := clockwork.NewFakeClockAt(time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC))
	panel := display.NewPanel(wall)
	cache := rtc.NewWeekdayCache(rtc.NewSystemClock(wall, time.UTC), rtc.NopBus{}, quietConsole{}, wall)
	sched := trigger.New(trigger.Deps{
		Record:   &rec,
		Weekdays: cache,
		Renderer: panel,
		Clock:    wall,
		Console:  quietConsole{},
	})
	ctrl := controller.New(controller.Config{
		Scheduler:  sched,
		Cache:      cache,
		Store:      store,
		Record:     &rec,
		Clock:      wall,
		TimeSource: rtc.FixedSource{T: time.Date(2024, 12, 25, 18, 30, 0, 0, time.UTC)},
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ctrl.Run(ctx)

	s := NewServer(ctrl, database, opts)
	return &testEnv{server: s, handler: s.Handler(), database: database, rec: &rec, panel: panel}
}

func (e *testEnv) request(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestGetConfigOmitsPassword(t *testing.T) {
	env := setupTestServer(t, Options{})

	w := env.request(t, http.MethodGet, "/api/config", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), configstore.DefaultPassword)
	resp := decode[ConfigResponse](t, w)
	assert.Equal(t, configstore.DefaultSSID, resp.WiFiSSID)
	assert.Equal(t, "A", resp.DailyLetters[0][0])
	assert.Equal(t, model.CurrentConfigVersion, resp.ConfigVersion)
}

func password(s string) *string { return &s }

func TestSetWiFiKeepsPasswordWhenAbsent(t *testing.T) {
	env := setupTestServer(t, Options{})

	w := env.request(t, http.MethodPut, "/api/config/wifi", WiFiRequest{SSID: "attic", Hostname: "riddle"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "attic", decode[ConfigResponse](t, w).WiFiSSID)
	assert.Equal(t, configstore.DefaultPassword, env.rec.WiFiPassword)

	w = env.request(t, http.MethodPut, "/api/config/wifi", WiFiRequest{SSID: "attic", Hostname: "riddle", Password: password("hunter22")})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hunter22", env.rec.WiFiPassword)

	dev, err := db.NewEEPROM(env.database)
	require.NoError(t, err)
	stored := configstore.New(dev).Load()
	assert.Equal(t, "attic", stored.WiFiSSID)
	assert.Equal(t, "hunter22", stored.WiFiPassword)
}

func TestSetWiFiEmptyPasswordSelectsOpenNetwork(t *testing.T) {
	env := setupTestServer(t, Options{})

	w := env.request(t, http.MethodPut, "/api/config/wifi", WiFiRequest{SSID: "cafe", Hostname: "riddle", Password: password("")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, env.rec.WiFiPassword)

	dev, err := db.NewEEPROM(env.database)
	require.NoError(t, err)
	stored := configstore.New(dev).Load()
	assert.Equal(t, "cafe", stored.WiFiSSID)
	assert.Empty(t, stored.WiFiPassword)
}

func TestConfigUpdateStorageFailureIsServerError(t *testing.T) {
	env := setupTestServer(t, Options{})
	require.NoError(t, env.database.Close())

	w := env.request(t, http.MethodPut, "/api/config/wifi", WiFiRequest{SSID: "attic", Hostname: "riddle"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, configstore.DefaultSSID, env.rec.WiFiSSID)
}

func TestSetWiFiRejectsEmptySSID(t *testing.T) {
	env := setupTestServer(t, Options{})

	w := env.request(t, http.MethodPut, "/api/config/wifi", WiFiRequest{Hostname: "riddle"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, configstore.DefaultSSID, env.rec.WiFiSSID)
}

func TestSetDisplayConfig(t *testing.T) {
	env := setupTestServer(t, Options{})

	var delays [model.NumTriggers][model.NumDays]uint32
	delays[2][6] = 90
	w := env.request(t, http.MethodPut, "/api/config/display", DisplayConfigRequest{
		Brightness:          50,
		LetterDisplayTime:   20,
		AutoDisplayInterval: 60,
		AutoDisplayMode:     true,
		TriggerDelays:       &delays,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int32(50), env.rec.DisplayBrightness)
	assert.True(t, env.rec.AutoDisplayMode)
	assert.Equal(t, uint32(90), env.rec.TriggerDelays[2][6])
}

func TestSetDisplayConfigRejectsOutOfRange(t *testing.T) {
	env := setupTestServer(t, Options{})

	w := env.request(t, http.MethodPut, "/api/config/display", DisplayConfigRequest{
		Brightness:          50,
		LetterDisplayTime:   20,
		AutoDisplayInterval: 5,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[ErrorResponse](t, w).Error, "auto_display_interval")
	assert.Equal(t, int32(configstore.DefaultBrightness), env.rec.DisplayBrightness)
}

func TestSetLetters(t *testing.T) {
	env := setupTestServer(t, Options{})

	var req LettersRequest
	for tr := 0; tr < model.NumTriggers; tr++ {
		for d := 0; d < model.NumDays; d++ {
			req.Letters[tr][d] = "?"
			req.Colors[tr][d] = "#00FF00"
		}
	}
	req.Letters[1][3] = "*"

	w := env.request(t, http.MethodPut, "/api/config/letters", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, byte('*'), env.rec.DailyLetters[1][3])
	assert.Equal(t, "#00FF00", env.rec.DailyLetterColors[0][0])

	req.Letters[0][0] = "AB"
	w = env.request(t, http.MethodPut, "/api/config/letters", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req.Letters[0][0] = "a"
	w = env.request(t, http.MethodPut, "/api/config/letters", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, byte('?'), env.rec.DailyLetters[0][0])
}

func TestPostTrigger(t *testing.T) {
	env := setupTestServer(t, Options{})

	w := env.request(t, http.MethodPost, "/api/trigger?trigger=2", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	resp := decode[TriggerResponse](t, w)
	assert.Equal(t, 2, resp.Trigger)
	assert.True(t, resp.Queued)
	assert.False(t, resp.DisplayActive)

	w = env.request(t, http.MethodPost, "/api/trigger?trigger=2", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	for _, bad := range []string{"0", "4", "x", ""} {
		w = env.request(t, http.MethodPost, "/api/trigger?trigger="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestPostTriggerReportsActiveDisplay(t *testing.T) {
	env := setupTestServer(t, Options{})
	require.Equal(t, http.StatusOK, env.request(t, http.MethodPost, "/api/display?char=A&trigger=1", nil).Code)

	w := env.request(t, http.MethodPost, "/api/trigger?trigger=3", nil)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, decode[TriggerResponse](t, w).DisplayActive)
}

func TestDisplayAndClear(t *testing.T) {
	env := setupTestServer(t, Options{})

	w := env.request(t, http.MethodPost, "/api/display?char=%3F&trigger=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	frame := env.panel.Frame()
	assert.True(t, frame.Active)
	assert.Equal(t, "riddler", string(frame.Bitmap))

	w = env.request(t, http.MethodPost, "/api/display?char=B&trigger=1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.request(t, http.MethodDelete, "/api/display", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, env.panel.Frame().Active)

	w = env.request(t, http.MethodPost, "/api/display?char=%24&trigger=1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.request(t, http.MethodPost, "/api/display?char=AB&trigger=1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimeEndpoints(t *testing.T) {
	env := setupTestServer(t, Options{})

	w := env.request(t, http.MethodGet, "/api/time", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, TimeResponse{Time: "Wednesday, 2024-03-06 09:00:00", Weekday: 3}, decode[TimeResponse](t, w))

	w = env.request(t, http.MethodPut, "/api/time", TimeRequest{Date: "2024-02-30", Time: "10:00:00"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(t, http.MethodPut, "/api/time", TimeRequest{Date: "2024-03-09", Time: "10:00:00"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, TimeResponse{Time: "Saturday, 2024-03-09 10:00:00", Weekday: 6}, decode[TimeResponse](t, w))

	w = env.request(t, http.MethodPost, "/api/time/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, TimeResponse{Time: "Wednesday, 2024-12-25 18:30:00", Weekday: 3}, decode[TimeResponse](t, w))
}

func TestGetLetters(t *testing.T) {
	env := setupTestServer(t, Options{})

	w := env.request(t, http.MethodGet, "/api/letters", nil)

	require.Equal(t, http.StatusOK, w.Code)
	letters := decode[[]LetterInfo](t, w)
	assert.Contains(t, letters, LetterInfo{Letter: "A", Label: "A"})
	assert.Contains(t, letters, LetterInfo{Letter: "?", Label: "Riddler"})
}

func TestGetHistory(t *testing.T) {
	env := setupTestServer(t, Options{})

	w := env.request(t, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	require.NoError(t, db.RecordDisplay(env.database, db.DisplayRecord{
		Trigger: 1, Letter: "Q", Weekday: 2, Origin: "web", Outcome: "ok",
		DisplayedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}))
	w = env.request(t, http.MethodGet, "/api/history?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	records := decode[[]db.DisplayRecord](t, w)
	require.Len(t, records, 1)
	assert.Equal(t, "Q", records[0].Letter)

	w = env.request(t, http.MethodGet, "/api/history?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMutatingRequestsAreRateLimited(t *testing.T) {
	env := setupTestServer(t, Options{RateLimit: 0.001, RateBurst: 1})

	assert.Equal(t, http.StatusAccepted, env.request(t, http.MethodPost, "/api/trigger?trigger=1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.request(t, http.MethodPost, "/api/trigger?trigger=2", nil).Code)
	assert.Equal(t, http.StatusOK, env.request(t, http.MethodGet, "/api/config", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestServer(t, Options{})

	w := env.request(t, http.MethodOptions, "/api/config/wifi", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestDisconnectWithoutListener(t *testing.T) {
	env := setupTestServer(t, Options{})

	assert.False(t, env.server.Connected())
	env.server.Disconnect()
	assert.NoError(t, env.server.Shutdown(context.Background()))
}
