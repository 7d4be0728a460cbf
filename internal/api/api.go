package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/thatsimonsguy/riddlematrix/db"
	"github.com/thatsimonsguy/riddlematrix/internal/controller"
	"github.com/thatsimonsguy/riddlematrix/internal/glyph"
	"github.com/thatsimonsguy/riddlematrix/internal/model"
	"github.com/thatsimonsguy/riddlematrix/internal/rtc"
	"github.com/thatsimonsguy/riddlematrix/internal/trigger"
)

const defaultHistoryLimit = 50

type Server struct {
	ctrl    *controller.Controller
	db      *sql.DB
	ws      http.Handler
	limiter *rate.Limiter

	mu        sync.Mutex
	srv       *http.Server
	connected bool
}

type Options struct {
	// Panel streams frames on /ws when set.
	Panel http.Handler
	// RateLimit is the sustained number of mutating requests per second.
	RateLimit float64
	RateBurst int
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// WiFiRequest replaces the network block. An absent password keeps the stored
// one; an empty string selects an open network.
type WiFiRequest struct {
	SSID     string  `json:"ssid"`
	Password *string `json:"password,omitempty"`
	Hostname string `json:"hostname"`
	Timeout  *int32 `json:"wifi_connect_timeout,omitempty"`
}

type DisplayConfigRequest struct {
	Brightness          int32  `json:"display_brightness"`
	LetterDisplayTime   uint32 `json:"letter_display_time"`
	AutoDisplayInterval uint32 `json:"auto_display_interval"`
	AutoDisplayMode     bool   `json:"auto_display_mode"`

	TriggerDelays *[model.NumTriggers][model.NumDays]uint32 `json:"trigger_delays,omitempty"`
}

// LettersRequest carries the letter matrix as one-character strings so the
// JSON stays readable.
type LettersRequest struct {
	Letters [model.NumTriggers][model.NumDays]string `json:"daily_letters"`
	Colors  [model.NumTriggers][model.NumDays]string `json:"daily_letter_colors"`
}

type ConfigResponse struct {
	WiFiSSID            string `json:"wifi_ssid"`
	Hostname            string `json:"hostname"`
	WiFiConnectTimeout  int32  `json:"wifi_connect_timeout"`
	DisplayBrightness   int32  `json:"display_brightness"`
	LetterDisplayTime   uint32 `json:"letter_display_time"`
	AutoDisplayInterval uint32 `json:"auto_display_interval"`
	AutoDisplayMode     bool   `json:"auto_display_mode"`
	ConfigVersion       uint16 `json:"config_version"`

	DailyLetters      [model.NumTriggers][model.NumDays]string `json:"daily_letters"`
	DailyLetterColors [model.NumTriggers][model.NumDays]string `json:"daily_letter_colors"`
	TriggerDelays     [model.NumTriggers][model.NumDays]uint32 `json:"trigger_delays"`
}

type TriggerResponse struct {
	Trigger       int  `json:"trigger"`
	Queued        bool `json:"queued"`
	DisplayActive bool `json:"display_active"`
}

type TimeResponse struct {
	Time    string `json:"time"`
	Weekday int    `json:"weekday"`
}

type TimeRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type LetterInfo struct {
	Letter string `json:"letter"`
	Label  string `json:"label"`
}

func NewServer(ctrl *controller.Controller, database *sql.DB, opts Options) *Server {
	limit := rate.Limit(opts.RateLimit)
	if opts.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Server{
		ctrl:    ctrl,
		db:      database,
		ws:      opts.Panel,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Handler returns the routed API with CORS and rate limiting applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/config", s.getConfig)
	mux.HandleFunc("PUT /api/config/wifi", s.setWiFi)
	mux.HandleFunc("PUT /api/config/display", s.setDisplayConfig)
	mux.HandleFunc("PUT /api/config/letters", s.setLetters)

	mux.HandleFunc("POST /api/trigger", s.postTrigger)
	mux.HandleFunc("POST /api/display", s.postDisplay)
	mux.HandleFunc("DELETE /api/display", s.deleteDisplay)

	mux.HandleFunc("GET /api/time", s.getTime)
	mux.HandleFunc("PUT /api/time", s.setTime)
	mux.HandleFunc("POST /api/time/sync", s.syncTime)

	mux.HandleFunc("GET /api/letters", s.getLetters)
	mux.HandleFunc("GET /api/history", s.getHistory)

	if s.ws != nil {
		mux.Handle("GET /ws", s.ws)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodGet && !s.limiter.Allow() {
			s.writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		mux.ServeHTTP(w, r)
	})
}

// Start serves until Disconnect or a listener failure. A Disconnect returns
// http.ErrServerClosed.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.connected = true
	s.mu.Unlock()

	log.Info().Str("address", addr).Msg("Starting REST API server")
	err := srv.ListenAndServe()

	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return err
}

// Connected reports whether the listener is up.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Disconnect drops the listener and every open connection. It is called from
// the control loop, so it never waits for in-flight handlers.
func (s *Server) Disconnect() {
	s.mu.Lock()
	srv := s.srv
	s.connected = false
	s.mu.Unlock()
	if srv == nil {
		return
	}
	log.Warn().Msg("Shutting down web server")
	go func() {
		if err := srv.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close web server")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// do runs fn on the control loop and maps a stopped loop to 503.
func (s *Server) do(w http.ResponseWriter, r *http.Request, fn func()) bool {
	if err := s.ctrl.Do(r.Context(), fn); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Control loop unavailable")
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return false
	}
	return true
}

func toResponse(rec *model.ConfigRecord) ConfigResponse {
	resp := ConfigResponse{
		WiFiSSID:            rec.WiFiSSID,
		Hostname:            rec.Hostname,
		WiFiConnectTimeout:  rec.WiFiConnectTimeout,
		DisplayBrightness:   rec.DisplayBrightness,
		LetterDisplayTime:   rec.LetterDisplayTime,
		AutoDisplayInterval: rec.AutoDisplayInterval,
		AutoDisplayMode:     rec.AutoDisplayMode,
		DailyLetterColors:   rec.DailyLetterColors,
		TriggerDelays:       rec.TriggerDelays,
		ConfigVersion:       rec.ConfigVersion,
	}
	for t := range rec.DailyLetters {
		for d, b := range rec.DailyLetters[t] {
			resp.DailyLetters[t][d] = string(rune(b))
		}
	}
	return resp
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	var resp ConfigResponse
	if !s.do(w, r, func() { resp = toResponse(s.ctrl.Record()) }) {
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// update copies the live record, applies edit and saves the result. Any
// error from edit or validation is a client error.
func (s *Server) update(w http.ResponseWriter, r *http.Request, what string, edit func(rec *model.ConfigRecord) error) {
	var saveErr, editErr error
	var resp ConfigResponse
	ok := s.do(w, r, func() {
		rec := *s.ctrl.Record()
		if editErr = edit(&rec); editErr != nil {
			return
		}
		if saveErr = s.ctrl.SaveRecord(rec); saveErr == nil {
			resp = toResponse(s.ctrl.Record())
		}
	})
	if !ok {
		return
	}
	if editErr != nil {
		s.writeError(w, http.StatusBadRequest, editErr.Error())
		return
	}
	if errors.Is(saveErr, controller.ErrInvalidRecord) {
		log.Warn().Err(saveErr).Str("section", what).Msg("Rejected configuration update")
		s.writeError(w, http.StatusBadRequest, saveErr.Error())
		return
	}
	if saveErr != nil {
		log.Error().Err(saveErr).Str("section", what).Msg("Failed to persist configuration update")
		s.writeError(w, http.StatusInternalServerError, "Failed to save configuration")
		return
	}
	log.Info().Str("section", what).Msg("Configuration updated via API")
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) setWiFi(w http.ResponseWriter, r *http.Request) {
	var req WiFiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	s.update(w, r, "wifi", func(rec *model.ConfigRecord) error {
		rec.WiFiSSID = req.SSID
		rec.Hostname = req.Hostname
		if req.Password != nil {
			rec.WiFiPassword = *req.Password
		}
		if req.Timeout != nil {
			rec.WiFiConnectTimeout = *req.Timeout
		}
		return nil
	})
}

func (s *Server) setDisplayConfig(w http.ResponseWriter, r *http.Request) {
	var req DisplayConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	s.update(w, r, "display", func(rec *model.ConfigRecord) error {
		rec.DisplayBrightness = req.Brightness
		rec.LetterDisplayTime = req.LetterDisplayTime
		rec.AutoDisplayInterval = req.AutoDisplayInterval
		rec.AutoDisplayMode = req.AutoDisplayMode
		if req.TriggerDelays != nil {
			rec.TriggerDelays = *req.TriggerDelays
		}
		return nil
	})
}

func (s *Server) setLetters(w http.ResponseWriter, r *http.Request) {
	var req LettersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	s.update(w, r, "letters", func(rec *model.ConfigRecord) error {
		for t := range req.Letters {
			for d, l := range req.Letters[t] {
				if len(l) != 1 {
					return fmt.Errorf("trigger %d %s: letter must be a single character", t+1, model.WeekdayNames[d])
				}
				rec.DailyLetters[t][d] = l[0]
			}
		}
		rec.DailyLetterColors = req.Colors
		return nil
	})
}

func triggerParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(r.URL.Query().Get("trigger"))
	if err != nil || n < 1 || n > model.NumTriggers {
		return 0, fmt.Errorf("trigger must be 1-%d", model.NumTriggers)
	}
	return n - 1, nil
}

func (s *Server) postTrigger(w http.ResponseWriter, r *http.Request) {
	index, err := triggerParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var resp TriggerResponse
	var enqErr error
	if !s.do(w, r, func() {
		enqErr = s.ctrl.Scheduler().Enqueue(index, model.OriginWeb)
		resp = TriggerResponse{
			Trigger:       index + 1,
			Queued:        enqErr == nil,
			DisplayActive: s.ctrl.Scheduler().Active(),
		}
	}) {
		return
	}

	switch {
	case enqErr == nil:
		s.writeJSON(w, http.StatusAccepted, resp)
	case errors.Is(enqErr, trigger.ErrAlreadyPending):
		s.writeError(w, http.StatusConflict, enqErr.Error())
	default:
		s.writeError(w, http.StatusServiceUnavailable, enqErr.Error())
	}
}

func (s *Server) postDisplay(w http.ResponseWriter, r *http.Request) {
	index, err := triggerParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	char := r.URL.Query().Get("char")
	if len(char) != 1 {
		s.writeError(w, http.StatusBadRequest, "char must be a single character")
		return
	}

	var dispErr error
	if !s.do(w, r, func() { dispErr = s.ctrl.Scheduler().DisplayLetter(index, char[0]) }) {
		return
	}

	switch {
	case dispErr == nil:
		s.writeJSON(w, http.StatusOK, TriggerResponse{Trigger: index + 1, DisplayActive: true})
	case errors.Is(dispErr, trigger.ErrTriggerAlreadyActive):
		s.writeError(w, http.StatusConflict, dispErr.Error())
	case errors.Is(dispErr, trigger.ErrLetterNotFound):
		s.writeError(w, http.StatusNotFound, dispErr.Error())
	case errors.Is(dispErr, trigger.ErrInvalidTrigger):
		s.writeError(w, http.StatusBadRequest, dispErr.Error())
	default:
		log.Error().Err(dispErr).Int("trigger", index+1).Msg("Display request failed")
		s.writeError(w, http.StatusInternalServerError, dispErr.Error())
	}
}

func (s *Server) deleteDisplay(w http.ResponseWriter, r *http.Request) {
	if !s.do(w, r, func() { s.ctrl.Scheduler().ClearDisplay() }) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getTime(w http.ResponseWriter, r *http.Request) {
	var resp TimeResponse
	var fmtErr error
	if !s.do(w, r, func() {
		resp.Time, fmtErr = s.ctrl.Cache().Format()
		resp.Weekday = s.ctrl.Cache().Get()
	}) {
		return
	}
	if fmtErr != nil {
		s.writeError(w, http.StatusServiceUnavailable, fmtErr.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) setTime(w http.ResponseWriter, r *http.Request) {
	var req TimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	var setErr error
	if !s.do(w, r, func() { setErr = s.ctrl.Cache().SetTime(req.Date, req.Time) }) {
		return
	}
	switch {
	case setErr == nil:
		log.Info().Str("date", req.Date).Str("time", req.Time).Msg("Clock set via API")
		s.getTime(w, r)
	case errors.Is(setErr, rtc.ErrInvalidFormat), errors.Is(setErr, rtc.ErrInvalidYear),
		errors.Is(setErr, rtc.ErrInvalidDate), errors.Is(setErr, rtc.ErrInvalidTime):
		s.writeError(w, http.StatusBadRequest, setErr.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, setErr.Error())
	}
}

func (s *Server) syncTime(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.SyncClock(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.getTime(w, r)
}

func (s *Server) getLetters(w http.ResponseWriter, r *http.Request) {
	var resp []LetterInfo
	for _, b := range glyph.Letters() {
		resp = append(resp, LetterInfo{Letter: string(rune(b)), Label: glyph.Label(b)})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeError(w, http.StatusNotFound, "History is not recorded")
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	records, err := db.RecentDisplays(s.db, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read display history")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []db.DisplayRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
