// Package api provides the HTTP API for observing and steering the broadcast.
// GET endpoints are public (read-only observation).
// POST /trigger requires the admin bearer token; the stream and music
// endpoints require the relay token used by the renderer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/talgya/atlas-live/internal/atlas"
	"github.com/talgya/atlas-live/internal/broadcast"
	"github.com/talgya/atlas-live/internal/engine"
	"github.com/talgya/atlas-live/internal/ledger"
	"github.com/talgya/atlas-live/internal/playback"
)

const (
	maxSSEConns      = 2
	catchUpCues      = 50
	defaultPlanLimit = 20
	maxPlanLimit     = 200
)

// PlanLog lists executed plans, newest first.
type PlanLog interface {
	RecentPlans(ctx context.Context, limit int) ([]broadcast.Plan, error)
}

// MusicReporter accepts the renderer's music state.
type MusicReporter interface {
	SetMusic(on bool)
}

// Server serves broadcast state over HTTP.
type Server struct {
	Sched          *engine.Scheduler
	Tour           *atlas.Tour
	Memory         *ledger.Store
	Plans          PlanLog
	Hub            *playback.Hub
	Music          MusicReporter
	Port           int
	AdminKey       string // Bearer token for POST /trigger. Empty = disabled.
	RelayKey       string // Bearer token for stream and music. Empty = disabled.
	TriggerPerHour int
	CORSOrigins    []string

	// Active SSE connection count.
	sseConns atomic.Int32
}

// Handler builds the route table. Triggers accepted over HTTP run on ctx.
func (s *Server) Handler(ctx context.Context) http.Handler {
	limit := s.TriggerPerHour
	if limit <= 0 {
		limit = 30
	}
	triggerLimiter := NewRateLimiter(limit, time.Hour)
	go triggerLimiter.Sweep(ctx)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/pacing", s.handlePacing)
	mux.HandleFunc("GET /api/v1/countries", s.handleCountries)
	mux.HandleFunc("GET /api/v1/countries/{id}", s.handleCountry)
	mux.HandleFunc("GET /api/v1/plans", s.handlePlans)

	// Renderer endpoints (relay key).
	mux.HandleFunc("GET /api/v1/stream", s.relayOnly(s.handleStream))
	mux.HandleFunc("POST /api/v1/music", s.relayOnly(s.handleMusic))

	// Admin endpoints.
	mux.HandleFunc("POST /api/v1/trigger", s.adminOnly(RateLimitMiddleware(triggerLimiter, s.handleTrigger(ctx))))

	return corsMiddleware(s.CORSOrigins, mux)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// corsMiddleware adds CORS headers for allowed renderer origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request) (string, bool) {
	return strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// adminOnly requires the admin bearer token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no ATLAS_API_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if tok, ok := bearer(r); !ok || tok != s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// relayOnly requires the relay bearer token.
func (s *Server) relayOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.RelayKey == "" {
			http.Error(w, "relay endpoints disabled (no relay key)", http.StatusForbidden)
			return
		}
		if tok, ok := bearer(r); !ok || tok != s.RelayKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Sched.Snapshot()
	status := map[string]any{
		"name":      "atlas-live",
		"scheduler": snap,
		"pacing":    s.Sched.Pacer().CurrentDistribution(),
	}
	if s.Tour != nil {
		stop := s.Tour.Itinerary().Current()
		status["country"] = stop.Country.ID
		status["country_name"] = stop.Country.Name
		status["day"] = stop.Day
	}
	if s.Hub != nil {
		status["listeners"] = s.Hub.Subscribers()
	}
	writeJSON(w, status)
}

func (s *Server) handlePacing(w http.ResponseWriter, r *http.Request) {
	p := s.Sched.Pacer()
	resp := map[string]any{
		"distribution":      p.CurrentDistribution(),
		"targets":           p.Targets(),
		"speak_probability": p.SpeakProbability(),
		"events":            p.History(),
	}
	if ev, ok := p.Current(); ok {
		resp["current"] = ev
	}
	writeJSON(w, resp)
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	if s.Tour == nil {
		writeJSON(w, []atlas.Country{})
		return
	}
	writeJSON(w, s.Tour.Itinerary().Countries())
}

func (s *Server) handleCountry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.Tour == nil {
		http.Error(w, "country not found", http.StatusNotFound)
		return
	}
	country, ok := s.Tour.Itinerary().Lookup(id)
	if !ok {
		http.Error(w, "country not found", http.StatusNotFound)
		return
	}
	resp := map[string]any{"country": country}
	if s.Memory != nil {
		resp["memory"] = s.Memory.Load(r.Context(), id)
	}
	writeJSON(w, resp)
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	limit := defaultPlanLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxPlanLimit)
	}
	if s.Plans == nil {
		writeJSON(w, []broadcast.Plan{})
		return
	}
	plans, err := s.Plans.RecentPlans(r.Context(), limit)
	if err != nil {
		slog.Error("plan log read failed", "error", err)
		http.Error(w, "plan log unavailable", http.StatusInternalServerError)
		return
	}
	if plans == nil {
		plans = []broadcast.Plan{}
	}
	writeJSON(w, plans)
}

type triggerRequest struct {
	Trigger string `json:"trigger"`
}

func (s *Server) handleTrigger(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req triggerRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
				http.Error(w, "invalid JSON body", http.StatusBadRequest)
				return
			}
		}
		trigger := broadcast.TriggerManual
		if req.Trigger != "" {
			t, ok := broadcast.ParseTrigger(req.Trigger)
			if !ok {
				http.Error(w, fmt.Sprintf("unknown trigger %q", req.Trigger), http.StatusBadRequest)
				return
			}
			trigger = t
		}

		accepted := s.Sched.TriggerEvent(ctx, trigger)
		slog.Info("trigger requested over API", "trigger", trigger, "accepted", accepted)
		if !accepted {
			writeJSONStatus(w, http.StatusConflict, map[string]any{"accepted": false, "reason": "generation in progress"})
			return
		}
		writeJSONStatus(w, http.StatusAccepted, map[string]any{"accepted": true, "trigger": trigger})
	}
}

type musicRequest struct {
	Playing bool `json:"playing"`
}

func (s *Server) handleMusic(w http.ResponseWriter, r *http.Request) {
	var req musicRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if s.Music != nil {
		s.Music.SetMusic(req.Playing)
	}
	writeJSON(w, map[string]any{"playing": req.Playing})
}

// handleStream sends playback cues as server-sent events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		http.Error(w, "streaming not available", http.StatusServiceUnavailable)
		return
	}

	// Connection limit.
	current := s.sseConns.Add(1)
	defer s.sseConns.Add(-1)
	if current > maxSSEConns {
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.Hub.Subscribe()
	defer s.Hub.Unsubscribe(subID)

	for _, c := range s.Hub.Recent(catchUpCues) {
		writeSSECue(w, c)
	}
	flusher.Flush()

	slog.Info("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return
			}
			writeSSECue(w, c)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

func writeSSECue(w http.ResponseWriter, c playback.Cue) {
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", c.Seq, c.Kind, data)
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
