package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/pefman/rs3calc/internal/catalogue"
	"github.com/pefman/rs3calc/internal/eventlog"
	"github.com/pefman/rs3calc/internal/index"
	"github.com/pefman/rs3calc/internal/preload"
	"github.com/pefman/rs3calc/internal/stats"
)

type server struct {
	index     *index.Index
	prices    *catalogue.Prices
	scheduler *preload.Scheduler
	history   *stats.History
	events    *eventlog.Log
	logger    *slog.Logger
	metrics   http.Handler
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	api.HandleFunc("/ge/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/ge/suggest", s.handleSuggest).Methods(http.MethodGet)
	api.HandleFunc("/ge/detail", s.handleDetail).Methods(http.MethodGet)
	api.HandleFunc("/ge/price", s.handlePrice).Methods(http.MethodGet)
	api.HandleFunc("/ge/builds", s.handleBuilds).Methods(http.MethodGet)
	api.HandleFunc("/ge/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet)
	api.HandleFunc("/logs.txt", s.handleLogsText).Methods(http.MethodGet)
	r.HandleFunc("/ws/logs", s.handleLogStream)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "unsupported path")
	})
	return r
}

// GET /api/healthz
func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"ok": true, "version": buildVersion})
}

// GET /api/ge/status
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.index.Status()
	writeJSON(w, struct {
		index.Status
		State           string `json:"state"`
		RefreshInterval string `json:"refresh_interval"`
	}{st, s.scheduler.State(), s.scheduler.Interval().String()})
}

// GET /api/ge/suggest?term=...
// Always 200: an unloaded index or a short term gives an empty list.
func (s *server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.index.Suggest(r.URL.Query().Get("term")))
}

// GET /api/ge/detail?name=...
func (s *server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]int{"id": id})
}

// GET /api/ge/price?name=...
func (s *server) handlePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookup(w, r)
	if !ok {
		return
	}
	price, err := s.prices.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("GE price fetch failed", slog.Int("id", id), slog.String("error", err.Error()))
		if catalogue.IsRemote(err) {
			writeError(w, http.StatusBadGateway, "price lookup failed")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"id": id, "unit": price})
}

func (s *server) lookup(w http.ResponseWriter, r *http.Request) (int, bool) {
	name := r.URL.Query().Get("name")
	if strings.TrimSpace(name) == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return 0, false
	}
	id, err := s.index.Detail(name)
	switch {
	case errors.Is(err, index.ErrUnavailable):
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, "item index is still loading, try again shortly")
		return 0, false
	case errors.Is(err, index.ErrNotFound):
		writeError(w, http.StatusNotFound, "Item not found")
		return 0, false
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return 0, false
	}
	return id, true
}

// GET /api/ge/builds
func (s *server) handleBuilds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.history.List())
}

// POST /api/ge/refresh
func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	queued := s.scheduler.Trigger()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"queued": queued, "state": s.scheduler.State()})
}

// GET /api/logs
func (s *server) handleLogs(w http.ResponseWriter, r *http.Request) {
	tail := s.events.Tail()
	lines := make([]string, len(tail))
	for i, e := range tail {
		lines[i] = e.String()
	}
	writeJSON(w, lines)
}

// GET /api/logs.txt
func (s *server) handleLogsText(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	for _, e := range s.events.Tail() {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="rs3calc-`+time.Now().UTC().Format("20060102-150405")+`.log"`)
	_, _ = w.Write([]byte(b.String()))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   http.StatusText(code),
		"message": msg,
		"status":  code,
	})
}

// simple CORS for GET/POST/OPTIONS
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
