package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oszuidwest/zwfm-noisewatch/internal/audio"
	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/server"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// handleAPIHealth reports process liveness and the pipeline state.
// GET /api/health
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": normalizeVersion(Version),
		"monitor": s.buildWSStatus().Monitor.State,
	})
}

// handleAPIStatus returns the full pipeline status snapshot.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, s.buildWSStatus())
}

// handleAPIDevices returns available audio capture devices.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": audio.Devices(),
	})
}

// handleAPIEvents returns a page of event log entries, newest first.
// GET /api/events?limit=50&offset=0&filter=alarm
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.eventLogger == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Event log not available")
		return
	}

	limit := queryInt(r, "limit", server.DefaultEventPageSize)
	if limit < 1 || limit > eventlog.MaxReadLimit {
		s.writeError(w, http.StatusBadRequest, "limit out of range")
		return
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		s.writeError(w, http.StatusBadRequest, "offset out of range")
		return
	}

	filter := eventlog.TypeFilter(r.URL.Query().Get("filter"))
	switch filter {
	case eventlog.FilterAll, eventlog.FilterMonitor, eventlog.FilterAlarm, eventlog.FilterClip:
	default:
		s.writeError(w, http.StatusBadRequest, "unknown filter")
		return
	}

	events, hasMore, err := eventlog.ReadLast(s.eventLogger.Path(), limit, offset, filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"events":   events,
		"has_more": hasMore,
		"offset":   offset,
	})
}

// handleAPIMonitorStart starts the monitoring pipeline.
// POST /api/monitor/start
func (s *Server) handleAPIMonitorStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.StartMonitor(); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "monitor_started"})
}

// handleAPIMonitorStop stops the monitoring pipeline.
// POST /api/monitor/stop
func (s *Server) handleAPIMonitorStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.StopMonitor(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "monitor_stopped"})
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
