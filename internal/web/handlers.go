package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/babylog/internal/care"
	"github.com/sweeney/babylog/internal/session"
	"github.com/sweeney/babylog/internal/store"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOptions{
		Limit:  intQuery(r, "limit", 50),
		Offset: intQuery(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		t, ok := care.ParseEventType(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown event type %q", raw))
			return
		}
		opts.Type = t
	}

	events, err := s.store.List(r.Context(), opts)
	if err != nil {
		s.log.Error("list events failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "events": eventsToJSON(events)})
}

// addEventRequest is the manual-log body. The timestamp is optional and
// defaults to now.
type addEventRequest struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	var req addEventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	eventType, ok := care.ParseEventType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown event type %q", req.Type))
		return
	}

	draft := care.Draft{Type: eventType, Notes: req.Notes}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "timestamp must be RFC3339")
			return
		}
		draft.Timestamp = ts.UTC()
	}

	events, err := s.recorder.Record(r.Context(), draft)

	// The recorder can persist an auto-close before a later append
	// fails; anything it returns is durable and must reach subscribers
	// regardless of err.
	for _, ev := range events {
		s.tracker.RecordEvent(ev)
		s.disp.Publish(ev)
	}

	switch {
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, session.ErrSessionOpen):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.log.Error("manual event append failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "events": eventsToJSON(events)})
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.store.ListMappings(r.Context())
	if err != nil {
		s.log.Error("list mappings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	out := make([]MappingJSON, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, mappingToJSON(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "mappings": out})
}

func (s *Server) handleUpsertMapping(w http.ResponseWriter, r *http.Request) {
	var req MappingJSON
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	action, ok := care.ParseEventType(req.CareAction)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown care action %q", req.CareAction))
		return
	}

	m, err := s.store.Upsert(r.Context(), care.Mapping{
		ID:           req.ID,
		DeviceID:     req.DeviceID,
		ButtonAction: req.ButtonAction,
		CareAction:   action,
		DeviceName:   req.DeviceName,
		Notes:        req.Notes,
	})
	switch {
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.log.Error("mapping upsert failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "mapping": mappingToJSON(m)})
}

func (s *Server) handleRemoveMapping(w http.ResponseWriter, r *http.Request) {
	device := r.PathValue("device")
	action := r.PathValue("action")
	if err := s.store.Remove(r.Context(), device, action); err != nil {
		s.log.Error("mapping remove failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	date := time.Now().In(s.loc)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	agg, err := s.store.Daily(r.Context(), date, s.loc)
	if err != nil {
		s.log.Error("daily stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": agg})
}

func (s *Server) handleFeedingAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.analytics.Feeding(r.Context(), time.Now().UTC(), intQuery(r, "days", 30))
	s.writeAnalytics(w, stats, err)
}

func (s *Server) handleSleepAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.analytics.Sleep(r.Context(), time.Now().UTC(), intQuery(r, "days", 30))
	s.writeAnalytics(w, stats, err)
}

func (s *Server) handleDiaperAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.analytics.Diaper(r.Context(), time.Now().UTC(), intQuery(r, "days", 7))
	s.writeAnalytics(w, stats, err)
}

func (s *Server) writeAnalytics(w http.ResponseWriter, stats any, err error) {
	if err != nil {
		s.log.Error("analytics query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": stats})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	switch r.PathValue("format") {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="babylog-events.csv"`)
		if err := s.analytics.ExportCSV(r.Context(), w, now); err != nil {
			s.log.Error("csv export failed", zap.Error(err))
		}
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="babylog-events.json"`)
		if err := s.analytics.ExportJSON(r.Context(), w, now); err != nil {
			s.log.Error("json export failed", zap.Error(err))
		}
	default:
		writeError(w, http.StatusBadRequest, "format must be csv or json")
	}
}

// healthJSON is the /health response body.
type healthJSON struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
	MQTT     string `json:"mqtt"`
	Uptime   int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	dbOK := s.store.Healthy(r.Context())
	s.tracker.SetDBHealthy(dbOK)

	h := healthJSON{
		Status:   "healthy",
		Version:  snap.Config.Version,
		Database: connLabel(dbOK),
		MQTT:     connLabel(snap.MQTTConnected),
		Uptime:   int64(snap.Uptime().Truncate(time.Second).Seconds()),
	}
	code := http.StatusOK
	switch {
	case !dbOK:
		h.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case !snap.MQTTConnected:
		// Manual logging still works; only device automation is down.
		h.Status = "degraded"
	}
	writeJSON(w, code, h)
}

func connLabel(ok bool) string {
	if ok {
		return "connected"
	}
	return "disconnected"
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func decodeBody(r *http.Request, v any) error {
	if err := jsonDecode(r, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
