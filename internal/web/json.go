package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sweeney/babylog/internal/care"
)

// EventJSON is the wire representation of a care event.
type EventJSON struct {
	ID              string `json:"id"`
	EventType       string `json:"event_type"`
	Timestamp       string `json:"timestamp"`
	DurationMinutes *int   `json:"duration_minutes"`
	Notes           string `json:"notes,omitempty"`
	DeviceSource    string `json:"device_source,omitempty"`
	AutoClosed      bool   `json:"auto_closed,omitempty"`
	Orphan          bool   `json:"orphan,omitempty"`
}

// MappingJSON is the wire representation of a device mapping.
type MappingJSON struct {
	ID           string `json:"id,omitempty"`
	DeviceID     string `json:"device_id"`
	ButtonAction string `json:"button_action"`
	CareAction   string `json:"care_action"`
	DeviceName   string `json:"device_name,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// errorJSON is the failure envelope: {"success": false, "error": "..."}.
type errorJSON struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func eventToJSON(ev care.Event) EventJSON {
	return EventJSON{
		ID:              ev.ID,
		EventType:       string(ev.Type),
		Timestamp:       ev.Timestamp.UTC().Format(time.RFC3339),
		DurationMinutes: ev.DurationMinutes,
		Notes:           ev.Notes,
		DeviceSource:    ev.DeviceSource,
		AutoClosed:      ev.AutoClosed,
		Orphan:          ev.Orphan,
	}
}

func eventsToJSON(events []care.Event) []EventJSON {
	out := make([]EventJSON, 0, len(events))
	for _, ev := range events {
		out = append(out, eventToJSON(ev))
	}
	return out
}

func mappingToJSON(m care.Mapping) MappingJSON {
	return MappingJSON{
		ID:           m.ID,
		DeviceID:     m.DeviceID,
		ButtonAction: m.ButtonAction,
		CareAction:   string(m.CareAction),
		DeviceName:   m.DeviceName,
		Notes:        m.Notes,
	}
}

func jsonDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorJSON{Success: false, Error: msg})
}
