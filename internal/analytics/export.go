package analytics

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sweeney/babylog/internal/care"
)

// exportWindowYears bounds the export query; the data-retention horizon
// of a single-household tracker.
const exportWindowYears = 10

// ExportCSV writes the full event log to w, oldest first.
func (a *Analytics) ExportCSV(ctx context.Context, w io.Writer, now time.Time) error {
	events, err := a.exportEvents(ctx, now)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"id", "event_type", "timestamp", "duration_minutes", "notes", "device_source", "auto_closed", "orphan"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, ev := range events {
		duration := ""
		if ev.DurationMinutes != nil {
			duration = strconv.Itoa(*ev.DurationMinutes)
		}
		record := []string{
			ev.ID,
			string(ev.Type),
			ev.Timestamp.Format(time.RFC3339),
			duration,
			ev.Notes,
			ev.DeviceSource,
			strconv.FormatBool(ev.AutoClosed),
			strconv.FormatBool(ev.Orphan),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// exportedEvent is the JSON export shape.
type exportedEvent struct {
	ID              string `json:"id"`
	EventType       string `json:"event_type"`
	Timestamp       string `json:"timestamp"`
	DurationMinutes *int   `json:"duration_minutes"`
	Notes           string `json:"notes,omitempty"`
	DeviceSource    string `json:"device_source,omitempty"`
	AutoClosed      bool   `json:"auto_closed,omitempty"`
	Orphan          bool   `json:"orphan,omitempty"`
}

// ExportJSON writes the full event log to w as a JSON array, oldest
// first.
func (a *Analytics) ExportJSON(ctx context.Context, w io.Writer, now time.Time) error {
	events, err := a.exportEvents(ctx, now)
	if err != nil {
		return err
	}

	out := make([]exportedEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, exportedEvent{
			ID:              ev.ID,
			EventType:       string(ev.Type),
			Timestamp:       ev.Timestamp.Format(time.RFC3339),
			DurationMinutes: ev.DurationMinutes,
			Notes:           ev.Notes,
			DeviceSource:    ev.DeviceSource,
			AutoClosed:      ev.AutoClosed,
			Orphan:          ev.Orphan,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func (a *Analytics) exportEvents(ctx context.Context, now time.Time) ([]care.Event, error) {
	return a.store.QueryRange(ctx, now.AddDate(-exportWindowYears, 0, 0), now.AddDate(0, 0, 1))
}
