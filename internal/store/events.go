package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/babylog/internal/care"
)

// timeFormat is the column encoding for timestamps. UTC plus a fixed
// width keeps lexicographic and chronological order identical.
const timeFormat = time.RFC3339

// Append validates the draft, assigns an id (and the current time if the
// draft has none) and writes the event. The returned event is the stored
// row. The timestamp is normalized to UTC.
func (s *Store) Append(ctx context.Context, d care.Draft) (care.Event, error) {
	if !d.Type.Valid() {
		return care.Event{}, fmt.Errorf("%w: unknown event type %q", ErrValidation, d.Type)
	}

	now := time.Now().UTC()
	ev := care.Event{
		ID:              uuid.NewString(),
		Type:            d.Type,
		Timestamp:       d.Timestamp.UTC(),
		DurationMinutes: d.DurationMinutes,
		Notes:           d.Notes,
		DeviceSource:    d.DeviceSource,
		AutoClosed:      d.AutoClosed,
		Orphan:          d.Orphan,
		CreatedAt:       now,
	}
	if d.Timestamp.IsZero() {
		ev.Timestamp = now
	}

	var duration sql.NullInt64
	if ev.DurationMinutes != nil {
		duration = sql.NullInt64{Int64: int64(*ev.DurationMinutes), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO care_events (id, event_type, timestamp, duration_minutes, notes, device_source, auto_closed, orphan, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.Timestamp.Format(timeFormat), duration,
		ev.Notes, ev.DeviceSource, boolToInt(ev.AutoClosed), boolToInt(ev.Orphan),
		ev.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return care.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return ev, nil
}

// QueryRange returns events with start <= timestamp < end, ordered by
// timestamp ascending. An optional list of event types narrows the
// result. An empty result is not an error.
func (s *Store) QueryRange(ctx context.Context, start, end time.Time, types ...care.EventType) ([]care.Event, error) {
	query := "SELECT " + eventColumns + " FROM care_events WHERE timestamp >= ? AND timestamp < ?"
	args := []any{start.UTC().Format(timeFormat), end.UTC().Format(timeFormat)}

	if len(types) > 0 {
		placeholders := strings.Repeat("?,", len(types))
		query += " AND event_type IN (" + placeholders[:len(placeholders)-1] + ")"
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += " ORDER BY timestamp ASC, created_at ASC"

	return s.queryEvents(ctx, query, args...)
}

// ListOptions filters the event listing used by the web API.
type ListOptions struct {
	Type   care.EventType // empty = all types
	Limit  int            // <= 0 means 50
	Offset int
}

// List returns events newest-first, filtered and paginated.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]care.Event, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT " + eventColumns + " FROM care_events"
	var args []any
	if opts.Type != "" {
		query += " WHERE event_type = ?"
		args = append(args, string(opts.Type))
	}
	query += " ORDER BY timestamp DESC, created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	return s.queryEvents(ctx, query, args...)
}

// Recent returns the most recent events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]care.Event, error) {
	return s.List(ctx, ListOptions{Limit: limit})
}

// Count returns the total number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM care_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// FindOpenSession returns the most recent start event of the given kind
// with no later end event of the matching end type, or nil if the kind
// is closed. This is the startup-recovery query for the reconciler.
func (s *Store) FindOpenSession(ctx context.Context, kind care.SessionKind) (*care.Event, error) {
	startType := kind.StartType()
	endType := kind.EndType()
	if startType == "" {
		return nil, fmt.Errorf("%w: unknown session kind %q", ErrValidation, kind)
	}

	rows, err := s.queryEvents(ctx, "SELECT "+eventColumns+` FROM care_events
		WHERE event_type = ?
		  AND NOT EXISTS (
			SELECT 1 FROM care_events later
			WHERE later.event_type = ?
			  AND (later.timestamp > care_events.timestamp
			       OR (later.timestamp = care_events.timestamp AND later.created_at > care_events.created_at))
		  )
		ORDER BY timestamp DESC, created_at DESC LIMIT 1`,
		string(startType), string(endType))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ev := rows[0]
	return &ev, nil
}

// DailyAggregate summarizes one calendar day. The day boundary is
// interpreted in loc; a presentation concern, so it is a parameter
// rather than store state.
type DailyAggregate struct {
	Date          string
	FeedingCount  int
	SleepMinutes  int
	SleepSessions int
	DiaperPee     int
	DiaperPoo     int
	DiaperBoth    int
	DiaperTotal   int
	TotalEvents   int
	LastFeeding   *time.Time
	LastDiaper    *time.Time
	Asleep        bool
}

// Daily computes the aggregate for the day containing date in loc.
// Pure read-side computation over QueryRange.
func (s *Store) Daily(ctx context.Context, date time.Time, loc *time.Location) (DailyAggregate, error) {
	local := date.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	events, err := s.QueryRange(ctx, dayStart, dayEnd)
	if err != nil {
		return DailyAggregate{}, err
	}

	agg := DailyAggregate{Date: dayStart.Format("2006-01-02"), TotalEvents: len(events)}
	for _, ev := range events {
		ts := ev.Timestamp
		switch ev.Type {
		case care.FeedingStartLeft, care.FeedingStartRight:
			agg.FeedingCount++
			agg.LastFeeding = &ts
		case care.SleepEnd:
			if ev.DurationMinutes != nil {
				agg.SleepMinutes += *ev.DurationMinutes
				agg.SleepSessions++
			}
		case care.DiaperPee:
			agg.DiaperPee++
			agg.DiaperTotal++
			agg.LastDiaper = &ts
		case care.DiaperPoo:
			agg.DiaperPoo++
			agg.DiaperTotal++
			agg.LastDiaper = &ts
		case care.DiaperBoth:
			agg.DiaperBoth++
			agg.DiaperTotal++
			agg.LastDiaper = &ts
		}
	}

	open, err := s.FindOpenSession(ctx, care.KindSleep)
	if err != nil {
		return DailyAggregate{}, err
	}
	agg.Asleep = open != nil

	return agg, nil
}

const eventColumns = "id, event_type, timestamp, duration_minutes, notes, device_source, auto_closed, orphan, created_at"

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]care.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []care.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (care.Event, error) {
	var (
		ev                 care.Event
		typ, ts, createdAt string
		duration           sql.NullInt64
		autoClosed, orphan int
	)
	if err := rows.Scan(&ev.ID, &typ, &ts, &duration, &ev.Notes, &ev.DeviceSource, &autoClosed, &orphan, &createdAt); err != nil {
		return care.Event{}, fmt.Errorf("scan event: %w", err)
	}

	ev.Type = care.EventType(typ)
	ev.AutoClosed = autoClosed != 0
	ev.Orphan = orphan != 0
	if duration.Valid {
		d := int(duration.Int64)
		ev.DurationMinutes = &d
	}

	var err error
	if ev.Timestamp, err = time.Parse(timeFormat, ts); err != nil {
		return care.Event{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	if ev.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return care.Event{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return ev, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
