// Package care contains pure domain types for baby-care event tracking.
// This package has NO external dependencies (no storage, MQTT, OS, or
// time.Sleep). Time is always injectable via time.Time parameters.
package care

import "time"

// EventType identifies one kind of care occurrence. The set is closed:
// anything outside it is rejected before persistence.
type EventType string

const (
	FeedingStartLeft  EventType = "feeding_start_left"
	FeedingStartRight EventType = "feeding_start_right"
	FeedingEnd        EventType = "feeding_end"
	SleepStart        EventType = "sleep_start"
	SleepEnd          EventType = "sleep_end"
	DiaperPee         EventType = "diaper_pee"
	DiaperPoo         EventType = "diaper_poo"
	DiaperBoth        EventType = "diaper_both"
)

// SessionKind identifies a start/end paired activity. Diaper events are
// atomic and have no kind.
type SessionKind string

const (
	KindFeedingLeft  SessionKind = "feeding-left"
	KindFeedingRight SessionKind = "feeding-right"
	KindSleep        SessionKind = "sleep"
)

// SessionKinds lists every kind, in a fixed order useful for iteration.
var SessionKinds = []SessionKind{KindFeedingLeft, KindFeedingRight, KindSleep}

// Event is a normalized, persisted record of one care occurrence.
// Events are append-only: closing a session creates a new end event
// rather than mutating the start event.
type Event struct {
	ID              string
	Type            EventType
	Timestamp       time.Time // UTC
	DurationMinutes *int      // set only on end events that closed a session
	Notes           string
	DeviceSource    string // originating device, empty for manual entries
	AutoClosed      bool   // end synthesized because a new start arrived
	Orphan          bool   // end with no matching open start
	CreatedAt       time.Time
}

// Draft is the caller-supplied portion of an event. ID and a zero
// Timestamp are filled in at append time.
type Draft struct {
	Type            EventType
	Timestamp       time.Time
	DurationMinutes *int
	Notes           string
	DeviceSource    string
	AutoClosed      bool
	Orphan          bool
}

// Mapping associates an external device trigger with a care event type.
// The (DeviceID, ButtonAction) pair is unique: at most one active mapping
// per physical trigger.
type Mapping struct {
	ID           string
	DeviceID     string
	ButtonAction string
	CareAction   EventType
	DeviceName   string
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// aliases maps legacy event names (kept for configured buttons and old
// clients) to canonical types.
var aliases = map[string]EventType{
	"feeding_stop": FeedingEnd,
	"wake_up":      SleepEnd,
}

var validTypes = map[EventType]bool{
	FeedingStartLeft:  true,
	FeedingStartRight: true,
	FeedingEnd:        true,
	SleepStart:        true,
	SleepEnd:          true,
	DiaperPee:         true,
	DiaperPoo:         true,
	DiaperBoth:        true,
}

// ParseEventType normalizes s to a canonical EventType. It returns false
// if s is neither a canonical type nor a known alias.
func ParseEventType(s string) (EventType, bool) {
	if t, ok := aliases[s]; ok {
		return t, true
	}
	t := EventType(s)
	return t, validTypes[t]
}

// Valid reports whether t is in the closed enumeration.
func (t EventType) Valid() bool {
	return validTypes[t]
}

// StartKind returns the session kind t opens, or "" if t is not a start.
func (t EventType) StartKind() SessionKind {
	switch t {
	case FeedingStartLeft:
		return KindFeedingLeft
	case FeedingStartRight:
		return KindFeedingRight
	case SleepStart:
		return KindSleep
	}
	return ""
}

// EndKinds returns the session kinds t may close, most-preferred first,
// or nil if t is not an end. A feeding end closes either side: the
// reconciler picks whichever is open.
func (t EventType) EndKinds() []SessionKind {
	switch t {
	case FeedingEnd:
		return []SessionKind{KindFeedingLeft, KindFeedingRight}
	case SleepEnd:
		return []SessionKind{KindSleep}
	}
	return nil
}

// IsAtomic reports whether t has no start/end pairing.
func (t EventType) IsAtomic() bool {
	return t.StartKind() == "" && t.EndKinds() == nil
}

// StartType returns the event type that opens k.
func (k SessionKind) StartType() EventType {
	switch k {
	case KindFeedingLeft:
		return FeedingStartLeft
	case KindFeedingRight:
		return FeedingStartRight
	case KindSleep:
		return SleepStart
	}
	return ""
}

// EndType returns the event type that closes k.
func (k SessionKind) EndType() EventType {
	switch k {
	case KindFeedingLeft, KindFeedingRight:
		return FeedingEnd
	case KindSleep:
		return SleepEnd
	}
	return ""
}

// DurationMinutes converts the span between start and end to whole
// minutes, rounded to nearest, never negative.
func DurationMinutes(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int((d + 30*time.Second) / time.Minute)
}
