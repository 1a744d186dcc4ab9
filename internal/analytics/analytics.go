// Package analytics computes read-side statistics over the event store.
// Everything here is derived; it holds no state and writes nothing.
package analytics

import (
	"context"
	"math"
	"time"

	"github.com/sweeney/babylog/internal/care"
	"github.com/sweeney/babylog/internal/store"
)

// Analytics answers the dashboard and report queries.
type Analytics struct {
	store *store.Store
}

// New creates an Analytics over the given store.
func New(st *store.Store) *Analytics {
	return &Analytics{store: st}
}

// HourCount is one bucket of an hour-of-day histogram.
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// FeedingStats summarizes feedings over a trailing window.
type FeedingStats struct {
	Days            int         `json:"days"`
	TotalFeedings   int         `json:"total_feedings"`
	LeftCount       int         `json:"left_breast_count"`
	RightCount      int         `json:"right_breast_count"`
	BreastBalance   float64     `json:"breast_balance_pct"` // share of left-side starts
	DailyAverage    float64     `json:"daily_average"`
	AvgDurationMin  float64     `json:"average_duration_minutes"`
	AvgIntervalHrs  float64     `json:"average_interval_hours"`
	HourlyPattern   []HourCount `json:"hourly_pattern"`
}

// Feeding computes feeding statistics for the trailing window of days
// ending at now.
func (a *Analytics) Feeding(ctx context.Context, now time.Time, days int) (FeedingStats, error) {
	stats := FeedingStats{Days: days}

	events, err := a.store.QueryRange(ctx, now.AddDate(0, 0, -days), now,
		care.FeedingStartLeft, care.FeedingStartRight, care.FeedingEnd)
	if err != nil {
		return stats, err
	}

	hourly := make([]HourCount, 24)
	for h := range hourly {
		hourly[h].Hour = h
	}

	var starts []time.Time
	var durationSum, durationCount int
	for _, ev := range events {
		switch ev.Type {
		case care.FeedingStartLeft:
			stats.LeftCount++
			starts = append(starts, ev.Timestamp)
			hourly[ev.Timestamp.Hour()].Count++
		case care.FeedingStartRight:
			stats.RightCount++
			starts = append(starts, ev.Timestamp)
			hourly[ev.Timestamp.Hour()].Count++
		case care.FeedingEnd:
			if ev.DurationMinutes != nil {
				durationSum += *ev.DurationMinutes
				durationCount++
			}
		}
	}

	stats.TotalFeedings = stats.LeftCount + stats.RightCount
	stats.HourlyPattern = hourly
	if stats.TotalFeedings > 0 {
		stats.BreastBalance = round1(float64(stats.LeftCount) / float64(stats.TotalFeedings) * 100)
	}
	if days > 0 {
		stats.DailyAverage = round1(float64(stats.TotalFeedings) / float64(days))
	}
	if durationCount > 0 {
		stats.AvgDurationMin = round1(float64(durationSum) / float64(durationCount))
	}
	if len(starts) > 1 {
		var total float64
		for i := 1; i < len(starts); i++ {
			total += starts[i].Sub(starts[i-1]).Hours()
		}
		stats.AvgIntervalHrs = round1(total / float64(len(starts)-1))
	}
	return stats, nil
}

// SleepStats summarizes sleep over a trailing window. Only closed
// sessions (end events carrying a duration) count; an open session
// contributes once it ends.
type SleepStats struct {
	Days            int     `json:"days"`
	Sessions        int     `json:"total_sleep_sessions"`
	TotalHours      float64 `json:"total_sleep_hours"`
	AvgSessionHours float64 `json:"average_session_duration"`
	DailyAverage    float64 `json:"daily_sleep_average"`
}

// Sleep computes sleep statistics for the trailing window of days
// ending at now.
func (a *Analytics) Sleep(ctx context.Context, now time.Time, days int) (SleepStats, error) {
	stats := SleepStats{Days: days}

	events, err := a.store.QueryRange(ctx, now.AddDate(0, 0, -days), now, care.SleepEnd)
	if err != nil {
		return stats, err
	}

	var totalMinutes int
	for _, ev := range events {
		if ev.DurationMinutes == nil {
			continue // orphan end, no measurable session
		}
		stats.Sessions++
		totalMinutes += *ev.DurationMinutes
	}

	stats.TotalHours = round1(float64(totalMinutes) / 60)
	if stats.Sessions > 0 {
		stats.AvgSessionHours = round1(float64(totalMinutes) / 60 / float64(stats.Sessions))
	}
	if days > 0 {
		stats.DailyAverage = round1(stats.TotalHours / float64(days))
	}
	return stats, nil
}

// DiaperStats summarizes diaper changes over a trailing window. Pee and
// poo counts both include "both" changes.
type DiaperStats struct {
	Days         int     `json:"days"`
	TotalChanges int     `json:"total_changes"`
	PeeCount     int     `json:"pee_count"`
	PooCount     int     `json:"poo_count"`
	DailyAverage float64 `json:"daily_average"`
}

// Diaper computes diaper statistics for the trailing window of days
// ending at now.
func (a *Analytics) Diaper(ctx context.Context, now time.Time, days int) (DiaperStats, error) {
	stats := DiaperStats{Days: days}

	events, err := a.store.QueryRange(ctx, now.AddDate(0, 0, -days), now,
		care.DiaperPee, care.DiaperPoo, care.DiaperBoth)
	if err != nil {
		return stats, err
	}

	for _, ev := range events {
		stats.TotalChanges++
		switch ev.Type {
		case care.DiaperPee:
			stats.PeeCount++
		case care.DiaperPoo:
			stats.PooCount++
		case care.DiaperBoth:
			stats.PeeCount++
			stats.PooCount++
		}
	}
	if days > 0 {
		stats.DailyAverage = round1(float64(stats.TotalChanges) / float64(days))
	}
	return stats, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
