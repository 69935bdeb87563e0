// Package span decides which days an event occupies and where each day sits
// within a multi-day event.
package span

import (
	"sort"
	"time"

	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/timeutil"
)

type Position string

const (
	PositionSingle Position = "single"
	PositionStart  Position = "start"
	PositionMiddle Position = "middle"
	PositionEnd    Position = "end"
)

// Days returns the inclusive first and last day of the event.
func Days(ev model.CalendarEvent) (first, last time.Time) {
	return timeutil.NormalizeSpan(ev.Start.Time, ev.End.Time, ev.IsAllDay)
}

// IsVisibleOn reports whether the event occupies date.
func IsVisibleOn(ev model.CalendarEvent, date time.Time) bool {
	first, last := Days(ev)
	day := timeutil.StartOfDay(date.In(first.Location()))
	return !day.Before(first) && !day.After(last)
}

// PositionOn returns where date falls in the event's span. ok is false when
// the event is not visible on date.
func PositionOn(ev model.CalendarEvent, date time.Time) (Position, bool) {
	first, last := Days(ev)
	day := timeutil.StartOfDay(date.In(first.Location()))
	if day.Before(first) || day.After(last) {
		return "", false
	}

	switch {
	case first.Equal(last):
		return PositionSingle, true
	case day.Equal(first):
		return PositionStart, true
	case day.Equal(last):
		return PositionEnd, true
	default:
		return PositionMiddle, true
	}
}

// Placement is an event as rendered on one day.
type Placement struct {
	Event    model.CalendarEvent `json:"event"`
	Position Position            `json:"position"`
}

// EventsOn returns the events visible on date with their position, all-day
// events first and the rest by start time.
func EventsOn(events []model.CalendarEvent, date time.Time) []Placement {
	placements := []Placement{}
	for _, ev := range events {
		pos, ok := PositionOn(ev, date)
		if !ok {
			continue
		}
		placements = append(placements, Placement{Event: ev, Position: pos})
	}

	sort.SliceStable(placements, func(i, j int) bool {
		a, b := placements[i].Event, placements[j].Event
		if a.IsAllDay != b.IsAllDay {
			return a.IsAllDay
		}
		return a.Start.Time.Before(b.Start.Time)
	})
	return placements
}
