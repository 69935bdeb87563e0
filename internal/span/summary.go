package span

import (
	"sort"
	"time"

	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/timeutil"
)

// listLimit caps the event lists in range summaries; counts are not capped.
const listLimit = 10

// Overlaps reports whether the event occupies at least one day of
// [start, end].
func Overlaps(ev model.CalendarEvent, start, end time.Time) bool {
	first, last := Days(ev)
	return !last.Before(timeutil.StartOfDay(start.In(last.Location()))) && !first.After(end)
}

type DaySummary struct {
	Date   string      `json:"date"`
	Count  int         `json:"count"`
	Events []Placement `json:"events"`
}

type RangeSummary struct {
	Start  string                `json:"start"`
	End    string                `json:"end"`
	Count  int                   `json:"count"`
	Events []model.CalendarEvent `json:"events"`
}

// Summary is today, tomorrow, the current week and the next seven days.
type Summary struct {
	Today    DaySummary   `json:"today"`
	Tomorrow DaySummary   `json:"tomorrow"`
	ThisWeek RangeSummary `json:"this_week"`
	Upcoming RangeSummary `json:"upcoming"`
}

// SummaryRange is the range Summarize needs events for.
func SummaryRange(now time.Time) (start, end time.Time) {
	return timeutil.StartOfWeek(now), timeutil.EndOfDay(now.AddDate(0, 0, 7))
}

// Summarize groups events relative to now. Upcoming holds events starting
// within the next seven days; events already under way are left out.
func Summarize(events []model.CalendarEvent, now time.Time) Summary {
	today := timeutil.StartOfDay(now)
	tomorrow := today.AddDate(0, 0, 1)
	monday := timeutil.StartOfWeek(now)
	sunday := timeutil.EndOfDay(monday.AddDate(0, 0, 6))
	horizon := now.AddDate(0, 0, 7)

	week := []model.CalendarEvent{}
	upcoming := []model.CalendarEvent{}
	for _, ev := range events {
		if Overlaps(ev, monday, sunday) {
			week = append(week, ev)
		}
		if start := ev.Start.Time; !start.Before(now) && !start.After(horizon) {
			upcoming = append(upcoming, ev)
		}
	}

	return Summary{
		Today:    daySummary(events, today),
		Tomorrow: daySummary(events, tomorrow),
		ThisWeek: rangeSummary(week, monday, sunday),
		Upcoming: rangeSummary(upcoming, now, horizon),
	}
}

func daySummary(events []model.CalendarEvent, date time.Time) DaySummary {
	placements := EventsOn(events, date)
	return DaySummary{
		Date:   timeutil.DateString(date),
		Count:  len(placements),
		Events: placements,
	}
}

func rangeSummary(events []model.CalendarEvent, start, end time.Time) RangeSummary {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Time.Before(events[j].Start.Time)
	})
	count := len(events)
	if len(events) > listLimit {
		events = events[:listLimit]
	}
	return RangeSummary{
		Start:  timeutil.DateString(start),
		End:    timeutil.DateString(end),
		Count:  count,
		Events: events,
	}
}
