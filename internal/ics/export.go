// Package ics renders the merged event snapshot as an iCalendar feed.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/timeutil"
)

const productID = "-//homecal//calendar feed//EN"

// Export returns a VCALENDAR with one VEVENT per event. All-day events use
// DATE values with an exclusive end; every enabled notification becomes a
// display alarm.
func Export(events []model.CalendarEvent, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("homecal")

	for _, ev := range events {
		ve := cal.AddEvent(uid(ev))
		ve.SetDtStampTime(now)
		ve.SetSummary(ev.Summary)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}

		if ev.IsAllDay {
			first, last := timeutil.NormalizeSpan(ev.Start.Time, ev.End.Time, true)
			ve.SetAllDayStartAt(first)
			ve.SetAllDayEndAt(last.AddDate(0, 0, 1))
		} else {
			ve.SetStartAt(ev.Start.Time)
			end := ev.End.Time
			if end.Before(ev.Start.Time) {
				end = ev.Start.Time
			}
			ve.SetEndAt(end)
		}
		if ev.RRule != "" && ev.RecurrenceID == "" {
			ve.AddRrule(ev.RRule)
		}

		for _, b := range ev.Notifications {
			if !b.Enabled {
				continue
			}
			alarm := ve.AddAlarm()
			alarm.SetAction(ical.ActionDisplay)
			alarm.SetTrigger(fmt.Sprintf("-PT%dM", b.OffsetMinutes))
			alarm.SetProperty(ical.ComponentPropertyDescription, ev.Summary)
		}
	}
	return cal.Serialize()
}

func uid(ev model.CalendarEvent) string {
	if ev.RecurrenceID != "" {
		return ev.ID + "-" + ev.RecurrenceID + "@homecal"
	}
	return ev.ID + "@homecal"
}
