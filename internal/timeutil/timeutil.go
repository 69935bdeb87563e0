// Package timeutil holds the calendar date math shared by the fetch, match
// and render paths. All functions work on wall-clock fields in the value's own
// location and never round-trip through UTC.
package timeutil

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout      = "2006-01-02"
	LocalTimeLayout = "2006-01-02T15:04"
)

// ErrInvalidOffset is returned when a notification offset cannot be computed
// or would fire after the event starts.
var ErrInvalidOffset = errors.New("invalid notification offset")

var timeOfDayRegexp = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// StartOfWeek returns midnight of the Monday on or before t.
func StartOfWeek(t time.Time) time.Time {
	back := (int(t.Weekday()) + 6) % 7
	return StartOfDay(t).AddDate(0, 0, -back)
}

func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func EndOfMonth(t time.Time) time.Time {
	return EndOfDay(StartOfMonth(t).AddDate(0, 1, -1))
}

func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DaysBetween counts calendar days from a to b, ignoring the time of day and
// DST transitions.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// LocalTimeString formats t as YYYY-MM-DDTHH:mm using its own wall clock.
func LocalTimeString(t time.Time) string {
	return t.Format(LocalTimeLayout)
}

func DateString(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseLocalTime is the inverse of LocalTimeString.
func ParseLocalTime(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(LocalTimeLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse local time %q: %w", s, err)
	}
	return t, nil
}

// ParseFlexible parses the date and date-time shapes calendar providers
// emit. Values with an explicit offset are converted into loc; seconds are
// dropped. allDay is true when s carries no time component.
func ParseFlexible(s string, loc *time.Location) (t time.Time, allDay bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, errors.New("parse time: empty value")
	}
	if loc == nil {
		loc = time.Local
	}

	if !strings.ContainsAny(s, "T ") {
		d, err := time.ParseInLocation(DateLayout, s, loc)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parse date %q: %w", s, err)
		}
		return d, true, nil
	}

	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return truncateMinute(parsed.In(loc)), false, nil
	}
	for _, layout := range localLayouts {
		if parsed, err := time.ParseInLocation(layout, s, loc); err == nil {
			return truncateMinute(parsed), false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("parse time %q: unrecognized format", s)
}

func truncateMinute(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, t.Location())
}

// NormalizeSpan returns the inclusive first and last day an event occupies.
// All-day providers report an exclusive end date, so it is pulled back one
// day when it lies after the start.
func NormalizeSpan(start, end time.Time, allDay bool) (first, last time.Time) {
	first = StartOfDay(start)
	last = StartOfDay(end)
	if allDay && last.After(first) {
		last = last.AddDate(0, 0, -1)
	}
	if last.Before(first) {
		last = first
	}
	return first, last
}

// ParseTimeOfDay parses HH:mm.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	m := timeOfDayRegexp.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, fmt.Errorf("time of day %q must be HH:MM", s)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// NotificationOffset converts an absolute reminder ("at timeOfDay, daysBefore
// days before the event") into minutes before eventStart. It returns -1 and
// ErrInvalidOffset when the input is malformed or the reminder would fire
// after the event starts.
func NotificationOffset(eventStart time.Time, timeOfDay string, daysBefore int) (int, error) {
	hour, minute, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrInvalidOffset, err)
	}
	if daysBefore < 0 {
		return -1, fmt.Errorf("%w: days before must not be negative", ErrInvalidOffset)
	}

	y, m, d := eventStart.Date()
	fireAt := time.Date(y, m, d-daysBefore, hour, minute, 0, 0, eventStart.Location())
	start := truncateMinute(eventStart)

	minutes := int(start.Sub(fireAt) / time.Minute)
	if minutes < 0 {
		return -1, fmt.Errorf("%w: reminder at %s is after the event starts", ErrInvalidOffset, LocalTimeString(fireAt))
	}
	return minutes, nil
}

// DescribeOffset renders an offset as reminder text, e.g. "in 2 hours".
func DescribeOffset(minutes int) string {
	switch {
	case minutes >= 43200:
		return "in 1 month"
	case minutes >= 21600:
		return "in 15 days"
	case minutes >= 14400:
		return "in 10 days"
	case minutes >= 10080:
		return "in 1 week"
	case minutes >= 7200:
		return "in 5 days"
	case minutes >= 2880:
		return "in 2 days"
	case minutes >= 1440:
		return "in 1 day"
	case minutes >= 60:
		hours, rest := minutes/60, minutes%60
		if rest == 0 {
			if hours == 1 {
				return "in 1 hour"
			}
			return fmt.Sprintf("in %d hours", hours)
		}
		return fmt.Sprintf("in %dh %dm", hours, rest)
	case minutes == 1:
		return "in 1 minute"
	case minutes > 0:
		return fmt.Sprintf("in %d minutes", minutes)
	default:
		return "now"
	}
}
