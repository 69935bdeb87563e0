package notify

import (
	"strings"
	"time"

	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/timeutil"
)

const (
	DefaultPushTemplate  = "Reminder: '{event_summary}' starts {offset_desc} (at {event_time})"
	DefaultVoiceTemplate = "Attention! The event '{event_summary}' starts {offset_desc}, at {event_time}"
)

// Render expands the placeholders {event_summary}, {offset_desc},
// {event_time} and {event_date} for r. Starts that cannot be parsed leave
// the time placeholders empty.
func Render(tmpl string, r model.NotificationRecord, loc *time.Location) string {
	var clock, date string
	if start, allDay, err := timeutil.ParseFlexible(r.EventStart, loc); err == nil {
		date = start.Format(timeutil.DateLayout)
		if !allDay {
			clock = start.Format("15:04")
		}
	}
	return strings.NewReplacer(
		"{event_summary}", r.EventSummary,
		"{offset_desc}", timeutil.DescribeOffset(r.OffsetMinutes),
		"{event_time}", clock,
		"{event_date}", date,
	).Replace(tmpl)
}

// PushMessage returns the push body for r, using its custom message when set.
func PushMessage(r model.NotificationRecord, loc *time.Location) string {
	tmpl := r.CustomMessagePush
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultPushTemplate
	}
	return Render(tmpl, r, loc)
}

func VoiceMessage(r model.NotificationRecord, loc *time.Location) string {
	tmpl := r.CustomMessageVoice
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultVoiceTemplate
	}
	return Render(tmpl, r, loc)
}

// Title is the push notification title.
func Title(r model.NotificationRecord) string {
	return "📅 " + r.EventSummary
}
