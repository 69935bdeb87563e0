package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout      = "2006-01-02"
	localTimeLayout = "2006-01-02T15:04"
)

type ViewKind string

const (
	ViewDay   ViewKind = "day"
	ViewWeek  ViewKind = "week"
	ViewMonth ViewKind = "month"
)

// ParseViewKind returns the view for s, defaulting to month.
func ParseViewKind(s string) ViewKind {
	switch ViewKind(strings.ToLower(strings.TrimSpace(s))) {
	case ViewDay:
		return ViewDay
	case ViewWeek:
		return ViewWeek
	default:
		return ViewMonth
	}
}

type ProviderKind string

const (
	ProviderGoogle  ProviderKind = "google"
	ProviderOutlook ProviderKind = "outlook"
	ProviderCalDAV  ProviderKind = "caldav"
	ProviderLocal   ProviderKind = "local"
)

// InferProvider guesses the backing provider from a calendar entity id.
func InferProvider(calendarID string) ProviderKind {
	id := strings.ToLower(calendarID)
	switch {
	case strings.Contains(id, "google"):
		return ProviderGoogle
	case strings.Contains(id, "outlook"):
		return ProviderOutlook
	case strings.Contains(id, "caldav"):
		return ProviderCalDAV
	default:
		return ProviderLocal
	}
}

// EventTime is a wall-clock instant in the configured location. All-day
// values are midnight and serialize as a bare date.
type EventTime struct {
	Time   time.Time
	AllDay bool
}

func (t EventTime) String() string {
	if t.Time.IsZero() {
		return ""
	}
	if t.AllDay {
		return t.Time.Format(dateLayout)
	}
	return t.Time.Format(localTimeLayout)
}

func (t EventTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

type CalendarEvent struct {
	ID            string                `json:"id"`
	Summary       string                `json:"summary"`
	Description   string                `json:"description,omitempty"`
	Location      string                `json:"location,omitempty"`
	Start         EventTime             `json:"start"`
	End           EventTime             `json:"end"`
	IsAllDay      bool                  `json:"is_all_day"`
	CalendarID    string                `json:"calendar_id"`
	Provider      ProviderKind          `json:"provider"`
	IsEditable    bool                  `json:"is_editable"`
	RecurrenceID  string                `json:"recurrence_id,omitempty"`
	RRule         string                `json:"rrule,omitempty"`
	Notifications []NotificationBinding `json:"notifications"`
}

// RawEvent is an event as returned by a calendar provider, before the start
// and end shapes are normalized.
type RawEvent struct {
	UID          string  `json:"uid,omitempty"`
	Summary      string  `json:"summary"`
	Description  string  `json:"description,omitempty"`
	Location     string  `json:"location,omitempty"`
	Start        RawTime `json:"start"`
	End          RawTime `json:"end"`
	RecurrenceID string  `json:"recurrence_id,omitempty"`
	RRule        string  `json:"rrule,omitempty"`
}

// RawTime accepts the three shapes providers use for event boundaries: a
// plain string, {"date": ...} or {"dateTime": ...}.
type RawTime struct {
	Plain    string
	Date     string
	DateTime string
}

func (t RawTime) IsZero() bool {
	return t.Plain == "" && t.Date == "" && t.DateTime == ""
}

// Value returns the most specific representation available.
func (t RawTime) Value() string {
	switch {
	case t.DateTime != "":
		return t.DateTime
	case t.Date != "":
		return t.Date
	default:
		return t.Plain
	}
}

// DateOnly reports whether the value carries no time component.
func (t RawTime) DateOnly() bool {
	if t.DateTime != "" {
		return false
	}
	if t.Date != "" {
		return true
	}
	return t.Plain != "" && !strings.Contains(t.Plain, "T")
}

func (t *RawTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.Plain)
	}
	var obj struct {
		Date     string `json:"date"`
		DateTime string `json:"dateTime"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode event time: %w", err)
	}
	t.Date = obj.Date
	t.DateTime = obj.DateTime
	return nil
}

func (t RawTime) MarshalJSON() ([]byte, error) {
	switch {
	case t.DateTime != "":
		return json.Marshal(map[string]string{"dateTime": t.DateTime})
	case t.Date != "":
		return json.Marshal(map[string]string{"date": t.Date})
	default:
		return json.Marshal(t.Plain)
	}
}

// EventDraft is an event to be written to a calendar. For all-day drafts End
// is the last day the event occupies.
type EventDraft struct {
	CalendarID  string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
}
