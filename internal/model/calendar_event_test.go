package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRawTimeShapes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		value    string
		dateOnly bool
	}{
		{"plain datetime", `"2025-01-24T15:30:00+01:00"`, "2025-01-24T15:30:00+01:00", false},
		{"plain date", `"2025-01-24"`, "2025-01-24", true},
		{"date object", `{"date":"2025-06-30"}`, "2025-06-30", true},
		{"datetime object", `{"dateTime":"2025-06-30T09:00:00Z"}`, "2025-06-30T09:00:00Z", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rt RawTime
			if err := json.Unmarshal([]byte(tt.input), &rt); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := rt.Value(); got != tt.value {
				t.Errorf("Value() = %q, want %q", got, tt.value)
			}
			if got := rt.DateOnly(); got != tt.dateOnly {
				t.Errorf("DateOnly() = %v, want %v", got, tt.dateOnly)
			}
		})
	}
}

func TestRawEventDecode(t *testing.T) {
	body := `{"summary":"Dentist","start":{"dateTime":"2025-01-24T15:30:00"},"end":"2025-01-24T16:30:00","uid":"abc"}`
	var ev RawEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.UID != "abc" {
		t.Errorf("UID = %q, want %q", ev.UID, "abc")
	}
	if ev.Start.DateTime != "2025-01-24T15:30:00" {
		t.Errorf("Start.DateTime = %q", ev.Start.DateTime)
	}
	if ev.End.Plain != "2025-01-24T16:30:00" {
		t.Errorf("End.Plain = %q", ev.End.Plain)
	}
}

func TestEventTimeJSON(t *testing.T) {
	day := EventTime{Time: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), AllDay: true}
	timed := EventTime{Time: time.Date(2025, 1, 24, 15, 30, 0, 0, time.UTC)}

	got, _ := json.Marshal(day)
	if string(got) != `"2025-06-30"` {
		t.Errorf("all-day = %s, want %q", got, "2025-06-30")
	}
	got, _ = json.Marshal(timed)
	if string(got) != `"2025-01-24T15:30"` {
		t.Errorf("timed = %s, want %q", got, "2025-01-24T15:30")
	}
}

func TestInferProvider(t *testing.T) {
	tests := map[string]ProviderKind{
		"calendar.google_family":    ProviderGoogle,
		"calendar.work_outlook":     ProviderOutlook,
		"calendar.nextcloud_caldav": ProviderCalDAV,
		"calendar.home":             ProviderLocal,
	}
	for id, want := range tests {
		if got := InferProvider(id); got != want {
			t.Errorf("InferProvider(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestParseNotificationType(t *testing.T) {
	if got, ok := ParseNotificationType("alexa"); !ok || got != NotificationVoice {
		t.Errorf("alexa = %q, %v", got, ok)
	}
	if _, ok := ParseNotificationType("sms"); ok {
		t.Error("sms should not parse")
	}
}
