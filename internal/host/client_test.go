package host

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukerupert/homecal/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Token: "secret", Retries: 2}, slog.Default())
}

func TestListEvents(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer secret")
		}
		if r.URL.Path != "/api/calendars/calendar.family" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("start") == "" || r.URL.Query().Get("end") == "" {
			t.Error("missing start/end query")
		}
		w.Write([]byte(`[
			{"summary":"Dentist","start":{"dateTime":"2025-01-24T15:30:00+01:00"},"end":{"dateTime":"2025-01-24T16:30:00+01:00"},"uid":"u1"},
			{"summary":"Trip","start":{"date":"2025-06-30"},"end":{"date":"2025-07-03"}}
		]`))
	})

	events, err := c.ListEvents(context.Background(), "calendar.family", time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].UID != "u1" || events[0].Start.DateOnly() {
		t.Errorf("event[0] = %+v", events[0])
	}
	if !events[1].Start.DateOnly() || events[1].End.Value() != "2025-07-03" {
		t.Errorf("event[1] = %+v", events[1])
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	})

	if _, err := c.States(context.Background()); err != nil {
		t.Fatalf("States: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	if _, err := c.States(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestStateNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	st, err := c.State(context.Background(), "sensor.missing")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st != nil {
		t.Errorf("state = %+v, want nil", st)
	}
}

func TestCallServiceNotRetried(t *testing.T) {
	var calls atomic.Int32
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/api/services/calendar/delete_event" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		http.Error(w, "failed", http.StatusInternalServerError)
	})

	err := c.DeleteEvent(context.Background(), "calendar.family", "u1")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if body["uid"] != "u1" || body["entity_id"] != "calendar.family" {
		t.Errorf("body = %v", body)
	}
}

func TestCreateEventAllDayUsesExclusiveEnd(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`[]`))
	})

	err := c.CreateEvent(context.Background(), model.EventDraft{
		CalendarID: "calendar.family",
		Summary:    "Trip",
		Start:      time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC),
		AllDay:     true,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if body["start_date"] != "2025-06-30" || body["end_date"] != "2025-07-03" {
		t.Errorf("body = %v", body)
	}
}

func TestListNotifications(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/states":
			w.Write([]byte(`[
				{"entity_id":"sensor.kitchen","state":"21","attributes":{}},
				{"entity_id":"sensor.better_calendar_notifications","state":"2","attributes":{
					"notifications_data":{
						"n1":{"event_id":"e1","event_summary":"Dentist","event_start":"2025-01-24T15:30:00","notification_type":"push","offset_minutes":30,"created_at":"2025-01-20T10:00:00+00:00"},
						"n2":{"event_id":"e1","event_summary":"Dentist","event_start":"2025-01-24T15:30:00","notification_type":"alexa","offset_minutes":60,"target_device":"notify.echo_speak","enabled":false,"custom_message_alexa":"hey","created_at":"2025-01-21T10:00:00+00:00"},
						"bad":{"notification_type":"sms"},
						"n3":{"event_id":"e1","event_summary":"Dentist","event_start":"2025-01-24T15:30:00","notification_type":"push","offset_minutes":-30}
					}
				}}
			]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	records, err := c.ListNotifications(context.Background())
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
	if records[0].ID != "n1" || !records[0].Enabled || records[0].TargetDevice != model.DefaultTarget {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].Type != model.NotificationVoice || records[1].Enabled || records[1].CustomMessageVoice != "hey" {
		t.Errorf("records[1] = %+v", records[1])
	}
}

func TestListNotificationsNoSensor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	if _, err := c.ListNotifications(context.Background()); err == nil {
		t.Fatal("expected ErrSensorNotFound")
	}
}

func TestAddNotificationMapsVoiceType(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/services/better_calendar/add_notification" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`[]`))
	})

	_, err := c.AddNotification(context.Background(), model.NotificationRequest{
		EventID:       "e1",
		EventSummary:  "Dentist",
		EventStart:    "2025-01-24T15:30",
		Type:          model.NotificationVoice,
		OffsetMinutes: 30,
	})
	if err != nil {
		t.Fatalf("AddNotification: %v", err)
	}
	if body["notification_type"] != "alexa" {
		t.Errorf("notification_type = %v, want alexa", body["notification_type"])
	}
}

func TestAddNotificationDisabled(t *testing.T) {
	var toggled string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/services/better_calendar/add_notification":
			w.Write([]byte(`[]`))
		case "/api/states":
			w.Write([]byte(`[
				{"entity_id":"sensor.better_calendar_notifications","state":"3","attributes":{
					"notifications_data":{
						"old":{"event_id":"e1","event_summary":"Dentist","event_start":"2025-01-24T15:30","notification_type":"push","offset_minutes":30,"created_at":"2025-01-20T10:00:00+00:00"},
						"new":{"event_id":"e1","event_summary":"Dentist","event_start":"2025-01-24T15:30","notification_type":"push","offset_minutes":30,"created_at":"2025-01-22T10:00:00+00:00"},
						"other":{"event_id":"e1","event_summary":"Dentist","event_start":"2025-01-24T15:30","notification_type":"push","offset_minutes":60,"created_at":"2025-01-23T10:00:00+00:00"}
					}
				}}
			]`))
		case "/api/services/better_calendar/toggle_notification":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			toggled, _ = body["notification_id"].(string)
			w.Write([]byte(`[]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	id, err := c.AddNotification(context.Background(), model.NotificationRequest{
		EventID:       "e1",
		EventSummary:  "Dentist",
		EventStart:    "2025-01-24T15:30",
		Type:          model.NotificationPush,
		OffsetMinutes: 30,
		Disabled:      true,
	})
	if err != nil {
		t.Fatalf("AddNotification: %v", err)
	}
	if id != "new" || toggled != "new" {
		t.Errorf("id = %q, toggled = %q, want the newest match", id, toggled)
	}
}

func TestTargets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/services":
			w.Write([]byte(`[
				{"domain":"light","services":{"turn_on":{}}},
				{"domain":"notify","services":{"mobile_app_pixel":{},"alexa_media":{},"send_message":{},"notify":{}}}
			]`))
		case "/api/states":
			w.Write([]byte(`[
				{"entity_id":"notify.kitchen_echo_speak","state":"unknown","attributes":{"friendly_name":"Kitchen"}},
				{"entity_id":"media_player.alexa_living","state":"idle","attributes":{}},
				{"entity_id":"media_player.tv","state":"off","attributes":{}}
			]`))
		}
	})

	got, err := c.Targets(context.Background())
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}

	var push []string
	for _, tg := range got.Push {
		push = append(push, tg.ID)
	}
	if strings.Join(push, ",") != "notify.mobile_app_pixel,notify.notify" {
		t.Errorf("push = %v", push)
	}
	if len(got.Voice) != 3 {
		t.Errorf("voice = %+v, want 3 entries", got.Voice)
	}
}
