package source

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/session"
)

type fakeProvider struct {
	mu     sync.Mutex
	events map[string][]model.RawEvent
	fail   map[string]bool
	calls  []string
}

func (f *fakeProvider) ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawEvent, error) {
	f.mu.Lock()
	f.calls = append(f.calls, calendarID)
	f.mu.Unlock()
	if f.fail[calendarID] {
		return nil, errors.New("boom")
	}
	return f.events[calendarID], nil
}

type routedProvider struct {
	fakeProvider
	handles string
}

func (r *routedProvider) Handles(id string) bool { return id == r.handles }

func TestFetchEventsSurvivesFailingCalendar(t *testing.T) {
	p := &fakeProvider{
		events: map[string][]model.RawEvent{
			"calendar.a": {{UID: "a1", Summary: "Later", Start: model.RawTime{DateTime: "2025-01-24T15:00:00"}}},
			"calendar.c": {{UID: "c1", Summary: "Earlier", Start: model.RawTime{DateTime: "2025-01-24T09:00:00"}}},
		},
		fail: map[string]bool{"calendar.b": true},
	}
	s := NewEventSource(p, time.UTC, slog.Default())

	ref := time.Date(2025, 1, 24, 12, 0, 0, 0, time.UTC)
	events := s.FetchEvents(context.Background(), []string{"calendar.a", "calendar.b", "calendar.c"}, "calendar.a", model.ViewDay, ref)

	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].ID != "c1" || events[1].ID != "a1" {
		t.Errorf("order = %s, %s, want c1, a1", events[0].ID, events[1].ID)
	}
	if !events[1].IsEditable || events[0].IsEditable {
		t.Error("only primary calendar events should be editable")
	}
	if events[0].Notifications == nil {
		t.Error("Notifications should be non-nil")
	}
}

func TestFetchEventsAllCalendarsFail(t *testing.T) {
	p := &fakeProvider{fail: map[string]bool{"calendar.a": true}}
	s := NewEventSource(p, time.UTC, slog.Default())

	events := s.FetchEvents(context.Background(), []string{"calendar.a"}, "", model.ViewMonth, time.Now())
	if events == nil || len(events) != 0 {
		t.Errorf("events = %v, want empty non-nil", events)
	}
}

func TestFetchEventsNormalization(t *testing.T) {
	p := &fakeProvider{
		events: map[string][]model.RawEvent{
			"calendar.a": {
				{Summary: "   ", Start: model.RawTime{Plain: "2025-01-24T10:00:00"}},
				{Summary: "No start"},
				{Summary: "Garbage", Start: model.RawTime{Plain: "tomorrow"}},
				{Summary: "Trip", Start: model.RawTime{Date: "2025-01-24"}, End: model.RawTime{Date: "2025-01-27"}},
				{Summary: "Call", Start: model.RawTime{Plain: "2025-01-24T10:00:00"}},
			},
		},
	}
	s := NewEventSource(p, time.UTC, slog.Default())
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }

	events := s.FetchEvents(context.Background(), []string{"calendar.a"}, "calendar.a", model.ViewMonth, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(events), events)
	}

	trip := events[0]
	if !trip.IsAllDay || trip.Start.String() != "2025-01-24" || trip.End.String() != "2025-01-27" {
		t.Errorf("trip = %+v", trip)
	}
	if trip.ID != "Trip_2025-01-24_1700000000000" {
		t.Errorf("trip.ID = %q", trip.ID)
	}

	call := events[1]
	if call.IsAllDay || !call.End.Time.Equal(call.Start.Time) {
		t.Errorf("call = %+v, want zero-length timed event", call)
	}
	if call.ID != "Call_2025-01-24T10:00_1700000000000" {
		t.Errorf("call.ID = %q", call.ID)
	}
}

func TestRouter(t *testing.T) {
	fallback := &fakeProvider{}
	g := &routedProvider{handles: "calendar.work"}
	r := NewRouter(fallback, g)

	ctx := context.Background()
	r.ListEvents(ctx, "calendar.work", time.Now(), time.Now())
	r.ListEvents(ctx, "calendar.home", time.Now(), time.Now())

	if strings.Join(g.calls, ",") != "calendar.work" {
		t.Errorf("routed calls = %v", g.calls)
	}
	if strings.Join(fallback.calls, ",") != "calendar.home" {
		t.Errorf("fallback calls = %v", fallback.calls)
	}

	if _, err := NewRouter(nil).ListEvents(ctx, "calendar.x", time.Now(), time.Now()); err == nil {
		t.Error("expected error without fallback")
	}
}

func TestWindow(t *testing.T) {
	ref := time.Date(2025, 1, 24, 15, 30, 0, 0, time.UTC) // Friday

	tests := []struct {
		view       model.ViewKind
		start, end string
	}{
		{model.ViewDay, "2025-01-24", "2025-01-24"},
		{model.ViewWeek, "2025-01-20", "2025-01-26"},
		{model.ViewMonth, "2025-01-01", "2025-01-31"},
	}
	for _, tt := range tests {
		start, end := Window(tt.view, ref)
		if got := start.Format("2006-01-02"); got != tt.start {
			t.Errorf("%s start = %q, want %q", tt.view, got, tt.start)
		}
		if got := end.Format("2006-01-02"); got != tt.end {
			t.Errorf("%s end = %q, want %q", tt.view, got, tt.end)
		}
	}
}

type fakeBackend struct {
	records    []model.NotificationRecord
	afterForce []model.NotificationRecord
	err        error
	forced     int
}

func (f *fakeBackend) ListNotifications(ctx context.Context) ([]model.NotificationRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.forced > 0 && f.afterForce != nil {
		return f.afterForce, nil
	}
	return f.records, nil
}

func (f *fakeBackend) ForceRecompute(ctx context.Context) error {
	f.forced++
	return nil
}

func TestFetchNotificationsForcesRecomputeOnce(t *testing.T) {
	b := &fakeBackend{}
	s := NewNotificationSource(b, 0, slog.Default())
	state := session.New()

	for i := 0; i < 3; i++ {
		got := s.FetchNotifications(context.Background(), state)
		if got == nil || len(got) != 0 {
			t.Fatalf("call %d: records = %v, want empty", i, got)
		}
	}
	if b.forced != 1 {
		t.Errorf("forced = %d, want 1", b.forced)
	}
	if !state.ForcedRefreshAttempted() {
		t.Error("ForcedRefreshAttempted = false, want true")
	}
}

func TestFetchNotificationsRereadsAfterRecompute(t *testing.T) {
	b := &fakeBackend{afterForce: []model.NotificationRecord{{ID: "n1", EventID: "e1"}}}
	s := NewNotificationSource(b, 0, slog.Default())

	got := s.FetchNotifications(context.Background(), session.New())
	if len(got) != 1 || got[0].ID != "n1" {
		t.Errorf("records = %+v, want n1", got)
	}
}

func TestFetchNotificationsSkipsRecomputeWhenPopulated(t *testing.T) {
	b := &fakeBackend{records: []model.NotificationRecord{{ID: "n1"}}}
	s := NewNotificationSource(b, 0, slog.Default())

	s.FetchNotifications(context.Background(), session.New())
	if b.forced != 0 {
		t.Errorf("forced = %d, want 0", b.forced)
	}
}

func TestFetchNotificationsTreatsErrorAsEmpty(t *testing.T) {
	b := &fakeBackend{err: errors.New("sensor missing")}
	s := NewNotificationSource(b, 0, slog.Default())

	got := s.FetchNotifications(context.Background(), session.New())
	if got == nil || len(got) != 0 {
		t.Errorf("records = %v, want empty", got)
	}
}

func TestFetchNotificationsHonorsCancelDuringSettle(t *testing.T) {
	b := &fakeBackend{afterForce: []model.NotificationRecord{{ID: "n1"}}}
	s := NewNotificationSource(b, time.Hour, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := s.FetchNotifications(ctx, session.New())
	if len(got) != 0 {
		t.Errorf("records = %+v, want empty after cancel", got)
	}
}
