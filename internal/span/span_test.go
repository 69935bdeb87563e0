package span

import (
	"testing"
	"time"

	"github.com/dukerupert/homecal/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func allDayEvent(id string, start, endExclusive time.Time) model.CalendarEvent {
	return model.CalendarEvent{
		ID:       id,
		Summary:  id,
		Start:    model.EventTime{Time: start, AllDay: true},
		End:      model.EventTime{Time: endExclusive, AllDay: true},
		IsAllDay: true,
	}
}

func TestIsVisibleOnAllDayExclusiveEnd(t *testing.T) {
	ev := allDayEvent("trip", day(2025, 6, 30), day(2025, 7, 3))

	tests := []struct {
		date time.Time
		want bool
	}{
		{day(2025, 6, 29), false},
		{day(2025, 6, 30), true},
		{day(2025, 7, 1), true},
		{day(2025, 7, 2), true},
		{day(2025, 7, 3), false},
	}
	for _, tt := range tests {
		if got := IsVisibleOn(ev, tt.date); got != tt.want {
			t.Errorf("IsVisibleOn(%s) = %v, want %v", tt.date.Format("2006-01-02"), got, tt.want)
		}
	}
}

func TestPositionOn(t *testing.T) {
	ev := allDayEvent("conference", day(2025, 6, 30), day(2025, 7, 3))

	tests := []struct {
		date   time.Time
		want   Position
		wantOK bool
	}{
		{day(2025, 6, 30), PositionStart, true},
		{day(2025, 7, 1), PositionMiddle, true},
		{day(2025, 7, 2), PositionEnd, true},
		{day(2025, 7, 3), "", false},
		{day(2025, 6, 1), "", false},
	}
	for _, tt := range tests {
		got, ok := PositionOn(ev, tt.date)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("PositionOn(%s) = %q, %v, want %q, %v", tt.date.Format("2006-01-02"), got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPositionOnSingleDay(t *testing.T) {
	ev := allDayEvent("holiday", day(2025, 12, 25), day(2025, 12, 26))
	got, ok := PositionOn(ev, day(2025, 12, 25))
	if !ok || got != PositionSingle {
		t.Errorf("PositionOn = %q, %v, want single", got, ok)
	}

	timed := model.CalendarEvent{
		ID:    "call",
		Start: model.EventTime{Time: time.Date(2025, 1, 24, 15, 30, 0, 0, time.UTC)},
		End:   model.EventTime{Time: time.Date(2025, 1, 24, 16, 0, 0, 0, time.UTC)},
	}
	got, ok = PositionOn(timed, time.Date(2025, 1, 24, 9, 0, 0, 0, time.UTC))
	if !ok || got != PositionSingle {
		t.Errorf("timed PositionOn = %q, %v, want single", got, ok)
	}
}

func TestEventsOnOrdering(t *testing.T) {
	date := day(2025, 7, 1)
	events := []model.CalendarEvent{
		{
			ID:    "late",
			Start: model.EventTime{Time: time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC)},
			End:   model.EventTime{Time: time.Date(2025, 7, 1, 19, 0, 0, 0, time.UTC)},
		},
		{
			ID:    "early",
			Start: model.EventTime{Time: time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)},
			End:   model.EventTime{Time: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)},
		},
		allDayEvent("trip", day(2025, 6, 30), day(2025, 7, 3)),
		allDayEvent("elsewhere", day(2025, 8, 1), day(2025, 8, 2)),
	}

	got := EventsOn(events, date)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	wantIDs := []string{"trip", "early", "late"}
	for i, want := range wantIDs {
		if got[i].Event.ID != want {
			t.Errorf("placement[%d] = %q, want %q", i, got[i].Event.ID, want)
		}
	}
	if got[0].Position != PositionMiddle {
		t.Errorf("trip position = %q, want middle", got[0].Position)
	}
}
