package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/homecal/internal/host"
	"github.com/dukerupert/homecal/internal/model"
)

type fakeDirectory struct {
	cals    []host.CalendarInfo
	targets host.Targets
	err     error
}

func (f fakeDirectory) Calendars(ctx context.Context) ([]host.CalendarInfo, error) {
	return f.cals, f.err
}

func (f fakeDirectory) Targets(ctx context.Context) (host.Targets, error) {
	return f.targets, f.err
}

func TestDirectoryCalendars(t *testing.T) {
	dir := fakeDirectory{cals: []host.CalendarInfo{{ID: "calendar.family", Name: "Family", Provider: model.ProviderLocal}}}
	h := NewDirectoryHandler(dir, dir, slog.Default())

	rec := httptest.NewRecorder()
	h.Calendars(rec, httptest.NewRequest("GET", "/api/calendars", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"entity_id":"calendar.family"`) {
		t.Errorf("calendars: %d %s", rec.Code, rec.Body.String())
	}
}

func TestDirectoryUpstreamFailure(t *testing.T) {
	dir := fakeDirectory{err: errors.New("host down")}
	h := NewDirectoryHandler(dir, dir, slog.Default())

	for name, fn := range map[string]http.HandlerFunc{"calendars": h.Calendars, "targets": h.Targets} {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusBadGateway {
			t.Errorf("%s: status = %d, want %d", name, rec.Code, http.StatusBadGateway)
		}
	}
}

func TestDirectoryTargetsWithoutHost(t *testing.T) {
	h := NewDirectoryHandler(fakeDirectory{}, nil, slog.Default())

	rec := httptest.NewRecorder()
	h.Targets(rec, httptest.NewRequest("GET", "/api/targets", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != `{"push":[],"voice":[]}` {
		t.Errorf("targets = %s", got)
	}
}
