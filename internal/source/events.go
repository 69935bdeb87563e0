// Package source fetches calendar events and notification records and
// normalizes them for reconciliation.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/timeutil"
)

const defaultFetchLimit = 4

// Provider lists raw events for one calendar.
type Provider interface {
	ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawEvent, error)
}

// RoutedProvider serves only the calendars it reports as handled.
type RoutedProvider interface {
	Provider
	Handles(calendarID string) bool
}

// Router sends each calendar to the first routed provider that handles it,
// or to the fallback.
type Router struct {
	fallback Provider
	routes   []RoutedProvider
}

func NewRouter(fallback Provider, routes ...RoutedProvider) *Router {
	return &Router{fallback: fallback, routes: routes}
}

func (r *Router) ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawEvent, error) {
	for _, p := range r.routes {
		if p != nil && p.Handles(calendarID) {
			return p.ListEvents(ctx, calendarID, start, end)
		}
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("no provider for calendar %s", calendarID)
	}
	return r.fallback.ListEvents(ctx, calendarID, start, end)
}

// EventSource fetches and normalizes events across calendars.
type EventSource struct {
	provider Provider
	loc      *time.Location
	limit    int
	now      func() time.Time
	logger   *slog.Logger
}

func NewEventSource(p Provider, loc *time.Location, logger *slog.Logger) *EventSource {
	if loc == nil {
		loc = time.Local
	}
	return &EventSource{
		provider: p,
		loc:      loc,
		limit:    defaultFetchLimit,
		now:      time.Now,
		logger:   logger,
	}
}

// SetConcurrency bounds the number of calendars fetched at once.
func (s *EventSource) SetConcurrency(n int) {
	if n > 0 {
		s.limit = n
	}
}

// Location returns the zone events are normalized into.
func (s *EventSource) Location() *time.Location {
	return s.loc
}

// Window returns the fetch range for a view anchored at ref.
func Window(view model.ViewKind, ref time.Time) (start, end time.Time) {
	switch view {
	case model.ViewDay:
		return timeutil.StartOfDay(ref), timeutil.EndOfDay(ref)
	case model.ViewWeek:
		monday := timeutil.StartOfWeek(ref)
		return monday, timeutil.EndOfDay(monday.AddDate(0, 0, 6))
	default:
		return timeutil.StartOfMonth(ref), timeutil.EndOfMonth(ref)
	}
}

// FetchEvents fetches every calendar concurrently over the view window. A
// calendar that fails is logged and left out; the others are still
// returned. The result is ordered by start time.
func (s *EventSource) FetchEvents(ctx context.Context, calendars []string, primary string, view model.ViewKind, ref time.Time) []model.CalendarEvent {
	start, end := Window(view, ref.In(s.loc))
	events := s.FetchRange(ctx, calendars, primary, start, end)
	s.logger.Debug("events fetched", "calendars", len(calendars), "events", len(events), "view", view)
	return events
}

// FetchRange is FetchEvents over an explicit [start, end] range.
func (s *EventSource) FetchRange(ctx context.Context, calendars []string, primary string, start, end time.Time) []model.CalendarEvent {
	perCalendar := make([][]model.CalendarEvent, len(calendars))

	var g errgroup.Group
	g.SetLimit(s.limit)
	for i, calID := range calendars {
		g.Go(func() error {
			raws, err := s.provider.ListEvents(ctx, calID, start, end)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Warn("calendar fetch failed", "calendar", calID, "error", err)
				}
				return nil
			}
			events := make([]model.CalendarEvent, 0, len(raws))
			for _, raw := range raws {
				if ev, ok := s.normalize(raw, calID, primary); ok {
					events = append(events, ev)
				}
			}
			perCalendar[i] = events
			return nil
		})
	}
	g.Wait()

	merged := []model.CalendarEvent{}
	for _, events := range perCalendar {
		merged = append(merged, events...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Start.Time.Before(merged[j].Start.Time)
	})
	return merged
}

func (s *EventSource) normalize(raw model.RawEvent, calendarID, primary string) (model.CalendarEvent, bool) {
	summary := strings.TrimSpace(raw.Summary)
	if summary == "" || raw.Start.IsZero() {
		return model.CalendarEvent{}, false
	}

	start, allDay, err := timeutil.ParseFlexible(raw.Start.Value(), s.loc)
	if err != nil {
		s.logger.Debug("skipping event with unparsable start", "calendar", calendarID, "summary", summary, "error", err)
		return model.CalendarEvent{}, false
	}

	end := start
	if allDay {
		end = start.AddDate(0, 0, 1)
	}
	if !raw.End.IsZero() {
		if parsed, _, err := timeutil.ParseFlexible(raw.End.Value(), s.loc); err == nil {
			end = parsed
			if allDay {
				end = timeutil.StartOfDay(parsed)
			}
		}
	}

	id := raw.UID
	if id == "" {
		id = s.synthesizeID(summary, start, allDay)
	}

	return model.CalendarEvent{
		ID:            id,
		Summary:       summary,
		Description:   raw.Description,
		Location:      raw.Location,
		Start:         model.EventTime{Time: start, AllDay: allDay},
		End:           model.EventTime{Time: end, AllDay: allDay},
		IsAllDay:      allDay,
		CalendarID:    calendarID,
		Provider:      model.InferProvider(calendarID),
		IsEditable:    calendarID == primary,
		RecurrenceID:  raw.RecurrenceID,
		RRule:         raw.RRule,
		Notifications: []model.NotificationBinding{},
	}, true
}

// synthesizeID builds an id for events the provider left unidentified. The
// fetch timestamp makes it unique per fetch, so notifications attached to
// such events are found again through the summary keys rather than the id.
func (s *EventSource) synthesizeID(summary string, start time.Time, allDay bool) string {
	startKey := timeutil.LocalTimeString(start)
	if allDay {
		startKey = timeutil.DateString(start)
	}
	return fmt.Sprintf("%s_%s_%d", summary, startKey, s.now().UnixMilli())
}
