// Package reconcile merges fetched events with stored notification records
// and publishes the result into the session state.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/homecal/internal/match"
	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/session"
	"github.com/dukerupert/homecal/internal/source"
)

// ErrRefreshInProgress is returned when another refresh holds the session.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// EventFetcher supplies normalized events for a view.
type EventFetcher interface {
	FetchEvents(ctx context.Context, calendars []string, primary string, view model.ViewKind, ref time.Time) []model.CalendarEvent
	Location() *time.Location
}

// NotificationFetcher supplies the stored notification records.
type NotificationFetcher interface {
	FetchNotifications(ctx context.Context, state *session.State) []model.NotificationRecord
}

// Request selects what a refresh fetches. A zero Ref means now.
type Request struct {
	Calendars []string
	Primary   string
	View      model.ViewKind
	Ref       time.Time
}

// Result summarizes one completed refresh.
type Result struct {
	Events        []model.CalendarEvent
	Notifications int
	Matched       map[match.Strategy]int
	Window        session.Window
	UpdatedAt     time.Time
}

// Engine runs refreshes against a single session.
type Engine struct {
	events        EventFetcher
	notifications NotificationFetcher
	state         *session.State
	now           func() time.Time
	logger        *slog.Logger

	mu        sync.RWMutex
	listeners []func(Result)
}

func NewEngine(events EventFetcher, notifications NotificationFetcher, state *session.State, logger *slog.Logger) *Engine {
	return &Engine{
		events:        events,
		notifications: notifications,
		state:         state,
		now:           time.Now,
		logger:        logger,
	}
}

// OnUpdate registers fn to run after every successful refresh.
func (e *Engine) OnUpdate(fn func(Result)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// State returns the session the engine publishes into.
func (e *Engine) State() *session.State {
	return e.state
}

// Refresh fetches events and notifications, attaches every event's
// notifications and replaces the session's event list. Partial upstream
// failures degrade the result instead of failing it.
func (e *Engine) Refresh(ctx context.Context, req Request) (Result, error) {
	if !e.state.TryBeginFetch() {
		return Result{}, ErrRefreshInProgress
	}
	defer e.state.EndFetch()

	ref := req.Ref
	if ref.IsZero() {
		ref = e.now()
	}
	ref = ref.In(e.events.Location())
	start, end := source.Window(req.View, ref)

	events := e.events.FetchEvents(ctx, req.Calendars, req.Primary, req.View, ref)
	records := e.notifications.FetchNotifications(ctx, e.state)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	idx := match.Build(records, e.events.Location())
	matched := make(map[match.Strategy]int)
	for i := range events {
		m := idx.Lookup(events[i])
		events[i].Notifications = m.Bindings
		if m.Strategy != match.StrategyNone {
			matched[m.Strategy]++
		}
	}

	res := Result{
		Events:        events,
		Notifications: len(records),
		Matched:       matched,
		Window:        session.Window{View: req.View, Start: start, End: end},
		UpdatedAt:     e.now(),
	}
	e.state.Replace(events, res.Window, res.UpdatedAt)

	e.logger.Info("calendar refreshed",
		"events", len(events),
		"notifications", len(records),
		"matched", matchedTotal(matched),
		"view", req.View,
	)

	e.mu.RLock()
	listeners := append([]func(Result){}, e.listeners...)
	e.mu.RUnlock()
	for _, fn := range listeners {
		fn(res)
	}
	return res, nil
}

func matchedTotal(m map[match.Strategy]int) int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

// Snapshot returns the events published by the last refresh.
func (e *Engine) Snapshot() []model.CalendarEvent {
	return e.state.Events()
}

// Find returns the event with id from the last snapshot.
func (e *Engine) Find(id string) (model.CalendarEvent, bool) {
	return e.state.Find(id)
}
