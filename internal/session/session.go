// Package session holds the per-widget refresh state: the single-flight
// fetch flag, the once-per-session forced notification refresh, and the
// merged event snapshot together with the window it covers.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/homecal/internal/model"
)

// Window is the date range a snapshot was fetched for.
type Window struct {
	View  model.ViewKind
	Start time.Time
	End   time.Time
}

// Covers reports whether [start, end] lies inside w. A zero Window covers
// nothing.
func (w Window) Covers(start, end time.Time) bool {
	if w.Start.IsZero() {
		return false
	}
	return !start.Before(w.Start) && !end.After(w.End)
}

// Navigation is what the widget is looking at. An empty View defers to the
// saved settings and a zero Ref follows the current date.
type Navigation struct {
	View model.ViewKind
	Ref  time.Time
}

type State struct {
	fetching        atomic.Bool
	forcedAttempted atomic.Bool

	mu        sync.RWMutex
	events    []model.CalendarEvent
	window    Window
	updatedAt time.Time
	nav       Navigation
}

func New() *State {
	return &State{events: []model.CalendarEvent{}}
}

// TryBeginFetch marks a fetch as in progress. It returns false if one
// already is.
func (s *State) TryBeginFetch() bool {
	return s.fetching.CompareAndSwap(false, true)
}

func (s *State) EndFetch() {
	s.fetching.Store(false)
}

func (s *State) Fetching() bool {
	return s.fetching.Load()
}

// ClaimForcedRefresh returns true exactly once per State.
func (s *State) ClaimForcedRefresh() bool {
	return s.forcedAttempted.CompareAndSwap(false, true)
}

func (s *State) ForcedRefreshAttempted() bool {
	return s.forcedAttempted.Load()
}

// Replace swaps in a new snapshot fetched for w.
func (s *State) Replace(events []model.CalendarEvent, w Window, at time.Time) {
	if events == nil {
		events = []model.CalendarEvent{}
	}
	s.mu.Lock()
	s.events = events
	s.window = w
	s.updatedAt = at
	s.mu.Unlock()
}

// Snapshot returns the events, their window and the refresh time as one
// consistent read.
func (s *State) Snapshot() ([]model.CalendarEvent, Window, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events, s.window, s.updatedAt
}

func (s *State) Window() Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window
}

// Navigate records the view the widget moved to. Background refreshes
// follow it.
func (s *State) Navigate(nav Navigation) {
	s.mu.Lock()
	s.nav = nav
	s.mu.Unlock()
}

func (s *State) Navigation() Navigation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nav
}

// Events returns the current snapshot. Callers must not modify it.
func (s *State) Events() []model.CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events
}

func (s *State) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Find returns the event with id from the snapshot.
func (s *State) Find(id string) (model.CalendarEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.ID == id {
			return ev, true
		}
	}
	return model.CalendarEvent{}, false
}
