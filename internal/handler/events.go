package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/homecal/internal/ics"
	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/reconcile"
	"github.com/dukerupert/homecal/internal/session"
	"github.com/dukerupert/homecal/internal/span"
	"github.com/dukerupert/homecal/internal/source"
	"github.com/dukerupert/homecal/internal/timeutil"
)

// Refresher runs a reconciliation round trip and exposes the current view.
type Refresher interface {
	Refresh(ctx context.Context, req reconcile.Request) (reconcile.Result, error)
	State() *session.State
}

var _ Refresher = (*reconcile.Engine)(nil)

// EventsHandler serves the merged event view.
type EventsHandler struct {
	engine    Refresher
	request   reconcile.RequestFunc
	recompute reconcile.Recomputer
	loc       *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

func NewEventsHandler(engine Refresher, request reconcile.RequestFunc, recompute reconcile.Recomputer, loc *time.Location, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		engine:    engine,
		request:   request,
		recompute: recompute,
		loc:       loc,
		logger:    logger,
		now:       time.Now,
	}
}

type eventsResponse struct {
	View      model.ViewKind        `json:"view"`
	Start     string                `json:"start"`
	End       string                `json:"end"`
	Status    string                `json:"status,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
	Events    []model.CalendarEvent `json:"events"`
}

// List handles GET /api/events?view=&date=
//
// The requested view becomes the widget's navigation, which background
// refreshes follow. When the snapshot does not cover the requested window
// (a refresh for another window is still running) it answers 202 with no
// events rather than events from elsewhere.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	req, err := h.request(r.Context())
	if err != nil {
		h.logger.Error("build refresh request", "error", err)
		writeErrorMsg(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	var nav session.Navigation
	if v := r.URL.Query().Get("view"); v != "" {
		nav.View = model.ParseViewKind(v)
	}
	if d := r.URL.Query().Get("date"); d != "" {
		ref, err := parseDate(d, h.loc)
		if err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		nav.Ref = ref
	}
	h.engine.State().Navigate(nav)

	req = reconcile.WithNavigation(req, nav)
	if req.Ref.IsZero() {
		req.Ref = h.now().In(h.loc)
	}

	_, err = h.engine.Refresh(r.Context(), req)
	if err != nil && !errors.Is(err, reconcile.ErrRefreshInProgress) {
		h.logger.Warn("refresh failed, serving last snapshot", "error", err)
	}

	start, end := source.Window(req.View, req.Ref)
	resp := eventsResponse{
		View:   req.View,
		Start:  timeutil.DateString(start),
		End:    timeutil.DateString(end),
		Events: []model.CalendarEvent{},
	}

	events, window, updatedAt := h.engine.State().Snapshot()
	if !window.Covers(start, end) {
		resp.Status = "in_progress"
		status := http.StatusAccepted
		if err != nil && !errors.Is(err, reconcile.ErrRefreshInProgress) {
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
		return
	}

	resp.UpdatedAt = updatedAt
	resp.Events = eventsWithin(events, start, end)
	writeJSON(w, http.StatusOK, resp)
}

func eventsWithin(events []model.CalendarEvent, start, end time.Time) []model.CalendarEvent {
	out := []model.CalendarEvent{}
	for _, ev := range events {
		if span.Overlaps(ev, start, end) {
			out = append(out, ev)
		}
	}
	return out
}

// Day handles GET /api/days/{date}
func (h *EventsHandler) Day(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.PathValue("date"), h.loc)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":   timeutil.DateString(date),
		"events": span.EventsOn(h.engine.State().Events(), date),
	})
}

// Sync handles POST /api/sync. It asks the notification backend to
// recompute and then refreshes immediately.
func (h *EventsHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.recompute != nil {
		if err := h.recompute.ForceRecompute(r.Context()); err != nil {
			h.logger.Warn("force recompute", "error", err)
		}
	}

	req, err := h.request(r.Context())
	if err != nil {
		h.logger.Error("build refresh request", "error", err)
		writeErrorMsg(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	req = reconcile.WithNavigation(req, h.engine.State().Navigation())
	if req.Ref.IsZero() {
		req.Ref = h.now().In(h.loc)
	}

	res, err := h.engine.Refresh(r.Context(), req)
	switch {
	case errors.Is(err, reconcile.ErrRefreshInProgress):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "in_progress"})
		return
	case err != nil:
		writeErrorMsg(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "synced",
		"events":        len(res.Events),
		"notifications": res.Notifications,
		"matched":       res.Matched,
		"updated_at":    res.UpdatedAt,
	})
}

// Export handles GET /api/calendar.ics
func (h *EventsHandler) Export(w http.ResponseWriter, r *http.Request) {
	body := ics.Export(h.engine.State().Events(), h.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="homecal.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}
