package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/homecal/internal/editor"
	"github.com/dukerupert/homecal/internal/timeutil"
	"github.com/dukerupert/homecal/internal/websocket"
)

// EventEditor is the write side of the dashboard.
type EventEditor interface {
	CreateEvent(ctx context.Context, in editor.EventInput) error
	UpdateEvent(ctx context.Context, id string, in editor.EventInput) error
	DeleteEvent(ctx context.Context, id string) error
	AddNotification(ctx context.Context, eventID string, t editor.Timing) (string, error)
	RemoveNotification(ctx context.Context, id string) error
	ToggleNotification(ctx context.Context, id string) error
	SnoozeEvent(ctx context.Context, eventID string, minutes int) (string, error)
}

var _ EventEditor = (*editor.Editor)(nil)

type EditorHandler struct {
	broadcaster
	editor EventEditor
	loc    *time.Location
	logger *slog.Logger
}

func NewEditorHandler(e EventEditor, loc *time.Location, hub *websocket.Hub, logger *slog.Logger) *EditorHandler {
	return &EditorHandler{broadcaster: broadcaster{hub: hub}, editor: e, loc: loc, logger: logger}
}

type eventRequest struct {
	Summary       string          `json:"summary"`
	Description   string          `json:"description"`
	Location      string          `json:"location"`
	Start         string          `json:"start"`
	End           string          `json:"end"`
	AllDay        bool            `json:"all_day"`
	Notifications []editor.Timing `json:"notifications"`
}

// input converts the request. Date-only start values make the event all-day;
// a missing end means a one-hour event, or a single day when all-day.
func (h *EditorHandler) input(req eventRequest) (editor.EventInput, string) {
	in := editor.EventInput{
		Summary:       strings.TrimSpace(req.Summary),
		Description:   req.Description,
		Location:      req.Location,
		AllDay:        req.AllDay,
		Notifications: req.Notifications,
	}

	start, dateOnly, err := timeutil.ParseFlexible(req.Start, h.loc)
	if err != nil {
		return in, "start must be YYYY-MM-DD or YYYY-MM-DDTHH:MM"
	}
	in.Start = start
	in.AllDay = in.AllDay || dateOnly

	switch {
	case req.End != "":
		end, _, err := timeutil.ParseFlexible(req.End, h.loc)
		if err != nil {
			return in, "end must be YYYY-MM-DD or YYYY-MM-DDTHH:MM"
		}
		in.End = end
	case in.AllDay:
		in.End = start
	default:
		in.End = start.Add(time.Hour)
	}
	return in, ""
}

func (h *EditorHandler) decodeEvent(w http.ResponseWriter, r *http.Request) (editor.EventInput, bool) {
	var req eventRequest
	if err := decode(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid JSON")
		return editor.EventInput{}, false
	}
	in, msg := h.input(req)
	if msg != "" {
		writeErrorMsg(w, http.StatusBadRequest, msg)
		return editor.EventInput{}, false
	}
	return in, true
}

// CreateEvent handles POST /api/events
func (h *EditorHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}
	if err := h.editor.CreateEvent(r.Context(), in); err != nil {
		h.logger.Error("create event", "summary", in.Summary, "error", err)
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityEvent, "created", "", map[string]any{"summary": in.Summary}))
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// UpdateEvent handles PUT /api/events/{id}
func (h *EditorHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	in, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}
	if err := h.editor.UpdateEvent(r.Context(), id, in); err != nil {
		h.logger.Error("update event", "id", id, "error", err)
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityEvent, "updated", id, nil))
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// DeleteEvent handles DELETE /api/events/{id}
func (h *EditorHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.editor.DeleteEvent(r.Context(), id); err != nil {
		h.logger.Error("delete event", "id", id, "error", err)
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityEvent, "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// AddNotification handles POST /api/events/{id}/notifications
func (h *EditorHandler) AddNotification(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	var t editor.Timing
	if err := decode(r, &t); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	id, err := h.editor.AddNotification(r.Context(), eventID, t)
	if err != nil {
		h.logger.Error("add notification", "event_id", eventID, "error", err)
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityNotification, "created", id, map[string]any{"event_id": eventID}))
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// Snooze handles POST /api/events/{id}/snooze
func (h *EditorHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := decode(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	id, err := h.editor.SnoozeEvent(r.Context(), eventID, req.Minutes)
	if err != nil {
		h.logger.Error("snooze event", "event_id", eventID, "error", err)
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityNotification, "snoozed", id, map[string]any{"event_id": eventID, "minutes": req.Minutes}))
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// Action handles POST /api/events/{id}/actions, the buttons on interactive
// reminders. Done is not stored anywhere; dashboards are told over the
// websocket.
func (h *EditorHandler) Action(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	var req struct {
		Action string `json:"action"`
	}
	if err := decode(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	action, err := editor.ParseAction(req.Action)
	if err != nil {
		writeError(w, err)
		return
	}

	switch action.Kind {
	case editor.ActionSnooze:
		id, err := h.editor.SnoozeEvent(r.Context(), eventID, action.Minutes)
		if err != nil {
			h.logger.Error("snooze from action", "event_id", eventID, "error", err)
			writeError(w, err)
			return
		}
		h.broadcast(websocket.NewMessage(websocket.EntityNotification, "snoozed", id, map[string]any{"event_id": eventID, "minutes": action.Minutes}))
		writeJSON(w, http.StatusCreated, map[string]string{"action": string(action.Kind), "id": id})

	case editor.ActionDelete:
		if err := h.editor.DeleteEvent(r.Context(), eventID); err != nil {
			h.logger.Error("delete from action", "event_id", eventID, "error", err)
			writeError(w, err)
			return
		}
		h.broadcast(websocket.NewMessage(websocket.EntityEvent, "deleted", eventID, nil))
		writeJSON(w, http.StatusOK, map[string]string{"action": string(action.Kind)})

	case editor.ActionDone:
		at := time.Now().In(h.loc)
		h.logger.Info("event marked done", "event_id", eventID)
		h.broadcast(websocket.NewMessage(websocket.EntityEvent, "done", eventID, map[string]any{"timestamp": at.Format(time.RFC3339)}))
		writeJSON(w, http.StatusOK, map[string]string{"action": string(action.Kind)})
	}
}

// RemoveNotification handles DELETE /api/notifications/{id}
func (h *EditorHandler) RemoveNotification(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.editor.RemoveNotification(r.Context(), id); err != nil {
		h.logger.Error("remove notification", "id", id, "error", err)
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityNotification, "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// ToggleNotification handles POST /api/notifications/{id}/toggle
func (h *EditorHandler) ToggleNotification(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.editor.ToggleNotification(r.Context(), id); err != nil {
		h.logger.Error("toggle notification", "id", id, "error", err)
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityNotification, "toggled", id, nil))
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "toggled"})
}

// PreviewOffset handles POST /api/notifications/offset
func (h *EditorHandler) PreviewOffset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventStart string `json:"event_start"`
		Time       string `json:"time"`
		DaysBefore int    `json:"days_before"`
	}
	if err := decode(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	start, _, err := timeutil.ParseFlexible(req.EventStart, h.loc)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "event_start must be YYYY-MM-DD or YYYY-MM-DDTHH:MM")
		return
	}

	minutes, desc, err := editor.PreviewOffset(start, req.Time, req.DaysBefore)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"offset_minutes": minutes,
		"description":    desc,
	})
}
