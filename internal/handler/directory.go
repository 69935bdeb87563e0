package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/homecal/internal/host"
)

type CalendarLister interface {
	Calendars(ctx context.Context) ([]host.CalendarInfo, error)
}

type TargetLister interface {
	Targets(ctx context.Context) (host.Targets, error)
}

var (
	_ CalendarLister = (*host.Client)(nil)
	_ TargetLister   = (*host.Client)(nil)
)

// DirectoryHandler lists what the dashboard can pick from: calendars and
// notification targets.
type DirectoryHandler struct {
	calendars CalendarLister
	targets   TargetLister
	logger    *slog.Logger
}

// NewDirectoryHandler accepts a nil targets lister when no host is
// configured; Targets then reports none.
func NewDirectoryHandler(calendars CalendarLister, targets TargetLister, logger *slog.Logger) *DirectoryHandler {
	return &DirectoryHandler{calendars: calendars, targets: targets, logger: logger}
}

// Calendars handles GET /api/calendars
func (h *DirectoryHandler) Calendars(w http.ResponseWriter, r *http.Request) {
	cals, err := h.calendars.Calendars(r.Context())
	if err != nil {
		h.logger.Error("list calendars", "error", err)
		writeErrorMsg(w, http.StatusBadGateway, "failed to list calendars")
		return
	}
	if cals == nil {
		cals = []host.CalendarInfo{}
	}
	writeJSON(w, http.StatusOK, cals)
}

// Targets handles GET /api/targets
func (h *DirectoryHandler) Targets(w http.ResponseWriter, r *http.Request) {
	if h.targets == nil {
		writeJSON(w, http.StatusOK, host.Targets{Push: []host.Target{}, Voice: []host.Target{}})
		return
	}
	targets, err := h.targets.Targets(r.Context())
	if err != nil {
		h.logger.Error("list targets", "error", err)
		writeErrorMsg(w, http.StatusBadGateway, "failed to list targets")
		return
	}
	writeJSON(w, http.StatusOK, targets)
}
