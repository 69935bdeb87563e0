package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/reconcile"
	"github.com/dukerupert/homecal/internal/source"
	"github.com/dukerupert/homecal/internal/span"
)

// RangeFetcher fetches events over an explicit range.
type RangeFetcher interface {
	FetchRange(ctx context.Context, calendars []string, primary string, start, end time.Time) []model.CalendarEvent
}

var _ RangeFetcher = (*source.EventSource)(nil)

// SummaryHandler serves the today / tomorrow / week / upcoming panel. It
// fetches its own range so that it does not disturb the navigated
// snapshot.
type SummaryHandler struct {
	fetcher RangeFetcher
	request reconcile.RequestFunc
	loc     *time.Location
	logger  *slog.Logger
	now     func() time.Time
}

func NewSummaryHandler(fetcher RangeFetcher, request reconcile.RequestFunc, loc *time.Location, logger *slog.Logger) *SummaryHandler {
	return &SummaryHandler{fetcher: fetcher, request: request, loc: loc, logger: logger, now: time.Now}
}

// Summary handles GET /api/summary
func (h *SummaryHandler) Summary(w http.ResponseWriter, r *http.Request) {
	req, err := h.request(r.Context())
	if err != nil {
		h.logger.Error("build summary request", "error", err)
		writeErrorMsg(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	now := h.now().In(h.loc)
	start, end := span.SummaryRange(now)
	events := h.fetcher.FetchRange(r.Context(), req.Calendars, req.Primary, start, end)
	writeJSON(w, http.StatusOK, span.Summarize(events, now))
}
