package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dukerupert/homecal/internal/editor"
	"github.com/dukerupert/homecal/internal/store"
	"github.com/dukerupert/homecal/internal/timeutil"
	"github.com/dukerupert/homecal/internal/websocket"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps editor and store errors to a status code. Anything
// unrecognized is a failed upstream write.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, editor.ErrInvalidTiming),
		errors.Is(err, editor.ErrInvalidEvent),
		errors.Is(err, editor.ErrUnknownAction),
		errors.Is(err, timeutil.ErrInvalidOffset):
		status = http.StatusBadRequest
	case errors.Is(err, editor.ErrNotEditable):
		status = http.StatusForbidden
	case errors.Is(err, editor.ErrNotFound), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}
	writeErrorMsg(w, status, err.Error())
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(timeutil.DateLayout, s, loc)
}

// broadcaster is embedded by handlers that push changes to dashboards.
type broadcaster struct {
	hub *websocket.Hub
}

func (b broadcaster) broadcast(msg websocket.Message) {
	if b.hub != nil {
		b.hub.Broadcast(msg)
	}
}
