package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/store"
	"github.com/dukerupert/homecal/internal/websocket"
)

type WidgetStore interface {
	GetWidget(defaults model.WidgetSettings) (model.WidgetSettings, error)
	SaveWidget(ws model.WidgetSettings) error
}

var _ WidgetStore = (*store.SettingsStore)(nil)

type SettingsHandler struct {
	broadcaster
	store    WidgetStore
	defaults model.WidgetSettings
	onChange func(model.WidgetSettings)
	logger   *slog.Logger
}

// NewSettingsHandler serves the widget settings. onChange, if set, runs
// after every successful save.
func NewSettingsHandler(ws WidgetStore, defaults model.WidgetSettings, hub *websocket.Hub, onChange func(model.WidgetSettings), logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		broadcaster: broadcaster{hub: hub},
		store:       ws,
		defaults:    defaults,
		onChange:    onChange,
		logger:      logger,
	}
}

// Get handles GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetWidget(h.defaults)
	if err != nil {
		h.logger.Error("get settings", "error", err)
		writeErrorMsg(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Update handles PUT /api/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var settings model.WidgetSettings
	if err := decode(r, &settings); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	settings.Normalize()

	if err := h.store.SaveWidget(settings); err != nil {
		h.logger.Error("save settings", "error", err)
		writeErrorMsg(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntitySettings, "updated", "", map[string]any{"settings": settings}))
	if h.onChange != nil {
		h.onChange(settings)
	}
	writeJSON(w, http.StatusOK, settings)
}
