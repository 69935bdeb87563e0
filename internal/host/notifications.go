package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/homecal/internal/model"
)

// ErrSensorNotFound is returned when no notification sensor exists.
var ErrSensorNotFound = errors.New("notification sensor not found")

// wireNotification is a notification as the integration's sensor exposes it.
type wireNotification struct {
	ID                 string  `json:"id"`
	EventID            string  `json:"event_id"`
	EventSummary       string  `json:"event_summary"`
	EventStart         string  `json:"event_start"`
	NotificationType   string  `json:"notification_type"`
	OffsetMinutes      int     `json:"offset_minutes"`
	TargetDevice       string  `json:"target_device"`
	CustomMessagePush  *string `json:"custom_message_push"`
	CustomMessageAlexa *string `json:"custom_message_alexa"`
	Enabled            *bool   `json:"enabled"`
	CreatedAt          string  `json:"created_at"`
}

func (w wireNotification) record() (model.NotificationRecord, bool) {
	typ, ok := model.ParseNotificationType(w.NotificationType)
	if !ok || w.ID == "" || w.OffsetMinutes < 0 {
		return model.NotificationRecord{}, false
	}
	r := model.NotificationRecord{
		ID:            w.ID,
		EventID:       w.EventID,
		EventSummary:  w.EventSummary,
		EventStart:    w.EventStart,
		Type:          typ,
		OffsetMinutes: w.OffsetMinutes,
		TargetDevice:  w.TargetDevice,
		Enabled:       true,
	}
	if r.TargetDevice == "" {
		r.TargetDevice = model.DefaultTarget
	}
	if w.CustomMessagePush != nil {
		r.CustomMessagePush = *w.CustomMessagePush
	}
	if w.CustomMessageAlexa != nil {
		r.CustomMessageVoice = *w.CustomMessageAlexa
	}
	if w.Enabled != nil {
		r.Enabled = *w.Enabled
	}
	if t, err := time.Parse(time.RFC3339Nano, w.CreatedAt); err == nil {
		r.CreatedAt = t
	}
	return r, true
}

// ListNotifications reads the notification records published on the
// integration's sensor.
func (c *Client) ListNotifications(ctx context.Context) ([]model.NotificationRecord, error) {
	st, err := c.notificationSensor(ctx)
	if err != nil {
		return nil, err
	}

	var wires []wireNotification
	if raw, ok := st.Attributes["notifications_data"]; ok {
		var byID map[string]wireNotification
		if err := json.Unmarshal(raw, &byID); err != nil {
			return nil, fmt.Errorf("decode notifications_data: %w", err)
		}
		for id, w := range byID {
			if w.ID == "" {
				w.ID = id
			}
			wires = append(wires, w)
		}
	} else if raw, ok := st.Attributes["notifications"]; ok {
		if err := json.Unmarshal(raw, &wires); err != nil {
			return nil, fmt.Errorf("decode notifications: %w", err)
		}
	}

	records := make([]model.NotificationRecord, 0, len(wires))
	for _, w := range wires {
		r, ok := w.record()
		if !ok {
			c.logger.Warn("skipping malformed notification", "id", w.ID, "type", w.NotificationType, "offset_minutes", w.OffsetMinutes)
			continue
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// ForceRecompute asks the integration to rebuild its calendar and
// notification data.
func (c *Client) ForceRecompute(ctx context.Context) error {
	return c.CallService(ctx, c.domain, "force_update_calendars", map[string]any{})
}

func (c *Client) notificationSensor(ctx context.Context) (*State, error) {
	if c.sensor != "" {
		st, err := c.State(ctx, c.sensor)
		if err != nil {
			return nil, err
		}
		if st == nil {
			return nil, fmt.Errorf("%w: %s", ErrSensorNotFound, c.sensor)
		}
		return st, nil
	}

	states, err := c.States(ctx)
	if err != nil {
		return nil, err
	}
	for i := range states {
		id := states[i].EntityID
		if strings.HasPrefix(id, "sensor.") && strings.Contains(id, "calendar_notifications") {
			return &states[i], nil
		}
	}
	return nil, ErrSensorNotFound
}

func wireType(t model.NotificationType) string {
	if t == model.NotificationVoice {
		return "alexa"
	}
	return string(t)
}

// AddNotification stores a reminder through the integration. The host does
// not return the new id; it appears on the next read.
func (c *Client) AddNotification(ctx context.Context, req model.NotificationRequest) (string, error) {
	data := map[string]any{
		"event_id":          req.EventID,
		"event_summary":     req.EventSummary,
		"event_start":       req.EventStart,
		"notification_type": wireType(req.Type),
		"offset_minutes":    req.OffsetMinutes,
	}
	if req.TargetDevice != "" {
		data["target_device"] = req.TargetDevice
	}
	if req.CustomMessagePush != "" {
		data["custom_message_push"] = req.CustomMessagePush
	}
	if req.CustomMessageVoice != "" {
		data["custom_message_alexa"] = req.CustomMessageVoice
	}
	if err := c.CallService(ctx, c.domain, "add_notification", data); err != nil {
		return "", err
	}
	if !req.Disabled {
		return "", nil
	}

	// The integration always creates reminders enabled and does not report
	// the new id, so find it on the sensor and switch it off.
	id, err := c.findCreated(ctx, req)
	if err != nil {
		return "", fmt.Errorf("disable new notification: %w", err)
	}
	if err := c.ToggleNotification(ctx, id); err != nil {
		return id, fmt.Errorf("disable notification %s: %w", id, err)
	}
	return id, nil
}

func (c *Client) findCreated(ctx context.Context, req model.NotificationRequest) (string, error) {
	records, err := c.ListNotifications(ctx)
	if err != nil {
		return "", err
	}
	target := req.TargetDevice
	if target == "" {
		target = model.DefaultTarget
	}

	var found *model.NotificationRecord
	for i := range records {
		r := &records[i]
		if !r.Enabled || r.EventID != req.EventID || r.Type != req.Type ||
			r.OffsetMinutes != req.OffsetMinutes || r.TargetDevice != target {
			continue
		}
		if found == nil || r.CreatedAt.After(found.CreatedAt) {
			found = r
		}
	}
	if found == nil {
		return "", fmt.Errorf("no enabled notification for event %s with offset %d", req.EventID, req.OffsetMinutes)
	}
	return found.ID, nil
}

func (c *Client) RemoveNotification(ctx context.Context, id string) error {
	return c.CallService(ctx, c.domain, "remove_notification", map[string]any{"notification_id": id})
}

func (c *Client) ToggleNotification(ctx context.Context, id string) error {
	return c.CallService(ctx, c.domain, "toggle_notification", map[string]any{"notification_id": id})
}
