package host

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dukerupert/homecal/internal/model"
)

const hostDateTimeLayout = "2006-01-02 15:04:05"

// CalendarInfo describes a calendar entity.
type CalendarInfo struct {
	ID       string             `json:"entity_id"`
	Name     string             `json:"name"`
	Provider model.ProviderKind `json:"provider"`
}

// Calendars lists the calendar entities known to the host.
func (c *Client) Calendars(ctx context.Context) ([]CalendarInfo, error) {
	var cals []CalendarInfo
	if err := c.getJSON(ctx, "/api/calendars", nil, &cals); err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	for i := range cals {
		cals[i].Provider = model.InferProvider(cals[i].ID)
	}
	return cals, nil
}

// ListEvents returns the raw events of calendarID between start and end.
func (c *Client) ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawEvent, error) {
	q := url.Values{}
	q.Set("start", start.Format(time.RFC3339))
	q.Set("end", end.Format(time.RFC3339))

	var events []model.RawEvent
	if err := c.getJSON(ctx, "/api/calendars/"+url.PathEscape(calendarID), q, &events); err != nil {
		return nil, fmt.Errorf("list events for %s: %w", calendarID, err)
	}
	return events, nil
}

// CreateEvent creates an event through calendar.create_event.
func (c *Client) CreateEvent(ctx context.Context, d model.EventDraft) error {
	data := map[string]any{
		"entity_id": d.CalendarID,
		"summary":   d.Summary,
	}
	if d.Description != "" {
		data["description"] = d.Description
	}
	if d.Location != "" {
		data["location"] = d.Location
	}
	if d.AllDay {
		data["start_date"] = d.Start.Format("2006-01-02")
		data["end_date"] = d.End.AddDate(0, 0, 1).Format("2006-01-02")
	} else {
		data["start_date_time"] = d.Start.Format(hostDateTimeLayout)
		data["end_date_time"] = d.End.Format(hostDateTimeLayout)
	}
	return c.CallService(ctx, "calendar", "create_event", data)
}

// DeleteEvent removes uid from calendarID through calendar.delete_event.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, uid string) error {
	return c.CallService(ctx, "calendar", "delete_event", map[string]any{
		"entity_id": calendarID,
		"uid":       uid,
	})
}

// DeleteIntegrationEvent removes an event through the integration's own
// delete service, which accepts the id as the widget saw it.
func (c *Client) DeleteIntegrationEvent(ctx context.Context, eventID string) error {
	return c.CallService(ctx, c.domain, "delete_event", map[string]any{
		"event_id": eventID,
	})
}

// UpdateEntity asks the host to refresh one entity.
func (c *Client) UpdateEntity(ctx context.Context, entityID string) error {
	return c.CallService(ctx, "homeassistant", "update_entity", map[string]any{
		"entity_id": entityID,
	})
}
