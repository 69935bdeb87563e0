// Package google reads events directly from the Google Calendar API for
// calendars that are mapped in the configuration, bypassing the host.
package google

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/dukerupert/homecal/internal/model"
)

// Client wraps the Google Calendar API service.
type Client struct {
	service   *calendar.Service
	calendars map[string]string
}

// NewClient creates a client that serves the host calendar ids in
// calendars, each mapped to a Google calendar id. An endpoint can be passed
// for tests.
func NewClient(ctx context.Context, httpClient *http.Client, calendars map[string]string, endpoint ...string) (*Client, error) {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if len(endpoint) > 0 && endpoint[0] != "" {
		opts = append(opts, option.WithEndpoint(endpoint[0]))
	}

	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if calendars == nil {
		calendars = map[string]string{}
	}
	return &Client{service: srv, calendars: calendars}, nil
}

// NewFromCredentialsFile authenticates with a service account or
// authorized-user JSON file and requests read-only calendar access.
func NewFromCredentialsFile(ctx context.Context, path string, calendars map[string]string) (*Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	creds, err := googleoauth.CredentialsFromJSON(ctx, data, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	return NewClient(ctx, oauth2.NewClient(ctx, creds.TokenSource), calendars)
}

// Handles reports whether calendarID is mapped to a Google calendar.
func (c *Client) Handles(calendarID string) bool {
	_, ok := c.calendars[calendarID]
	return ok
}

// ListEvents returns the expanded instances of the mapped calendar between
// start and end.
func (c *Client) ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawEvent, error) {
	googleID, ok := c.calendars[calendarID]
	if !ok {
		googleID = calendarID
	}

	call := c.service.Events.List(googleID).
		Context(ctx).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339))

	var out []model.RawEvent
	pageToken := ""
	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		events, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list google events for %s: %w", calendarID, err)
		}
		for _, ev := range events.Items {
			if ev.Status == "cancelled" {
				continue
			}
			out = append(out, toRaw(ev))
		}
		pageToken = events.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return out, nil
}

func toRaw(ev *calendar.Event) model.RawEvent {
	raw := model.RawEvent{
		UID:          ev.Id,
		Summary:      ev.Summary,
		Description:  ev.Description,
		Location:     ev.Location,
		RecurrenceID: ev.RecurringEventId,
	}
	if ev.Start != nil {
		raw.Start = model.RawTime{Date: ev.Start.Date, DateTime: ev.Start.DateTime}
	}
	if ev.End != nil {
		raw.End = model.RawTime{Date: ev.End.Date, DateTime: ev.End.DateTime}
	}
	return raw
}
