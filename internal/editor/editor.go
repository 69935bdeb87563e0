// Package editor writes calendar events and their notification bindings and
// schedules a resync afterwards. It never patches the session snapshot
// directly; the next refresh is the source of truth.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/timeutil"
)

var (
	ErrInvalidTiming = errors.New("invalid notification timing")
	ErrInvalidEvent  = errors.New("invalid event")
	ErrNotEditable   = errors.New("event is not editable")
	ErrNotFound      = errors.New("event not found")
)

const snoozeTemplate = "Snoozed: '{event_summary}' starts {offset_desc} (at {event_time})"

// CalendarWriter creates and deletes events upstream.
type CalendarWriter interface {
	CreateEvent(ctx context.Context, d model.EventDraft) error
	DeleteEvent(ctx context.Context, calendarID, uid string) error
	DeleteIntegrationEvent(ctx context.Context, eventID string) error
}

// NotificationWriter stores notification bindings. The host integration
// and the local store both implement it.
type NotificationWriter interface {
	AddNotification(ctx context.Context, req model.NotificationRequest) (string, error)
	RemoveNotification(ctx context.Context, id string) error
	ToggleNotification(ctx context.Context, id string) error
}

// Snapshot finds events in the last merged snapshot.
type Snapshot interface {
	Find(id string) (model.CalendarEvent, bool)
}

// Resyncer schedules a refresh.
type Resyncer interface {
	Trigger()
}

// Timing requests one notification, either relative (OffsetMinutes) or at
// a clock time DaysBefore days ahead of the event.
type Timing struct {
	Type               model.NotificationType `json:"type"`
	OffsetMinutes      *int                   `json:"offset_minutes,omitempty"`
	Time               string                 `json:"time,omitempty"`
	DaysBefore         int                    `json:"days_before,omitempty"`
	TargetDevice       string                 `json:"target_device,omitempty"`
	CustomMessagePush  string                 `json:"custom_message_push,omitempty"`
	CustomMessageVoice string                 `json:"custom_message_voice,omitempty"`
	// Enabled defaults to true.
	Enabled *bool `json:"enabled,omitempty"`
}

// EventInput is an event to create or replace. For all-day events End is
// the last occupied day.
type EventInput struct {
	Summary       string
	Description   string
	Location      string
	Start         time.Time
	End           time.Time
	AllDay        bool
	Notifications []Timing
}

type Deps struct {
	Calendar      CalendarWriter
	Notifications NotificationWriter
	Snapshot      Snapshot
	Resync        Resyncer
	// Primary returns the calendar new events are written to.
	Primary func() string
}

type Editor struct {
	deps   Deps
	settle time.Duration
	loc    *time.Location
	logger *slog.Logger
}

// New creates an editor. settle is how long to wait after creating an
// event before attaching notifications to it.
func New(deps Deps, settle time.Duration, loc *time.Location, logger *slog.Logger) *Editor {
	if loc == nil {
		loc = time.Local
	}
	return &Editor{deps: deps, settle: settle, loc: loc, logger: logger}
}

// CreateEvent creates an event on the primary calendar and attaches the
// requested notifications. Every timing is validated before anything is
// written.
func (e *Editor) CreateEvent(ctx context.Context, in EventInput) error {
	primary := e.primary()
	if primary == "" {
		return fmt.Errorf("create event: no primary calendar: %w", ErrNotEditable)
	}
	return e.create(ctx, primary, in)
}

// UpdateEvent replaces an editable event by deleting and recreating it.
// When in.Notifications is nil the event's current bindings are carried
// over.
func (e *Editor) UpdateEvent(ctx context.Context, id string, in EventInput) error {
	ev, ok := e.deps.Snapshot.Find(id)
	if !ok {
		return fmt.Errorf("update event %s: %w", id, ErrNotFound)
	}
	if !ev.IsEditable {
		return fmt.Errorf("update event %s: %w", id, ErrNotEditable)
	}

	if in.Notifications == nil {
		in.Notifications = timingsFrom(ev.Notifications)
	}
	if err := validate(in); err != nil {
		return err
	}
	if _, err := e.resolve(e.startOf(in), in.Notifications); err != nil {
		return err
	}

	if err := e.deleteUpstream(ctx, ev.CalendarID, id); err != nil {
		e.deps.Resync.Trigger()
		return fmt.Errorf("update event %s: %w", id, err)
	}
	e.removeBindings(ctx, ev.Notifications)
	return e.create(ctx, ev.CalendarID, in)
}

// DeleteEvent deletes an event and the bindings attached to it. Ids that
// carry a provider prefix are stripped first; if the calendar delete fails
// the integration delete is tried with the original id.
func (e *Editor) DeleteEvent(ctx context.Context, id string) error {
	ev, found := e.deps.Snapshot.Find(id)
	if found && !ev.IsEditable {
		return fmt.Errorf("delete event %s: %w", id, ErrNotEditable)
	}
	calendarID := ev.CalendarID
	if calendarID == "" {
		calendarID = e.primary()
	}

	defer e.deps.Resync.Trigger()
	if err := e.deleteUpstream(ctx, calendarID, id); err != nil {
		return err
	}
	if found {
		e.removeBindings(ctx, ev.Notifications)
	}
	e.logger.Info("event deleted", "id", id, "calendar", calendarID)
	return nil
}

// AddNotification attaches one notification to an event in the snapshot.
func (e *Editor) AddNotification(ctx context.Context, eventID string, t Timing) (string, error) {
	ev, ok := e.deps.Snapshot.Find(eventID)
	if !ok {
		return "", fmt.Errorf("add notification: %w", ErrNotFound)
	}
	reqs, err := e.resolve(ev.Start.Time, []Timing{t})
	if err != nil {
		return "", err
	}

	req := reqs[0]
	req.EventID = ev.ID
	req.EventSummary = ev.Summary
	req.EventStart = ev.Start.String()

	id, err := e.deps.Notifications.AddNotification(ctx, req)
	e.deps.Resync.Trigger()
	if err != nil {
		return "", fmt.Errorf("add notification: %w", err)
	}
	return id, nil
}

func (e *Editor) RemoveNotification(ctx context.Context, id string) error {
	defer e.deps.Resync.Trigger()
	if err := e.deps.Notifications.RemoveNotification(ctx, id); err != nil {
		return fmt.Errorf("remove notification: %w", err)
	}
	return nil
}

func (e *Editor) ToggleNotification(ctx context.Context, id string) error {
	defer e.deps.Resync.Trigger()
	if err := e.deps.Notifications.ToggleNotification(ctx, id); err != nil {
		return fmt.Errorf("toggle notification: %w", err)
	}
	return nil
}

// SnoozeEvent adds a push reminder minutes before the event starts.
func (e *Editor) SnoozeEvent(ctx context.Context, eventID string, minutes int) (string, error) {
	if minutes <= 0 {
		return "", fmt.Errorf("snooze %d minutes: %w", minutes, ErrInvalidTiming)
	}
	return e.AddNotification(ctx, eventID, Timing{
		Type:              model.NotificationPush,
		OffsetMinutes:     &minutes,
		TargetDevice:      model.DefaultTarget,
		CustomMessagePush: snoozeTemplate,
	})
}

// PreviewOffset computes the offset for an absolute timing and describes it.
func PreviewOffset(eventStart time.Time, clock string, daysBefore int) (int, string, error) {
	minutes, err := timeutil.NotificationOffset(eventStart, clock, daysBefore)
	if err != nil {
		return -1, "", fmt.Errorf("%w: %v", ErrInvalidTiming, err)
	}
	return minutes, timeutil.DescribeOffset(minutes), nil
}

var qualifiedID = regexp.MustCompile(`^calendar\.[A-Za-z0-9_]+[:/](.+)$`)

// BareEventID strips a calendar qualifier from id. Both
// "<calendarID>_<uid>" style prefixes and "calendar.x:uid" or
// "calendar.x/uid" forms are recognized.
func BareEventID(id, calendarID string) string {
	if calendarID != "" && strings.HasPrefix(id, calendarID) {
		rest := id[len(calendarID):]
		if len(rest) > 1 && strings.ContainsRune("_:/", rune(rest[0])) {
			return rest[1:]
		}
	}
	if m := qualifiedID.FindStringSubmatch(id); m != nil {
		return m[1]
	}
	return id
}

func (e *Editor) create(ctx context.Context, calendarID string, in EventInput) error {
	if err := validate(in); err != nil {
		return err
	}
	start := e.startOf(in)
	reqs, err := e.resolve(start, in.Notifications)
	if err != nil {
		return err
	}

	draft := model.EventDraft{
		CalendarID:  calendarID,
		Summary:     strings.TrimSpace(in.Summary),
		Description: in.Description,
		Location:    in.Location,
		Start:       start,
		End:         in.End.In(e.loc),
		AllDay:      in.AllDay,
	}
	if in.AllDay {
		draft.End = timeutil.StartOfDay(draft.End)
	}
	if err := e.deps.Calendar.CreateEvent(ctx, draft); err != nil {
		e.deps.Resync.Trigger()
		return fmt.Errorf("create event: %w", err)
	}
	e.logger.Info("event created", "calendar", calendarID, "summary", draft.Summary, "notifications", len(reqs))

	if len(reqs) > 0 {
		if err := sleepCtx(ctx, e.settle); err != nil {
			e.deps.Resync.Trigger()
			return fmt.Errorf("attach notifications: %w", err)
		}
	}

	startKey := timeutil.LocalTimeString(start)
	if in.AllDay {
		startKey = timeutil.DateString(start)
	}
	var errs []error
	for _, req := range reqs {
		// The provider id is not known yet; the binding is matched back by
		// summary and start on the next refresh.
		req.EventID = draft.Summary + "_" + startKey
		req.EventSummary = draft.Summary
		req.EventStart = startKey
		if _, err := e.deps.Notifications.AddNotification(ctx, req); err != nil {
			errs = append(errs, fmt.Errorf("add notification: %w", err))
		}
	}

	e.deps.Resync.Trigger()
	return errors.Join(errs...)
}

func (e *Editor) deleteUpstream(ctx context.Context, calendarID, id string) error {
	bare := BareEventID(id, calendarID)
	calErr := e.deps.Calendar.DeleteEvent(ctx, calendarID, bare)
	if calErr == nil {
		return nil
	}
	e.logger.Warn("calendar delete failed, trying integration delete", "id", id, "uid", bare, "error", calErr)

	if err := e.deps.Calendar.DeleteIntegrationEvent(ctx, id); err != nil {
		return errors.Join(
			fmt.Errorf("delete event %s: %w", bare, calErr),
			fmt.Errorf("delete integration event %s: %w", id, err),
		)
	}
	return nil
}

func (e *Editor) removeBindings(ctx context.Context, bindings []model.NotificationBinding) {
	for _, b := range bindings {
		if err := e.deps.Notifications.RemoveNotification(ctx, b.ID); err != nil {
			e.logger.Warn("remove notification binding", "id", b.ID, "error", err)
		}
	}
}

func (e *Editor) resolve(start time.Time, timings []Timing) ([]model.NotificationRequest, error) {
	reqs := make([]model.NotificationRequest, 0, len(timings))
	for i, t := range timings {
		typ := model.NotificationPush
		if t.Type != "" {
			parsed, ok := model.ParseNotificationType(string(t.Type))
			if !ok {
				return nil, fmt.Errorf("notification %d: unknown type %q: %w", i, t.Type, ErrInvalidTiming)
			}
			typ = parsed
		}

		var offset int
		switch {
		case t.OffsetMinutes != nil:
			if *t.OffsetMinutes < 0 {
				return nil, fmt.Errorf("notification %d: negative offset: %w", i, ErrInvalidTiming)
			}
			offset = *t.OffsetMinutes
		case t.Time != "":
			m, err := timeutil.NotificationOffset(start, t.Time, t.DaysBefore)
			if err != nil {
				return nil, fmt.Errorf("notification %d: %w: %v", i, ErrInvalidTiming, err)
			}
			offset = m
		default:
			return nil, fmt.Errorf("notification %d: no offset or time: %w", i, ErrInvalidTiming)
		}

		target := strings.TrimSpace(t.TargetDevice)
		if target == "" {
			target = model.DefaultTarget
		}
		reqs = append(reqs, model.NotificationRequest{
			Type:               typ,
			OffsetMinutes:      offset,
			TargetDevice:       target,
			CustomMessagePush:  t.CustomMessagePush,
			CustomMessageVoice: t.CustomMessageVoice,
			Disabled:           t.Enabled != nil && !*t.Enabled,
		})
	}
	return reqs, nil
}

func (e *Editor) startOf(in EventInput) time.Time {
	start := in.Start.In(e.loc)
	if in.AllDay {
		return timeutil.StartOfDay(start)
	}
	return start
}

func (e *Editor) primary() string {
	if e.deps.Primary == nil {
		return ""
	}
	return e.deps.Primary()
}

func validate(in EventInput) error {
	if strings.TrimSpace(in.Summary) == "" {
		return fmt.Errorf("%w: summary is required", ErrInvalidEvent)
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidEvent)
	}
	if in.AllDay {
		if timeutil.StartOfDay(in.End).Before(timeutil.StartOfDay(in.Start)) {
			return fmt.Errorf("%w: end date before start date", ErrInvalidEvent)
		}
		return nil
	}
	if !in.Start.Before(in.End) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidEvent)
	}
	return nil
}

func timingsFrom(bindings []model.NotificationBinding) []Timing {
	out := make([]Timing, 0, len(bindings))
	for _, b := range bindings {
		offset := b.OffsetMinutes
		enabled := b.Enabled
		out = append(out, Timing{
			Type:               b.Type,
			OffsetMinutes:      &offset,
			TargetDevice:       b.TargetDevice,
			CustomMessagePush:  b.CustomMessagePush,
			CustomMessageVoice: b.CustomMessageVoice,
			Enabled:            &enabled,
		})
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
