package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/store"
)

// Sender delivers one notification record.
type Sender interface {
	Send(ctx context.Context, r model.NotificationRecord) error
}

// ErrNotApplicable is returned by a sender that has no route for a record,
// such as web push for a voice reminder.
var ErrNotApplicable = errors.New("sender does not handle this notification")

// PartialError reports a record that reached at least one sender while
// others failed. The record counts as delivered.
type PartialError struct {
	Err error
}

func (e *PartialError) Error() string {
	return "partially delivered: " + e.Err.Error()
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// SubscriptionStore lists and prunes web push subscriptions.
type SubscriptionStore interface {
	List() ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

var _ SubscriptionStore = (*store.PushStore)(nil)

// WebPushSender sends push records to every dashboard subscription. Voice
// records are ignored.
type WebPushSender struct {
	service *PushService
	subs    SubscriptionStore
	loc     *time.Location
	logger  *slog.Logger
}

func NewWebPushSender(service *PushService, subs SubscriptionStore, loc *time.Location, logger *slog.Logger) *WebPushSender {
	return &WebPushSender{service: service, subs: subs, loc: loc, logger: logger}
}

// Send returns ErrNotApplicable when the record is not push, push is not
// configured, or no browser is subscribed.
func (s *WebPushSender) Send(ctx context.Context, r model.NotificationRecord) error {
	if r.Type != model.NotificationPush || !s.service.Enabled() {
		return ErrNotApplicable
	}
	sent, err := s.broadcast(ctx, Payload{
		Title:   Title(r),
		Body:    PushMessage(r, s.loc),
		URL:     "/",
		Tag:     "event-" + r.EventID,
		EventID: r.EventID,
		Actions: ReminderActions,
	})
	switch {
	case sent == 0 && err != nil:
		return err
	case sent == 0:
		return ErrNotApplicable
	case err != nil:
		return &PartialError{Err: err}
	}
	return nil
}

// Broadcast sends payload to every subscription. Expired subscriptions are
// deleted; other failures are joined.
func (s *WebPushSender) Broadcast(ctx context.Context, payload Payload) error {
	_, err := s.broadcast(ctx, payload)
	return err
}

func (s *WebPushSender) broadcast(ctx context.Context, payload Payload) (int, error) {
	subs, err := s.subs.List()
	if err != nil {
		return 0, fmt.Errorf("list push subscriptions: %w", err)
	}

	sent := 0
	var errs []error
	for _, sub := range subs {
		if err := s.service.Send(ctx, &sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				s.logger.Info("removing expired push subscription", "id", sub.ID)
				if err := s.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
					s.logger.Error("delete expired push subscription", "id", sub.ID, "error", err)
				}
				continue
			}
			errs = append(errs, fmt.Errorf("subscription %d: %w", sub.ID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// HostNotifier is the subset of the host client used for delivery.
type HostNotifier interface {
	CallService(ctx context.Context, domain, service string, data map[string]any) error
	FirstVoiceService(ctx context.Context) (string, error)
	FirstSpeaker(ctx context.Context) (string, error)
}

// HostSender delivers through the host's notify services.
type HostSender struct {
	host HostNotifier
	loc  *time.Location
}

func NewHostSender(host HostNotifier, loc *time.Location) *HostSender {
	return &HostSender{host: host, loc: loc}
}

func (s *HostSender) Send(ctx context.Context, r model.NotificationRecord) error {
	if r.Type == model.NotificationVoice {
		return s.sendVoice(ctx, r)
	}
	return s.sendPush(ctx, r)
}

func (s *HostSender) sendPush(ctx context.Context, r model.NotificationRecord) error {
	service := "notify"
	if t := r.TargetDevice; t != "" && t != model.DefaultTarget {
		service = strings.TrimPrefix(t, "notify.")
	}
	err := s.host.CallService(ctx, "notify", service, map[string]any{
		"title":   Title(r),
		"message": PushMessage(r, s.loc),
	})
	if err != nil {
		return fmt.Errorf("send push via notify.%s: %w", service, err)
	}
	return nil
}

func (s *HostSender) sendVoice(ctx context.Context, r model.NotificationRecord) error {
	message := VoiceMessage(r, s.loc)
	target := r.TargetDevice
	announce := map[string]any{"type": "announce"}

	var service string
	var data map[string]any
	switch {
	case strings.HasSuffix(target, "_speak") || strings.HasSuffix(target, "_announce"):
		service = "send_message"
		data = map[string]any{"entity_id": target, "message": message}
	case strings.HasPrefix(target, "media_player."):
		service = "alexa_media"
		data = map[string]any{"message": message, "target": target, "data": announce}
	case target == "" || target == model.DefaultTarget:
		svc, err := s.host.FirstVoiceService(ctx)
		if err != nil {
			return fmt.Errorf("find voice service: %w", err)
		}
		if svc == "" {
			return errors.New("no voice assistant notify service available")
		}
		service = svc
		data = map[string]any{"message": message, "data": announce}
		if speaker, err := s.host.FirstSpeaker(ctx); err == nil && speaker != "" {
			data["target"] = speaker
		}
	default:
		service = strings.TrimPrefix(target, "notify.")
		data = map[string]any{"message": message, "data": announce}
	}

	if err := s.host.CallService(ctx, "notify", service, data); err != nil {
		return fmt.Errorf("send voice via notify.%s: %w", service, err)
	}
	return nil
}

// MultiSender fans a record out to every sender. Once any sender delivers,
// the failures of the others come back wrapped in a PartialError so the
// record is not sent again.
type MultiSender []Sender

func (m MultiSender) Send(ctx context.Context, r model.NotificationRecord) error {
	delivered := false
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		err := s.Send(ctx, r)
		var partial *PartialError
		switch {
		case err == nil:
			delivered = true
		case errors.Is(err, ErrNotApplicable):
		case errors.As(err, &partial):
			delivered = true
			errs = append(errs, partial.Err)
		default:
			errs = append(errs, err)
		}
	}

	switch {
	case delivered && len(errs) > 0:
		return &PartialError{Err: errors.Join(errs...)}
	case delivered:
		return nil
	case len(errs) > 0:
		return errors.Join(errs...)
	}
	return ErrNotApplicable
}
