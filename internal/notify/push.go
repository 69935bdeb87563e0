// Package notify delivers reminders: web push to dashboard subscribers,
// host notify services for phones and voice assistants, and the local
// dispatcher that fires stored records on time.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dukerupert/homecal/internal/model"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

const defaultSubscriber = "mailto:noreply@homecal.local"

// Payload is the JSON sent to the push service.
type Payload struct {
	Title   string          `json:"title"`
	Body    string          `json:"body"`
	URL     string          `json:"url,omitempty"`
	Tag     string          `json:"tag,omitempty"`
	EventID string          `json:"event_id,omitempty"`
	Actions []PayloadAction `json:"actions,omitempty"`
}

// PayloadAction is a notification button. The service worker posts Action
// to /api/events/{event_id}/actions.
type PayloadAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// ReminderActions are the buttons attached to event reminders.
var ReminderActions = []PayloadAction{
	{Action: "snooze_15", Title: "Snooze 15 min"},
	{Action: "mark_done", Title: "Done"},
}

// PushService handles sending web push notifications.
type PushService struct {
	publicKey  string
	privateKey string
	subscriber string
	client     webpush.HTTPClient
}

// NewPushService creates a push service with VAPID keys. subscriber is the
// contact URL sent to push services; empty uses a default.
func NewPushService(publicKey, privateKey, subscriber string) *PushService {
	if subscriber == "" {
		subscriber = defaultSubscriber
	}
	return &PushService{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		client:     http.DefaultClient,
	}
}

// Enabled reports whether VAPID keys are configured.
func (s *PushService) Enabled() bool {
	return s != nil && s.publicKey != "" && s.privateKey != ""
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *PushService) VAPIDPublicKey() string {
	return s.publicKey
}

// Send sends a push notification to a subscription.
func (s *PushService) Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      s.subscriber,
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}

	return nil
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID, both
// base64url encoded.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate VAPID keys: %w", err)
	}
	return publicKey, privateKey, nil
}
