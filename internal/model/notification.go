package model

import "time"

type NotificationType string

const (
	NotificationPush  NotificationType = "push"
	NotificationVoice NotificationType = "voice_assistant"
)

// ParseNotificationType accepts the canonical names and the "alexa" alias.
func ParseNotificationType(s string) (NotificationType, bool) {
	switch s {
	case "push":
		return NotificationPush, true
	case "voice_assistant", "alexa", "voice":
		return NotificationVoice, true
	default:
		return "", false
	}
}

// DefaultTarget lets the delivery side pick a device.
const DefaultTarget = "auto"

// NotificationRecord is a stored reminder. EventSummary and EventStart are
// copies taken when the record was created and are what the matcher falls
// back to when the event id has changed.
type NotificationRecord struct {
	ID                 string           `json:"id"`
	EventID            string           `json:"event_id"`
	EventSummary       string           `json:"event_summary"`
	EventStart         string           `json:"event_start"`
	Type               NotificationType `json:"notification_type"`
	OffsetMinutes      int              `json:"offset_minutes"`
	TargetDevice       string           `json:"target_device"`
	CustomMessagePush  string           `json:"custom_message_push,omitempty"`
	CustomMessageVoice string           `json:"custom_message_voice,omitempty"`
	Enabled            bool             `json:"enabled"`
	CreatedAt          time.Time        `json:"created_at"`
}

// Binding strips the event-identifying fields.
func (r NotificationRecord) Binding() NotificationBinding {
	return NotificationBinding{
		ID:                 r.ID,
		Type:               r.Type,
		OffsetMinutes:      r.OffsetMinutes,
		TargetDevice:       r.TargetDevice,
		CustomMessagePush:  r.CustomMessagePush,
		CustomMessageVoice: r.CustomMessageVoice,
		Enabled:            r.Enabled,
	}
}

// NotificationBinding is a notification as attached to a merged event.
type NotificationBinding struct {
	ID                 string           `json:"id"`
	Type               NotificationType `json:"notification_type"`
	OffsetMinutes      int              `json:"offset_minutes"`
	TargetDevice       string           `json:"target_device"`
	CustomMessagePush  string           `json:"custom_message_push,omitempty"`
	CustomMessageVoice string           `json:"custom_message_voice,omitempty"`
	Enabled            bool             `json:"enabled"`
}

// FireAt returns when the reminder for an event starting at start is due.
func (b NotificationBinding) FireAt(start time.Time) time.Time {
	return start.Add(-time.Duration(b.OffsetMinutes) * time.Minute)
}

// NotificationRequest describes a reminder to create for an event.
type NotificationRequest struct {
	EventID            string
	EventSummary       string
	EventStart         string
	Type               NotificationType
	OffsetMinutes      int
	TargetDevice       string
	CustomMessagePush  string
	CustomMessageVoice string
	// Disabled creates the reminder switched off.
	Disabled bool
}
