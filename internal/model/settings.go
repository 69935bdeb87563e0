package model

import "time"

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WidgetSettings is the persisted configuration of one dashboard widget.
type WidgetSettings struct {
	Theme             string               `json:"theme"`
	Language          string               `json:"language"`
	View              ViewKind             `json:"view"`
	SelectedCalendars []string             `json:"selected_calendars"`
	PrimaryCalendar   string               `json:"primary_calendar"`
	Notifications     NotificationSettings `json:"notifications"`
}

type NotificationSettings struct {
	PushEnabled    bool     `json:"push_enabled"`
	VoiceEnabled   bool     `json:"voice_enabled"`
	PushTargets    []string `json:"push_targets"`
	VoiceTargets   []string `json:"voice_targets"`
	DefaultOffsets []int    `json:"default_offsets"`
}

// Normalize fills unset fields so the blob round-trips with non-nil slices.
func (s *WidgetSettings) Normalize() {
	if s.Theme == "" {
		s.Theme = "auto"
	}
	if s.Language == "" {
		s.Language = "en"
	}
	if s.View == "" {
		s.View = ViewMonth
	}
	if s.SelectedCalendars == nil {
		s.SelectedCalendars = []string{}
	}
	if s.Notifications.PushTargets == nil {
		s.Notifications.PushTargets = []string{}
	}
	if s.Notifications.VoiceTargets == nil {
		s.Notifications.VoiceTargets = []string{}
	}
	if s.Notifications.DefaultOffsets == nil {
		s.Notifications.DefaultOffsets = []int{}
	}
}
