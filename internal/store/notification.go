package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/homecal/internal/model"
	"github.com/dukerupert/homecal/internal/timeutil"
)

const (
	// staleAfterFire removes records whose fire time passed this long ago.
	staleAfterFire = 2 * time.Hour
	maxRecordAge   = 7 * 24 * time.Hour
)

// NotificationStore is the local notification backend used when no host
// integration manages the records.
type NotificationStore struct {
	db  *sql.DB
	loc *time.Location
}

// NewNotificationStore creates a store that interprets local event starts
// in loc.
func NewNotificationStore(db *sql.DB, loc *time.Location) *NotificationStore {
	if loc == nil {
		loc = time.Local
	}
	return &NotificationStore{db: db, loc: loc}
}

const notificationColumns = `id, event_id, event_summary, event_start, notification_type, offset_minutes,
	target_device, custom_message_push, custom_message_voice, enabled, created_at`

func (s *NotificationStore) Create(req model.NotificationRequest) (*model.NotificationRecord, error) {
	start, _, err := timeutil.ParseFlexible(req.EventStart, s.loc)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	if req.OffsetMinutes < 0 {
		return nil, fmt.Errorf("create notification: %w", timeutil.ErrInvalidOffset)
	}
	if req.Type == "" {
		req.Type = model.NotificationPush
	}
	target := strings.TrimSpace(req.TargetDevice)
	if target == "" {
		target = model.DefaultTarget
	}

	enabled := 1
	if req.Disabled {
		enabled = 0
	}

	id := uuid.NewString()
	fireAt := start.Add(-time.Duration(req.OffsetMinutes) * time.Minute)
	_, err = s.db.Exec(
		`INSERT INTO notifications (id, event_id, event_summary, event_start, event_start_unix, notification_type,
			offset_minutes, target_device, custom_message_push, custom_message_voice, enabled, fire_at_unix, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, req.EventID, req.EventSummary, timeutil.LocalTimeString(start), start.Unix(), string(req.Type),
		req.OffsetMinutes, target, req.CustomMessagePush, req.CustomMessageVoice, enabled, fireAt.Unix(), time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return s.Get(id)
}

func (s *NotificationStore) Get(id string) (*model.NotificationRecord, error) {
	row := s.db.QueryRow(`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	r, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return r, nil
}

func (s *NotificationStore) List() ([]model.NotificationRecord, error) {
	rows, err := s.db.Query(`SELECT ` + notificationColumns + ` FROM notifications ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// ListDue returns enabled records whose fire time is at or before now but
// not older than grace.
func (s *NotificationStore) ListDue(now time.Time, grace time.Duration) ([]model.NotificationRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE enabled = 1 AND fire_at_unix <= ? AND fire_at_unix > ?
		 ORDER BY fire_at_unix, id`,
		now.Unix(), now.Add(-grace).Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("list due notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (s *NotificationStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

func (s *NotificationStore) SetEnabled(id string, enabled bool) error {
	var enabledInt int
	if enabled {
		enabledInt = 1
	}
	_, err := s.db.Exec(`UPDATE notifications SET enabled = ? WHERE id = ?`, enabledInt, id)
	if err != nil {
		return fmt.Errorf("set notification enabled: %w", err)
	}
	return nil
}

// Toggle flips the enabled flag and returns the updated record, or nil if
// id does not exist.
func (s *NotificationStore) Toggle(id string) (*model.NotificationRecord, error) {
	_, err := s.db.Exec(`UPDATE notifications SET enabled = 1 - enabled WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("toggle notification: %w", err)
	}
	return s.Get(id)
}

// DeleteExpired removes records for events that already started, records
// whose fire time is more than two hours past, and anything older than a
// week.
func (s *NotificationStore) DeleteExpired(now time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM notifications
		 WHERE event_start_unix <= ? OR fire_at_unix < ? OR fire_at_unix < ?`,
		now.Unix(), now.Add(-staleAfterFire).Unix(), now.Add(-maxRecordAge).Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired notifications: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*model.NotificationRecord, error) {
	var r model.NotificationRecord
	var notifType string
	var enabledInt int
	if err := row.Scan(&r.ID, &r.EventID, &r.EventSummary, &r.EventStart, &notifType, &r.OffsetMinutes,
		&r.TargetDevice, &r.CustomMessagePush, &r.CustomMessageVoice, &enabledInt, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Type = model.NotificationType(notifType)
	r.Enabled = enabledInt != 0
	return &r, nil
}

func scanNotifications(rows *sql.Rows) ([]model.NotificationRecord, error) {
	records := []model.NotificationRecord{}
	for rows.Next() {
		r, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}
