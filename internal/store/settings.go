package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/homecal/internal/model"
)

// ErrNotFound is returned by lookups that have no zero value to fall back on.
var ErrNotFound = errors.New("not found")

const widgetKey = "widget"

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *SettingsStore) GetAll() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("get all settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (s *SettingsStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// GetWidget loads the widget settings blob. When none has been saved yet,
// defaults is returned.
func (s *SettingsStore) GetWidget(defaults model.WidgetSettings) (model.WidgetSettings, error) {
	raw, err := s.Get(widgetKey)
	if errors.Is(err, ErrNotFound) {
		defaults.Normalize()
		return defaults, nil
	}
	if err != nil {
		return model.WidgetSettings{}, err
	}

	var ws model.WidgetSettings
	if err := json.Unmarshal([]byte(raw), &ws); err != nil {
		return model.WidgetSettings{}, fmt.Errorf("decode widget settings: %w", err)
	}
	ws.Normalize()
	return ws, nil
}

func (s *SettingsStore) SaveWidget(ws model.WidgetSettings) error {
	ws.Normalize()
	data, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("encode widget settings: %w", err)
	}
	return s.Set(widgetKey, string(data))
}
