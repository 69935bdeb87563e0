// Package config loads the YAML configuration file and applies environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/homecal/internal/model"
)

const (
	BackendHost  = "host"
	BackendLocal = "local"
)

// HostConfig points at the home automation host that serves calendars and
// notify services.
type HostConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	// Domain is the calendar integration's service domain.
	Domain             string        `yaml:"domain"`
	NotificationSensor string        `yaml:"notification_sensor,omitempty"`
	Timeout            time.Duration `yaml:"timeout"`
	Retries            int           `yaml:"retries"`
}

// GoogleConfig maps host calendar ids to Google calendar ids that are read
// directly from the Google Calendar API.
type GoogleConfig struct {
	CredentialsFile string            `yaml:"credentials_file,omitempty"`
	Calendars       map[string]string `yaml:"calendars,omitempty"`
}

type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
	// ForceEvery forces a notification recompute every N intervals.
	ForceEvery  int           `yaml:"force_every"`
	Settle      time.Duration `yaml:"settle"`
	Concurrency int           `yaml:"concurrency"`
}

type WidgetConfig struct {
	Calendars       []string `yaml:"calendars"`
	PrimaryCalendar string   `yaml:"primary_calendar"`
	View            string   `yaml:"view"`
	Theme           string   `yaml:"theme"`
	Language        string   `yaml:"language"`
}

type PushConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key,omitempty"`
	VAPIDPrivateKey string `yaml:"vapid_private_key,omitempty"`
	Subscriber      string `yaml:"subscriber,omitempty"`
}

// BasicAuthConfig enables HTTP Basic Auth on everything except /health.
// PasswordHash is a bcrypt hash.
type BasicAuthConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

type Config struct {
	Listen    string `yaml:"listen"`
	Timezone  string `yaml:"timezone"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	DBPath    string `yaml:"db_path"`

	// Backend selects where notification records live: "host" uses the
	// calendar integration, "local" the SQLite store and dispatcher.
	Backend string `yaml:"backend"`

	Host    HostConfig    `yaml:"host"`
	Google  GoogleConfig  `yaml:"google"`
	Refresh RefreshConfig `yaml:"refresh"`
	Widget  WidgetConfig  `yaml:"widget"`
	Push    PushConfig    `yaml:"push"`

	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty"`
}

func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing or invalid values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.DBPath == "" {
		c.DBPath = "homecal.db"
	}

	switch c.Backend {
	case BackendHost, BackendLocal:
	default:
		c.Backend = BackendLocal
		if c.Host.URL != "" {
			c.Backend = BackendHost
		}
	}

	c.Host.URL = strings.TrimRight(c.Host.URL, "/")
	if c.Host.Domain == "" {
		c.Host.Domain = "better_calendar"
	}
	if c.Host.Timeout <= 0 {
		c.Host.Timeout = 15 * time.Second
	}
	if c.Host.Retries <= 0 {
		c.Host.Retries = 3
	}

	if c.Refresh.Interval <= 0 {
		c.Refresh.Interval = 30 * time.Second
	}
	if c.Refresh.ForceEvery <= 0 {
		c.Refresh.ForceEvery = 10
	}
	if c.Refresh.Settle <= 0 {
		c.Refresh.Settle = 2 * time.Second
	}
	if c.Refresh.Concurrency <= 0 {
		c.Refresh.Concurrency = 4
	}

	if c.Widget.Calendars == nil {
		c.Widget.Calendars = []string{}
	}
	if c.Widget.View == "" {
		c.Widget.View = string(model.ViewMonth)
	}
	if c.Google.Calendars == nil {
		c.Google.Calendars = map[string]string{}
	}
}

// ApplyEnv overrides file values with HOMECAL_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("HOMECAL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("HOMECAL_HOST_TOKEN"); v != "" {
		c.Host.Token = v
	}
	if v := getenv("HOMECAL_HOST_URL"); v != "" {
		c.Host.URL = strings.TrimRight(v, "/")
	}
	if v := getenv("HOMECAL_BACKEND"); v == BackendHost || v == BackendLocal {
		c.Backend = v
	}
	if v := getenv("HOMECAL_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := getenv("HOMECAL_LISTEN"); v != "" {
		c.Listen = v
	}
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// WidgetDefaults returns the widget settings used before any are saved.
func (c *Config) WidgetDefaults() model.WidgetSettings {
	ws := model.WidgetSettings{
		Theme:             c.Widget.Theme,
		Language:          c.Widget.Language,
		View:              model.ParseViewKind(c.Widget.View),
		SelectedCalendars: append([]string{}, c.Widget.Calendars...),
		PrimaryCalendar:   c.Widget.PrimaryCalendar,
	}
	if ws.PrimaryCalendar == "" && len(ws.SelectedCalendars) > 0 {
		ws.PrimaryCalendar = ws.SelectedCalendars[0]
	}
	ws.Normalize()
	return ws
}

// Load reads the YAML file at path. On first run a default file is written
// with 0600 permissions and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, fmt.Errorf("write default config: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg atomically via a temp file and rename, leaving the file
// with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".homecal-config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
