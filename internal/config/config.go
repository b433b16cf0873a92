package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"plancal/internal/calendar"
)

// FeedConfig describes an external iCalendar subscription merged into the
// agenda next to plan events.
type FeedConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
	// User restricts the feed to one user. Empty means every user.
	User string `yaml:"user,omitempty" json:"user,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone whose wall clock defines "today".
	Timezone string `yaml:"timezone" json:"timezone"`

	// Database is the SQLite file (or DSN) holding plans.
	Database string `yaml:"database" json:"database"`

	// DefaultUser is used when a request names no user.
	DefaultUser string `yaml:"default_user" json:"default_user"`

	// WeekStart controls the first day of the week strip: "monday" (default)
	// or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// MaxEvents caps the agenda across all plans.
	MaxEvents int `yaml:"max_events" json:"max_events"`
	// ReminderHorizon / SessionHorizon bound occurrences per plan.
	ReminderHorizon int `yaml:"reminder_horizon" json:"reminder_horizon"`
	SessionHorizon  int `yaml:"session_horizon" json:"session_horizon"`

	SessionTitle       string `yaml:"session_title" json:"session_title"`
	SessionDescription string `yaml:"session_description" json:"session_description"`

	// RefreshCron re-fetches subscribed feeds (e.g. "*/15 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`
	// DigestCron sends each user the events due today (e.g. "0 8 * * *").
	DigestCron string `yaml:"digest" json:"digest"`

	// FeedHorizonDays is how far ahead feed recurrences are expanded.
	FeedHorizonDays int `yaml:"feed_horizon_days" json:"feed_horizon_days"`
	// CacheDir keeps fetched feed bodies and their HTTP validators.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// LogLevel is debug, info, warn or error. LogFormat is console or json.
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	// Feeds is the list of subscribed ICS sources.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// CORSOrigins lists browser origins allowed to call the API. Empty
	// disables CORS handling.
	CORSOrigins []string `yaml:"cors_origins,omitempty" json:"cors_origins,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:             "127.0.0.1:8080",
		Timezone:           "Local",
		Database:           "./var/plancal.db",
		DefaultUser:        "me",
		WeekStart:          "monday",
		MaxEvents:          10,
		ReminderHorizon:    60,
		SessionHorizon:     30,
		SessionTitle:       "Money check-in",
		SessionDescription: "Tell your assistant how your money went since last time",
		RefreshCron:        "*/15 * * * *",
		DigestCron:         "0 8 * * *",
		FeedHorizonDays:    60,
		CacheDir:           "./var/ics-cache",
		LogLevel:           "info",
		LogFormat:          "console",
		Feeds:              []FeedConfig{},
		BasicAuth:          nil,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.DefaultUser == "" {
		c.DefaultUser = def.DefaultUser
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = def.MaxEvents
	}
	if c.ReminderHorizon <= 0 {
		c.ReminderHorizon = def.ReminderHorizon
	}
	if c.SessionHorizon <= 0 {
		c.SessionHorizon = def.SessionHorizon
	}
	if c.SessionTitle == "" {
		c.SessionTitle = def.SessionTitle
	}
	if c.SessionDescription == "" {
		c.SessionDescription = def.SessionDescription
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.DigestCron == "" {
		c.DigestCron = def.DigestCron
	}
	if c.FeedHorizonDays <= 0 {
		c.FeedHorizonDays = def.FeedHorizonDays
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat != "json" {
		c.LogFormat = "console"
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}
	return parse(data)
}

// Read loads an existing config file without creating it.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes the given configuration atomically (temp file + rename) with
// 0600 permissions, creating the parent directory (0700) if needed.
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
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".plancal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Location resolves Timezone. "Local" and unknown names yield time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// CalendarOptions maps the projection settings onto calendar.Options.
func (c *Config) CalendarOptions() calendar.Options {
	return calendar.Options{
		MaxEvents:          c.MaxEvents,
		ReminderCount:      c.ReminderHorizon,
		SessionCount:       c.SessionHorizon,
		SessionTitle:       c.SessionTitle,
		SessionDescription: c.SessionDescription,
	}
}
