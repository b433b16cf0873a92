package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_NormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
listen: 0.0.0.0:9000
week_start: friday
max_events: 0
log_format: xml
feeds:
  - id: holidays
    url: https://example.com/holidays.ics
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "monday", cfg.WeekStart)
	assert.Equal(t, 10, cfg.MaxEvents)
	assert.Equal(t, 60, cfg.ReminderHorizon)
	assert.Equal(t, 30, cfg.SessionHorizon)
	assert.Equal(t, "console", cfg.LogFormat)
	require.Len(t, cfg.Feeds, 1)
	assert.Equal(t, "holidays", cfg.Feeds[0].ID)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.DefaultUser = "ana"
	cfg.BasicAuth = &BasicAuthConfig{Username: "ana", Password: "secret"}
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ana", got.DefaultUser)
	require.NotNil(t, got.BasicAuth)
	assert.Equal(t, "secret", got.BasicAuth.Password)

	assert.Error(t, Save("", cfg))
	assert.Error(t, Save(path, nil))
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.Timezone = "UTC"
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	cfg.Timezone = "Mars/Olympus"
	loc, err = cfg.Location()
	assert.Error(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestCalendarOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEvents = 25
	opts := cfg.CalendarOptions()
	assert.Equal(t, 25, opts.MaxEvents)
	assert.Equal(t, 60, opts.ReminderCount)
	assert.Equal(t, 30, opts.SessionCount)
	assert.Equal(t, "Money check-in", opts.SessionTitle)
}
