package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "remindbot.db", cfg.DB)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, time.Minute, cfg.Scheduler.FireTimeout)
	assert.Equal(t, 4, cfg.Delivery.Workers)
	assert.Equal(t, "log", cfg.Delivery.Sender)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REMINDBOT_ADDR", ":9999")
	t.Setenv("REMINDBOT_STORE_TIMEOUT", "750ms")
	t.Setenv("REMINDBOT_DELIVERY_WORKERS", "16")
	t.Setenv("REMINDBOT_LOG_FORMAT", "json")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 750*time.Millisecond, cfg.Store.Timeout)
	assert.Equal(t, 16, cfg.Delivery.Workers)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remindbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db: /var/lib/remindbot/reminders.db
location: UTC
delivery:
  sender: zulip
  rate: 2.5
zulip:
  site: https://chat.example.com
  email: reminder-bot@chat.example.com
  api_key: secret
`), 0o600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/remindbot/reminders.db", cfg.DB)
	assert.Equal(t, time.UTC, cfg.TimeLocation())
	assert.Equal(t, "zulip", cfg.Delivery.Sender)
	assert.Equal(t, 2.5, cfg.Delivery.Rate)
	assert.Equal(t, "secret", cfg.Zulip.APIKey)
}

func TestMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load(New(), "")
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"no addr":        func(c *Config) { c.Addr = "" },
		"bad level":      func(c *Config) { c.Log.Level = "loud" },
		"bad format":     func(c *Config) { c.Log.Format = "xml" },
		"bad location":   func(c *Config) { c.Location = "Mars/Olympus" },
		"zero timeout":   func(c *Config) { c.Store.Timeout = 0 },
		"no workers":     func(c *Config) { c.Delivery.Workers = 0 },
		"negative rate":  func(c *Config) { c.Delivery.Rate = -1 },
		"unknown sender": func(c *Config) { c.Delivery.Sender = "pigeon" },
		"zulip no key":   func(c *Config) { c.Delivery.Sender = "zulip"; c.Zulip.Site = "x"; c.Zulip.Email = "y" },
		"shell no cmd":   func(c *Config) { c.Delivery.Sender = "shell" },
	}
	for name, mutate := range cases {
		c := base
		mutate(&c)
		assert.Error(t, c.Validate(), name)
	}
}
