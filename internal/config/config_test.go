package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "bot:\n  name: testbot\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "testbot", cfg.Bot.Name)
	assert.Equal(t, "/", cfg.Bot.CommandPrefix)
	assert.Equal(t, "127.0.0.1", cfg.Gateway.Host)
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.Equal(t, "http://127.0.0.1:5700", cfg.OneBot.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.OneBot.Timeout)
	assert.Equal(t, 7, cfg.Activity.RetentionDays)
	assert.Equal(t, "0 * * * *", cfg.Activity.SweepSpec)
	assert.Equal(t, 10, cfg.Activity.TopN)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
bot:
  name: lch
  self_id: 10001
  command_prefix: "!"
  superusers: [111, 222]
gateway:
  host: 0.0.0.0
  port: 9090
onebot:
  base_url: http://gateway:5700
  access_token: tok
  timeout: 5s
activity:
  retention_days: 14
  top_n: 5
storage:
  path: /var/lib/lchbot/bot.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(10001), cfg.Bot.SelfID)
	assert.Equal(t, "!", cfg.Bot.CommandPrefix)
	assert.Equal(t, []int64{111, 222}, cfg.Bot.Superusers)
	assert.Equal(t, "0.0.0.0", cfg.Gateway.Host)
	assert.Equal(t, 9090, cfg.Gateway.Port)
	assert.Equal(t, "tok", cfg.OneBot.AccessToken)
	assert.Equal(t, 5*time.Second, cfg.OneBot.Timeout)
	assert.Equal(t, 14, cfg.Activity.RetentionDays)
	assert.Equal(t, 5, cfg.Activity.TopN)
	assert.Equal(t, "/var/lib/lchbot/bot.db", cfg.Storage.Path)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Bot:      BotConfig{CommandPrefix: "/"},
			Gateway:  GatewayConfig{Port: 8080},
			OneBot:   OneBotConfig{BaseURL: "http://127.0.0.1:5700", Timeout: time.Second},
			Activity: ActivityConfig{RetentionDays: 7},
		}
	}

	require.NoError(t, valid().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Gateway.Port = 0 }},
		{"port too large", func(c *Config) { c.Gateway.Port = 70000 }},
		{"empty prefix", func(c *Config) { c.Bot.CommandPrefix = "" }},
		{"empty base url", func(c *Config) { c.OneBot.BaseURL = "" }},
		{"zero timeout", func(c *Config) { c.OneBot.Timeout = 0 }},
		{"zero retention", func(c *Config) { c.Activity.RetentionDays = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestInvalidFileRejected(t *testing.T) {
	path := writeConfig(t, "gateway:\n  port: -1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestIsSuperuser(t *testing.T) {
	bot := BotConfig{Superusers: []int64{111, 222}}
	assert.True(t, bot.IsSuperuser(111))
	assert.False(t, bot.IsSuperuser(333))
}
