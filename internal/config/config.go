// Package config loads the bot configuration.
//
// The configuration is read once at startup and treated as an immutable
// snapshot: components receive the parts they need at construction time and
// never consult mutable global state.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"lchbot/pkg/logger"
)

// Config is the root configuration.
type Config struct {
	Bot      BotConfig        `mapstructure:"bot" yaml:"bot"`
	Gateway  GatewayConfig    `mapstructure:"gateway" yaml:"gateway"`
	OneBot   OneBotConfig     `mapstructure:"onebot" yaml:"onebot"`
	Activity ActivityConfig   `mapstructure:"activity" yaml:"activity"`
	Storage  StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Log      logger.LogConfig `mapstructure:"log" yaml:"log"`
}

// BotConfig holds bot identity and command settings.
type BotConfig struct {
	Name          string  `mapstructure:"name" yaml:"name"`
	SelfID        int64   `mapstructure:"self_id" yaml:"self_id"`
	CommandPrefix string  `mapstructure:"command_prefix" yaml:"command_prefix"`
	Superusers    []int64 `mapstructure:"superusers" yaml:"superusers"`
}

// GatewayConfig configures the inbound event HTTP server.
type GatewayConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// OneBotConfig configures the outbound action API client.
type OneBotConfig struct {
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	AccessToken string        `mapstructure:"access_token" yaml:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ActivityConfig configures the activity aggregator.
type ActivityConfig struct {
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
	SweepSpec     string `mapstructure:"sweep_spec" yaml:"sweep_spec"`
	TopN          int    `mapstructure:"top_n" yaml:"top_n"`
}

// StorageConfig configures the sqlite store. An empty path disables
// persistence.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.name", "lchbot")
	v.SetDefault("bot.command_prefix", "/")
	v.SetDefault("gateway.host", "127.0.0.1")
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("onebot.base_url", "http://127.0.0.1:5700")
	v.SetDefault("onebot.timeout", 10*time.Second)
	v.SetDefault("activity.retention_days", 7)
	v.SetDefault("activity.sweep_spec", "0 * * * *")
	v.SetDefault("activity.top_n", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads the configuration from the given path. When path is empty,
// config.yml is looked up in the working directory and ./config. A missing
// file in that mode is not an error; defaults and environment variables
// (prefix LCHBOT_) apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("LCHBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the runtime cannot work with.
func (c *Config) Validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}
	if c.Bot.CommandPrefix == "" {
		return errors.New("bot.command_prefix must not be empty")
	}
	if c.OneBot.BaseURL == "" {
		return errors.New("onebot.base_url must not be empty")
	}
	if c.OneBot.Timeout <= 0 {
		return fmt.Errorf("onebot.timeout must be positive, got %s", c.OneBot.Timeout)
	}
	if c.Activity.RetentionDays <= 0 {
		return fmt.Errorf("activity.retention_days must be positive, got %d", c.Activity.RetentionDays)
	}
	return nil
}

// IsSuperuser reports whether the given user is a configured superuser.
func (c *BotConfig) IsSuperuser(userID int64) bool {
	for _, id := range c.Superusers {
		if id == userID {
			return true
		}
	}
	return false
}
