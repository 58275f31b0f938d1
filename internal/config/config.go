// Package config loads the service configuration from defaults, an optional
// YAML file, REMINDBOT_* environment variables and command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const EnvPrefix = "REMINDBOT"

type Config struct {
	Addr      string          `mapstructure:"addr"`
	DB        string          `mapstructure:"db"`
	Location  string          `mapstructure:"location"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Zulip     ZulipConfig     `mapstructure:"zulip"`
	Shell     ShellConfig     `mapstructure:"shell"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type SchedulerConfig struct {
	FireTimeout time.Duration `mapstructure:"fire_timeout"`
}

type DeliveryConfig struct {
	Workers int           `mapstructure:"workers"`
	Rate    float64       `mapstructure:"rate"`
	Timeout time.Duration `mapstructure:"timeout"`
	Sender  string        `mapstructure:"sender"`
}

type ZulipConfig struct {
	Site   string `mapstructure:"site"`
	Email  string `mapstructure:"email"`
	APIKey string `mapstructure:"api_key"`
}

type ShellConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// SetDefaults registers every key, which also makes each one visible to
// AutomaticEnv during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("db", "remindbot.db")
	v.SetDefault("location", "Local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("store.timeout", 5*time.Second)
	v.SetDefault("scheduler.fire_timeout", time.Minute)
	v.SetDefault("delivery.workers", 4)
	v.SetDefault("delivery.rate", 10.0)
	v.SetDefault("delivery.timeout", 10*time.Second)
	v.SetDefault("delivery.sender", "log")
	v.SetDefault("zulip.site", "")
	v.SetDefault("zulip.email", "")
	v.SetDefault("zulip.api_key", "")
	v.SetDefault("shell.command", "")
	v.SetDefault("shell.args", []string{})
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (if non-empty) into v, decodes the result and validates it.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.DB == "" {
		return fmt.Errorf("db is required")
	}
	if _, err := time.LoadLocation(c.Location); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be positive")
	}
	if c.Scheduler.FireTimeout <= 0 {
		return fmt.Errorf("scheduler.fire_timeout must be positive")
	}
	if c.Delivery.Workers < 1 {
		return fmt.Errorf("delivery.workers must be at least 1")
	}
	if c.Delivery.Rate < 0 {
		return fmt.Errorf("delivery.rate must not be negative")
	}
	if c.Delivery.Timeout <= 0 {
		return fmt.Errorf("delivery.timeout must be positive")
	}
	switch c.Delivery.Sender {
	case "log":
	case "zulip":
		if c.Zulip.Site == "" || c.Zulip.Email == "" || c.Zulip.APIKey == "" {
			return fmt.Errorf("zulip sender needs zulip.site, zulip.email and zulip.api_key")
		}
	case "shell":
		if c.Shell.Command == "" {
			return fmt.Errorf("shell sender needs shell.command")
		}
	default:
		return fmt.Errorf("delivery.sender must be log, zulip or shell, got %q", c.Delivery.Sender)
	}
	return nil
}

// TimeLocation is the zone absolute deadlines are read in.
func (c Config) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return time.Local
	}
	return loc
}
