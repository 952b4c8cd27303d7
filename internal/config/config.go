package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keeps runtime settings for the bot and the job runner.
type Config struct {
	TelegramToken  string
	DatabaseURL    string
	Timezone       string
	MaterializeAt  string
	AgendaAt       string
	DebounceWindow time.Duration
	RedisAddr      string
	LockTTL        time.Duration
	MetricsAddr    string
	LogLevel       string
	LogDevelopment bool
	LogFile        string
}

// Location resolves Timezone, falling back to the process zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from config/config.yaml (optional) and
// environment variables, environment taking precedence.
func Load() (Config, error) {
	return load(viper.New(), "./config")
}

func load(v *viper.Viper, paths ...string) (Config, error) {
	v.SetDefault("DATABASE_URL", "cleanops.db")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("MATERIALIZE_AT", "05:00")
	v.SetDefault("AGENDA_AT", "07:00")
	v.SetDefault("DEBOUNCE_WINDOW", 3*time.Second)
	v.SetDefault("LOCK_TTL", 2*time.Minute)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	v.AutomaticEnv()

	cfg := Config{
		TelegramToken:  strings.TrimSpace(v.GetString("TELEGRAM_TOKEN")),
		DatabaseURL:    strings.TrimSpace(v.GetString("DATABASE_URL")),
		Timezone:       strings.TrimSpace(v.GetString("TIMEZONE")),
		MaterializeAt:  strings.TrimSpace(v.GetString("MATERIALIZE_AT")),
		AgendaAt:       strings.TrimSpace(v.GetString("AGENDA_AT")),
		DebounceWindow: v.GetDuration("DEBOUNCE_WINDOW"),
		RedisAddr:      strings.TrimSpace(v.GetString("REDIS_ADDR")),
		LockTTL:        v.GetDuration("LOCK_TTL"),
		MetricsAddr:    strings.TrimSpace(v.GetString("METRICS_ADDR")),
		LogLevel:       strings.TrimSpace(v.GetString("LOG_LEVEL")),
		LogDevelopment: v.GetBool("LOG_DEVELOPMENT"),
		LogFile:        strings.TrimSpace(v.GetString("LOG_FILE")),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "cleanops.db"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.DebounceWindow < 0 {
		return cfg, fmt.Errorf("DEBOUNCE_WINDOW must not be negative")
	}
	if _, err := cfg.Location(); err != nil {
		return cfg, err
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	return cfg, nil
}
