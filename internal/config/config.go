// Package config loads service settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var ErrDatabaseURLMissing = errors.New("DATABASE_URL environment variable is required")

type Config struct {
	Port          string
	DatabaseURL   string
	SessionSecret string
	Redis         RedisConfig
	Push          PushConfig
	Reminder      ReminderConfig
	Log           LogConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

type ReminderConfig struct {
	Interval time.Duration
	LockTTL  time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment only")
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("SESSION_SECRET", "keepsake-secret-change-in-production")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REMINDER_INTERVAL", time.Minute)
	v.SetDefault("REMINDER_LOCK_TTL", 55*time.Second)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:          v.GetString("PORT"),
		DatabaseURL:   v.GetString("DATABASE_URL"),
		SessionSecret: v.GetString("SESSION_SECRET"),
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Push: PushConfig{
			VAPIDPublicKey:  strings.TrimSpace(v.GetString("VAPID_PUBLIC_KEY")),
			VAPIDPrivateKey: strings.TrimSpace(v.GetString("VAPID_PRIVATE_KEY")),
			Subscriber:      strings.TrimSpace(v.GetString("VAPID_EMAIL")),
		},
		Reminder: ReminderConfig{
			Interval: v.GetDuration("REMINDER_INTERVAL"),
			LockTTL:  v.GetDuration("REMINDER_LOCK_TTL"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
	}

	if cfg.Reminder.Interval <= 0 {
		cfg.Reminder.Interval = time.Minute
	}
	if cfg.Reminder.LockTTL <= 0 {
		cfg.Reminder.LockTTL = cfg.Reminder.Interval
	}

	return cfg, nil
}

// RequireDatabase fails when DATABASE_URL is empty.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return ErrDatabaseURLMissing
	}
	return nil
}

// SetupLogging applies the log level and format to the standard logrus logger.
func (c *Config) SetupLogging() {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if c.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
