package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config holds environment-driven configuration.
type Config struct {
	StoreDriver string `env:"STORE_DRIVER" default:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH"` // empty: <user config dir>/jira-timer/jira-timer.db
	MySQLDSN    string `env:"MYSQL_DSN"`   // e.g. user:pass@tcp(host:3306)/jira_timer

	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"` // 64 hex chars; empty stores tokens unencrypted

	WorklogTimezone string        `env:"WORKLOG_TZ" default:"Local"`
	WorklogComment  string        `env:"WORKLOG_COMMENT" default:"Work logged via jira-timer"`
	SubmitTimeout   time.Duration `env:"SUBMIT_TIMEOUT" default:"30s"`
	HTTPTimeout     time.Duration `env:"HTTP_TIMEOUT" default:"30s"`
	HTTPAddr        string        `env:"HTTP_ADDR" default:"127.0.0.1:7315"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return cfg, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.StoreDriver {
	case DriverSQLite:
	case DriverMySQL:
		if cfg.MySQLDSN == "" {
			return errors.New("MYSQL_DSN is required when STORE_DRIVER=mysql")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMySQL, cfg.StoreDriver)
	}

	if cfg.TokenEncryptionKey != "" {
		key, err := hex.DecodeString(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(key))
		}
	}

	if _, err := cfg.Location(); err != nil {
		return err
	}
	if cfg.SubmitTimeout <= 0 {
		return errors.New("SUBMIT_TIMEOUT must be positive")
	}
	if cfg.HTTPTimeout <= 0 {
		return errors.New("HTTP_TIMEOUT must be positive")
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	return nil
}

// Location resolves WORKLOG_TZ; worklog start times are rendered in it.
func (c Config) Location() (*time.Location, error) {
	switch c.WorklogTimezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.WorklogTimezone)
	if err != nil {
		return nil, fmt.Errorf("WORKLOG_TZ: %w", err)
	}
	return loc, nil
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return l, nil
}
