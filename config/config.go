/*
Package config loads server settings and builds the process logger.

SOURCES (later wins):
  1. Defaults below
  2. .env file in the working directory (godotenv, optional)
  3. CLINIC_* environment variables (CLINIC_LOG_LEVEL, CLINIC_RATE_LIMIT, ...)
  4. Command-line flags bound by cmd/server

KEYS:
  addr               listen address            :8080
  db                 SQLite path or :memory:   clinic.db
  timezone           IANA zone of the clinic   Asia/Jerusalem
  log-level          debug|info|warn|error     info
  env                development|production    development
  cors-origins       comma-separated origins   http://localhost:5173
  rate-limit         requests/second per IP    20
  rate-burst         burst per IP              40
  snapshot-interval  balance snapshot period   24h (0 disables)
  cooldown           treatment cooldown        4h
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const EnvPrefix = "CLINIC"

const (
	KeyAddr             = "addr"
	KeyDB               = "db"
	KeyTimezone         = "timezone"
	KeyLogLevel         = "log-level"
	KeyEnv              = "env"
	KeyCORSOrigins      = "cors-origins"
	KeyRateLimit        = "rate-limit"
	KeyRateBurst        = "rate-burst"
	KeySnapshotInterval = "snapshot-interval"
	KeyCooldown         = "cooldown"
)

type Config struct {
	Addr             string
	DB               string
	Timezone         string
	LogLevel         string
	Env              string
	CORSOrigins      []string
	RateLimit        float64
	RateBurst        int
	SnapshotInterval time.Duration
	Cooldown         time.Duration
}

// New returns a viper instance with defaults and CLINIC_ env lookup set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyAddr, ":8080")
	v.SetDefault(KeyDB, "clinic.db")
	v.SetDefault(KeyTimezone, "Asia/Jerusalem")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyEnv, "development")
	v.SetDefault(KeyCORSOrigins, "http://localhost:5173,http://localhost:8080")
	v.SetDefault(KeyRateLimit, 20.0)
	v.SetDefault(KeyRateBurst, 40)
	v.SetDefault(KeySnapshotInterval, 24*time.Hour)
	v.SetDefault(KeyCooldown, 4*time.Hour)
	return v
}

// LoadDotEnv reads .env files into the process environment. Missing files
// are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads every key from v and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Addr:             v.GetString(KeyAddr),
		DB:               v.GetString(KeyDB),
		Timezone:         v.GetString(KeyTimezone),
		LogLevel:         strings.ToLower(v.GetString(KeyLogLevel)),
		Env:              strings.ToLower(v.GetString(KeyEnv)),
		CORSOrigins:      splitList(v.GetStringSlice(KeyCORSOrigins)),
		RateLimit:        v.GetFloat64(KeyRateLimit),
		RateBurst:        v.GetInt(KeyRateBurst),
		SnapshotInterval: v.GetDuration(KeySnapshotInterval),
		Cooldown:         v.GetDuration(KeyCooldown),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts both repeated values and a single comma-separated one.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: %s is required", KeyAddr)
	}
	if c.DB == "" {
		return fmt.Errorf("config: %s is required", KeyDB)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: invalid %s %q", KeyLogLevel, c.LogLevel)
	}
	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("config: %s must be development or production, got %q", KeyEnv, c.Env)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("config: %s must be positive", KeyRateLimit)
	}
	if c.RateBurst < 1 {
		return fmt.Errorf("config: %s must be at least 1", KeyRateBurst)
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("config: %s must not be negative", KeySnapshotInterval)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("config: %s must be positive", KeyCooldown)
	}
	return nil
}

// Location resolves the clinic time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid %s %q: %w", KeyTimezone, c.Timezone, err)
	}
	return loc, nil
}

// NewLogger builds a zap logger: JSON in production, console otherwise.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: invalid %s %q", KeyLogLevel, c.LogLevel)
	}
	zc := zap.NewDevelopmentConfig()
	if c.Env == "production" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
