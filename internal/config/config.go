/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	LogLevel    string

	// Control protocol listener
	Bind          string
	Port          int
	StartupScript string
	Proxy         string // host[:port] of a server to forward commands to
	MaxUnits      int
	RootDir       string
	StatusPoll    time.Duration

	// In-process media engine
	FFprobeBin string // empty disables probing
	DefaultFPS float64

	// Admin HTTP surface
	AdminBind      string // empty disables the admin server
	MetricsEnabled bool

	// As-run log
	AsRunEnabled bool
	DBBackend    DatabaseBackend
	DBDSN        string // empty keeps as-run records in the log only

	// Status mirrors
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string
	NATSURL       string
	NATSSubject   string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads an optional .env file and the environment, applies defaults,
// and validates the result. Variables already set in the environment win
// over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(getEnv("MELTED_ENV_FILE", ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{
		Environment:   getEnv("MELTED_ENV", "development"),
		LogLevel:      getEnv("MELTED_LOG_LEVEL", ""),
		Bind:          getEnv("MELTED_BIND", "0.0.0.0"),
		Port:          getEnvInt("MELTED_PORT", 5250),
		StartupScript: getEnv("MELTED_STARTUP_SCRIPT", ""),
		Proxy:         getEnv("MELTED_PROXY", ""),
		MaxUnits:      getEnvInt("MELTED_MAX_UNITS", 16),
		RootDir:       getEnv("MELTED_ROOT", ""),
		StatusPoll:    time.Duration(getEnvInt("MELTED_STATUS_POLL_MS", 1000)) * time.Millisecond,

		FFprobeBin: getEnv("MELTED_FFPROBE_BIN", "ffprobe"),
		DefaultFPS: getEnvFloat("MELTED_DEFAULT_FPS", 25),

		AdminBind:      getEnv("MELTED_ADMIN_BIND", "127.0.0.1:5251"),
		MetricsEnabled: getEnvBool("MELTED_METRICS_ENABLED", true),

		AsRunEnabled: getEnvBool("MELTED_ASRUN_ENABLED", true),
		DBBackend:    DatabaseBackend(getEnv("MELTED_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:        getEnv("MELTED_DB_DSN", ""),

		RedisAddr:     getEnv("MELTED_REDIS_ADDR", ""),
		RedisPassword: getEnv("MELTED_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("MELTED_REDIS_DB", 0),
		RedisChannel:  getEnv("MELTED_REDIS_CHANNEL", "melted:status"),
		NATSURL:       getEnv("MELTED_NATS_URL", ""),
		NATSSubject:   getEnv("MELTED_NATS_SUBJECT", "melted.status"),

		TracingEnabled:    getEnvBool("MELTED_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("MELTED_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("MELTED_TRACING_SAMPLE_RATE", 1.0),
	}

	// "-" switches probing off.
	if cfg.FFprobeBin == "-" {
		cfg.FFprobeBin = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("MELTED_PORT %d out of range", c.Port)
	}
	if c.MaxUnits <= 0 {
		return fmt.Errorf("MELTED_MAX_UNITS must be positive, got %d", c.MaxUnits)
	}
	if c.StatusPoll <= 0 {
		return fmt.Errorf("MELTED_STATUS_POLL_MS must be positive")
	}
	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("MELTED_TRACING_SAMPLE_RATE must be within [0,1], got %v", c.TracingSampleRate)
	}
	if c.AdminBind != "" {
		if _, _, err := net.SplitHostPort(c.AdminBind); err != nil {
			return fmt.Errorf("MELTED_ADMIN_BIND %q: %w", c.AdminBind, err)
		}
	}
	return nil
}

// ListenAddr is the control protocol listen address.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Development reports whether the process runs in development mode.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Environment, "development")
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
