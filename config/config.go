/*
Package config loads server configuration from the environment.

PURPOSE:
  One flat Config struct, filled from environment variables with an
  optional .env file for development (godotenv). No config is read
  anywhere else in the program; everything flows from here.

VARIABLES:
  PORT                HTTP port                        (default 8080)
  DB_PATH             SQLite path, ":memory:" allowed  (default leave.db)
  SCHEDULER_SECRET    X-Scheduler-Secret value; empty disables the check
  SCHEDULER_INTERVAL  accrual check interval           (default 1h)
  CORS_ORIGINS        comma-separated allowed origins
  LOG_LEVEL           debug | info | warn | error     (default info)
  TIMEZONE            IANA operational timezone        (default UTC)
*/
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              int
	DBPath            string
	SchedulerSecret   string
	SchedulerInterval time.Duration
	CORSOrigins       []string
	LogLevel          slog.Level
	Timezone          *time.Location
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	// Missing .env is fine; env vars still apply.
	_ = godotenv.Load()

	cfg := Config{
		Port:              8080,
		DBPath:            "leave.db",
		SchedulerSecret:   os.Getenv("SCHEDULER_SECRET"),
		SchedulerInterval: 1 * time.Hour,
		CORSOrigins:       []string{"http://localhost:5173", "http://localhost:8080"},
		LogLevel:          slog.LevelInfo,
		Timezone:          time.UTC,
	}

	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = p
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SCHEDULER_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SCHEDULER_INTERVAL %q: %w", v, err)
		}
		cfg.SchedulerInterval = d
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitAndTrim(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLevel(v)
		if err != nil {
			return Config{}, err
		}
		cfg.LogLevel = level
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TIMEZONE %q: %w", v, err)
		}
		cfg.Timezone = loc
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
