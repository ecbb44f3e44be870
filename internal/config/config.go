package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	HTTPAddr string

	RedisAddr     string
	RedisPassword string
	DatabasePath  string

	ArenasFile string

	MatchInterval time.Duration
	MatchBatch    int
	MatchedTTL    time.Duration

	DailyMatchLimit int
	LimitTimezone   *time.Location

	QueueTTL           time.Duration
	CleanupInterval    time.Duration
	UsageRetentionDays int

	LogLevel string
	LogFile  string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		DatabasePath:       getEnv("DATABASE_PATH", "./data/matchqueue.db"),
		ArenasFile:         strings.TrimSpace(os.Getenv("ARENAS_FILE")),
		MatchInterval:      500 * time.Millisecond,
		MatchBatch:         10,
		MatchedTTL:         time.Hour,
		DailyMatchLimit:    10,
		LimitTimezone:      time.UTC,
		QueueTTL:           30 * time.Minute,
		CleanupInterval:    time.Minute,
		UsageRetentionDays: 30,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            strings.TrimSpace(os.Getenv("LOG_FILE")),
	}

	var errs []error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"MATCH_INTERVAL", &cfg.MatchInterval},
		{"MATCHED_TTL", &cfg.MatchedTTL},
		{"QUEUE_TTL", &cfg.QueueTTL},
		{"CLEANUP_INTERVAL", &cfg.CleanupInterval},
	}
	for _, d := range durations {
		v := strings.TrimSpace(os.Getenv(d.key))
		if v == "" {
			continue
		}
		dur, err := time.ParseDuration(v)
		if err != nil || dur <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", d.key, v))
			continue
		}
		*d.dst = dur
	}

	ints := []struct {
		key string
		dst *int
		min int
	}{
		{"MATCH_BATCH", &cfg.MatchBatch, 2},
		{"DAILY_MATCH_LIMIT", &cfg.DailyMatchLimit, 0},
		{"USAGE_RETENTION_DAYS", &cfg.UsageRetentionDays, 1},
	}
	for _, n := range ints {
		v := strings.TrimSpace(os.Getenv(n.key))
		if v == "" {
			continue
		}
		i, err := strconv.Atoi(v)
		if err != nil || i < n.min {
			errs = append(errs, fmt.Errorf("%s: must be an integer >= %d, got %q", n.key, n.min, v))
			continue
		}
		*n.dst = i
	}

	if v := strings.TrimSpace(os.Getenv("LIMIT_TIMEZONE")); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LIMIT_TIMEZONE: %w", err))
		} else {
			cfg.LimitTimezone = loc
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
