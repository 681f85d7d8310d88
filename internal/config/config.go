package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string // BEACON_HTTP_ADDR (default ":8080")
	DatabaseURL string // BEACON_DATABASE_URL (optional, empty = in-memory store)
	NATSURL     string // BEACON_NATS_URL (optional, empty = no bus fan-out)
	AdminToken  string // BEACON_ADMIN_TOKEN (optional, empty = admin auth disabled)

	RetentionWindow time.Duration // BEACON_RETENTION_WINDOW (default 1h)
	SweepInterval   time.Duration // BEACON_SWEEP_INTERVAL (default 5m; 0 = disabled)
	WindowLimit     int           // BEACON_WINDOW_LIMIT (default 10, max 50)

	// Subscriber-side knobs, consumed by `beacon watch`.
	PollInterval      time.Duration // BEACON_POLL_INTERVAL (default 5s)
	SettleDelay       time.Duration // BEACON_SETTLE_DELAY (default 2s)
	RevalidateTimeout time.Duration // BEACON_REVALIDATE_TIMEOUT (default 5s)

	// Archive settings (enabled when the bucket is set).
	ArchiveInterval   time.Duration // BEACON_ARCHIVE_INTERVAL (default 10m)
	ArchiveS3Bucket   string        // BEACON_ARCHIVE_S3_BUCKET
	ArchiveS3Prefix   string        // BEACON_ARCHIVE_S3_PREFIX (default "beacon/events")
	ArchiveS3Region   string        // BEACON_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Endpoint string        // BEACON_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
}

// MaxWindowLimit bounds how many records a push window may carry.
const MaxWindowLimit = 50

func Load() (*Config, error) {
	_ = godotenv.Load()

	c := &Config{
		HTTPAddr:          envOrDefault("BEACON_HTTP_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("BEACON_DATABASE_URL"),
		NATSURL:           os.Getenv("BEACON_NATS_URL"),
		AdminToken:        os.Getenv("BEACON_ADMIN_TOKEN"),
		WindowLimit:       envInt("BEACON_WINDOW_LIMIT", 10),
		ArchiveS3Bucket:   os.Getenv("BEACON_ARCHIVE_S3_BUCKET"),
		ArchiveS3Prefix:   envOrDefault("BEACON_ARCHIVE_S3_PREFIX", "beacon/events"),
		ArchiveS3Region:   envOrDefault("BEACON_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Endpoint: os.Getenv("BEACON_ARCHIVE_S3_ENDPOINT"),
	}

	if c.WindowLimit < 1 {
		c.WindowLimit = 1
	}
	if c.WindowLimit > MaxWindowLimit {
		c.WindowLimit = MaxWindowLimit
	}

	var err error
	if c.RetentionWindow, err = envDuration("BEACON_RETENTION_WINDOW", time.Hour); err != nil {
		return nil, err
	}
	if c.SweepInterval, err = envDuration("BEACON_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if c.PollInterval, err = envDuration("BEACON_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if c.SettleDelay, err = envDuration("BEACON_SETTLE_DELAY", 2*time.Second); err != nil {
		return nil, err
	}
	if c.RevalidateTimeout, err = envDuration("BEACON_REVALIDATE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if c.ArchiveInterval, err = envDuration("BEACON_ARCHIVE_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
