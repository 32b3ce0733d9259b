package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL string
	ServerAddr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BotToken        string
	TelegramAPIBase string

	// PublishTimezone is the location used to resolve step-configured
	// publication times of day.
	PublishTimezone         string
	SchedulerPollInterval   time.Duration
	SchedulerBatchSize      int
	SchedulerResyncInterval time.Duration
}

// Load reads configuration from environment, with .env as a fallback
// for local runs.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "buyback_hub")
		pass := getenv("POSTGRES_PASSWORD", "buyback_hub_pass")
		db := getenv("POSTGRES_DB", "buyback_hub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	return &Config{
		DatabaseURL:             dsn,
		ServerAddr:              getenv("SERVER_ADDR", "0.0.0.0:8080"),
		RedisAddr:               getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 parseInt(os.Getenv("REDIS_DB"), 0),
		BotToken:                os.Getenv("BOT_TOKEN"),
		TelegramAPIBase:         os.Getenv("TELEGRAM_API_BASE"),
		PublishTimezone:         getenv("PUBLISH_TIMEZONE", "Europe/Moscow"),
		SchedulerPollInterval:   parseDuration(getenv("SCHEDULER_POLL_INTERVAL", "15s"), 15*time.Second),
		SchedulerBatchSize:      parseInt(getenv("SCHEDULER_BATCH_SIZE", "100"), 100),
		SchedulerResyncInterval: parseDuration(getenv("SCHEDULER_RESYNC_INTERVAL", "5m"), 5*time.Minute),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
