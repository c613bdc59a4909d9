package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	BotToken      string
	BotAPIBaseURL string
	WebhookSecret string
	AdminOwnerID  string
	AdminToken    string

	GeneratorBin       string
	WorkerSlots        int
	GeneratorTimeout   time.Duration
	ResultTTL          time.Duration
	AwaitTimeout       time.Duration
	SessionIdleTimeout time.Duration
	QueuePollInterval  time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. A missing BOT_TOKEN is the only fatal condition;
// an empty DATABASE_URL selects the in-memory queue and result store.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		BotToken:      os.Getenv("BOT_TOKEN"),
		BotAPIBaseURL: getEnv("BOT_API_BASE_URL", "https://api.telegram.org"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		AdminOwnerID:  os.Getenv("ADMIN_OWNER_ID"),
		AdminToken:    os.Getenv("ADMIN_TOKEN"),

		GeneratorBin:       getEnv("GENERATOR_BIN", "vanity-generator"),
		WorkerSlots:        getEnvInt("WORKER_SLOTS", 4),
		GeneratorTimeout:   time.Second * time.Duration(getEnvInt("GENERATOR_TIMEOUT_SECONDS", 600)),
		ResultTTL:          time.Second * time.Duration(getEnvInt("RESULT_TTL_SECONDS", 3600)),
		SessionIdleTimeout: time.Minute * time.Duration(getEnvInt("SESSION_IDLE_TIMEOUT_MINUTES", 30)),
		QueuePollInterval:  time.Second * time.Duration(getEnvInt("QUEUE_POLL_INTERVAL_SECONDS", 2)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	// The await window must outlive the generator deadline: a submitter
	// waiting on a job that times out should receive the worker's timeout
	// diagnostic, not its own await timeout.
	cfg.AwaitTimeout = cfg.GeneratorTimeout + 30*time.Second
	if v := getEnvInt("AWAIT_TIMEOUT_SECONDS", 0); v > 0 {
		cfg.AwaitTimeout = time.Second * time.Duration(v)
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}
	if cfg.WorkerSlots < 1 {
		cfg.WorkerSlots = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
