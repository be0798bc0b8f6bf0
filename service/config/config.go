package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port           int
	APIKey         string
	VerboseLogging bool
	RateLimit      int

	StoragePath string

	KeepAliveTimeout       time.Duration
	FallbackConnectTimeout time.Duration
	FallbackReadTimeout    time.Duration
	DefaultChannelID       string
	AccentColor            string
	ConsumerQueueSize      int
	LedgerRetention        time.Duration

	EnableWebPush   bool
	VAPIDSubscriber string

	EnableTelegram   bool
	TelegramBotToken string
	TelegramChatID   string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnvInt("PORT", 8080),
		APIKey:         os.Getenv("API_KEY"),
		VerboseLogging: getEnvBool("VERBOSE_LOGGING", false),
		RateLimit:      getEnvInt("RATE_LIMIT", 100),

		StoragePath: getEnvString("STORAGE_PATH", "./data/courier.db"),

		KeepAliveTimeout:       getEnvDuration("KEEPALIVE_TIMEOUT", 3*time.Second),
		FallbackConnectTimeout: getEnvDuration("FALLBACK_CONNECT_TIMEOUT", 10*time.Second),
		FallbackReadTimeout:    getEnvDuration("FALLBACK_READ_TIMEOUT", 10*time.Second),
		DefaultChannelID:       getEnvString("DEFAULT_CHANNEL_ID", "fcm_default_channel"),
		AccentColor:            os.Getenv("ACCENT_COLOR"),
		ConsumerQueueSize:      getEnvInt("CONSUMER_QUEUE_SIZE", 256),
		LedgerRetention:        getEnvDuration("LEDGER_RETENTION", 7*24*time.Hour),

		EnableWebPush:   getEnvBool("ENABLE_WEBPUSH", true),
		VAPIDSubscriber: getEnvString("VAPID_SUBSCRIBER", "mailto:admin@localhost"),

		EnableTelegram:   getEnvBool("ENABLE_TELEGRAM", false),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("API_KEY environment variable is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.KeepAliveTimeout <= 0 {
		errs = append(errs, errors.New("KEEPALIVE_TIMEOUT must be positive"))
	}
	if c.FallbackConnectTimeout <= 0 || c.FallbackReadTimeout <= 0 {
		errs = append(errs, errors.New("fallback timeouts must be positive"))
	}
	if c.EnableTelegram && c.TelegramBotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required when ENABLE_TELEGRAM is set"))
	}
	if c.TelegramChatID != "" {
		if _, err := strconv.ParseInt(c.TelegramChatID, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("TELEGRAM_CHAT_ID must be numeric: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) IsTelegramEnabled() bool {
	return c.EnableTelegram && c.TelegramBotToken != ""
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("3s") or a bare number of milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
