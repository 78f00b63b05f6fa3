package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreBackendPocketBase = "pocketbase"
	StoreBackendRedis      = "redis"
	StoreBackendPostgres   = "postgres"
	StoreBackendMemory     = "memory"
)

const minSigningSecretLength = 32

var (
	ErrMissingSigningSecret = errors.New("config: TICKET_SIGNING_SECRET is required")
	ErrWeakSigningSecret    = errors.New("config: TICKET_SIGNING_SECRET must be at least 32 bytes")
)

type Config struct {
	// Server configuration
	Environment string

	// Storage configuration
	StoreBackend string
	RedisURL     string
	DatabaseURL  string
	StoreTimeout time.Duration

	// Signing configuration. Secrets are only handed to the key derivation step
	// at startup and never logged.
	SigningSecret          string
	PreviousSigningSecrets []string
	GracePeriod            time.Duration
	DefaultEventDuration   time.Duration
	EventTimezone          string

	// Circuit breaker around the ticket store
	BreakerMaxRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration

	// Scan rate limiting, per scanner per minute
	ScanRateLimit int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Storage
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StoreBackendPocketBase)),
		RedisURL:     getEnv("REDIS_URL", ""),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		StoreTimeout: getEnvAsDuration("STORE_TIMEOUT", "2s"),

		// Signing
		SigningSecret:          getEnv("TICKET_SIGNING_SECRET", ""),
		PreviousSigningSecrets: getEnvAsList("TICKET_SIGNING_PREVIOUS_SECRETS"),
		GracePeriod:            getEnvAsDuration("TICKET_GRACE_PERIOD", "24h"),
		DefaultEventDuration:   getEnvAsDuration("DEFAULT_EVENT_DURATION", "4h"),
		EventTimezone:          getEnv("EVENT_TIMEZONE", "UTC"),

		// Breaker
		BreakerMaxRequests:  uint32(getEnvAsInt("BREAKER_MAX_REQUESTS", 100)),
		BreakerFailureRatio: getEnvAsFloat("BREAKER_FAILURE_RATIO", 0.6),
		BreakerOpenTimeout:  getEnvAsDuration("BREAKER_OPEN_TIMEOUT", "30s"),

		// Rate limit
		ScanRateLimit: getEnvAsInt("SCAN_RATE_LIMIT", 120),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "ticket-admission"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

// Validate reports configuration that would make the service unsafe to start.
func (c *Config) Validate() error {
	if c.SigningSecret == "" {
		return ErrMissingSigningSecret
	}
	if len(c.SigningSecret) < minSigningSecretLength {
		return ErrWeakSigningSecret
	}
	for i, s := range c.PreviousSigningSecrets {
		if len(s) < minSigningSecretLength {
			return fmt.Errorf("config: previous signing secret #%d: %w", i+1, ErrWeakSigningSecret)
		}
	}

	switch c.StoreBackend {
	case StoreBackendPocketBase, StoreBackendMemory:
	case StoreBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("config: REDIS_URL is required for store backend %q", c.StoreBackend)
		}
	case StoreBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for store backend %q", c.StoreBackend)
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.StoreBackend)
	}

	if _, err := time.LoadLocation(c.EventTimezone); err != nil {
		return fmt.Errorf("config: EVENT_TIMEZONE: %w", err)
	}
	if c.GracePeriod < 0 || c.DefaultEventDuration < 0 {
		return errors.New("config: grace period and default event duration must not be negative")
	}
	return nil
}

// Location returns the timezone event dates and times are expressed in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.EventTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsList(key string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return nil
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
