// Package config provides environment configuration for the handoff engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// Persistence
	StoreDriver string
	RedisURL    string
	RedisTTL    time.Duration

	// NATS settings
	NATSEnabled       bool
	NATSURL           string
	NATSCAFile        string
	NATSCertFile      string
	NATSKeyFile       string
	NATSToken         string
	NATSStatsInterval time.Duration

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey     string
	OpenAIAPIKey        string
	LLMProvider         string
	LLMFallbackProvider string
	LLMModel            string
	LLMMaxTokens        int
	LLMTemperature      float64
	GenerationTimeout   time.Duration

	// Policy settings
	TemplateFile      string
	PersonaDir        string
	HistoryWindow     int
	ShortMessageRunes int
	MaxInboundRunes   int

	// Dispatcher
	Workers   int
	QueueSize int

	// Rate limiting
	RateLimitRequests        int
	RateLimitWindow          time.Duration
	InboundRateLimitRequests int

	// Logging
	LogLevel    string
	LogFormat   string
	LogSampling bool

	// Tracing
	TracingEndpoint    string
	TracingEnabled     bool
	TracingSampleRatio float64
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
		CORSOrigins:        getListEnv("CORS_ORIGINS", nil),

		// Persistence
		StoreDriver: getEnv("STORE_DRIVER", StoreMemory),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTTL:    getDurationEnv("REDIS_TTL", 30*24*time.Hour),

		// NATS
		NATSEnabled:       getBoolEnv("NATS_ENABLED", false),
		NATSURL:           getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:        getEnv("NATS_CA_FILE", ""),
		NATSCertFile:      getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:       getEnv("NATS_KEY_FILE", ""),
		NATSToken:         getEnv("NATS_TOKEN", ""),
		NATSStatsInterval: getDurationEnv("NATS_STATS_INTERVAL", 30*time.Second),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey:     getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		LLMProvider:         getEnv("LLM_PROVIDER", "anthropic"),
		LLMFallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
		LLMModel:            getEnv("LLM_MODEL", ""),
		LLMMaxTokens:        getIntEnv("LLM_MAX_TOKENS", 512),
		LLMTemperature:      getFloatEnv("LLM_TEMPERATURE", 0.7),
		GenerationTimeout:   getDurationEnv("GENERATION_TIMEOUT", 20*time.Second),

		// Policy
		TemplateFile:      getEnv("TEMPLATE_FILE", ""),
		PersonaDir:        getEnv("PERSONA_DIR", ""),
		HistoryWindow:     getIntEnv("HISTORY_WINDOW", 20),
		ShortMessageRunes: getIntEnv("SHORT_MESSAGE_RUNES", 20),
		MaxInboundRunes:   getIntEnv("MAX_INBOUND_RUNES", 1500),

		// Dispatcher
		Workers:   getIntEnv("WORKERS", 16),
		QueueSize: getIntEnv("QUEUE_SIZE", 64),

		// Rate limiting
		RateLimitRequests:        getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:          getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		InboundRateLimitRequests: getIntEnv("INBOUND_RATE_LIMIT_REQUESTS", 30),

		// Logging
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		LogSampling: getBoolEnv("LOG_SAMPLING", false),

		// Tracing
		TracingEndpoint:    getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:     getBoolEnv("TRACING_ENABLED", false),
		TracingSampleRatio: getFloatEnv("TRACING_SAMPLE_RATIO", 1),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.LLMFallbackProvider != "" && c.LLMProvider == c.LLMFallbackProvider {
		errs = append(errs, errors.New("LLM_FALLBACK_PROVIDER must differ from LLM_PROVIDER"))
	}
	for _, p := range []string{c.LLMProvider, c.LLMFallbackProvider} {
		if p != "" && c.APIKey(p) == "" {
			errs = append(errs, fmt.Errorf("missing API key for LLM provider %q", p))
		}
	}
	if c.LLMProvider == "" {
		errs = append(errs, errors.New("LLM_PROVIDER is required"))
	}

	if c.GenerationTimeout <= 0 {
		errs = append(errs, errors.New("GENERATION_TIMEOUT must be positive"))
	}
	if c.HistoryWindow <= 0 {
		errs = append(errs, errors.New("HISTORY_WINDOW must be positive"))
	}
	if c.ShortMessageRunes <= 0 || c.MaxInboundRunes <= c.ShortMessageRunes {
		errs = append(errs, errors.New("SHORT_MESSAGE_RUNES must be positive and below MAX_INBOUND_RUNES"))
	}
	if c.Workers <= 0 || c.QueueSize <= 0 {
		errs = append(errs, errors.New("WORKERS and QUEUE_SIZE must be positive"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		errs = append(errs, errors.New("TRACING_SAMPLE_RATIO must be within [0, 1]"))
	}

	return errors.Join(errs...)
}

// APIKey returns the configured key for an LLM provider, or "" when unknown.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case "anthropic":
		return c.AnthropicAPIKey
	case "openai":
		return c.OpenAIAPIKey
	default:
		return ""
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
