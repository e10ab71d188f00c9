// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSAllowedOrigins []string

	// Agent settings
	AgentBackend    string
	AgentModel      string
	AgentWorkdir    string
	AgentTimeout    time.Duration
	ClaudeBinary    string
	AnthropicAPIKey string
	AnthropicURL    string
	OpenAIAPIKey    string
	OpenAIURL       string

	// NATS settings; an empty URL disables the telemetry bus
	NATSURL             string
	NATSCAFile          string
	NATSCertFile        string
	NATSKeyFile         string
	NATSToken           string
	NATSTelemetryStream string

	// Logging
	LogLevel string

	// Tracing
	TracingEnabled    bool
	TracingEndpoint   string
	TracingSampleRate float64
}

// Load reads configuration from environment variables, after merging an
// optional .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return FromEnv(), nil
}

// FromEnv reads configuration from the process environment only.
func FromEnv() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Minute),
		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),

		// Agent
		AgentBackend:    getEnv("AGENT_BACKEND", "claude-cli"),
		AgentModel:      getEnv("AGENT_MODEL", ""),
		AgentWorkdir:    getEnv("AGENT_WORKDIR", ""),
		AgentTimeout:    getDurationEnv("AGENT_TIMEOUT", 10*time.Minute),
		ClaudeBinary:    getEnv("CLAUDE_BINARY", "claude"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicURL:    getEnv("ANTHROPIC_BASE_URL", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIURL:       getEnv("OPENAI_BASE_URL", ""),

		// NATS
		NATSURL:             getEnv("NATS_URL", ""),
		NATSCAFile:          getEnv("NATS_CA_FILE", ""),
		NATSCertFile:        getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:         getEnv("NATS_KEY_FILE", ""),
		NATSToken:           getEnv("NATS_TOKEN", ""),
		NATSTelemetryStream: getEnv("NATS_TELEMETRY_STREAM", "CHAT_TELEMETRY"),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEnabled:    getBoolEnv("TRACING_ENABLED", false),
		TracingEndpoint:   getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingSampleRate: getFloatEnv("TRACING_SAMPLE_RATE", 1.0),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if value == "0" {
			return 0
		}
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
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
