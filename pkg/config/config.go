// Package config loads process settings from the environment and planning
// behavior from a YAML profile.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds process configuration.
type Config struct {
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	LLMServiceURL string
	LLMAPIKey     string
	LLMModel      string
	ProfilePath   string
	OTelEnabled   bool
	OTelEndpoint  string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		LogLevel:      getenv("LOG_LEVEL", "INFO"),
		DatabaseURL:   getenv("DATABASE_URL", "memory"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		LLMServiceURL: getenv("LLM_SERVICE_URL", "http://localhost:1234/v1"),
		LLMAPIKey:     os.Getenv("LLM_API_KEY"),
		LLMModel:      getenv("LLM_MODEL", "gpt-4o-mini"),
		ProfilePath:   os.Getenv("BRAVVO_PROFILE"),
		OTelEnabled:   parseBool(os.Getenv("OTEL_ENABLED")),
		OTelEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

// SlogLevel maps LogLevel to a slog level; unknown values are INFO.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
