package config_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"LOG_LEVEL", "DATABASE_URL", "REDIS_ADDR", "LLM_SERVICE_URL",
		"LLM_API_KEY", "LLM_MODEL", "BRAVVO_PROFILE", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(key, "")
	}

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.DatabaseURL)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.ProfilePath)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, "localhost:4317", cfg.OTelEndpoint)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LLM_SERVICE_URL", "http://remote-llm:8080/v1")
	t.Setenv("LLM_MODEL", "local-model")
	t.Setenv("BRAVVO_PROFILE", "/etc/bravvo/profile.yaml")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := config.Load()

	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "postgres://production:5432/db", cfg.DatabaseURL)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "http://remote-llm:8080/v1", cfg.LLMServiceURL)
	assert.Equal(t, "local-model", cfg.LLMModel)
	assert.Equal(t, "/etc/bravvo/profile.yaml", cfg.ProfilePath)
	assert.True(t, cfg.OTelEnabled)
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, (&config.Config{LogLevel: in}).SlogLevel(), in)
	}
}
