package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"APP_PORT", "WORKER_POOL_SIZE", "ENRICHMENT_DEADLINE", "RELAY_POLL_INTERVAL", "SESSION_TTL", "REDIS_URL", "NATS_URL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := Load()

	assert.Equal(t, "5019", cfg.App.Port)
	assert.Equal(t, 10, cfg.Worker.PoolSize)
	assert.Equal(t, 20*time.Second, cfg.Stream.EnrichmentDeadline)
	assert.Equal(t, 500*time.Millisecond, cfg.Stream.RelayPollInterval)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Empty(t, cfg.App.RedisURL)
	assert.Empty(t, cfg.App.NatsURL)
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "go duration", value: "1500ms", want: 1500 * time.Millisecond},
		{name: "seconds", value: "20", want: 20 * time.Second},
		{name: "fractional seconds", value: "0.5", want: 500 * time.Millisecond},
		{name: "empty", value: "", want: time.Minute},
		{name: "garbage", value: "soon", want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, getEnvAsDuration("TEST_DURATION", time.Minute))
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	assert.Equal(t, 42, getEnvAsInt("TEST_INT", 7))

	t.Setenv("TEST_INT", "x")
	assert.Equal(t, 7, getEnvAsInt("TEST_INT", 7))
}
