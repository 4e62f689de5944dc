package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "STORAGE", "NOTIFIER", "KAFKA_BROKERS", "SWEEP_ON_START", "SMS_RATE_PER_SEC", "DEDUCT_MAX_RETRIES"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.Storage)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.SweepOnStart)
	assert.Equal(t, 3, cfg.DeductMaxRetries)
	assert.Equal(t, 5.0, cfg.SMSRatePerSec)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("SWEEP_ON_START", "false")
	t.Setenv("DEDUCT_RETRY_WAIT", "25ms")
	t.Setenv("RELAY_WORKERS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.SweepOnStart)
	assert.Equal(t, 25*time.Millisecond, cfg.DeductRetryWait)
	assert.Equal(t, 2, cfg.RelayWorkers)
	assert.True(t, cfg.KafkaEnabled())

	t.Setenv("NOTIFIER", "log")
	cfg, err = Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"STORAGE":            "sqlite",
		"NOTIFIER":           "pigeon",
		"SMS_BURST":          "lots",
		"SWEEP_ON_START":     "maybe",
		"DEDUCT_RETRY_WAIT":  "10",
		"DEDUCT_MAX_RETRIES": "x",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
