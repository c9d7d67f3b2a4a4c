package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "credit-risk-pipeline", cfg.App.Name)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 30*time.Second, cfg.API.WriteTimeout)
	assert.True(t, cfg.API.RateLimit.Enabled)
	assert.Equal(t, 50, cfg.API.RateLimit.Burst)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "risk.metrics", cfg.Kafka.Topics.RiskMetrics)
	assert.Equal(t, time.Minute, cfg.Risk.RefreshInterval)
	assert.Equal(t, int64(42), cfg.Risk.SampleSeed)
	assert.True(t, cfg.Database.Enabled)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  log_level: debug
api:
  port: 9000
kafka:
  enabled: true
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  producer:
    encoding: proto
risk:
  stress_workers: 2
`), 0o600))
	t.Setenv("CREDITRISK_RISK_HISTORY_LIMIT", "7")
	t.Setenv("CREDITRISK_API_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 9100, cfg.API.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "proto", cfg.Kafka.Producer.Encoding)
	assert.Equal(t, 2, cfg.Risk.StressWorkers)
	assert.Equal(t, 7, cfg.Risk.HistoryLimit)
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  port: 0\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("api: [unclosed"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CREDITRISK_CONFIG_PATH", "/etc/credit-risk.yaml")
	assert.Equal(t, "/etc/credit-risk.yaml", GetConfigPath())
}
