package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultAppliesAllDefaults(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 167, cfg.Pipeline.Scanners)
	assert.Equal(t, 20, cfg.Pipeline.TeamLeads)
	assert.Equal(t, 10, cfg.Pipeline.SectorHeads)
	assert.Equal(t, 60.0, cfg.Pipeline.ScoreThreshold)
	assert.Equal(t, 100000.0, cfg.Portfolio.InitialCash)
	assert.Equal(t, 70.0, cfg.Director.ConfidenceThreshold)
	assert.Equal(t, 0.05, cfg.Director.MaxPositionFraction)
	assert.Equal(t, 30, cfg.Director.LLM.RequestsPerMinute)
	assert.Equal(t, "sim", cfg.Market.Provider)
	assert.Equal(t, 30*time.Second, cfg.Health.Interval)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  port: 9090
pipeline:
  scanners: 12
  team_leads: 4
  sector_heads: 2
  tickers: [AAPL, MSFT]
  score_threshold: 75.0
portfolio:
  initial_cash: 250000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Pipeline.Scanners)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Pipeline.Tickers)
	assert.Equal(t, 75.0, cfg.Pipeline.ScoreThreshold)
	assert.Equal(t, 250000.0, cfg.Portfolio.InitialCash)

	// Untouched sections keep defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 70.0, cfg.Director.ConfidenceThreshold)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsInvertedHierarchy(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  scanners: 5
  team_leads: 10
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "team_leads")
}

func TestValidateRejectsKafkaWithoutBrokers(t *testing.T) {
	path := writeConfig(t, `
kafka:
  enabled: true
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.brokers")
}

func TestValidateRejectsUnknownMarketProvider(t *testing.T) {
	path := writeConfig(t, `
market:
  provider: carrier-pigeon
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market.provider")
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "environment: staging\n")

	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("TICKERS", "TSLA,NVDA,AMD")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("SERVER_PORT", "8181")

	cfg, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, []string{"TSLA", "NVDA", "AMD"}, cfg.Pipeline.Tickers)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 8181, cfg.Server.Port)
}
