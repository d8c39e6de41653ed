package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 0.80, cfg.Identity.DuplicateThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Redis.MappingTTL)
	assert.Equal(t, 30*time.Second, cfg.Database.TxTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ROSTER_DATABASE_URL", "postgres://u:p@db:5432/roster")
	t.Setenv("ROSTER_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("ROSTER_KAFKA_BROKERS", " k1:9092, k2:9092 ,k1:9092,")
	t.Setenv("ROSTER_KAFKA_TOPIC", "identity")
	t.Setenv("ROSTER_DUPLICATE_THRESHOLD", "0.9")
	t.Setenv("ROSTER_FUZZY_MIN_SCORE", "0.5")
	t.Setenv("ROSTER_MAPPING_CACHE_TTL", "1m")
	t.Setenv("ROSTER_LOG_LEVEL", "DEBUG")
	t.Setenv("ROSTER_LOG_FORMAT", "json")
	t.Setenv("ROSTER_OPERATOR", "coach-kim")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/roster", cfg.Database.URL)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "identity", cfg.Kafka.Topic)
	assert.Equal(t, 0.9, cfg.Identity.DuplicateThreshold)
	assert.Equal(t, 0.5, cfg.Identity.FuzzyMinScore)
	assert.Equal(t, time.Minute, cfg.Redis.MappingTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "coach-kim", cfg.Operator)
}

func TestLoadPrefersExplicitValues(t *testing.T) {
	t.Setenv("ROSTER_DUPLICATE_THRESHOLD", "0.85")
	v := viper.New()
	v.Set("duplicate_threshold", 0.95)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 0.95, cfg.Identity.DuplicateThreshold)
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		env  map[string]string
		want string
	}{
		"threshold above one":    {env: map[string]string{"ROSTER_DUPLICATE_THRESHOLD": "1.2"}, want: "ROSTER_DUPLICATE_THRESHOLD"},
		"negative fuzzy score":   {env: map[string]string{"ROSTER_FUZZY_MIN_SCORE": "-0.1"}, want: "ROSTER_FUZZY_MIN_SCORE"},
		"unknown log level":      {env: map[string]string{"ROSTER_LOG_LEVEL": "trace"}, want: "ROSTER_LOG_LEVEL"},
		"unknown log format":     {env: map[string]string{"ROSTER_LOG_FORMAT": "xml"}, want: "ROSTER_LOG_FORMAT"},
		"zero cache ttl":         {env: map[string]string{"ROSTER_MAPPING_CACHE_TTL": "0s"}, want: "ROSTER_MAPPING_CACHE_TTL"},
		"non positive tx window": {env: map[string]string{"ROSTER_DATABASE_TX_TIMEOUT": "0s"}, want: "ROSTER_DATABASE_TX_TIMEOUT"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ROSTER_OPERATOR=from-dotenv\n"), 0o600))
	t.Setenv("ROSTER_OPERATOR", "")
	require.NoError(t, os.Unsetenv("ROSTER_OPERATOR"))

	LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path)
	t.Cleanup(func() { _ = os.Unsetenv("ROSTER_OPERATOR") })

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Operator)
}
