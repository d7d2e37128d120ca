package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWith_Defaults(t *testing.T) {
	cfg, err := LoadWith(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 30*time.Second, cfg.Wizard.SubmissionTimeout)
	assert.Equal(t, 4, cfg.Wizard.IngestConcurrency)
	assert.Equal(t, 24*time.Hour, cfg.Wizard.SessionTTL)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 1024, cfg.Audit.BufferSize)
	assert.Equal(t, 30*time.Second, cfg.Audit.BreakerCooldown)
	assert.False(t, cfg.IsProduction())
}

func TestLoadWith_Overrides(t *testing.T) {
	cfg, err := LoadWith(map[string]string{
		"SPROUT_ENV":                       "production",
		"SPROUT_WIZARD_SUBMISSION_TIMEOUT": "5s",
		"SPROUT_REDIS_URL":                 "redis://localhost:6379/0",
		"SPROUT_KAFKA_BROKERS":             "a:9092,b:9092",
		"SPROUT_LOG_FORMAT":                "text",
	})
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 5*time.Second, cfg.Wizard.SubmissionTimeout)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadWith_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"zero timeout", map[string]string{"SPROUT_WIZARD_SUBMISSION_TIMEOUT": "0s"}, "submission timeout must be positive"},
		{"bad duration", map[string]string{"SPROUT_WIZARD_PREVIEW_TIMEOUT": "soon"}, "parse env"},
		{"no concurrency", map[string]string{"SPROUT_WIZARD_INGEST_CONCURRENCY": "0"}, "ingest concurrency must be at least 1"},
		{"unknown format", map[string]string{"SPROUT_LOG_FORMAT": "xml"}, `unknown log format "xml"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWith(tt.env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
