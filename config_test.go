package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSettingsEmbeddedDefaults(t *testing.T) {
	settings, err := parseSettings([]byte(defaultSettings), NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, settings.Validate())

	assert.Equal(t, "memory", settings.Cache.Backend)
	assert.Equal(t, 10, settings.Cache.MaxArticles)
	assert.Equal(t, 60*time.Minute, settings.Cache.MaxAge)
	assert.Equal(t, 5, settings.Delivery.Quota)
	assert.Equal(t, 14, settings.RateLimit.PerMinute)
	assert.Equal(t, 1400, settings.RateLimit.PerDay)
	assert.Equal(t, 30*time.Second, settings.Timeouts.Call)
	assert.Equal(t, "gemini", settings.Summarizer.Provider)
	assert.Equal(t, ":5003", settings.Server.Address)
}

func TestParseSettingsFallsBackOnInvalidValues(t *testing.T) {
	yaml := `
cache:
  backend: Redis
  max_articles: 0
  max_age: -5m
delivery:
  quota: -1
rate_limit:
  per_minute: 0
  per_day: 0
`
	settings, err := parseSettings([]byte(yaml), NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, "redis", settings.Cache.Backend)
	assert.Equal(t, defaultMaxArticles, settings.Cache.MaxArticles)
	assert.Equal(t, defaultMaxAge, settings.Cache.MaxAge)
	assert.Equal(t, defaultQuota, settings.Delivery.Quota)
	assert.Equal(t, defaultRequestsPerMinute, settings.RateLimit.PerMinute)
	assert.Equal(t, defaultRequestsPerDay, settings.RateLimit.PerDay)
	assert.Equal(t, defaultCallTimeout, settings.Timeouts.Call)
	assert.Equal(t, "gemini", settings.Summarizer.Provider)
}

func TestParseSettingsRejectsBadYAML(t *testing.T) {
	_, err := parseSettings([]byte("cache: [unclosed"), NewNopLogger())
	assert.Error(t, err)
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name     string
		backend  string
		provider string
		wantErr  bool
	}{
		{"memory and gemini", "memory", "gemini", false},
		{"redis and anthropic", "redis", "anthropic", false},
		{"unknown backend", "memcached", "gemini", true},
		{"unknown provider", "memory", "openai", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Settings{}
			s.Cache.Backend = tt.backend
			s.Summarizer.Provider = tt.provider
			if err := s.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsureConfigExistsWritesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	require.NoError(t, ensureConfigExists())

	data, err := os.ReadFile(filepath.Join(".news-digest", "settings.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultSettings, string(data))

	// an existing file is left alone
	custom := []byte("delivery:\n  quota: 7\n")
	require.NoError(t, os.WriteFile(getConfigPath("settings.yaml"), custom, 0644))
	require.NoError(t, ensureConfigExists())

	cfg, err := NewConfig("", NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Settings.Delivery.Quota)
}

func TestNewConfigReadsSecretsFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NEWS_API_KEY", "news-key")
	t.Setenv("SENDGRID_API_KEY", "sg-key")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(defaultSettings), 0644))

	cfg, err := NewConfig(path, NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "news-key", cfg.Secrets.NewsAPIKey)
	assert.Equal(t, "sg-key", cfg.Secrets.SendGridKey)
	assert.Equal(t, "localhost:6379", cfg.Secrets.RedisAddress)
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"), NewNopLogger())
	assert.Error(t, err)
}
