package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(databaseDSNEnv, "postgres://radar:secret@db:5432/radar")
	t.Setenv(llmAPIKeyEnv, "llm-key")
	t.Setenv(searchAPIKeyEnv, "search-key")
	t.Setenv(telegramTokenEnv, "tg-token")
	t.Setenv(telegramChatEnv, "42")

	cfg := Load()

	assert.Equal(t, "postgres://radar:secret@db:5432/radar", cfg.Database.DSN)
	assert.Equal(t, "llm-key", cfg.LLM.APIKey)
	assert.Equal(t, "search-key", cfg.Search.APIKey)
	assert.Equal(t, "tg-token", cfg.Notifications.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Notifications.Telegram.ChatID)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
database:
  dsn: postgres://file@db/radar
scheduler:
  lookAheadMinutes: 30
  runOnStartup: true
research:
  maxIterations: 5
`)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(llmAPIKeyEnv, "")
	t.Setenv(searchAPIKeyEnv, "")

	cfg := Load()

	assert.Equal(t, "postgres://file@db/radar", cfg.Database.DSN)
	assert.Equal(t, 30, cfg.Scheduler.LookAheadMinutes)
	assert.True(t, cfg.Scheduler.RunOnStartup)
	assert.Equal(t, 5, cfg.Research.MaxIterations)
	// Defaults survive when the file is silent.
	assert.Equal(t, 60, cfg.Scheduler.TickSeconds)
	assert.Equal(t, 3, cfg.Search.MaxAttempts)
}

func TestValidateListsEveryMissingSetting(t *testing.T) {
	var cfg Config

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "database.dsn")
	assert.ErrorContains(t, err, "search.apiKey")
	assert.ErrorContains(t, err, "llm.apiKey")
}

func TestSchedulerConfigDefaults(t *testing.T) {
	t.Parallel()

	var s SchedulerConfig
	assert.Equal(t, "1m0s", s.TickInterval().String())
	assert.Equal(t, "15m0s", s.LookAhead().String())
}
