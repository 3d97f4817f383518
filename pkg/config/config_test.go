package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t, "LLM_MODEL_ID", "LLM_TIMEOUT_SECONDS", "DIRECTORY_URL", "MAX_RETRIES",
		"ASYNC_PROCESSING_THRESHOLD_CHARS", "JOB_RETENTION_MINUTES", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS")
	os.Setenv("DIRECTORY_URL", "http://directory.local")
	t.Cleanup(func() { os.Unsetenv("DIRECTORY_URL") })

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.ModelID)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 10000, cfg.Pipeline.AsyncThresholdChars)
	assert.Equal(t, 60, cfg.Pipeline.JobRetentionMinutes)
	assert.Equal(t, "en", cfg.Pipeline.WorkingLanguage)
}

func TestLoadFromEnv_MissingDirectoryURLFails(t *testing.T) {
	clearEnv(t, "DIRECTORY_URL")
	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestAuditConfig_ValidateRejectsIdleExceedingOpen(t *testing.T) {
	c := AuditConfig{MaxOpenConns: 2, MaxIdleConns: 5}
	require.Error(t, c.Validate())
}

func TestAuditConfig_DSN(t *testing.T) {
	c := AuditConfig{Host: "h", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())
}

func TestLLMConfig_ValidateRejectsEmptyModelID(t *testing.T) {
	c := LLMConfig{BaseURL: "http://x", Timeout: 1, MaxTokens: 1}
	require.Error(t, c.Validate())
}
